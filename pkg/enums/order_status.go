package enums

import "fmt"

// OrderStatus tracks the order-level lifecycle.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusConfirmed  OrderStatus = "Confirmed"
	OrderStatusDispatched OrderStatus = "Dispatched"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusReturned   OrderStatus = "Returned"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusConfirmed,
	OrderStatusDispatched,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

// orderStatusLevels defines the forward progression; Cancelled and Returned
// sit outside the ordered flow.
var orderStatusLevels = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusConfirmed:  2,
	OrderStatusDispatched: 3,
	OrderStatusShipped:    4,
	OrderStatusDelivered:  5,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Level returns the position of the status in the ordered progression.
// The second return is false for the Cancelled/Returned side states.
func (s OrderStatus) Level() (int, bool) {
	level, ok := orderStatusLevels[s]
	return level, ok
}

// NextOrdered returns the status one step after the given level.
func NextOrdered(level int) (OrderStatus, bool) {
	for _, candidate := range validOrderStatuses {
		if l, ok := orderStatusLevels[candidate]; ok && l == level+1 {
			return candidate, true
		}
	}
	return "", false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
