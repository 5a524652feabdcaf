package enums

import "fmt"

// OrderItemStatus tracks the per-line-item lifecycle inside an order.
type OrderItemStatus string

const (
	OrderItemStatusOrdered           OrderItemStatus = "Ordered"
	OrderItemStatusCancelled         OrderItemStatus = "Cancelled"
	OrderItemStatusReturnRequested   OrderItemStatus = "Return Requested"
	OrderItemStatusReturned          OrderItemStatus = "Returned"
	OrderItemStatusExchangeRequested OrderItemStatus = "Exchange Requested"
	OrderItemStatusExchanged         OrderItemStatus = "Exchanged"
	OrderItemStatusDelivered         OrderItemStatus = "Delivered"
)

var validOrderItemStatuses = []OrderItemStatus{
	OrderItemStatusOrdered,
	OrderItemStatusCancelled,
	OrderItemStatusReturnRequested,
	OrderItemStatusReturned,
	OrderItemStatusExchangeRequested,
	OrderItemStatusExchanged,
	OrderItemStatusDelivered,
}

// IsValid reports whether the value is a known OrderItemStatus.
func (s OrderItemStatus) IsValid() bool {
	for _, candidate := range validOrderItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderItemStatus converts raw input into an OrderItemStatus.
func ParseOrderItemStatus(value string) (OrderItemStatus, error) {
	for _, candidate := range validOrderItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item status %q", value)
}
