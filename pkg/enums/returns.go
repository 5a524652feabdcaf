package enums

import "fmt"

// ReturnType distinguishes refund requests from exchange requests.
type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "Return"
	ReturnTypeExchange ReturnType = "Exchange"
)

// IsValid reports whether the value is a known ReturnType.
func (t ReturnType) IsValid() bool {
	return t == ReturnTypeReturn || t == ReturnTypeExchange
}

// ParseReturnType converts raw input into a ReturnType.
func ParseReturnType(value string) (ReturnType, error) {
	switch ReturnType(value) {
	case ReturnTypeReturn, ReturnTypeExchange:
		return ReturnType(value), nil
	}
	return "", fmt.Errorf("invalid return type %q", value)
}

// ReturnStatus tracks the return/exchange request lifecycle.
type ReturnStatus string

const (
	ReturnStatusRequested            ReturnStatus = "Requested"
	ReturnStatusApproved             ReturnStatus = "Approved"
	ReturnStatusRejected             ReturnStatus = "Rejected"
	ReturnStatusPickupScheduled      ReturnStatus = "Pickup Scheduled"
	ReturnStatusPickedUp             ReturnStatus = "Picked Up"
	ReturnStatusReceived             ReturnStatus = "Received"
	ReturnStatusQCPending            ReturnStatus = "QC Pending"
	ReturnStatusQCPassed             ReturnStatus = "QC Passed"
	ReturnStatusQCFailed             ReturnStatus = "QC Failed"
	ReturnStatusRefundInitiated      ReturnStatus = "Refund Initiated"
	ReturnStatusRefundCompleted      ReturnStatus = "Refund Completed"
	ReturnStatusReplacementSent      ReturnStatus = "Replacement Sent"
	ReturnStatusReplacementDelivered ReturnStatus = "Replacement Delivered"
	ReturnStatusExchanged            ReturnStatus = "Exchanged"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusRequested,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusPickupScheduled,
	ReturnStatusPickedUp,
	ReturnStatusReceived,
	ReturnStatusQCPending,
	ReturnStatusQCPassed,
	ReturnStatusQCFailed,
	ReturnStatusRefundInitiated,
	ReturnStatusRefundCompleted,
	ReturnStatusReplacementSent,
	ReturnStatusReplacementDelivered,
	ReturnStatusExchanged,
}

// IsValid reports whether the value is a known ReturnStatus.
func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s ReturnStatus) IsTerminal() bool {
	switch s {
	case ReturnStatusRejected, ReturnStatusRefundCompleted, ReturnStatusReplacementSent,
		ReturnStatusReplacementDelivered, ReturnStatusExchanged:
		return true
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}

// QCStatus is the quality-check verdict on a received return.
type QCStatus string

const (
	QCStatusPending QCStatus = "Pending"
	QCStatusPassed  QCStatus = "Passed"
	QCStatusFailed  QCStatus = "Failed"
)

// PickupMethod is how the returned item travels back to the warehouse.
type PickupMethod string

const (
	PickupMethodPickup   PickupMethod = "Pickup"
	PickupMethodSelfShip PickupMethod = "Self Ship"
)
