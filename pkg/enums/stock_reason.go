package enums

import "fmt"

// StockReason labels why a stock counter changed in the ledger.
type StockReason string

const (
	StockReasonOrder           StockReason = "Order"
	StockReasonRestock         StockReason = "Restock"
	StockReasonAdminAdjustment StockReason = "Admin Adjustment"
	StockReasonReturn          StockReason = "Return"
	StockReasonOrderCancelled  StockReason = "Order Cancelled"
	StockReasonCronRestore     StockReason = "Cron Restore"
	StockReasonSystemRestore   StockReason = "System Restore"
)

var validStockReasons = []StockReason{
	StockReasonOrder,
	StockReasonRestock,
	StockReasonAdminAdjustment,
	StockReasonReturn,
	StockReasonOrderCancelled,
	StockReasonCronRestore,
	StockReasonSystemRestore,
}

// IsValid reports whether the value is a known StockReason.
func (r StockReason) IsValid() bool {
	for _, candidate := range validStockReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseStockReason converts raw input into a StockReason.
func ParseStockReason(value string) (StockReason, error) {
	for _, candidate := range validStockReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock reason %q", value)
}
