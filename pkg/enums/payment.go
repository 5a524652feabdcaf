package enums

// Payment method markers carried on orders. "cod" stays unpaid until
// delivery; replacement orders use a dedicated marker so they never count
// toward revenue.
const (
	PaymentMethodCOD                 = "cod"
	PaymentMethodOnline              = "Online"
	PaymentMethodExchangeReplacement = "Exchange Replacement"
)
