package enums

// PaymentMethod is how a requester intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

var paymentMethods = newValueSet("payment method",
	PaymentMethodCard,
	PaymentMethodCash,
	PaymentMethodBankTransfer,
)

func ParsePaymentMethod(value string) (PaymentMethod, error) { return paymentMethods.parse(value) }

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// SettlesOnline is true when the gateway, not the vendor, confirms payment.
func (p PaymentMethod) SettlesOnline() bool {
	return p.IsValid() && p != PaymentMethodCash
}
