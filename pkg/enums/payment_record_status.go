package enums

// PaymentRecordStatus is the settlement state of a payment record. Values are
// upper case to match the gateway's vocabulary.
type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "PENDING"
	PaymentRecordCompleted PaymentRecordStatus = "COMPLETED"
	PaymentRecordFailed    PaymentRecordStatus = "FAILED"
	PaymentRecordCancelled PaymentRecordStatus = "CANCELLED"
	PaymentRecordPaid      PaymentRecordStatus = "PAID"
)

var paymentRecordStatuses = newValueSet("payment record status",
	PaymentRecordPending,
	PaymentRecordCompleted,
	PaymentRecordFailed,
	PaymentRecordCancelled,
	PaymentRecordPaid,
)

// SettledPaymentRecordStatuses are the statuses whose merchant amount counts as earned.
var SettledPaymentRecordStatuses = []PaymentRecordStatus{
	PaymentRecordCompleted,
	PaymentRecordPaid,
}

func ParsePaymentRecordStatus(value string) (PaymentRecordStatus, error) {
	return paymentRecordStatuses.parse(value)
}

func (p PaymentRecordStatus) String() string { return string(p) }

func (p PaymentRecordStatus) IsValid() bool { return paymentRecordStatuses.has(p) }

func (p PaymentRecordStatus) IsSettled() bool {
	return p == PaymentRecordCompleted || p == PaymentRecordPaid
}
