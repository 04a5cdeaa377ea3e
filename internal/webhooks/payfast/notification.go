// Package payfast reconciles PayFast instant transaction notifications (ITN)
// with orders and payment records.
package payfast

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
)

// Payment statuses posted by the gateway.
const (
	StatusComplete  = "COMPLETE"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Field is one posted key/value pair. Order matters for the signature.
type Field struct {
	Key   string
	Value string
}

// Notification is a parsed ITN body.
type Notification struct {
	Fields []Field

	MPaymentID      string
	PFPaymentID     string
	PaymentStatus   string
	ItemName        string
	ItemDescription string
	AmountGross     *decimal.Decimal
	AmountFee       *decimal.Decimal
	AmountNet       *decimal.Decimal
	OrderID         string
	PayerID         string
	VendorID        string
	NameFirst       string
	NameLast        string
	EmailAddress    string
	MerchantID      string
	Signature       string
}

// ParseForm decodes a form-encoded ITN body, keeping fields in posted order.
func ParseForm(body string) (*Notification, error) {
	n := &Notification{}
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed notification body")
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed notification body")
		}
		n.Fields = append(n.Fields, Field{Key: key, Value: value})
		if err := n.assign(key, strings.TrimSpace(value)); err != nil {
			return nil, err
		}
	}
	if len(n.Fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "empty notification body")
	}
	return n, nil
}

func (n *Notification) assign(key, value string) error {
	var err error
	switch key {
	case "m_payment_id":
		n.MPaymentID = value
	case "pf_payment_id":
		n.PFPaymentID = value
	case "payment_status":
		n.PaymentStatus = strings.ToUpper(value)
	case "item_name":
		n.ItemName = value
	case "item_description":
		n.ItemDescription = value
	case "amount_gross":
		n.AmountGross, err = parseAmount(key, value)
	case "amount_fee":
		n.AmountFee, err = parseAmount(key, value)
	case "amount_net":
		n.AmountNet, err = parseAmount(key, value)
	case "custom_str1":
		n.OrderID = value
	case "custom_str2":
		n.PayerID = value
	case "custom_str3":
		n.VendorID = value
	case "name_first":
		n.NameFirst = value
	case "name_last":
		n.NameLast = value
	case "email_address":
		n.EmailAddress = value
	case "merchant_id":
		n.MerchantID = value
	case "signature":
		n.Signature = strings.ToLower(value)
	}
	return err
}

// ParsedOrderID returns the internal order id carried in custom_str1.
func (n *Notification) ParsedOrderID() (uuid.UUID, error) {
	if n.OrderID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "custom_str1 (order id) missing")
	}
	id, err := uuid.Parse(n.OrderID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "custom_str1 is not a valid order id")
	}
	return id, nil
}

// IdempotencyID identifies one delivery of one payment state.
func (n *Notification) IdempotencyID() string {
	if n.PFPaymentID == "" {
		return ""
	}
	return n.PFPaymentID + "|" + n.PaymentStatus
}

func parseAmount(key, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" is not a valid amount")
	}
	return &amount, nil
}
