// Package commission splits gross amounts between the platform and the merchant.
// All amounts are rounded half-up to cents.
package commission

import "github.com/shopspring/decimal"

const places = 2

// Split is the platform/merchant share of a gross payment.
type Split struct {
	Gross      decimal.Decimal
	Rate       decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}

// Totals is the amount breakdown of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Fee      decimal.Decimal
	Total    decimal.Decimal
}

// Round rounds half away from zero to two decimal places.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(places)
}

// SplitAmount computes commission = round(gross*rate) and net = round(gross-commission).
func SplitAmount(gross, rate decimal.Decimal) Split {
	commission := Round(gross.Mul(rate))
	return Split{
		Gross:      gross,
		Rate:       rate,
		Commission: commission,
		Net:        Round(gross.Sub(commission)),
	}
}

// OrderTotals derives the platform fee and total for a subtotal.
func OrderTotals(subtotal, rate decimal.Decimal) Totals {
	subtotal = Round(subtotal)
	fee := Round(subtotal.Mul(rate))
	return Totals{
		Subtotal: subtotal,
		Fee:      fee,
		Total:    subtotal.Add(fee),
	}
}

// LineTotal is quantity times unit price, rounded to cents.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Balanced reports whether commission and net add back up to gross within a cent.
func (s Split) Balanced() bool {
	return s.Commission.Add(s.Net).Sub(s.Gross).Abs().LessThanOrEqual(decimal.New(1, -places))
}
