package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MoneyPlaces is the minor-unit precision of every stored amount.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to MoneyPlaces.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// PriceLine computes the rounded pre-tax line total and the rounded line tax.
// taxRate is a percentage (5 means 5%).
func PriceLine(qty int64, unitPrice, taxRate decimal.Decimal) (lineTotal, tax decimal.Decimal) {
	lineTotal = Round2(unitPrice.Mul(decimal.NewFromInt(qty)))
	tax = Round2(lineTotal.Mul(taxRate).Div(hundred))
	return lineTotal, tax
}

// PriceSlice prices qty units of a line after prior units were already
// taken from it. Consecutive slices sum exactly to PriceLine of the whole
// quantity, so partial returns never round past the invoiced line.
func PriceSlice(prior, qty int64, unitPrice, taxRate decimal.Decimal) (lineTotal, tax decimal.Decimal) {
	beforeTotal, beforeTax := PriceLine(prior, unitPrice, taxRate)
	afterTotal, afterTax := PriceLine(prior+qty, unitPrice, taxRate)
	return afterTotal.Sub(beforeTotal), afterTax.Sub(beforeTax)
}

// Totals accumulates already-rounded line values so that
// Subtotal + Tax == Total holds exactly.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
}

// Add accumulates one priced line.
func (t *Totals) Add(lineTotal, tax decimal.Decimal) {
	t.Subtotal = t.Subtotal.Add(lineTotal)
	t.Tax = t.Tax.Add(tax)
}

// Total is Subtotal + Tax.
func (t Totals) Total() decimal.Decimal {
	return t.Subtotal.Add(t.Tax)
}

// NormalizeCode trims and upper-cases master data and company codes. A Caser
// keeps state, so one is built per call.
func NormalizeCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}
