package discount

import (
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// minorUnits is the number of fractional digits kept in discount amounts.
const minorUnits = 2

// Decide builds the discount plan for the given cart lines.
//
// Each line qualifies independently of the others. The discount for a
// qualifying line is the per-line total (currentUnitPrice - finalPrice) *
// quantity, computed exactly and rounded half-up to two decimals once at
// the end. Discounts keep the relative order of their cart lines.
//
// Decide returns a *ContractError, and no plan, when any line violates
// the input schema.
func Decide(lines []CartLine) (Plan, error) {
	for i, line := range lines {
		if err := validate(i, line); err != nil {
			return Plan{}, err
		}
	}

	discounts := make([]LineDiscount, 0)
	for _, line := range lines {
		if d, reason := Evaluate(line); reason == ReasonQualifies {
			discounts = append(discounts, d)
		}
	}

	return Plan{
		Strategy:  StrategyFirst,
		Discounts: discounts,
	}, nil
}

// Evaluate applies the eligibility rule to a single line. The returned
// LineDiscount is only meaningful when the reason is ReasonQualifies.
func Evaluate(line CartLine) (LineDiscount, Reason) {
	if line.MerchandiseKind != KindProductVariant {
		return LineDiscount{}, ReasonNotVariant
	}
	if line.MapEnabled == nil || !*line.MapEnabled {
		return LineDiscount{}, ReasonMapDisabled
	}
	if line.FinalPrice == nil {
		return LineDiscount{}, ReasonNoFinalPrice
	}
	finalPrice, ok := ParseFinalPrice(*line.FinalPrice)
	if !ok {
		return LineDiscount{}, ReasonNoFinalPrice
	}

	perUnit := line.UnitPrice.Sub(finalPrice)
	if !perUnit.IsPositive() {
		return LineDiscount{}, ReasonAtOrBelowFloor
	}

	// A positive difference qualifies even when it rounds to 0.00.
	amount := perUnit.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(minorUnits)

	return LineDiscount{
		Target: Target{
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		},
		Amount:       amount,
		CurrencyCode: line.CurrencyCode,
	}, ReasonQualifies
}

// ParseFinalPrice parses a final_price metafield value. It accepts a plain
// non-negative decimal ("10", "10.00", ".5") or a money metafield JSON
// object ({"amount":"10.00","currency_code":"USD"}). Anything else,
// including exponents and negative values, is rejected.
func ParseFinalPrice(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "{") {
		amount, ok := moneyAmount(s)
		if !ok {
			return decimal.Decimal{}, false
		}
		s = strings.TrimSpace(amount)
	}
	if !isPlainDecimal(s) {
		return decimal.Decimal{}, false
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// moneyAmount extracts the amount field of a money metafield value. s must
// hold exactly one JSON object.
func moneyAmount(s string) (string, bool) {
	raw, err := jx.DecodeStr(s).Raw()
	if err != nil || len(raw) != len(s) {
		return "", false
	}

	var (
		amount string
		found  bool
	)
	if err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "amount" {
			return d.Skip()
		}
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			if err != nil {
				return err
			}
			amount, found = v, true
		case jx.Number:
			v, err := d.Num()
			if err != nil {
				return err
			}
			amount, found = string(v), true
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return "", false
	}
	return amount, found
}

// isPlainDecimal reports whether s is digits with at most one decimal point
// and at least one digit on each side of it (the integer part may be empty).
func isPlainDecimal(s string) bool {
	if s == "" {
		return false
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if !allDigits(intPart) || !allDigits(fracPart) {
		return false
	}
	if hasDot {
		return fracPart != ""
	}
	return intPart != ""
}

func allDigits(s string) bool {
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// validate checks the fields the schema marks as required.
func validate(i int, line CartLine) error {
	if line.MerchandiseKind == "" {
		return &ContractError{Index: i, Field: "merchandise kind", Reason: "missing"}
	}
	if line.Quantity <= 0 {
		return &ContractError{Index: i, Field: "quantity", Reason: "must be greater than 0"}
	}
	if line.MerchandiseKind != KindProductVariant {
		return nil
	}
	if line.VariantID == "" {
		return &ContractError{Index: i, Field: "variant id", Reason: "missing"}
	}
	if line.UnitPrice.IsNegative() {
		return &ContractError{Index: i, Field: "unit price", Reason: "must not be negative"}
	}
	return nil
}
