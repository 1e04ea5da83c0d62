package discount

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func boolPtr(v bool) *bool {
	return &v
}

func strPtr(v string) *string {
	return &v
}

// mapLine returns a MAP-enabled variant line with the given prices.
func mapLine(id string, qty int, price, final string) CartLine {
	return CartLine{
		MerchandiseKind: KindProductVariant,
		VariantID:       id,
		Quantity:        qty,
		UnitPrice:       d(price),
		CurrencyCode:    "USD",
		MapEnabled:      boolPtr(true),
		FinalPrice:      strPtr(final),
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		lines []CartLine
		want  []LineDiscount
	}{
		{
			name:  "no lines",
			lines: nil,
			want:  []LineDiscount{},
		},
		{
			name:  "price above final price discounts the whole line",
			lines: []CartLine{mapLine("v1", 2, "15.00", "10.00")},
			want: []LineDiscount{
				{Target: Target{VariantID: "v1", Quantity: 2}, Amount: d("10.00"), CurrencyCode: "USD"},
			},
		},
		{
			name:  "single unit",
			lines: []CartLine{mapLine("v1", 1, "49.99", "39.99")},
			want: []LineDiscount{
				{Target: Target{VariantID: "v1", Quantity: 1}, Amount: d("10.00"), CurrencyCode: "USD"},
			},
		},
		{
			name:  "price below final price",
			lines: []CartLine{mapLine("v1", 1, "10.00", "15.00")},
			want:  []LineDiscount{},
		},
		{
			name:  "price equal to final price",
			lines: []CartLine{mapLine("v1", 3, "12.50", "12.50")},
			want:  []LineDiscount{},
		},
		{
			name: "map disabled",
			lines: []CartLine{func() CartLine {
				l := mapLine("v1", 2, "15.00", "10.00")
				l.MapEnabled = boolPtr(false)
				return l
			}()},
			want: []LineDiscount{},
		},
		{
			name: "map flag unset",
			lines: []CartLine{func() CartLine {
				l := mapLine("v1", 2, "15.00", "10.00")
				l.MapEnabled = nil
				return l
			}()},
			want: []LineDiscount{},
		},
		{
			name: "final price unset",
			lines: []CartLine{func() CartLine {
				l := mapLine("v1", 2, "15.00", "")
				l.FinalPrice = nil
				return l
			}()},
			want: []LineDiscount{},
		},
		{
			name:  "final price unparseable",
			lines: []CartLine{mapLine("v1", 2, "15.00", "ten dollars")},
			want:  []LineDiscount{},
		},
		{
			name: "non-variant merchandise is inert",
			lines: []CartLine{{
				MerchandiseKind: "CustomProduct",
				VariantID:       "c1",
				Quantity:        1,
				UnitPrice:       d("100.00"),
				MapEnabled:      boolPtr(true),
				FinalPrice:      strPtr("1.00"),
			}},
			want: []LineDiscount{},
		},
		{
			name:  "final price zero discounts the full line",
			lines: []CartLine{mapLine("v1", 2, "7.25", "0")},
			want: []LineDiscount{
				{Target: Target{VariantID: "v1", Quantity: 2}, Amount: d("14.50"), CurrencyCode: "USD"},
			},
		},
		{
			name:  "money metafield value",
			lines: []CartLine{mapLine("v1", 2, "15.00", `{"amount":"10.00","currency_code":"USD"}`)},
			want: []LineDiscount{
				{Target: Target{VariantID: "v1", Quantity: 2}, Amount: d("10.00"), CurrencyCode: "USD"},
			},
		},
		{
			name: "order preserved and skipped lines dropped",
			lines: []CartLine{
				mapLine("a", 1, "20.00", "15.00"),
				mapLine("b", 1, "10.00", "15.00"),
				mapLine("c", 4, "3.00", "2.50"),
			},
			want: []LineDiscount{
				{Target: Target{VariantID: "a", Quantity: 1}, Amount: d("5.00"), CurrencyCode: "USD"},
				{Target: Target{VariantID: "c", Quantity: 4}, Amount: d("2.00"), CurrencyCode: "USD"},
			},
		},
		{
			name: "same variant on two lines yields two discounts",
			lines: []CartLine{
				mapLine("v1", 1, "15.00", "10.00"),
				mapLine("v1", 2, "15.00", "10.00"),
			},
			want: []LineDiscount{
				{Target: Target{VariantID: "v1", Quantity: 1}, Amount: d("5.00"), CurrencyCode: "USD"},
				{Target: Target{VariantID: "v1", Quantity: 2}, Amount: d("10.00"), CurrencyCode: "USD"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.lines)
			require.NoError(t, err)

			assert.Equal(t, StrategyFirst, got.Strategy)
			require.NotNil(t, got.Discounts)
			require.Len(t, got.Discounts, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want.Target, got.Discounts[i].Target)
				assert.Equal(t, want.CurrencyCode, got.Discounts[i].CurrencyCode)
				assert.True(t, want.Amount.Equal(got.Discounts[i].Amount),
					"discount %d: expected amount %s, got %s", i, want.Amount, got.Discounts[i].Amount)
			}
		})
	}
}

func TestDecide_Rounding(t *testing.T) {
	tests := []struct {
		name string
		line CartLine
		want string
	}{
		{
			name: "0.1 times 3 stays exact",
			line: mapLine("v1", 3, "1.10", "1.00"),
			want: "0.30",
		},
		{
			name: "sub-cent difference rounds half up",
			line: mapLine("v1", 1, "10.00", "9.995"),
			want: "0.01",
		},
		{
			name: "sub-cent difference rounds down and still qualifies",
			line: mapLine("v1", 1, "10.00", "9.996"),
			want: "0.00",
		},
		{
			name: "rounding happens after multiplying by quantity",
			line: mapLine("v1", 3, "10.00", "9.995"),
			// 0.005 * 3 = 0.015 -> 0.02
			want: "0.02",
		},
		{
			name: "whole number amount is padded",
			line: mapLine("v1", 1, "20", "15"),
			want: "5.00",
		},
		{
			name: "large quantity",
			line: mapLine("v1", 1000, "19.99", "17.49"),
			want: "2500.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide([]CartLine{tt.line})
			require.NoError(t, err)

			require.Len(t, got.Discounts, 1)
			assert.Equal(t, tt.want, got.Discounts[0].FormattedAmount())
		})
	}
}

func TestDecide_Idempotent(t *testing.T) {
	lines := []CartLine{
		mapLine("a", 2, "15.00", "10.00"),
		mapLine("b", 1, "9.00", "9.00"),
	}

	first, err := Decide(lines)
	require.NoError(t, err)
	second, err := Decide(lines)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecide_DoesNotMutateInput(t *testing.T) {
	lines := []CartLine{mapLine("a", 2, "15.00", "10.00")}
	before := lines[0]

	_, err := Decide(lines)
	require.NoError(t, err)

	assert.Equal(t, before, lines[0])
}

func TestDecide_LinesAreIndependent(t *testing.T) {
	target := mapLine("t", 2, "15.00", "10.00")
	others := [][]CartLine{
		nil,
		{mapLine("x", 1, "1.00", "5.00")},
		{mapLine("x", 9, "100.00", "1.00"), {MerchandiseKind: "CustomProduct", Quantity: 1}},
	}

	for _, extra := range others {
		got, err := Decide(append([]CartLine{target}, extra...))
		require.NoError(t, err)
		require.NotEmpty(t, got.Discounts)
		assert.Equal(t, "t", got.Discounts[0].Target.VariantID)
		assert.Equal(t, "10.00", got.Discounts[0].FormattedAmount())
	}
}

func TestDecide_ContractViolation(t *testing.T) {
	tests := []struct {
		name      string
		lines     []CartLine
		wantIndex int
		wantField string
	}{
		{
			name:      "missing merchandise kind",
			lines:     []CartLine{{VariantID: "v1", Quantity: 1, UnitPrice: d("1")}},
			wantIndex: 0,
			wantField: "merchandise kind",
		},
		{
			name: "zero quantity",
			lines: []CartLine{
				mapLine("ok", 1, "2.00", "1.00"),
				mapLine("bad", 0, "2.00", "1.00"),
			},
			wantIndex: 1,
			wantField: "quantity",
		},
		{
			name:      "negative quantity on non-variant line",
			lines:     []CartLine{{MerchandiseKind: "CustomProduct", Quantity: -1}},
			wantIndex: 0,
			wantField: "quantity",
		},
		{
			name:      "negative unit price",
			lines:     []CartLine{mapLine("v1", 1, "-1.00", "1.00")},
			wantIndex: 0,
			wantField: "unit price",
		},
		{
			name:      "missing variant id",
			lines:     []CartLine{mapLine("", 1, "2.00", "1.00")},
			wantIndex: 0,
			wantField: "variant id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.lines)
			require.ErrorIs(t, err, ErrContractViolation)
			assert.Nil(t, got.Discounts, "no partial plan on contract violation")

			var cErr *ContractError
			require.True(t, errors.As(err, &cErr))
			assert.Equal(t, tt.wantIndex, cErr.Index)
			assert.Equal(t, tt.wantField, cErr.Field)
		})
	}
}

func TestEvaluate_Reasons(t *testing.T) {
	disabled := mapLine("v", 1, "2.00", "1.00")
	disabled.MapEnabled = boolPtr(false)

	tests := []struct {
		name string
		line CartLine
		want Reason
	}{
		{"qualifies", mapLine("v", 1, "2.00", "1.00"), ReasonQualifies},
		{"not variant", CartLine{MerchandiseKind: "CustomProduct", Quantity: 1}, ReasonNotVariant},
		{"disabled", disabled, ReasonMapDisabled},
		{"bad final price", mapLine("v", 1, "2.00", "-1.00"), ReasonNoFinalPrice},
		{"at floor", mapLine("v", 1, "1.00", "1.00"), ReasonAtOrBelowFloor},
		{"sub-cent difference", mapLine("v", 1, "1.000", "0.999"), ReasonQualifies},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, reason := Evaluate(tt.line)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestEvaluate_SubCentDifference(t *testing.T) {
	got, reason := Evaluate(mapLine("v1", 1, "10.00", "9.996"))

	require.Equal(t, ReasonQualifies, reason)
	assert.Equal(t, "0.00", got.FormattedAmount())
	assert.Equal(t, Target{VariantID: "v1", Quantity: 1}, got.Target)
}

func TestParseFinalPrice(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{raw: "10.00", want: "10", wantOK: true},
		{raw: "10", want: "10", wantOK: true},
		{raw: " 9.5 ", want: "9.5", wantOK: true},
		{raw: ".5", want: "0.5", wantOK: true},
		{raw: "0", want: "0", wantOK: true},
		{raw: `{"amount":"12.34","currency_code":"USD"}`, want: "12.34", wantOK: true},
		{raw: `{"currency_code":"CAD","amount":7}`, want: "7", wantOK: true},
		{raw: ""},
		{raw: "   "},
		{raw: "-1"},
		{raw: "+1"},
		{raw: "1e3"},
		{raw: "10."},
		{raw: "."},
		{raw: "1.2.3"},
		{raw: "10.00abc"},
		{raw: "NaN"},
		{raw: "Infinity"},
		{raw: `{"currency_code":"USD"}`},
		{raw: `{"amount":"-3.00"}`},
		{raw: `{"amount":`},
		{raw: `{"amount":null}`},
		{raw: `{"amount":"10.00"} junk`},
		{raw: `{"amount":"10.00"}{"amount":"1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseFinalPrice(tt.raw)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, d(tt.want).Equal(got), "expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestContractError(t *testing.T) {
	err := error(&ContractError{Index: 3, Field: "quantity", Reason: "must be greater than 0"})

	assert.EqualError(t, err, "cart line 3: quantity: must be greater than 0")
	assert.ErrorIs(t, err, ErrContractViolation)
}
