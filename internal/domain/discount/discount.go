// Package discount decides which cart lines receive a MAP discount at
// checkout and by how much.
//
// The package is pure: no I/O, no clocks, no randomness and no shared
// state. Decide is safe to call from any number of goroutines.
package discount

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// KindProductVariant is the only merchandise kind that can be discounted.
const KindProductVariant = "ProductVariant"

// Strategy tells the checkout host how proposed discounts combine with
// other discounts on the same target.
type Strategy string

// StrategyFirst applies at most one discount per target. It is the only
// strategy the engine ever emits.
const StrategyFirst Strategy = "FIRST"

// Reason explains the outcome of evaluating a single cart line.
type Reason string

const (
	// ReasonQualifies means the line receives a discount.
	ReasonQualifies Reason = "qualifies"
	// ReasonNotVariant means the merchandise is not a product variant.
	ReasonNotVariant Reason = "not_variant"
	// ReasonMapDisabled means MAP enforcement is off or unset for the product.
	ReasonMapDisabled Reason = "map_disabled"
	// ReasonNoFinalPrice means the variant has no usable final price.
	ReasonNoFinalPrice Reason = "no_final_price"
	// ReasonAtOrBelowFloor means the current price does not exceed the final price.
	ReasonAtOrBelowFloor Reason = "at_or_below_floor"
)

// ErrContractViolation is the sentinel wrapped by every *ContractError.
var ErrContractViolation = errors.New("cart line contract violation")

// ContractError reports a cart line that does not match the input schema.
// It fails the whole invocation.
type ContractError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("cart line %d: %s: %s", e.Index, e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrContractViolation).
func (e *ContractError) Unwrap() error {
	return ErrContractViolation
}

// CartLine is one cart entry together with the MAP configuration resolved
// for its merchandise.
type CartLine struct {
	MerchandiseKind string
	VariantID       string
	Quantity        int
	UnitPrice       decimal.Decimal
	CurrencyCode    string
	// MapEnabled is the product-level flag; nil when the metafield is unset.
	MapEnabled *bool
	// FinalPrice is the raw variant-level metafield value; nil when unset.
	FinalPrice *string
}

// Target identifies the cart line a discount applies to.
type Target struct {
	VariantID string
	Quantity  int
}

// LineDiscount is a fixed amount taken off a whole cart line.
type LineDiscount struct {
	Target       Target
	Amount       decimal.Decimal
	CurrencyCode string
}

// FormattedAmount returns the amount with exactly two fractional digits.
func (d LineDiscount) FormattedAmount() string {
	return d.Amount.StringFixed(2)
}

// Plan is the engine output handed back to the checkout host.
type Plan struct {
	Strategy  Strategy
	Discounts []LineDiscount
}

// Configuration is the optional function-level configuration blob stored
// on the discount node. Nothing reads it yet.
type Configuration struct {
	Raw []byte
}
