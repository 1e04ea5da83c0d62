package function

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/mapguard/map-guard/internal/domain/discount"
)

// DecodeResult decodes a FunctionRunResult document produced by this or an
// earlier revision of the function. Amounts may be strings or numbers and
// currencyCode is ignored. Only single-target fixed amount discounts are
// understood; anything else is an *InputError.
func DecodeResult(data []byte) (discount.Plan, error) {
	plan := discount.Plan{Discounts: make([]discount.LineDiscount, 0)}

	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "discountApplicationStrategy":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "discountApplicationStrategy")
			}
			plan.Strategy = discount.Strategy(v)
			return nil
		case "discounts":
			return d.Arr(func(d *jx.Decoder) error {
				ld, err := decodeResultDiscount(d)
				if err != nil {
					return errors.Wrapf(err, "discount %d", len(plan.Discounts))
				}
				plan.Discounts = append(plan.Discounts, ld)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return discount.Plan{}, &InputError{Err: errors.Wrap(err, "result")}
	}
	return plan, nil
}

func decodeResultDiscount(d *jx.Decoder) (discount.LineDiscount, error) {
	var (
		ld         discount.LineDiscount
		targets    int
		seenAmount bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "targets":
			return d.Arr(func(d *jx.Decoder) error {
				targets++
				return decodeResultTarget(d, &ld.Target)
			})
		case "value":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "fixedAmount" {
					return d.Skip()
				}
				return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					if string(key) != "amount" {
						return d.Skip()
					}
					raw, err := scalar(d)
					if err != nil {
						return errors.Wrap(err, "amount")
					}
					amount, err := decimal.NewFromString(raw)
					if err != nil {
						return errors.Wrap(err, "amount")
					}
					ld.Amount = amount
					seenAmount = true
					return nil
				})
			})
		default:
			return d.Skip()
		}
	})
	switch {
	case err != nil:
		return discount.LineDiscount{}, err
	case targets != 1:
		return discount.LineDiscount{}, errors.Errorf("expected one target, got %d", targets)
	case !seenAmount:
		return discount.LineDiscount{}, errors.New("missing fixedAmount")
	}
	return ld, nil
}

func decodeResultTarget(d *jx.Decoder, t *discount.Target) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "productVariant" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				t.VariantID, err = d.Str()
			case "quantity":
				t.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		})
	})
}
