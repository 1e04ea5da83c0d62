package function

import (
	"github.com/go-faster/jx"

	"github.com/mapguard/map-guard/internal/domain/discount"
)

// EncodeResult encodes a plan as a FunctionRunResult document. The
// discounts array is always present, even when empty.
func EncodeResult(plan discount.Plan) []byte {
	var e jx.Encoder
	WriteResult(&e, plan)
	return e.Bytes()
}

// WriteResult writes a FunctionRunResult object to e.
func WriteResult(e *jx.Encoder, plan discount.Plan) {
	strategy := plan.Strategy
	if strategy == "" {
		strategy = discount.StrategyFirst
	}

	e.Obj(func(e *jx.Encoder) {
		e.Field("discountApplicationStrategy", func(e *jx.Encoder) {
			e.Str(string(strategy))
		})
		e.Field("discounts", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, d := range plan.Discounts {
					writeDiscount(e, d)
				}
			})
		})
	})
}

func writeDiscount(e *jx.Encoder, d discount.LineDiscount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("targets", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("productVariant", func(e *jx.Encoder) {
						e.Obj(func(e *jx.Encoder) {
							e.Field("id", func(e *jx.Encoder) {
								e.Str(d.Target.VariantID)
							})
							e.Field("quantity", func(e *jx.Encoder) {
								e.Int(d.Target.Quantity)
							})
						})
					})
				})
			})
		})
		e.Field("value", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("fixedAmount", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("amount", func(e *jx.Encoder) {
							e.Str(d.FormattedAmount())
						})
					})
				})
			})
		})
	})
}
