package function

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/mapguard/map-guard/internal/domain/discount"
)

const priceField = "cost.amountPerQuantity.amount"

// DecodeInput decodes a RunInput document. Unknown fields are ignored and
// null metafields decode as unset. Structural problems are reported as an
// *InputError matching ErrMalformedInput. A missing or unparseable line
// price is reported as a *discount.ContractError.
func DecodeInput(data []byte) (Input, error) {
	in := Input{Lines: make([]discount.CartLine, 0)}
	var seenCart bool

	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "cart":
			seenCart = true
			return decodeCart(d, &in)
		case "discountNode":
			return decodeDiscountNode(d, &in)
		default:
			return d.Skip()
		}
	})
	if err == nil && !seenCart {
		err = errors.New("missing cart")
	}
	if err != nil {
		var cErr *discount.ContractError
		if errors.As(err, &cErr) {
			return Input{}, cErr
		}
		return Input{}, &InputError{Err: err}
	}

	return in, nil
}

func decodeCart(d *jx.Decoder, in *Input) error {
	var seenLines bool
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "lines" {
			return d.Skip()
		}
		seenLines = true
		return d.Arr(func(d *jx.Decoder) error {
			line, err := decodeLine(d, len(in.Lines))
			if err != nil {
				return err
			}
			in.Lines = append(in.Lines, line)
			return nil
		})
	}); err != nil {
		return errors.Wrap(err, "cart")
	}
	if !seenLines {
		return errors.New("cart: missing lines")
	}
	return nil
}

func decodeLine(d *jx.Decoder, idx int) (discount.CartLine, error) {
	var (
		line      discount.CartLine
		seenPrice bool
	)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			line.Quantity = v
			return nil
		case "merchandise":
			return decodeMerchandise(d, &line)
		case "cost":
			return decodeCost(d, idx, &line, &seenPrice)
		default:
			return d.Skip()
		}
	}); err != nil {
		return discount.CartLine{}, errors.Wrapf(err, "line %d", idx)
	}
	if !seenPrice {
		return discount.CartLine{}, &discount.ContractError{Index: idx, Field: priceField, Reason: "missing"}
	}
	return line, nil
}

func decodeMerchandise(d *jx.Decoder, line *discount.CartLine) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "__typename":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "__typename")
			}
			line.MerchandiseKind = v
			return nil
		case "id":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "id")
			}
			line.VariantID = v
			return nil
		case "product":
			return decodeProduct(d, line)
		case "metafield":
			v, err := metafieldValue(d)
			if err != nil {
				return errors.Wrap(err, "metafield")
			}
			line.FinalPrice = v
			return nil
		default:
			return d.Skip()
		}
	})
}

func decodeProduct(d *jx.Decoder, line *discount.CartLine) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "metafield" {
			return d.Skip()
		}
		v, err := metafieldValue(d)
		if err != nil {
			return errors.Wrap(err, "product metafield")
		}
		if v != nil {
			enabled := *v == "true"
			line.MapEnabled = &enabled
		}
		return nil
	})
}

// decodeCost reads the line price. A cost or amountPerQuantity that is not an
// object, and a null amount, leave the price unset so decodeLine reports it
// as missing.
func decodeCost(d *jx.Decoder, idx int, line *discount.CartLine, seenPrice *bool) error {
	if d.Next() != jx.Object {
		return d.Skip()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "amountPerQuantity" || d.Next() != jx.Object {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "amount":
				if d.Next() == jx.Null {
					return d.Null()
				}
				raw, err := scalar(d)
				if err != nil {
					return errors.Wrap(err, "amount")
				}
				price, err := decimal.NewFromString(raw)
				if err != nil {
					return &discount.ContractError{Index: idx, Field: priceField, Reason: "not a decimal"}
				}
				line.UnitPrice = price
				*seenPrice = true
				return nil
			case "currencyCode":
				v, err := d.Str()
				if err != nil {
					return errors.Wrap(err, "currencyCode")
				}
				line.CurrencyCode = v
				return nil
			default:
				return d.Skip()
			}
		})
	})
}

func decodeDiscountNode(d *jx.Decoder, in *Input) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "metafield" {
			return d.Skip()
		}
		v, err := metafieldValue(d)
		if err != nil {
			return errors.Wrap(err, "discountNode metafield")
		}
		if v != nil {
			in.Configuration = discount.Configuration{Raw: []byte(*v)}
		}
		return nil
	})
}

// metafieldValue reads a nullable {"value": "..."} object. A value that is
// not a string is treated as unset.
func metafieldValue(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var value *string
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "value" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		value = &v
		return nil
	}); err != nil {
		return nil, err
	}
	return value, nil
}

// scalar reads a Decimal scalar, which hosts send as a string but older
// payloads send as a JSON number.
func scalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		v, err := d.Num()
		if err != nil {
			return "", err
		}
		return string(v), nil
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}
