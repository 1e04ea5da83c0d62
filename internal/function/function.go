// Package function adapts the discount engine to the checkout host's
// function contract: a RunInput JSON document in, a FunctionRunResult JSON
// document out.
package function

import (
	"io"

	"github.com/go-faster/errors"

	"github.com/mapguard/map-guard/internal/domain/discount"
)

// Metafield coordinates written by the admin app and read through InputQuery.
const (
	MetafieldNamespace  = "mapguard"
	MetafieldMapEnabled = "map_enabled"
	MetafieldFinalPrice = "final_price"
	MetafieldMapPrice   = "map_price"
)

// InputQuery is the input query the function registers with the host. The
// decoder reads exactly the fields selected here.
const InputQuery = `query RunInput {
  cart {
    lines {
      quantity
      merchandise {
        __typename
        ... on ProductVariant {
          id
          product {
            id
            metafield(namespace: "mapguard", key: "map_enabled") {
              value
            }
          }
          metafield(namespace: "mapguard", key: "final_price") {
            value
          }
        }
      }
      cost {
        amountPerQuantity {
          amount
          currencyCode
        }
      }
    }
  }
  discountNode {
    metafield(namespace: "$app:map-discount", key: "function-configuration") {
      value
    }
  }
}
`

// ErrMalformedInput is matched by every decoding error that is not a
// cart line contract violation.
var ErrMalformedInput = errors.New("malformed function input")

// InputError is a structural decoding error. It matches ErrMalformedInput
// with errors.Is and unwraps to the underlying decoder error.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return ErrMalformedInput.Error() + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedInput.
func (e *InputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// Input is the decoded RunInput document.
type Input struct {
	Lines         []discount.CartLine
	Configuration discount.Configuration
}

// Run reads a RunInput document from r, decides the discounts and writes
// the FunctionRunResult document to w.
func Run(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read input")
	}

	result, err := Evaluate(data)
	if err != nil {
		return err
	}

	if _, err := w.Write(result); err != nil {
		return errors.Wrap(err, "write result")
	}
	return nil
}

// Evaluate decodes a RunInput document and returns the encoded result.
func Evaluate(data []byte) ([]byte, error) {
	in, err := DecodeInput(data)
	if err != nil {
		return nil, err
	}

	plan, err := discount.Decide(in.Lines)
	if err != nil {
		return nil, errors.Wrap(err, "decide")
	}

	return EncodeResult(plan), nil
}
