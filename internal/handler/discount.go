package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mapguard/map-guard/internal/domain/discount"
	"github.com/mapguard/map-guard/internal/function"
)

// Evaluate handles POST /api/discounts/evaluate. The response body is the
// FunctionRunResult the checkout function would return for the posted input.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.evaluate(w, r, "evaluate")
	if !ok {
		return
	}

	var e jx.Encoder
	function.WriteResult(&e, ev.plan)
	writeJSON(w, http.StatusOK, &e)
}

// Explain handles POST /api/discounts/explain. Alongside the result it lists
// every cart line with the reason it did or did not qualify.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.evaluate(w, r, "explain")
	if !ok {
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i, line := range ev.input.Lines {
					writeExplanation(e, i, line)
				}
			})
		})
		e.Field("result", func(e *jx.Encoder) {
			function.WriteResult(e, ev.plan)
		})
	})
	writeJSON(w, http.StatusOK, &e)
}

func writeExplanation(e *jx.Encoder, idx int, line discount.CartLine) {
	d, reason := discount.Evaluate(line)
	e.Obj(func(e *jx.Encoder) {
		e.Field("index", func(e *jx.Encoder) { e.Int(idx) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(line.MerchandiseKind) })
		if line.VariantID != "" {
			e.Field("variantId", func(e *jx.Encoder) { e.Str(line.VariantID) })
		}
		e.Field("quantity", func(e *jx.Encoder) { e.Int(line.Quantity) })
		e.Field("unitPrice", func(e *jx.Encoder) { e.Str(line.UnitPrice.StringFixed(2)) })
		if line.CurrencyCode != "" {
			e.Field("currencyCode", func(e *jx.Encoder) { e.Str(line.CurrencyCode) })
		}
		e.Field("reason", func(e *jx.Encoder) { e.Str(string(reason)) })
		if reason == discount.ReasonQualifies {
			e.Field("amount", func(e *jx.Encoder) { e.Str(d.FormattedAmount()) })
		}
	})
}

// readBody reads the request body up to limit bytes.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

// writeError maps domain and codec errors to HTTP error responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())

	var (
		status  int
		message string
		tooBig  *http.MaxBytesError
		cErr    *discount.ContractError
	)
	switch {
	case errors.As(err, &tooBig):
		status, message = http.StatusRequestEntityTooLarge, "request body too large"
	case errors.As(err, &cErr):
		status, message = http.StatusUnprocessableEntity, cErr.Error()
	case errors.Is(err, function.ErrMalformedInput):
		status, message = http.StatusBadRequest, err.Error()
	default:
		lg.Error("Evaluate failed", zap.Error(err))
		status, message = http.StatusInternalServerError, "internal error"
	}
	if status != http.StatusInternalServerError {
		lg.Info("Rejected input", zap.Int("status", status), zap.String("reason", message))
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
	writeJSON(w, status, &e)
}
