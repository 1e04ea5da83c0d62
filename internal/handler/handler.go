package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/mapguard/map-guard/internal/domain/discount"
	"github.com/mapguard/map-guard/internal/function"
)

// DefaultMaxBodyBytes caps request bodies when HandlerConfig leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MaxBodyBytes limits the size of a RunInput document.
	MaxBodyBytes int64
}

// Handler serves discount previews: it runs the same codec and engine as
// the checkout function against a RunInput document posted by the caller.
type Handler struct {
	maxBodyBytes int64
	evaluations  metric.Int64Counter
	lines        metric.Int64Counter
}

// NewHandler constructs a Handler recording metrics on the given meter.
func NewHandler(cfg HandlerConfig, meter metric.Meter) (*Handler, error) {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	evaluations, err := meter.Int64Counter("mapguard.discount.evaluations",
		metric.WithDescription("Number of discount preview evaluations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create evaluations counter")
	}
	lines, err := meter.Int64Counter("mapguard.discount.lines",
		metric.WithDescription("Number of evaluated cart lines by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create lines counter")
	}

	return &Handler{
		maxBodyBytes: cfg.MaxBodyBytes,
		evaluations:  evaluations,
		lines:        lines,
	}, nil
}

// Routes returns the router for the /api prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/discounts/evaluate", h.Evaluate)
	r.Post("/discounts/explain", h.Explain)
	return r
}

// evaluation is the decoded input together with the plan decided for it.
type evaluation struct {
	input function.Input
	plan  discount.Plan
}

// evaluate reads the request body, decodes and decides it. On failure the
// error response has already been written and ok is false.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, endpoint string) (evaluation, bool) {
	ctx := r.Context()
	status := "ok"
	defer func() {
		h.evaluations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		))
	}()

	body, err := readBody(w, r, h.maxBodyBytes)
	if err != nil {
		status = "rejected"
		writeError(w, r, err)
		return evaluation{}, false
	}

	in, err := function.DecodeInput(body)
	if err != nil {
		status = "rejected"
		writeError(w, r, err)
		return evaluation{}, false
	}

	plan, err := discount.Decide(in.Lines)
	if err != nil {
		status = "rejected"
		writeError(w, r, err)
		return evaluation{}, false
	}

	for _, line := range in.Lines {
		_, reason := discount.Evaluate(line)
		h.lines.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(reason))))
	}

	zctx.From(ctx).Debug("Evaluated cart",
		zap.Int("lines", len(in.Lines)),
		zap.Int("discounts", len(plan.Discounts)),
	)
	return evaluation{input: in, plan: plan}, true
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already written; a failed write means the client left.
	_, _ = w.Write(e.Bytes())
}
