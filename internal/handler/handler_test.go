package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

const qualifyingInput = `{
	"cart": {"lines": [
		{
			"quantity": 2,
			"merchandise": {
				"__typename": "ProductVariant",
				"id": "gid://shopify/ProductVariant/123",
				"product": {"id": "gid://shopify/Product/456", "metafield": {"value": "true"}},
				"metafield": {"value": "10.00"}
			},
			"cost": {"amountPerQuantity": {"amount": "15.00", "currencyCode": "USD"}}
		},
		{
			"quantity": 1,
			"merchandise": {
				"__typename": "ProductVariant",
				"id": "gid://shopify/ProductVariant/789",
				"product": {"id": "gid://shopify/Product/456", "metafield": {"value": "false"}},
				"metafield": {"value": "1.00"}
			},
			"cost": {"amountPerQuantity": {"amount": "5.00", "currencyCode": "USD"}}
		}
	]},
	"discountNode": {"metafield": null}
}`

func newTestHandler(t *testing.T, cfg HandlerConfig) *Handler {
	t.Helper()

	h, err := NewHandler(cfg, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return h
}

func post(t *testing.T, h *Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, req)
	return w
}

func TestEvaluate(t *testing.T) {
	h := newTestHandler(t, HandlerConfig{})

	w := post(t, h, "/discounts/evaluate", qualifyingInput)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"discountApplicationStrategy":"FIRST","discounts":[
		{"targets":[{"productVariant":{"id":"gid://shopify/ProductVariant/123","quantity":2}}],
		 "value":{"fixedAmount":{"amount":"10.00"}}}]}`, w.Body.String())
}

func TestEvaluate_EmptyCart(t *testing.T) {
	h := newTestHandler(t, HandlerConfig{})

	w := post(t, h, "/discounts/evaluate", `{"cart":{"lines":[]}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"discountApplicationStrategy":"FIRST","discounts":[]}`, w.Body.String())
}

func TestExplain(t *testing.T) {
	h := newTestHandler(t, HandlerConfig{})

	w := post(t, h, "/discounts/explain", qualifyingInput)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"lines": [
			{"index":0,"kind":"ProductVariant","variantId":"gid://shopify/ProductVariant/123",
			 "quantity":2,"unitPrice":"15.00","currencyCode":"USD","reason":"qualifies","amount":"10.00"},
			{"index":1,"kind":"ProductVariant","variantId":"gid://shopify/ProductVariant/789",
			 "quantity":1,"unitPrice":"5.00","currencyCode":"USD","reason":"map_disabled"}
		],
		"result": {"discountApplicationStrategy":"FIRST","discounts":[
			{"targets":[{"productVariant":{"id":"gid://shopify/ProductVariant/123","quantity":2}}],
			 "value":{"fixedAmount":{"amount":"10.00"}}}]}
	}`, w.Body.String())
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		cfg        HandlerConfig
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "malformed json",
			body:       `{"cart":`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "malformed function input",
		},
		{
			name:       "missing cart",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "missing cart",
		},
		{
			name: "negative quantity",
			body: `{"cart":{"lines":[{"quantity":-1,"merchandise":{"__typename":"ProductVariant","id":"V"},
				"cost":{"amountPerQuantity":{"amount":"1.00","currencyCode":"USD"}}}]}}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "cart line 0: quantity: must be greater than 0",
		},
		{
			name: "missing price",
			body: `{"cart":{"lines":[{"quantity":1,"merchandise":{"__typename":"ProductVariant","id":"V"}}]}}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "cart line 0: cost.amountPerQuantity.amount: missing",
		},
		{
			name:       "null cost",
			body:       `{"cart":{"lines":[{"quantity":1,"merchandise":{"__typename":"ProductVariant","id":"V"},"cost":null}]}}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "cart line 0: cost.amountPerQuantity.amount: missing",
		},
		{
			name:       "body too large",
			cfg:        HandlerConfig{MaxBodyBytes: 16},
			body:       qualifyingInput,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantMsg:    "request body too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.cfg)

			w := post(t, h, "/discounts/evaluate", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)

			var (
				code    int
				message string
			)
			d := jx.DecodeBytes(w.Body.Bytes())
			require.NoError(t, d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "code":
					code, err = d.Int()
				case "message":
					message, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			}))
			assert.Equal(t, tt.wantStatus, code)
			assert.Contains(t, message, tt.wantMsg)
		})
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, HandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/discounts/evaluate", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
