package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
)

type amountBody struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Note   string          `json:"note" validate:"max=5"`
}

func TestDecodeJSONBodyAcceptsDecimalString(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"100.50"}`))

	var body amountBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.True(t, body.Amount.Equal(decimal.RequireFromString("100.50")))
}

func TestDecodeJSONBodyRejectsNonPositiveAmount(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":0}`))

	var body amountBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{"amount": "must be greater than 0"}, typed.Details())
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":1,"extra":true}`))

	var body amountBody
	err := DecodeJSONBody(req, &body)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7", nil)
	got, err := ParseQueryInt(req, "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	got, err = ParseQueryInt(req, "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	req = httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err = ParseQueryInt(req, "limit", 10, 1, 50)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestParseQueryUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	id, err := ParseQueryUUID(req, "cycle_id")
	require.NoError(t, err)
	assert.Nil(t, id)

	req = httptest.NewRequest(http.MethodGet, "/?cycle_id=nope", nil)
	_, err = ParseQueryUUID(req, "cycle_id")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestPathParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/members/42/activate", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("memberId", "42")
	req = req.WithContext(contextWithRoute(req, rctx))

	got, err := PathParam(req, "memberId")
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	_, err = PathUUID(req, "memberId")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abc", SanitizeString(" abc ", 0))
}

func contextWithRoute(r *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
}
