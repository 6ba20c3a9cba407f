package cycles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/utilitysplit/api/middleware"
	"github.com/angelmondragon/utilitysplit/internal/billing"
	cyclesvc "github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	"github.com/angelmondragon/utilitysplit/pkg/db/models"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/types"
)

type stubService struct {
	createInput billing.CreateBillInput
	createActor string
	cycle       *models.BillingCycle
	summary     *cyclesvc.Summary
	history     *cyclesvc.HistoryResult
	historyArgs cyclesvc.HistoryParams
	result      *reconcile.Result
	markArgs    []any
	err         error
}

func (s *stubService) CreateBill(_ context.Context, actorID string, input billing.CreateBillInput) (*models.BillingCycle, error) {
	s.createActor = actorID
	s.createInput = input
	return s.cycle, s.err
}

func (s *stubService) Balance(context.Context) (*cyclesvc.Summary, error) {
	return s.summary, s.err
}

func (s *stubService) History(_ context.Context, params cyclesvc.HistoryParams) (*cyclesvc.HistoryResult, error) {
	s.historyArgs = params
	return s.history, s.err
}

func (s *stubService) MarkPaidOnCycle(_ context.Context, actorID string, cycleID uuid.UUID, memberID string, amount decimal.Decimal, reference string) (*reconcile.Result, error) {
	s.markArgs = []any{actorID, cycleID, memberID, amount.String(), reference}
	return s.result, s.err
}

func sampleCycle() *models.BillingCycle {
	handle := "ada"
	return &models.BillingCycle{
		ID:          uuid.New(),
		TotalAmount: decimal.NewFromInt(100),
		SplitAmount: decimal.RequireFromString("33.3333333333"),
		DueDate:     time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		IsActive:    true,
		Roster: []models.CycleMember{
			{MemberID: "1", DisplayName: "Ada", Handle: &handle},
			{MemberID: "2", DisplayName: "Bola"},
			{MemberID: "3", DisplayName: "Chidi"},
		},
	}
}

func asAdmin(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithMember(req.Context(), "42", enums.MemberRoleAdmin))
}

func TestAdminCreateCycle(t *testing.T) {
	svc := &stubService{cycle: sampleCycle()}
	body := strings.NewReader(`{"total_amount":"100","handles":["@ada","bola"]}`)
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/api/admin/v1/cycles", body))
	rec := httptest.NewRecorder()

	AdminCreateCycle(svc, nil)(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "42", svc.createActor)
	assert.True(t, svc.createInput.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{"@ada", "bola"}, svc.createInput.Handles)

	var envelope struct {
		Data cycleView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "100.00", envelope.Data.TotalAmount)
	assert.Equal(t, "33.33", envelope.Data.SplitAmount)
	assert.Len(t, envelope.Data.Roster, 3)
}

func TestAdminCreateCycleRejectsNonPositiveAmount(t *testing.T) {
	svc := &stubService{cycle: sampleCycle()}
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"total_amount":"-5"}`)))
	rec := httptest.NewRecorder()

	AdminCreateCycle(svc, nil)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.createActor)
}

func TestAdminCreateCycleSurfacesPartialMatch(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeValidation, "some handles are not registered").
		WithDetails(map[string]any{"unresolved": []string{"@ghost"}})}
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"total_amount":90,"handles":["@ghost"]}`)))
	rec := httptest.NewRecorder()

	AdminCreateCycle(svc, nil)(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "some handles are not registered", body.Error.Message)
}

func TestActiveCycle(t *testing.T) {
	cycle := sampleCycle()
	paid := models.CyclePayment{MemberID: "1", Amount: decimal.RequireFromString("33.34"), Reference: "ref-1", Source: enums.PaymentSourceGateway}
	cycle.Payments = []models.CyclePayment{paid}
	svc := &stubService{summary: cyclesvc.Summarize(cycle)}
	rec := httptest.NewRecorder()

	ActiveCycle(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cycles/active", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data summaryView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Len(t, envelope.Data.Paid, 1)
	assert.Len(t, envelope.Data.Unpaid, 2)
	assert.Equal(t, "33.34", envelope.Data.Collected)
}

func TestActiveCycleNotFound(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeNotFound, "no active bill")}
	rec := httptest.NewRecorder()

	ActiveCycle(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCycleHistoryPassesPaging(t *testing.T) {
	svc := &stubService{history: &cyclesvc.HistoryResult{Items: []models.BillingCycle{*sampleCycle()}, Cursor: "next"}}
	rec := httptest.NewRecorder()

	CycleHistory(svc, nil)(rec, httptest.NewRequest(http.MethodGet, "/?limit=5&cursor=abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cyclesvc.HistoryParams{Limit: 5, Cursor: "abc"}, svc.historyArgs)

	var envelope struct {
		Data historyView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Len(t, envelope.Data.Cycles, 1)
	assert.Equal(t, "next", envelope.Data.Cursor)
}

func serveRecordPayment(svc Service, cycleID, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/cycles/{cycleId}/payments", AdminRecordPayment(svc, nil))
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/cycles/"+cycleID+"/payments", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdminRecordPaymentApplied(t *testing.T) {
	cycleID := uuid.New()
	svc := &stubService{result: &reconcile.Result{
		Applied:    true,
		PaidCount:  1,
		RosterSize: 3,
		Payment:    &models.CyclePayment{MemberID: "2", Amount: decimal.NewFromInt(40), Reference: "cash-1", Source: enums.PaymentSourceManual},
	}}

	rec := serveRecordPayment(svc, cycleID.String(), `{"member_id":"2","amount":40,"reference":"cash-1"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"42", cycleID, "2", "40", "cash-1"}, svc.markArgs)
}

func TestAdminRecordPaymentRejections(t *testing.T) {
	cases := []struct {
		reason string
		status int
	}{
		{reconcile.ReasonDuplicate, http.StatusConflict},
		{reconcile.ReasonOutOfScope, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		svc := &stubService{result: &reconcile.Result{Reason: tc.reason}}
		rec := serveRecordPayment(svc, uuid.NewString(), `{"member_id":"2"}`)
		assert.Equal(t, tc.status, rec.Code, tc.reason)
	}
}

func TestAdminRecordPaymentRejectsBadCycleID(t *testing.T) {
	svc := &stubService{}
	rec := serveRecordPayment(svc, "not-a-uuid", `{"member_id":"2"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.markArgs)
}
