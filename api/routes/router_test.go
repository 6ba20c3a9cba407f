package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/utilitysplit/internal/billing"
	"github.com/angelmondragon/utilitysplit/internal/cycles"
	"github.com/angelmondragon/utilitysplit/internal/members"
	"github.com/angelmondragon/utilitysplit/internal/notify/notifytest"
	"github.com/angelmondragon/utilitysplit/internal/paylinks"
	"github.com/angelmondragon/utilitysplit/internal/reconcile"
	paystackwebhook "github.com/angelmondragon/utilitysplit/internal/webhooks/paystack"
	"github.com/angelmondragon/utilitysplit/pkg/auth"
	"github.com/angelmondragon/utilitysplit/pkg/config"
	"github.com/angelmondragon/utilitysplit/pkg/db"
	"github.com/angelmondragon/utilitysplit/pkg/db/dbtest"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/angelmondragon/utilitysplit/pkg/metrics"
)

const adminID = "100"

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubLinks struct{}

func (stubLinks) RequestLink(context.Context, string) (*paylinks.LinkResult, error) {
	return &paylinks.LinkResult{URL: "https://checkout.example/x", Reference: "ref-x"}, nil
}

type stubWebhooks struct{ calls int }

func (s *stubWebhooks) Handle(context.Context, []byte, string) (paystackwebhook.Outcome, error) {
	s.calls++
	return paystackwebhook.OutcomeApplied, nil
}

type countingLimiter struct{ counts map[string]int64 }

func (c *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

type fixture struct {
	handler  http.Handler
	cfg      *config.Config
	webhooks *stubWebhooks
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "dev"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "utilitysplit", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{PayLinkLimit: 1, PayLinkWindow: time.Minute},
	}
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	conn := dbtest.Open(t)

	registry, err := members.NewService(members.ServiceParams{Repo: members.NewRepository(conn), AdminID: adminID, Logger: logg})
	require.NoError(t, err)
	engine, err := cycles.NewEngine(cycles.EngineParams{DB: db.Wrap(conn), Repo: cycles.NewRepository(conn), Logger: logg})
	require.NoError(t, err)
	recorder := notifytest.New()
	reg := prometheus.NewRegistry()
	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Cycles:   engine,
		Admins:   registry,
		Notifier: recorder,
		Metrics:  metrics.NewReconcileMetrics(reg),
		Logger:   logg,
	})
	require.NoError(t, err)
	billingSvc, err := billing.NewService(billing.ServiceParams{
		Members:    registry,
		Cycles:     engine,
		Reconciler: reconciler,
		Notifier:   recorder,
		Logger:     logg,
	})
	require.NoError(t, err)

	for _, in := range []members.RegisterInput{
		{MemberID: adminID, DisplayName: "Landlord", Handle: "landlord"},
		{MemberID: "201", DisplayName: "Ada", Handle: "ada"},
	} {
		_, err := registry.Register(context.Background(), in)
		require.NoError(t, err)
	}

	webhooks := &stubWebhooks{}
	handler := NewRouter(RouterParams{
		Config:   cfg,
		Logger:   logg,
		DB:       stubPinger{},
		Redis:    stubPinger{},
		Limiter:  &countingLimiter{counts: map[string]int64{}},
		Billing:  billingSvc,
		Registry: registry,
		Links:    stubLinks{},
		Webhooks: webhooks,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return fixture{handler: handler, cfg: cfg, webhooks: webhooks}
}

func (f fixture) token(t *testing.T, memberID string, role enums.MemberRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(f.cfg.JWT, time.Now(), auth.AccessTokenPayload{MemberID: memberID, Role: role})
	require.NoError(t, err)
	return token
}

func (f fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/ready", "", "").Code)

	rec := f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRouteSkipsAuth(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paystack", strings.NewReader(`{}`))
	req.Header.Set("x-paystack-signature", "abc")
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.webhooks.calls)
}

func TestMemberRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/cycles/active", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/admin/v1/cycles", "", `{"total_amount":10}`).Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	tenant := f.token(t, "201", enums.MemberRoleTenant)

	rec := f.do(http.MethodPost, "/api/admin/v1/cycles", tenant, `{"total_amount":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCycleLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, adminID, enums.MemberRoleAdmin)
	tenant := f.token(t, "201", enums.MemberRoleTenant)

	rec := f.do(http.MethodGet, "/api/v1/cycles/active", tenant, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/v1/cycles", admin, `{"total_amount":"200"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct {
			ID          string `json:"id"`
			SplitAmount string `json:"split_amount"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "100.00", created.Data.SplitAmount)

	rec = f.do(http.MethodPost, "/api/admin/v1/cycles/"+created.Data.ID+"/payments", admin, `{"member_id":"201","reference":"cash-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/admin/v1/cycles/"+created.Data.ID+"/payments", admin, `{"member_id":"201","reference":"cash-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/cycles/active", tenant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Data struct {
			Remaining string `json:"remaining"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, "100.00", summary.Data.Remaining)

	rec = f.do(http.MethodGet, "/api/v1/cycles/history?limit=5", tenant, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentLinkIsRateLimitedPerMember(t *testing.T) {
	f := newFixture(t)
	tenant := f.token(t, "201", enums.MemberRoleTenant)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/payments/link", tenant, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/v1/payments/link", tenant, "").Code)
}

func TestMemberAdministrationOverHTTP(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, adminID, enums.MemberRoleAdmin)
	newcomer := f.token(t, "305", enums.MemberRoleTenant)

	rec := f.do(http.MethodPost, "/api/v1/members/register", newcomer, `{"display_name":"Chidi","handle":"chidi"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/admin/v1/members/305/deactivate", admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/admin/v1/members", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data struct {
			Members []struct {
				MemberID string `json:"member_id"`
				IsActive bool   `json:"is_active"`
			} `json:"members"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Data.Members, 3)
}
