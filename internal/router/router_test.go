package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"quota-platform/internal/db"
	"quota-platform/internal/events"
	"quota-platform/internal/metrics"
	"quota-platform/internal/models"
	"quota-platform/internal/services"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func (c apiClient) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (c apiClient) login(email, password string) string {
	c.t.Helper()
	rec, body := c.do("POST", "/api/v1/auth/login", "", models.LoginRequest{Email: email, Password: password})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(c.t, token)
	return token
}

func newTestServer(t *testing.T, ping func(context.Context) error) (apiClient, *prometheus.Registry) {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	sqlDB, err := db.Open(db.SQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.RunMigrations(ctx, sqlDB, db.SQLite))

	store := db.NewStore(sqlDB, db.SQLite)
	require.NoError(t, store.Seed(ctx, 1000, models.SystemSettings{
		CreditPrice:        decimal.NewFromInt(1),
		QuotaPrice:         decimal.NewFromInt(20),
		DailyPurchaseLimit: 100,
	}))

	registry := prometheus.NewRegistry()
	m := metrics.NewPrometheus(registry, "quota")
	emitter := events.Nop{}

	users := services.NewUserService(store, logger)
	require.NoError(t, users.EnsureAdmin(ctx, "admin@example.com", "admin-pw"))

	if ping == nil {
		ping = store.Ping
	}

	r := SetupRouter(Deps{
		Users:        users,
		Auth:         services.NewAuthService("router-test-secret", logger),
		Ledger:       services.NewLedgerService(store, emitter, m, logger),
		Marketplace:  services.NewMarketplaceService(store, emitter, m, logger),
		Requests:     services.NewRequestService(store, emitter, m, logger),
		Transactions: services.NewTransactionService(store, logger),
		Settings:     services.NewSettingsService(store, logger),
		Ping:         ping,
		Gatherer:     registry,
		RateLimit:    rate.Inf,
	}, logger)

	return apiClient{t: t, handler: r}, registry
}

func TestAgentLifecycleOverHTTP(t *testing.T) {
	api, _ := newTestServer(t, nil)

	rec, body := api.do("POST", "/api/v1/auth/register", "", models.RegisterRequest{
		Username: "agent1", Email: "agent1@example.com", Password: "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := body["user"].(map[string]any)
	agentID := int64(user["id"].(float64))
	assert.Equal(t, "pending", user["status"])
	assert.Nil(t, body["token"])

	rec, _ = api.do("POST", "/api/v1/auth/login", "", models.LoginRequest{Email: "agent1@example.com", Password: "pw"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do("POST", "/api/v1/auth/login", "", models.LoginRequest{Email: "agent1@example.com", Password: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	adminToken := api.login("admin@example.com", "admin-pw")
	rec, _ = api.do("POST", fmt.Sprintf("/api/v1/users/%d/activate", agentID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	agentToken := api.login("agent1@example.com", "pw")

	// No credit yet.
	rec, body = api.do("POST", "/api/v1/ledger/purchase", agentToken, models.PurchaseQuotaRequest{Quantity: 10})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_balance", body["error"])
	assert.Equal(t, "credit", body["resource"])
	assert.Equal(t, "user", body["holder"])

	rec, body = api.do("POST", "/api/v1/requests/credit", agentToken, models.CreateCreditRequest{
		Amount: decimal.NewFromInt(500),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requestID := int64(body["id"].(float64))

	rec, _ = api.do("POST", fmt.Sprintf("/api/v1/requests/credit/%d/resolve", requestID), agentToken,
		models.ResolveRequest{Decision: models.DecisionApprove})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = api.do("POST", fmt.Sprintf("/api/v1/requests/credit/%d/resolve", requestID), adminToken,
		models.ResolveRequest{Decision: models.DecisionApprove})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = api.do("POST", "/api/v1/ledger/purchase", agentToken, models.PurchaseQuotaRequest{Quantity: 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(10), body["normal_quantity"])

	rec, body = api.do("GET", "/api/v1/users/me", agentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(10), body["quota_balance"])
	assert.Equal(t, "300", body["credit_balance"])

	rec, body = api.do("GET", fmt.Sprintf("/api/v1/admin/reconcile/users/%d", agentID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["consistent"])

	rec, body = api.do("GET", "/api/v1/transactions/history?limit=1", agentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["transactions"], 1)
}

func TestErrorMapping(t *testing.T) {
	api, _ := newTestServer(t, nil)
	adminToken := api.login("admin@example.com", "admin-pw")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token", "GET", "/api/v1/users/me", "", nil, http.StatusUnauthorized},
		{"zero quantity", "POST", "/api/v1/ledger/return", adminToken, models.ReturnToPoolRequest{}, http.StatusBadRequest},
		{"unknown transaction", "GET", "/api/v1/transactions/9999", adminToken, nil, http.StatusNotFound},
		{"unknown user", "GET", "/api/v1/admin/reconcile/users/9999", adminToken, nil, http.StatusNotFound},
		{"unknown listing", "DELETE", "/api/v1/marketplace/listings/9999", adminToken, nil, http.StatusNotFound},
		{"bad decision", "POST", "/api/v1/requests/credit/1/resolve", adminToken, models.ResolveRequest{Decision: "maybe"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := api.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	api, _ := newTestServer(t, nil)

	rec, body := api.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	adminToken := api.login("admin@example.com", "admin-pw")
	rec, _ = api.do("POST", "/api/v1/ledger/return", adminToken, models.ReturnToPoolRequest{Quantity: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = api.do("GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `quota_ledger_operations_total{operation="return_to_pool",outcome="insufficient_balance"} 1`),
		rec.Body.String())

	down, _ := newTestServer(t, func(context.Context) error { return errors.New("down") })
	rec, _ = down.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
