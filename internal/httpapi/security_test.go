package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storekeep/backend/internal/authz"
	"storekeep/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()

	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()

	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/sales/create", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoginRateLimitReturns429(t *testing.T) {
	env := newTestEnv(t)
	creds := domain.LoginRequest{Email: "admin@test.local", Password: "wrong-pass"}

	for i := 0; i < 6; i++ {
		rec := env.post(t, "/api/v1/auth/login", "", creds)
		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	}
}

func TestAttemptLimiterTracksKeysSeparately(t *testing.T) {
	l := newAttemptLimiter(2, time.Minute)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	var nilLimiter *attemptLimiter
	assert.True(t, nilLimiter.Allow("anyone"))
}

func TestMetricsEndpointReportsDenials(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, domain.RoleCashier)
	env.post(t, "/api/v1/products/list", token, nil)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storekeep_authz_denied_total{operation="listProduct"} 1`)
	assert.Contains(t, rec.Body.String(), `path="/api/v1/auth/login"`)
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	env := newTestEnv(t)
	veryLong := strings.Repeat("a", maxBodyBytes+1024)

	rec := env.post(t, "/api/v1/auth/login", "", fmt.Sprintf(`{"email":"%s@x.io","password":"x"}`, veryLong))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, rt := range env.api.routes() {
		rec := env.post(t, rt.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)
	}
	rec := env.post(t, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectsGarbageAndForeignTokens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/api/v1/sales/list", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	foreign := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, storekeepClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "usr-admin",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(domain.RoleAdmin),
	})
	signed, err := foreign.SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	rec = env.post(t, "/api/v1/sales/list", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouteRequiresPost(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()

	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sales/list", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestManagerCannotCreateUsers(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, domain.RoleManager)

	rec := env.post(t, "/api/v1/users/create", token, domain.UserCreateRequest{
		Name: "Sneaky", Email: "sneaky@test.local", Password: "long-enough-pw", Role: "admin",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient role")
}

// Cashier passes the route's role list for product reads but holds no
// listProduct grant, so the operation check rejects it.
func TestCashierDeniedProductListByOperation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, domain.RoleCashier)

	rec := env.post(t, "/api/v1/products/list", token, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), string(domain.OpListProduct))
}

func TestDeniedRequestsAreNotAudited(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, domain.RoleViewer)

	rec := env.post(t, "/api/v1/sales/create", token, domain.SaleCreateRequest{
		Items:         []domain.SaleLine{{ProductID: "prd-a", Quantity: 1}},
		PaymentMethod: domain.PaymentMethodCash,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	logs, err := env.repo.ListAuditLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// Every role listed on a route must also hold the route's operation, apart
// from the product read routes where cashier is admitted by role only.
func TestRouteRolesHoldOperation(t *testing.T) {
	env := newTestEnv(t)

	for _, rt := range env.api.routes() {
		for _, role := range rt.roles {
			if role == domain.RoleCashier && rt.op == domain.OpListProduct {
				continue
			}
			assert.True(t, authz.Can(role, rt.op), "%s lists %s without %s", rt.path, role, rt.op)
		}
	}
}

func TestRoutePathsAreUnique(t *testing.T) {
	env := newTestEnv(t)
	seen := make(map[string]bool)

	for _, rt := range env.api.routes() {
		assert.False(t, seen[rt.path], "duplicate route %s", rt.path)
		seen[rt.path] = true
		assert.NotEmpty(t, rt.roles, rt.path)
	}
}

func TestInternalErrorsHideDetails(t *testing.T) {
	rec := httptest.NewRecorder()

	writeError(rec, http.StatusInternalServerError, fmt.Errorf("pq: connection refused at 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestRedactPayload(t *testing.T) {
	out := redactPayload([]byte(`{"email":"a@b.c","new_password":"hunter22","current_password":"x"}`))

	assert.NotContains(t, string(out), "hunter22")
	assert.Contains(t, string(out), "a@b.c")
	assert.Equal(t, []byte("not json"), redactPayload([]byte("not json")))
}

func TestClientKey(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:5000": "127.0.0.1",
		"[::1]:8080":     "::1",
		"":               "unknown",
		"just-a-host":    "just-a-host",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		assert.Equal(t, want, clientKey(req), remote)
	}
}
