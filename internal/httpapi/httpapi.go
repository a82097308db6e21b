package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"storekeep/backend/internal/authz"
	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/logger"
	"storekeep/backend/internal/metrics"
	"storekeep/backend/internal/service"
	"storekeep/backend/internal/store"
)

// Version is stamped at build time with -ldflags "-X storekeep/backend/internal/httpapi.Version=...".
var Version = "dev"

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	metrics       *metrics.Metrics
	knownPaths    map[string]bool
	log           *logger.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, log *logger.Logger) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		metrics:       metrics.New(),
		log:           log.Named("http"),
	}
}

// attemptLimiter keeps one token bucket per client key. Buckets idle for
// longer than ttl are dropped on the next call.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newAttemptLimiter allows max attempts per window, refilling one slot every
// window/max.
func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		ttl:      2 * window,
		visitors: make(map[string]*visitor),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

// route binds a path to the operation it performs and the roles admitted
// before the operation check runs. Both checks must pass.
type route struct {
	path    string
	op      domain.Operation
	roles   []domain.Role
	handler http.HandlerFunc
}

func roles(r ...domain.Role) []domain.Role { return r }

var (
	salesDesk    = roles(domain.RoleAdmin, domain.RoleManager, domain.RoleCashier)
	returnsDesk  = roles(domain.RoleAdmin, domain.RoleManager, domain.RoleCashier, domain.RoleSupport)
	productRead  = roles(domain.RoleAdmin, domain.RoleManager, domain.RoleCashier, domain.RoleStockist, domain.RoleViewer)
	catalogRead  = roles(domain.RoleAdmin, domain.RoleManager, domain.RoleStockist, domain.RoleViewer)
	adminOnly    = roles(domain.RoleAdmin)
	purchaseDesk = roles(domain.RoleAdmin, domain.RoleStockist)
	reporting    = roles(domain.RoleAdmin, domain.RoleManager)
	stockReports = roles(domain.RoleAdmin, domain.RoleManager, domain.RoleStockist)
)

func (a *API) routes() []route {
	return []route{
		{"/api/v1/sales/create", domain.OpCreateSale, salesDesk, a.handleSaleCreate},
		{"/api/v1/sales/list", domain.OpListSales, salesDesk, a.handleSaleList},
		{"/api/v1/sales/get", domain.OpListSales, salesDesk, a.handleSaleGet},

		{"/api/v1/payments/create", domain.OpCreatePayment, salesDesk, a.handlePaymentCreate},
		{"/api/v1/payments/list", domain.OpListPayment, salesDesk, a.handlePaymentList},

		{"/api/v1/rmas/create", domain.OpCreateReturn, returnsDesk, a.handleRMACreate},
		{"/api/v1/rmas/list", domain.OpListReturn, returnsDesk, a.handleRMAList},

		{"/api/v1/products/list", domain.OpListProduct, productRead, a.handleProductList},
		{"/api/v1/products/critical", domain.OpListProduct, productRead, a.handleProductCritical},
		{"/api/v1/products/create", domain.OpCreateProduct, adminOnly, a.handleProductCreate},
		{"/api/v1/products/edit", domain.OpEditProduct, adminOnly, a.handleProductEdit},
		{"/api/v1/products/delete", domain.OpDeleteProduct, adminOnly, a.handleProductDelete},

		{"/api/v1/categories/list", domain.OpListCategory, catalogRead, a.handleCategoryList},
		{"/api/v1/categories/create", domain.OpCreateCategory, adminOnly, a.handleCategoryCreate},
		{"/api/v1/categories/edit", domain.OpEditCategory, adminOnly, a.handleCategoryEdit},
		{"/api/v1/categories/delete", domain.OpDeleteCategory, adminOnly, a.handleCategoryDelete},

		{"/api/v1/suppliers/list", domain.OpListSupplier, catalogRead, a.handleSupplierList},
		{"/api/v1/suppliers/create", domain.OpCreateSupplier, adminOnly, a.handleSupplierCreate},
		{"/api/v1/suppliers/edit", domain.OpEditSupplier, adminOnly, a.handleSupplierEdit},
		{"/api/v1/suppliers/delete", domain.OpDeleteSupplier, adminOnly, a.handleSupplierDelete},

		{"/api/v1/purchases/list", domain.OpListPurchase, catalogRead, a.handlePurchaseList},
		{"/api/v1/purchases/create", domain.OpCreatePurchase, purchaseDesk, a.handlePurchaseCreate},

		{"/api/v1/users/list", domain.OpListUsers, adminOnly, a.handleUserList},
		{"/api/v1/users/create", domain.OpCreateUser, adminOnly, a.handleUserCreate},
		{"/api/v1/users/edit", domain.OpEditUser, adminOnly, a.handleUserEdit},
		{"/api/v1/users/delete", domain.OpDeleteUser, adminOnly, a.handleUserDelete},

		{"/api/v1/reports/sales", domain.OpGenerateReport, reporting, a.handleReportSales},
		{"/api/v1/reports/payments", domain.OpGenerateReport, reporting, a.handleReportPayments},
		{"/api/v1/reports/low-stock", domain.OpViewInventory, stockReports, a.handleReportLowStock},

		{"/api/v1/inventory/stock", domain.OpViewInventory, catalogRead, a.handleStockLevel},
		{"/api/v1/inventory/stock/debit", domain.OpEditProduct, adminOnly, a.handleStockDebit},
		{"/api/v1/inventory/stock/credit", domain.OpEditProduct, adminOnly, a.handleStockCredit},
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/version", a.handleVersion)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("/api/v1/auth/password", a.requireAuth(a.handlePasswordChange))

	a.knownPaths = map[string]bool{
		"/healthz": true, "/version": true, "/metrics": true,
		"/api/v1/auth/login": true, "/api/v1/auth/me": true, "/api/v1/auth/password": true,
	}
	for _, rt := range a.routes() {
		mux.HandleFunc(rt.path, a.guard(rt))
		a.knownPaths[rt.path] = true
	}

	return a.withMiddleware(mux)
}

// requireAuth admits any caller holding a valid token.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		identity, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r.WithContext(service.WithIdentity(r.Context(), identity)))
	}
}

// guard authenticates the caller, applies the route's role list and the
// operation check, records the audit entry and then runs the handler.
func (a *API) guard(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		identity, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if err := authz.Check(identity.Role, rt.op, rt.roles...); err != nil {
			a.log.Warn().Str("user_id", identity.UserID).Str("role", string(identity.Role)).Str("operation", string(rt.op)).Msg("access denied")
			a.metrics.Denied(string(rt.op))
			writeError(w, http.StatusForbidden, err)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := service.WithIdentity(r.Context(), identity)
		a.service.RecordAudit(ctx, r.URL.Path, r.Method, redactPayload(body))
		rt.handler(w, r.WithContext(ctx))
	}
}

func (a *API) authenticate(r *http.Request) (domain.Identity, error) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return domain.Identity{}, errors.New("missing bearer token")
	}
	identity, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
	if err != nil {
		return domain.Identity{}, err
	}
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		info.userID = identity.UserID
	}
	return identity, nil
}

var redactedKeys = map[string]bool{"password": true, "current_password": true, "new_password": true}

func redactPayload(body []byte) []byte {
	var fields map[string]any
	if len(body) == 0 || json.Unmarshal(body, &fields) != nil {
		return body
	}
	changed := false
	for key := range fields {
		if redactedKeys[key] {
			fields[key] = "[redacted]"
			changed = true
		}
	}
	if !changed {
		return body
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return body
	}
	return out
}

type requestInfoKey struct{}

type requestInfo struct {
	userID string
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		info := &requestInfo{}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		path := r.URL.Path
		if !a.knownPaths[path] {
			path = "unmatched"
		}
		a.metrics.ObserveRequest(r.Method, path, rec.status, time.Since(startedAt))

		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(startedAt)).
			Str("user_id", info.userID).
			Msg("request")
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, authz.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidReturnQuantity),
		errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInactiveAccount), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.log.Error().Err(err).Int("status", status).Msg("internal error")
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// decodeRequest decodes and validates the body into T, writing a 400 on failure.
func decodeRequest[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, false
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry the underlying error text.
	body := map[string]any{"error": err.Error()}
	if status >= 500 {
		body["error"] = "internal server error"
	}
	var verr *ValidationError
	if status == http.StatusBadRequest && errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
