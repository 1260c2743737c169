package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"tajautos/backend/internal/config"
	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/invoice"
	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/service"
	"tajautos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

var staffRoles = []string{domain.RoleStaff, domain.RoleAdmin}

type API struct {
	service       *service.Service
	auth          *AuthManager
	invoices      *invoice.Renderer
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	metrics       *httpMetrics
}

type httpMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newHTTPMetrics() *httpMetrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tajautos_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tajautos_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	registry.MustRegister(
		requests,
		latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &httpMetrics{registry: registry, requests: requests, latency: latency}
}

// New wires the HTTP surface. A nil renderer falls back to the default shop
// profile in the service's timezone.
func New(svc *service.Service, auth *AuthManager, invoices *invoice.Renderer, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if invoices == nil {
		invoices = invoice.NewRenderer(config.DefaultShopProfile(), svc.Location())
	}
	return &API{
		service:       svc,
		auth:          auth,
		invoices:      invoices,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		metrics:       newHTTPMetrics(),
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (Unix time truncated to the hour).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
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

func (a *API) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	router.Use(a.metricsMiddleware)

	router.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(a.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/csrf-token", a.handleCSRFToken).Methods(http.MethodGet)

	api.HandleFunc("/products", a.requireAuth(a.handleListProducts, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/products", a.requireAuth(a.handleCreateProduct, domain.RoleAdmin)).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", a.requireAuth(a.handleGetProduct, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", a.requireAuth(a.handleUpdateProduct, domain.RoleAdmin)).Methods(http.MethodPatch)
	api.HandleFunc("/products/{id}", a.requireAuth(a.handleDeleteProduct, domain.RoleAdmin)).Methods(http.MethodDelete)
	api.HandleFunc("/products/{id}/transfer", a.requireAuth(a.handleTransferStock, staffRoles...)).Methods(http.MethodPost)

	api.HandleFunc("/vendors", a.requireAuth(a.handleListVendors, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/vendors", a.requireAuth(a.handleCreateVendor, domain.RoleAdmin)).Methods(http.MethodPost)
	api.HandleFunc("/vendors/{id}", a.requireAuth(a.handleGetVendor, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/vendors/{id}", a.requireAuth(a.handleUpdateVendor, domain.RoleAdmin)).Methods(http.MethodPatch)
	api.HandleFunc("/vendors/{id}", a.requireAuth(a.handleDeleteVendor, domain.RoleAdmin)).Methods(http.MethodDelete)

	api.HandleFunc("/customers", a.requireAuth(a.handleListCustomers, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}", a.requireAuth(a.handleGetCustomer, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}", a.requireAuth(a.handleUpdateCustomer, staffRoles...)).Methods(http.MethodPatch)
	api.HandleFunc("/customers/{id}/ledger", a.requireAuth(a.handleCustomerLedger, staffRoles...)).Methods(http.MethodGet)

	api.HandleFunc("/sales", a.requireAuth(a.handleListSales, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/sales", a.requireAuth(a.handleCreateSale, staffRoles...)).Methods(http.MethodPost)
	api.HandleFunc("/sales/{id}", a.requireAuth(a.handleGetSale, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/sales/{id}/invoice", a.requireAuth(a.handleSaleInvoice, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/sales/{id}/receipt", a.requireAuth(a.handleSaleReceipt, staffRoles...)).Methods(http.MethodGet)

	api.HandleFunc("/purchases", a.requireAuth(a.handleListPurchases, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/purchases", a.requireAuth(a.handleCreatePurchase, staffRoles...)).Methods(http.MethodPost)
	api.HandleFunc("/payments", a.requireAuth(a.handleListPayments, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/payments", a.requireAuth(a.handleRecordPayment, staffRoles...)).Methods(http.MethodPost)

	api.HandleFunc("/reports", a.requireAuth(a.handleReport, domain.RoleAdmin)).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", a.requireAuth(a.handleDashboard, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/restock-suggestions", a.requireAuth(a.handleRestockSuggestions, staffRoles...)).Methods(http.MethodGet)
	api.HandleFunc("/ledger/verify", a.requireAuth(a.handleVerifyLedgers, domain.RoleAdmin)).Methods(http.MethodGet)
	api.HandleFunc("/users/staff", a.requireAuth(a.handleListStaff, domain.RoleAdmin)).Methods(http.MethodGet)
	api.HandleFunc("/users/staff", a.requireAuth(a.handleCreateStaff, domain.RoleAdmin)).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{a.allowedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(a.withMiddleware(router))
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// csrfExemptPaths are called before a client can hold a CSRF token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF requires a valid X-CSRF-Token on every state-changing method.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
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
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		if a.checkCSRF(rec, r) {
			next.ServeHTTP(rec, r)
		}
		duration := time.Since(startedAt)

		event := logger.Info(ctx)
		if rec.status >= http.StatusInternalServerError {
			event = logger.Error(ctx)
		} else if rec.status >= http.StatusBadRequest {
			event = logger.Warn(ctx)
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Str("request_id", requestID).
			Str("remote_addr", clientKey(r)).
			Msg("http request")
	})
}

func (a *API) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)

		a.metrics.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		a.metrics.latency.WithLabelValues(r.Method, route).Observe(time.Since(startedAt).Seconds())
	})
}

// statusFor maps a service error onto an HTTP status. Validation errors
// that wrap a conflict with current state answer 409.
func statusFor(err error) int {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		if errors.Is(err, store.ErrInsufficientStock) ||
			errors.Is(err, store.ErrOverpayment) ||
			errors.Is(err, store.ErrDuplicateCustomer) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(r.Context()).Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("request failed")
		writeJSON(w, status, map[string]any{"error": "internal server error"})
		return
	}
	body := map[string]any{"error": err.Error()}
	var vErr *service.ValidationError
	if errors.As(err, &vErr) && vErr.Field != "" {
		body["error"] = vErr.Reason
		body["field"] = vErr.Field
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseWindowBound reads a list filter bound. A bare date is taken in the
// shop timezone and, for the upper bound, covers the whole day.
func parseWindowBound(raw string, loc *time.Location, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at.UTC(), nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return day.UTC(), nil
}

func (a *API) listWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	loc := a.service.Location()
	from, err := parseWindowBound(r.URL.Query().Get("from"), loc, false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "field": "from"})
		return time.Time{}, time.Time{}, false
	}
	to, err := parseWindowBound(r.URL.Query().Get("to"), loc, true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "field": "to"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func limitList[T any](items []T, r *http.Request) []T {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 500, 5000)
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Logger.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
