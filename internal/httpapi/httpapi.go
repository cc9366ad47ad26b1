package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"salesanalysis/backend/internal/analysis"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/service"
	"salesanalysis/backend/internal/sheetapi"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger.With(zap.String("component", "http")),
	}
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

// Allow records an attempt for key and reports whether it fits in the window.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0:0]
	for _, ts := range l.entries[key] {
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
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/analysis/", a.requireAuth(a.handleAnalysis))

	mux.HandleFunc("/api/v1/master", a.requireAuth(a.handleMaster))
	mux.HandleFunc("/api/v1/master/departments", a.requireAuth(a.handleDepartments))
	mux.HandleFunc("/api/v1/master/contacts", a.requireAuth(a.handleContacts))
	mux.HandleFunc("/api/v1/activities", a.requireAuth(a.handleActivities))
	mux.HandleFunc("/api/v1/activities/", a.requireAuth(a.handleActivityActions))
	mux.HandleFunc("/api/v1/action-list", a.requireAuth(a.handleActionList))
	mux.HandleFunc("/api/v1/action-list/status", a.requireAuth(a.handleActionStatus))
	mux.HandleFunc("/api/v1/proposal-products", a.requireAuth(a.handleProposalProducts))

	mux.HandleFunc("/api/v1/performance", a.requireAuth(a.handlePerformance))
	mux.HandleFunc("/api/v1/performance/sort", a.requireAuth(a.handlePerformanceSort))
	mux.HandleFunc("/api/v1/performance/breakdown", a.requireAuth(a.handlePerformanceBreakdown))
	mux.HandleFunc("/api/v1/performance/cache", a.requireAuth(a.handlePerformanceCache))
	mux.HandleFunc("/api/v1/dashboard", a.requireAuth(a.handleDashboard))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
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

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
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
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
		)
	})
}

// writeServiceError maps domain and upstream failures to HTTP statuses.
// Upstream logical failures keep their message so the operator sees it.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *sheetapi.APIError
	var transportErr *sheetapi.TransportError

	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, analysis.ErrInvalidSortField):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrUnknownMode),
		errors.Is(err, service.ErrNoData),
		errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrUnknownKey):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrLoadInProgress),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrDatasetChanged),
		errors.Is(err, analysis.ErrBackfillRequired):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &apiErr):
		a.logger.Warn("sheet api rejected request", zap.String("action", apiErr.Action), zap.String("message", apiErr.Message))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": apiErr.Message})
	case errors.As(err, &transportErr):
		a.logger.Warn("sheet api unreachable", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "sheet api request failed"})
	case errors.Is(err, sheetapi.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	default:
		a.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints where the body may be
// omitted. It reports whether a body was present.
func decodeOptionalJSON(r *http.Request, dest any) (bool, error) {
	if r.Body == nil {
		return false, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return false, err
	}
	if len(body) > maxBodyBytes {
		return false, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return false, err
	}
	return true, nil
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

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal detail; callers log the cause.
	msg := err.Error()
	if status >= 500 {
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
