package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"warehub/internal/apperror"
	"warehub/internal/config"
	"warehub/internal/export"
	"warehub/internal/metrics"
	"warehub/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	requestIDHeader = "X-Request-ID"
	dateLayout      = "2006-01-02"
)

// Services are the booking operations exposed over HTTP and gRPC.
type Services struct {
	Bookings  *service.BookingService
	Slots     *service.TimeSlotService
	Approvals *service.ApprovalService
	Exporter  *export.Exporter
}

// HTTPServer exposes the booking JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	server  *http.Server
	auth    *authenticator
	limiter *rateLimiter
	logger  zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	s := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		auth:    newAuthenticator(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  base,
	}

	mux := http.NewServeMux()
	s.route(mux, "GET /healthz", s.handleHealth)
	s.route(mux, "POST /api/v1/quotes", s.handleQuote)
	s.route(mux, "POST /api/v1/bookings", s.handleCreateBooking)
	s.route(mux, "POST /api/v1/bookings/on-behalf", s.handleCreateOnBehalf)
	s.route(mux, "GET /api/v1/bookings/{id}", s.handleGetBooking)
	s.route(mux, "POST /api/v1/bookings/{id}/actions/{action}", s.handleBookingAction)
	s.route(mux, "GET /api/v1/bookings/{id}/slots", s.handleBookingSlots)
	s.route(mux, "POST /api/v1/bookings/{id}/approvals", s.handleRequestApproval)
	s.route(mux, "GET /api/v1/customers/{id}/bookings", s.handleCustomerBookings)
	s.route(mux, "GET /api/v1/warehouses/{id}/slots", s.handleWarehouseSlots)
	s.route(mux, "GET /api/v1/approvals", s.handleListApprovals)
	s.route(mux, "GET /api/v1/approvals/stats", s.handleApprovalStats)
	s.route(mux, "POST /api/v1/approvals/{id}/respond", s.handleRespondApproval)
	s.route(mux, "GET /api/v1/exports/bookings", s.handleExportBookings)

	handler := otelhttp.NewHandler(s.requestLogger(s.authenticate(mux)), "warehub.http")

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// route registers a handler and counts its responses under the route pattern.
func (s *HTTPServer) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := w.(*statusRecorder)
		if !ok {
			rec = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		}
		h(rec, r)
		metrics.IncHTTP(pattern, strconv.Itoa(rec.status))
	}))
}

// authenticate resolves the actor of every API request. /healthz is open.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(s.auth.apiKeyHeader())
		if !s.limiter.allow(clientKey(apiKey, r.RemoteAddr)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		actor, err := s.auth.authenticate(apiKey, r.Header.Get(actorIDHeader), r.Header.Get(actorRoleHeader))
		if err != nil {
			code := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				code = http.StatusForbidden
			}
			writeError(w, code, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		logger := s.logger.With().Str("request_id", requestID).Logger()
		ctx := logger.WithContext(r.Context())

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func clientKey(apiKey, remoteAddr string) string {
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		return apiKey
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// writeAppError maps a service error to a response. Unclassified errors are
// logged with their cause and reported as "internal error".
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, code, apperror.Message(err))
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// decodeJSON reads a strict JSON body. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apperror.Validation("invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid %s", name)
	}
	return id, nil
}

func queryDate(r *http.Request, name string, required bool) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		if required {
			return time.Time{}, apperror.Validation("%s is required", name)
		}
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, apperror.Validation("invalid %s format; expected YYYY-MM-DD", name)
	}
	return d, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
