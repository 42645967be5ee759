// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ScheduleDependencies
	AttendanceDependencies
	StudentDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	scheduleHandler   *ScheduleHandler
	attendanceHandler *AttendanceHandler
	studentHandler    *StudentHandler
	identity          *Authenticator

	jwtSecret []byte
	loc       *time.Location
	logger    logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	s.identity = NewAuthenticator(s.jwtSecret)
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.scheduleHandler = NewScheduleHandler(deps, s.loc)
	s.attendanceHandler = NewAttendanceHandler(deps, s.logger)
	s.studentHandler = NewStudentHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	auth := s.identity.Middleware

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /sections", MetricsMiddleware(s.scheduleHandler.HandleSections, "sections"))
	mux.HandleFunc("GET /sections/{section}/sessions", MetricsMiddleware(s.scheduleHandler.HandleSessions, "sessions"))
	mux.HandleFunc("GET /sections/{section}/sessions/current", MetricsMiddleware(s.scheduleHandler.HandleCurrent, "current_session"))
	mux.HandleFunc("GET /sections/{section}/students", MetricsMiddleware(s.studentHandler.HandleRoster, "roster"))

	mux.HandleFunc("POST /attendance", MetricsMiddleware(auth(s.attendanceHandler.HandleSubmit), "submit_attendance"))
	mux.HandleFunc("GET /attendance", MetricsMiddleware(auth(s.attendanceHandler.HandleSession), "session_attendance"))

	mux.HandleFunc("GET /rolls/{roll}", MetricsMiddleware(s.studentHandler.HandleByRoll, "student_by_roll"))
	mux.HandleFunc("GET /students/{id}/stats", MetricsMiddleware(s.studentHandler.HandleStats, "student_stats"))
	mux.HandleFunc("GET /students/{id}/history", MetricsMiddleware(s.studentHandler.HandleHistory, "student_history"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps the error kind of err to a status code.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

func statusFor(err error) (int, string) {
	var me *model.Error
	kind := err
	if errors.As(err, &me) && me.Kind != nil {
		kind = me.Kind
	}
	switch {
	case errors.Is(kind, ErrBadRequest), errors.Is(kind, model.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(kind, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(kind, model.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(kind, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(kind, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(kind, model.ErrStorage):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
