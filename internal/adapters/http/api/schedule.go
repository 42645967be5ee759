// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// ScheduleDependencies defines the timetable lookups.
type ScheduleDependencies interface {
	Sections() []string
	Today() model.Date
	Sessions(ctx context.Context, section string, date model.Date) ([]model.TimetableEntry, error)
	CurrentSession(ctx context.Context, section string, at time.Time) (model.TimetableEntry, bool, error)
}

// ScheduleHandler handles timetable requests.
type ScheduleHandler struct {
	deps ScheduleDependencies
	loc  *time.Location
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(deps ScheduleDependencies, loc *time.Location) *ScheduleHandler {
	return &ScheduleHandler{deps: deps, loc: loc}
}

type sessionsResponse struct {
	Section  string                 `json:"section"`
	Date     model.Date             `json:"date"`
	Sessions []model.TimetableEntry `json:"sessions"`
}

type currentResponse struct {
	Section string                `json:"section"`
	At      string                `json:"at,omitempty"`
	Active  bool                  `json:"active"`
	Session *model.TimetableEntry `json:"session,omitempty"`
}

// HandleSections handles GET /sections requests.
func (h *ScheduleHandler) HandleSections(w http.ResponseWriter, _ *http.Request) {
	sections := h.deps.Sections()
	if sections == nil {
		sections = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sections": sections})
}

// HandleSessions handles GET /sections/{section}/sessions?date= requests.
func (h *ScheduleHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_sessions"
	section := model.NormalizeSection(r.PathValue("section"))
	date, err := queryDate(r.URL.Query(), "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	if date.IsZero() {
		date = h.deps.Today()
	}
	sessions, err := h.deps.Sessions(r.Context(), section, date)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	if sessions == nil {
		sessions = []model.TimetableEntry{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Section: section, Date: date, Sessions: sessions})
}

// HandleCurrent handles GET /sections/{section}/sessions/current?at= requests.
// No running session is a 200 with active=false.
func (h *ScheduleHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_current_session"
	section := model.NormalizeSection(r.PathValue("section"))
	at, err := queryInstant(r.URL.Query(), "at", h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	entry, ok, err := h.deps.CurrentSession(r.Context(), section, at)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	resp := currentResponse{Section: section, Active: ok}
	if !at.IsZero() {
		resp.At = at.Format(time.RFC3339)
	}
	if ok {
		resp.Session = &entry
	}
	writeJSON(w, http.StatusOK, resp)
}
