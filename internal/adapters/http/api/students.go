// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/rollcall/internal/domain/aggregate"
	"github.com/okian/rollcall/internal/domain/model"
)

// StudentDependencies defines the student portal reads.
type StudentDependencies interface {
	Roster(ctx context.Context, section string) ([]model.Student, error)
	StudentByRoll(ctx context.Context, roll string) (model.Student, error)
	OverallStats(ctx context.Context, studentID string) (aggregate.Stats, error)
	History(ctx context.Context, studentID, window string, page int) (aggregate.HistoryPage, error)
}

// StudentHandler handles roster and student portal requests.
type StudentHandler struct {
	deps StudentDependencies
}

// NewStudentHandler creates a new student handler.
func NewStudentHandler(deps StudentDependencies) *StudentHandler {
	return &StudentHandler{deps: deps}
}

// HandleRoster handles GET /sections/{section}/students requests.
func (h *StudentHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_roster"
	section := model.NormalizeSection(r.PathValue("section"))
	students, err := h.deps.Roster(r.Context(), section)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"section": section, "students": students})
}

// HandleByRoll handles GET /rolls/{roll} requests.
func (h *StudentHandler) HandleByRoll(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_student_by_roll"
	st, err := h.deps.StudentByRoll(r.Context(), r.PathValue("roll"))
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleStats handles GET /students/{id}/stats requests.
func (h *StudentHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_student_stats"
	stats, err := h.deps.OverallStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleHistory handles GET /students/{id}/history?window=&page= requests.
func (h *StudentHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_student_history"
	q := r.URL.Query()
	page, err := queryInt(q, "page", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	out, err := h.deps.History(r.Context(), r.PathValue("id"), q.Get("window"), page)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
