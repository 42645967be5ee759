// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

const maxSubmissionBytes = 1 << 20

// AttendanceDependencies defines the ledger operations.
type AttendanceDependencies interface {
	Today() model.Date
	SubmitAttendance(ctx context.Context, sub ledger.Submission) (ledger.Receipt, error)
	SubmitSession(ctx context.Context, identity model.Identity, section string, date model.Date, entryID string, outcomes map[string]model.Status) (ledger.Receipt, error)
	SessionRoster(ctx context.Context, identity model.Identity, section string, date model.Date, subject string) ([]model.Record, error)
}

// AttendanceHandler handles roster submissions and live roster reads.
type AttendanceHandler struct {
	deps     AttendanceDependencies
	validate *validator.Validate
	logger   logger.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies, l logger.Logger) *AttendanceHandler {
	return &AttendanceHandler{deps: deps, validate: validator.New(), logger: l}
}

// submitRequest is the body of POST /attendance. Exactly one of EntryID and
// Subject names the session; Date defaults to today.
type submitRequest struct {
	Section  string            `json:"section" validate:"required,max=32"`
	Date     model.Date        `json:"date"`
	EntryID  string            `json:"entry_id" validate:"required_without=Subject,excluded_with=Subject"`
	Subject  string            `json:"subject" validate:"required_without=EntryID,max=128"`
	Outcomes map[string]string `json:"outcomes" validate:"dive,keys,required,endkeys,required"`
}

type sessionResponse struct {
	Section string         `json:"section"`
	Date    model.Date     `json:"date"`
	Subject string         `json:"subject"`
	Records []model.Record `json:"records"`
}

// HandleSubmit handles POST /attendance requests.
func (h *AttendanceHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_attendance"
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", NewKind(op, ErrUnauthenticated))
		return
	}

	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.Section = strings.TrimSpace(req.Section)
	req.EntryID = strings.TrimSpace(req.EntryID)
	req.Subject = strings.TrimSpace(req.Subject)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, model.DescribeValidation(err)))
		return
	}
	outcomes, err := parseOutcomes(req.Outcomes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Date.IsZero() {
		req.Date = h.deps.Today()
	}

	var receipt ledger.Receipt
	if req.EntryID != "" {
		receipt, err = h.deps.SubmitSession(r.Context(), identity, req.Section, req.Date, req.EntryID, outcomes)
	} else {
		receipt, err = h.deps.SubmitAttendance(r.Context(), ledger.Submission{
			Section:  req.Section,
			Date:     req.Date,
			Subject:  req.Subject,
			Identity: identity,
			Outcomes: outcomes,
		})
	}
	if err != nil {
		h.logger.Debug(r.Context(), "submission failed",
			logger.String("identity", identity.Ref),
			logger.Error(err),
		)
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleSession handles GET /attendance?section=&date=&subject= requests.
func (h *AttendanceHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_attendance"
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", NewKind(op, ErrUnauthenticated))
		return
	}
	q := r.URL.Query()
	section := model.NormalizeSection(q.Get("section"))
	subject := strings.TrimSpace(q.Get("subject"))
	if section == "" || subject == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("section and subject are required")))
		return
	}
	date, err := queryDate(q, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	if date.IsZero() {
		date = h.deps.Today()
	}

	records, err := h.deps.SessionRoster(r.Context(), identity, section, date, subject)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{Section: section, Date: date, Subject: subject, Records: records})
}

func parseOutcomes(in map[string]string) (map[string]model.Status, error) {
	out := make(map[string]model.Status, len(in))
	for id, raw := range in {
		st, err := model.ParseStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("student %s: %w", id, err)
		}
		out[strings.TrimSpace(id)] = st
	}
	return out, nil
}
