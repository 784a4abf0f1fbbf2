package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// AuditLogger records rule changes. Optional.
type AuditLogger interface {
	LogScheduleUpdated(ctx context.Context, doctorID string, day time.Weekday, active bool) error
}

// Handler serves the doctor availability screen.
type Handler struct {
	repo   Repository
	audit  AuditLogger
	logger *logging.Logger
}

// NewHandler creates a schedule handler.
func NewHandler(repo Repository, audit AuditLogger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, audit: audit, logger: logger}
}

// ListRules handles GET /portal/doctors/{doctorID}/availability
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	if doctorID == "" {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "doctor_id required"))
		return
	}
	rules, err := h.repo.ListRules(r.Context(), doctorID)
	if err != nil {
		h.logger.Error("failed to list weekly rules", "doctor_id", doctorID, "error", err)
		apperr.Respond(w, err)
		return
	}
	if rules == nil {
		rules = []WeeklyRule{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"doctor_id": doctorID, "rules": rules})
}

// SaveRuleRequest is the body of PUT /portal/doctors/{doctorID}/availability/{day}.
type SaveRuleRequest struct {
	Active      bool   `json:"active"`
	Start       Clock  `json:"start_time"`
	End         Clock  `json:"end_time"`
	BreakStart  *Clock `json:"break_start,omitempty"`
	BreakEnd    *Clock `json:"break_end,omitempty"`
	SlotMinutes int    `json:"slot_duration_minutes"`
}

// SaveRule handles PUT /portal/doctors/{doctorID}/availability/{day}
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if doctorID == "" || err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "doctor_id and numeric day required"))
		return
	}

	var req SaveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}

	rule := WeeklyRule{
		DoctorID:    doctorID,
		DayOfWeek:   time.Weekday(day),
		Active:      req.Active,
		Start:       req.Start,
		End:         req.End,
		BreakStart:  req.BreakStart,
		BreakEnd:    req.BreakEnd,
		SlotMinutes: req.SlotMinutes,
	}
	saved, err := h.repo.SaveRule(r.Context(), rule)
	if err != nil {
		if apperr.IsKind(err, apperr.KindScheduleConfig) {
			h.logger.Warn("weekly rule rejected", "doctor_id", doctorID, "day", day, "error", err)
		} else {
			h.logger.Error("failed to save weekly rule", "doctor_id", doctorID, "day", day, "error", err)
		}
		apperr.Respond(w, err)
		return
	}
	if h.audit != nil {
		if err := h.audit.LogScheduleUpdated(r.Context(), doctorID, saved.DayOfWeek, saved.Active); err != nil {
			h.logger.Warn("failed to audit schedule update", "doctor_id", doctorID, "error", err)
		}
	}

	h.logger.Info("weekly rule saved", "doctor_id", doctorID, "day", saved.DayOfWeek.String(), "active", saved.Active)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(saved)
}
