package blocked

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const defaultListWindow = 90 * 24 * time.Hour

// Handler serves the staff blocked-time screen.
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates a blocked-period handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

// List handles GET /portal/doctors/{doctorID}/blocked?from=&to=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	from, to, err := h.window(r)
	if err != nil {
		apperr.Respond(w, err)
		return
	}
	periods, err := h.repo.List(r.Context(), doctorID, from, to)
	if err != nil {
		h.logger.Error("failed to list blocked periods", "doctor_id", doctorID, "error", err)
		apperr.Respond(w, err)
		return
	}
	if periods == nil {
		periods = []Period{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"doctor_id": doctorID, "periods": periods})
}

// CreateRequest is the body of POST /portal/doctors/{doctorID}/blocked.
type CreateRequest struct {
	Start  time.Time `json:"start_datetime"`
	End    time.Time `json:"end_datetime"`
	Reason string    `json:"reason,omitempty"`
}

// Create handles POST /portal/doctors/{doctorID}/blocked
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}
	period, err := h.repo.Create(r.Context(), Period{DoctorID: doctorID, Start: req.Start, End: req.End, Reason: req.Reason})
	if err != nil {
		h.logger.Warn("blocked period rejected", "doctor_id", doctorID, "error", err)
		apperr.Respond(w, err)
		return
	}
	h.logger.Info("blocked period created", "doctor_id", doctorID, "period_id", period.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(period)
}

// Delete handles DELETE /portal/doctors/{doctorID}/blocked/{periodID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	periodID := chi.URLParam(r, "periodID")
	err := h.repo.Delete(r.Context(), doctorID, periodID)
	if errors.Is(err, ErrNotFound) {
		apperr.Respond(w, apperr.Wrap(apperr.KindNotFound, "", err))
		return
	}
	if err != nil {
		h.logger.Error("failed to delete blocked period", "doctor_id", doctorID, "period_id", periodID, "error", err)
		apperr.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurgeExpired handles DELETE /portal/doctors/{doctorID}/blocked?expired_before=
// and defaults the cutoff to now.
func (h *Handler) PurgeExpired(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	before := h.now()
	if raw := r.URL.Query().Get("expired_before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "expired_before must be RFC3339"))
			return
		}
		before = parsed
	}
	n, err := h.repo.DeleteExpired(r.Context(), doctorID, before)
	if err != nil {
		h.logger.Error("failed to purge blocked periods", "doctor_id", doctorID, "error", err)
		apperr.Respond(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": n})
}

func (h *Handler) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from := h.now()
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.New(apperr.KindInvalidInput, "", "from must be RFC3339")
		}
		from = parsed
	}
	to := from.Add(defaultListWindow)
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.New(apperr.KindInvalidInput, "", "to must be RFC3339")
		}
		to = parsed
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, apperr.New(apperr.KindInvalidInput, "", "from must be before to")
	}
	return from, to, nil
}
