package assistant

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/clinic-booking/internal/apperr"
	"github.com/wolfman30/clinic-booking/internal/tenancy"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const maxChatBody = 64 << 10

// Handler serves POST /portal/assistant/chat.
type Handler struct {
	assistant *Assistant
	logger    *logging.Logger
}

// NewHandler creates an assistant handler.
func NewHandler(a *Assistant, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{assistant: a, logger: logger}
}

type chatRequest struct {
	Messages []Message `json:"messages"`
	DoctorID string    `json:"doctor_id,omitempty"`
}

// Chat runs one assistant exchange. A clinic-wide staff member may pick the
// doctor the tools act for.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	staff, ok := tenancy.StaffFromContext(r.Context())
	if !ok {
		http.Error(w, "missing staff scope", http.StatusUnauthorized)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		apperr.Respond(w, apperr.New(apperr.KindInvalidInput, "", "invalid JSON body"))
		return
	}
	if req.DoctorID != "" {
		doctor, err := h.assistant.tools.svc.Doctor(r.Context(), req.DoctorID)
		if err != nil {
			apperr.Respond(w, err)
			return
		}
		if !staff.CanActForDoctor(doctor.ID, doctor.ClinicID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		staff.DoctorID = doctor.ID
	}
	ctx := tenancy.WithStaff(r.Context(), staff)

	resp, err := h.assistant.Chat(ctx, req.Messages)
	if err != nil {
		h.logger.Error("assistant chat failed", "doctor_id", staff.DoctorID, "error", err)
		apperr.Respond(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
