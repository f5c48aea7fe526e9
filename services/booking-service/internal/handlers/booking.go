package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/turnomed/turnomed/services/booking-service/internal/availability"
	"github.com/turnomed/turnomed/services/booking-service/internal/booking"
	"github.com/turnomed/turnomed/services/booking-service/internal/model"
)

type BookingHandler struct {
	coord  *booking.Coordinator
	logger *slog.Logger
}

func NewBookingHandler(coord *booking.Coordinator, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{coord: coord, logger: logger}
}

type bookRequest struct {
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	SiteID         string `json:"site_id"`
	PatientID      string `json:"patient_id"`
	RoomID         string `json:"room_id"`
	Date           string `json:"date"`
	Slot           string `json:"slot"`
}

type appointmentResponse struct {
	AppointmentID  string `json:"appointment_id"`
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	PatientID      string `json:"patient_id"`
	SiteID         string `json:"site_id"`
	RoomID         string `json:"room_id,omitempty"`
	Date           string `json:"date"`
	Slot           string `json:"slot"`
	Status         string `json:"status"`
	NoShow         bool   `json:"no_show"`
	QRCode         string `json:"qr_code,omitempty"`
	Rating         int    `json:"rating,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Slot          string `json:"slot"`
}

type idRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type rateRequest struct {
	AppointmentID string `json:"appointment_id"`
	Rating        int    `json:"rating"`
}

// Slots answers the public availability query: the bookable slots for a
// professional on a given date, recomputed against current state.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if professionalID == "" || dateStr == "" {
		http.Error(w, "professional_id and date are required", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	slots, err := h.coord.Slots(r.Context(), professionalID, day)
	if err != nil {
		h.logger.Error("slot computation failed", "professional_id", professionalID, "err", err)
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}

	items := make([]string, 0, len(slots))
	for _, s := range slots {
		items = append(items, s.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"professional_id": professionalID,
		"date":            dateStr,
		"slots":           items,
	})
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	slot, err := availability.ParseTimeOfDay(strings.TrimSpace(req.Slot))
	if err != nil {
		http.Error(w, "invalid slot", http.StatusBadRequest)
		return
	}

	appt, err := h.coord.Book(r.Context(), booking.BookRequest{
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		SiteID:         strings.TrimSpace(req.SiteID),
		PatientID:      strings.TrimSpace(req.PatientID),
		RoomID:         strings.TrimSpace(req.RoomID),
		Day:            day,
		Slot:           slot,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.coord.Cancel(r.Context(), req.AppointmentID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	slot, err := availability.ParseTimeOfDay(strings.TrimSpace(req.Slot))
	if err != nil {
		http.Error(w, "invalid slot", http.StatusBadRequest)
		return
	}

	appt, err := h.coord.Reschedule(r.Context(), req.AppointmentID, day, slot)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// List is the professional's day agenda, cancelled rows included.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if professionalID == "" || dateStr == "" {
		http.Error(w, "professional_id and date are required", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	appts, err := h.coord.Agenda(r.Context(), professionalID, day)
	if err != nil {
		h.logger.Error("agenda lookup failed", "professional_id", professionalID, "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toResponse(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if id == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.coord.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Confirm, Start, Complete and NoShow drive the lifecycle from the front
// desk; they share the same request/response shape.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coord.Confirm)
}

func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coord.Start)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coord.Complete)
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coord.MarkNoShow)
}

func (h *BookingHandler) Rate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	if err := h.coord.Rate(r.Context(), req.AppointmentID, req.Rating); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment_id": req.AppointmentID,
		"rating":         req.Rating,
	})
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req idRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), req.AppointmentID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"appointment_id": req.AppointmentID})
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	var denied *booking.PolicyDeniedError
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrSlotTaken):
		http.Error(w, "slot already taken", http.StatusConflict)
	case errors.Is(err, booking.ErrAlreadyFinal):
		http.Error(w, "appointment already in a final state", http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidTransition):
		http.Error(w, "invalid state transition", http.StatusConflict)
	case errors.Is(err, booking.ErrUnavailableSlot):
		http.Error(w, "slot not available", http.StatusUnprocessableEntity)
	case errors.As(err, &denied):
		http.Error(w, denied.Reason, http.StatusUnprocessableEntity)
	default:
		h.logger.Error("booking operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:  appt.ID,
		ProfessionalID: appt.ProfessionalID,
		ServiceID:      appt.ServiceID,
		PatientID:      appt.PatientID,
		SiteID:         appt.SiteID,
		RoomID:         appt.RoomID,
		Date:           appt.Day.Format("2006-01-02"),
		Slot:           appt.Slot.String(),
		Status:         string(appt.Status),
		NoShow:         appt.NoShow,
		QRCode:         appt.QRCode,
		Rating:         appt.Rating,
		CancelReason:   appt.CancelReason,
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
