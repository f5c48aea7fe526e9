package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/turnomed/turnomed/services/queue-service/internal/model"
	"github.com/turnomed/turnomed/services/queue-service/internal/queue"
)

type QueueHandler struct {
	coord  *queue.Coordinator
	store  queue.Store
	board  queue.Board
	logger *slog.Logger
}

func NewQueueHandler(coord *queue.Coordinator, store queue.Store, board queue.Board, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{coord: coord, store: store, board: board, logger: logger}
}

type issueRequest struct {
	QueueID string `json:"queue_id"`
	UserID  string `json:"user_id"`
}

type queueIDRequest struct {
	QueueID string `json:"queue_id"`
	Reason  string `json:"reason"`
}

type transferRequest struct {
	TurnID             string `json:"turn_id"`
	DestinationQueueID string `json:"destination_queue_id"`
}

type turnIDRequest struct {
	TurnID string `json:"turn_id"`
}

type turnResponse struct {
	TurnID   string `json:"turn_id"`
	QueueID  string `json:"queue_id"`
	UserID   string `json:"user_id"`
	TicketID string `json:"ticket_id"`
	Number   int    `json:"number"`
	Status   string `json:"status"`
	CalledAt string `json:"called_at,omitempty"`
}

type trackResponse struct {
	turnResponse
	Position   int `json:"position"`
	ETAMinutes int `json:"eta_minutes"`
	NowServing int `json:"now_serving"`
}

func (h *QueueHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	turn, err := h.coord.Issue(r.Context(), strings.TrimSpace(req.QueueID), strings.TrimSpace(req.UserID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTurnResponse(turn))
}

func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queueIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.QueueID = strings.TrimSpace(req.QueueID)
	if req.QueueID == "" {
		http.Error(w, "queue_id required", http.StatusBadRequest)
		return
	}

	turn, err := h.coord.CallNext(r.Context(), req.QueueID)
	if errors.Is(err, queue.ErrQueueEmpty) {
		// Not a failure; the desk polls until someone shows up.
		writeJSON(w, http.StatusOK, map[string]any{"queue_id": req.QueueID, "empty": true})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(turn))
}

func (h *QueueHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TurnID = strings.TrimSpace(req.TurnID)
	req.DestinationQueueID = strings.TrimSpace(req.DestinationQueueID)
	if req.TurnID == "" || req.DestinationQueueID == "" {
		http.Error(w, "turn_id and destination_queue_id required", http.StatusBadRequest)
		return
	}

	turn, err := h.coord.Transfer(r.Context(), req.TurnID, req.DestinationQueueID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(turn))
}

func (h *QueueHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *QueueHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *QueueHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queueIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.QueueID = strings.TrimSpace(req.QueueID)
	if req.QueueID == "" {
		http.Error(w, "queue_id required", http.StatusBadRequest)
		return
	}

	var err error
	if active {
		err = h.coord.OpenQueue(r.Context(), req.QueueID)
	} else {
		err = h.coord.CloseQueue(r.Context(), req.QueueID, strings.TrimSpace(req.Reason))
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue_id": req.QueueID, "is_active": active})
}

func (h *QueueHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.turnAction(w, r, h.coord.MarkServed)
}

func (h *QueueHandler) CancelTurn(w http.ResponseWriter, r *http.Request) {
	h.turnAction(w, r, h.coord.CancelTurn)
}

// Track answers the patient's poll: where am I in line and how long?
// Accepts either the stable ticket_id or a turn_id.
func (h *QueueHandler) Track(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ticketID := strings.TrimSpace(r.URL.Query().Get("ticket_id"))
	if ticketID == "" {
		turnID := strings.TrimSpace(r.URL.Query().Get("turn_id"))
		if turnID == "" {
			http.Error(w, "ticket_id or turn_id required", http.StatusBadRequest)
			return
		}
		turn, err := h.store.GetTurn(r.Context(), turnID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		ticketID = turn.TicketID
	}

	info, err := h.coord.Track(r.Context(), ticketID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{
		turnResponse: toTurnResponse(info.Turn),
		Position:     info.Position,
		ETAMinutes:   info.ETAMinutes,
		NowServing:   info.NowServing,
	})
}

// Board serves the waiting-room display: per-queue now-serving number and
// waiting count, for one queue or a whole site.
func (h *QueueHandler) Board(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	var queues []model.Queue
	if queueID := strings.TrimSpace(r.URL.Query().Get("queue_id")); queueID != "" {
		q, err := h.store.GetQueue(ctx, queueID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		queues = []model.Queue{q}
	} else if siteID := strings.TrimSpace(r.URL.Query().Get("site_id")); siteID != "" {
		var err error
		queues, err = h.store.QueuesBySite(ctx, siteID)
		if err != nil {
			h.writeError(w, err)
			return
		}
	} else {
		http.Error(w, "queue_id or site_id required", http.StatusBadRequest)
		return
	}

	type boardEntry struct {
		QueueID      string `json:"queue_id"`
		Name         string `json:"name"`
		ServiceID    string `json:"service_id"`
		IsActive     bool   `json:"is_active"`
		ClosedReason string `json:"closed_reason,omitempty"`
		NowServing   int    `json:"now_serving"`
		Waiting      int    `json:"waiting"`
	}

	entries := make([]boardEntry, 0, len(queues))
	for _, q := range queues {
		entry := boardEntry{
			QueueID:      q.ID,
			Name:         q.Name,
			ServiceID:    q.ServiceID,
			IsActive:     q.IsActive,
			ClosedReason: q.ClosedReason,
		}
		if h.board != nil {
			if now, err := h.board.NowServing(ctx, q.ID); err == nil {
				entry.NowServing = now
			} else {
				h.logger.Warn("board read failed", "queue_id", q.ID, "err", err)
			}
		}
		if nums, err := h.store.WaitingNumbers(ctx, q.ID); err == nil {
			entry.Waiting = len(nums)
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *QueueHandler) turnAction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, turnID string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req turnIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TurnID = strings.TrimSpace(req.TurnID)
	if req.TurnID == "" {
		http.Error(w, "turn_id required", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), req.TurnID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"turn_id": req.TurnID})
}

func (h *QueueHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, queue.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, queue.ErrQueueClosed):
		http.Error(w, "queue is closed", http.StatusConflict)
	case errors.Is(err, queue.ErrTransferIneligible):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("queue operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toTurnResponse(t model.Turn) turnResponse {
	resp := turnResponse{
		TurnID:   t.ID,
		QueueID:  t.QueueID,
		UserID:   t.UserID,
		TicketID: t.TicketID,
		Number:   t.Number,
		Status:   string(t.Status),
	}
	if t.CalledAt != nil {
		resp.CalledAt = t.CalledAt.UTC().Format(time.RFC3339)
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
