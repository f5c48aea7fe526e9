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
)

// RuleWriter persists administrator-defined availability rules.
type RuleWriter interface {
	Insert(ctx context.Context, professionalID string, rule availability.Rule) error
}

// RulesHandler is the admin surface for availability rules. Slot queries
// read rules fresh on every request, so a new rule applies immediately.
type RulesHandler struct {
	rules  RuleWriter
	logger *slog.Logger
}

func NewRulesHandler(rules RuleWriter, logger *slog.Logger) *RulesHandler {
	return &RulesHandler{rules: rules, logger: logger}
}

type createRuleRequest struct {
	ProfessionalID string `json:"professional_id"`
	Kind           string `json:"kind"`
	Recurring      bool   `json:"recurring"`
	Weekday        *int   `json:"weekday"`
	From           string `json:"from"`
	To             string `json:"to"`
	Start          string `json:"start"`
	End            string `json:"end"`
}

func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	if req.ProfessionalID == "" {
		http.Error(w, "professional_id required", http.StatusBadRequest)
		return
	}

	rule, err := ruleFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.rules.Insert(r.Context(), req.ProfessionalID, rule); err != nil {
		h.logger.Error("rule insert failed", "professional_id", req.ProfessionalID, "err", err)
		http.Error(w, "failed to store rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"professional_id": req.ProfessionalID,
		"kind":            string(rule.Kind),
	})
}

func ruleFromRequest(req createRuleRequest) (availability.Rule, error) {
	switch availability.RuleKind(strings.TrimSpace(req.Kind)) {
	case availability.KindWorkShift:
		if req.Weekday == nil || *req.Weekday < 0 || *req.Weekday > 6 {
			return availability.Rule{}, errors.New("weekday must be 0 (Sunday) through 6")
		}
		start, err := availability.ParseTimeOfDay(strings.TrimSpace(req.Start))
		if err != nil {
			return availability.Rule{}, errors.New("invalid start time")
		}
		end, err := availability.ParseTimeOfDay(strings.TrimSpace(req.End))
		if err != nil {
			return availability.Rule{}, errors.New("invalid end time")
		}
		if !start.Before(end) {
			return availability.Rule{}, errors.New("start must be before end")
		}
		weekday := time.Weekday(*req.Weekday)
		if req.Recurring {
			return availability.RecurringShift(weekday, start, end), nil
		}
		from, to, err := parseDateRange(req.From, req.To)
		if err != nil {
			return availability.Rule{}, err
		}
		return availability.RangedShift(from, to, weekday, start, end), nil
	case availability.KindHoliday:
		day, err := parseDate(req.From)
		if err != nil {
			return availability.Rule{}, err
		}
		return availability.Holiday(day), nil
	case availability.KindVacation:
		from, to, err := parseDateRange(req.From, req.To)
		if err != nil {
			return availability.Rule{}, err
		}
		return availability.Vacation(from, to), nil
	case availability.KindAbsence:
		from, to, err := parseDateRange(req.From, req.To)
		if err != nil {
			return availability.Rule{}, err
		}
		return availability.Absence(from, to), nil
	default:
		return availability.Rule{}, errors.New("unknown rule kind")
	}
}

func parseDate(s string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, errors.New("invalid date")
	}
	return day, nil
}

func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := parseDate(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid from date")
	}
	to, err := parseDate(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid to date")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to date precedes from date")
	}
	return from, to, nil
}
