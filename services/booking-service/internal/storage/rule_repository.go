package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/turnomed/turnomed/libs/db"
	"github.com/turnomed/turnomed/services/booking-service/internal/availability"
)

// RuleRepository loads availability rules. Times are stored as "HH:MM" text
// to keep them timezone-free; date ranges use plain dates.
type RuleRepository struct {
	pool *db.Pool
}

func NewRuleRepository(pool *db.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

func (r *RuleRepository) RulesFor(ctx context.Context, professionalID string) ([]availability.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind,
			recurring,
			COALESCE(weekday, 0),
			from_date,
			to_date,
			COALESCE(start_time, ''),
			COALESCE(end_time, '')
		FROM availability_rules
		WHERE professional_id = $1
		ORDER BY created_at ASC
	`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []availability.Rule
	for rows.Next() {
		var (
			kind       string
			recurring  bool
			weekday    int
			from, to   *time.Time
			start, end string
		)
		if err := rows.Scan(&kind, &recurring, &weekday, &from, &to, &start, &end); err != nil {
			return nil, err
		}
		rule, err := buildRule(kind, recurring, weekday, from, to, start, end)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func (r *RuleRepository) Insert(ctx context.Context, professionalID string, rule availability.Rule) error {
	var from, to *time.Time
	if !rule.From.IsZero() {
		f := rule.From
		from = &f
	}
	if !rule.To.IsZero() {
		t := rule.To
		to = &t
	}
	var start, end string
	if rule.Kind == availability.KindWorkShift {
		start = rule.Start.String()
		end = rule.End.String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_rules
			(professional_id, kind, recurring, weekday, from_date, to_date, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
	`, professionalID, string(rule.Kind), rule.Recurring, int(rule.Weekday), from, to, start, end)
	return err
}

func buildRule(kind string, recurring bool, weekday int, from, to *time.Time, start, end string) (availability.Rule, error) {
	rule := availability.Rule{
		Kind:      availability.RuleKind(kind),
		Recurring: recurring,
		Weekday:   time.Weekday(weekday),
	}
	if from != nil {
		rule.From = availability.DateOnly(*from)
	}
	if to != nil {
		rule.To = availability.DateOnly(*to)
	}
	if rule.Kind == availability.KindWorkShift {
		s, err := availability.ParseTimeOfDay(start)
		if err != nil {
			return availability.Rule{}, fmt.Errorf("rule start_time %q: %w", start, err)
		}
		e, err := availability.ParseTimeOfDay(end)
		if err != nil {
			return availability.Rule{}, fmt.Errorf("rule end_time %q: %w", end, err)
		}
		rule.Start = s
		rule.End = e
	}
	return rule, nil
}
