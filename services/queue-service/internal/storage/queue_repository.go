package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/turnomed/turnomed/libs/db"
	"github.com/turnomed/turnomed/services/queue-service/internal/model"
	"github.com/turnomed/turnomed/services/queue-service/internal/queue"
)

// QueueRepository persists queues and turns. Number assignment locks the
// queue row (SELECT ... FOR UPDATE) so two turns never share a number in
// one queue; the constraint is also enforced by a unique index on
// (queue_id, number).
type QueueRepository struct {
	pool *db.Pool
}

func NewQueueRepository(pool *db.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

const queueColumns = `
	id::text, site_id::text, service_id::text, name, is_active,
	COALESCE(closed_reason, ''), avg_service_minutes, created_at`

const turnColumns = `
	id::text, queue_id::text, user_id::text, ticket_id::text,
	number, status, created_at, called_at`

func (r *QueueRepository) GetQueue(ctx context.Context, id string) (model.Queue, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE id = $1
	`, id)
	return scanQueue(row)
}

func (r *QueueRepository) QueuesBySite(ctx context.Context, siteID string) ([]model.Queue, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE site_id = $1
		ORDER BY name ASC
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []model.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return queues, nil
}

func (r *QueueRepository) SetActive(ctx context.Context, id string, active bool, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queues
		SET is_active = $2,
			closed_reason = NULLIF($3, '')
		WHERE id = $1
	`, id, active, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (r *QueueRepository) GetTurn(ctx context.Context, id string) (model.Turn, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+turnColumns+`
		FROM turns
		WHERE id = $1
	`, id)
	return scanTurn(row)
}

// FindByTicket follows a ticket across transfers: the newest row wins.
func (r *QueueRepository) FindByTicket(ctx context.Context, ticketID string) (model.Turn, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+turnColumns+`
		FROM turns
		WHERE ticket_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, ticketID)
	return scanTurn(row)
}

func (r *QueueRepository) Issue(ctx context.Context, queueID, userID, ticketID string) (model.Turn, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Turn{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q, err := lockQueue(ctx, tx, queueID)
	if err != nil {
		return model.Turn{}, err
	}
	if !q.IsActive {
		return model.Turn{}, queue.ErrQueueClosed
	}

	// Issue numbers are monotonic over the queue's whole history so they
	// never collide with a turn already called.
	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(number), 0) + 1
		FROM turns
		WHERE queue_id = $1
	`, queueID).Scan(&next)
	if err != nil {
		return model.Turn{}, err
	}

	turn, err := insertTurn(ctx, tx, queueID, userID, ticketID, next)
	if err != nil {
		return model.Turn{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Turn{}, err
	}
	return turn, nil
}

func (r *QueueRepository) CallNext(ctx context.Context, queueID string) (model.Turn, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Turn{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockQueue(ctx, tx, queueID); err != nil {
		return model.Turn{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE turns
		SET status = 'in_service',
			called_at = now()
		WHERE id = (
			SELECT id FROM turns
			WHERE queue_id = $1 AND status = 'waiting'
			ORDER BY number ASC
			LIMIT 1
		)
		RETURNING `+turnColumns+`
	`, queueID)
	turn, err := scanTurn(row)
	if errors.Is(err, queue.ErrNotFound) {
		return model.Turn{}, queue.ErrQueueEmpty
	}
	if err != nil {
		return model.Turn{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Turn{}, err
	}
	return turn, nil
}

func (r *QueueRepository) NextWaiting(ctx context.Context, queueID string, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+turnColumns+`
		FROM turns
		WHERE queue_id = $1 AND status = 'waiting'
		ORDER BY number ASC
		LIMIT $2
	`, queueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return turns, nil
}

func (r *QueueRepository) WaitingNumbers(ctx context.Context, queueID string) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT number
		FROM turns
		WHERE queue_id = $1 AND status = 'waiting'
		ORDER BY number ASC
	`, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nums []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return nums, nil
}

// Transfer cancels the source row and creates a fresh one in the
// destination, both inside one transaction. The destination number is
// queue-local but continues the destination's whole history, same as
// Issue; a waiting-only maximum would reuse numbers already held by
// served rows and trip the (queue_id, number) index.
func (r *QueueRepository) Transfer(ctx context.Context, turnID, destQueueID string) (model.Turn, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Turn{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockQueue(ctx, tx, destQueueID); err != nil {
		return model.Turn{}, err
	}

	var userID, ticketID string
	err = tx.QueryRow(ctx, `
		UPDATE turns
		SET status = 'cancelled'
		WHERE id = $1 AND status = 'waiting'
		RETURNING user_id::text, ticket_id::text
	`, turnID).Scan(&userID, &ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Turn{}, queue.ErrTransferIneligible
	}
	if err != nil {
		return model.Turn{}, err
	}

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(number), 0) + 1
		FROM turns
		WHERE queue_id = $1
	`, destQueueID).Scan(&next)
	if err != nil {
		return model.Turn{}, err
	}

	turn, err := insertTurn(ctx, tx, destQueueID, userID, ticketID, next)
	if err != nil {
		return model.Turn{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Turn{}, err
	}
	return turn, nil
}

func (r *QueueRepository) MarkServed(ctx context.Context, turnID string) error {
	return r.transition(ctx, turnID, "in_service", "served")
}

func (r *QueueRepository) CancelTurn(ctx context.Context, turnID string) error {
	return r.transition(ctx, turnID, "waiting", "cancelled")
}

func (r *QueueRepository) transition(ctx context.Context, turnID, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE turns
		SET status = $3
		WHERE id = $1 AND status = $2
	`, turnID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func lockQueue(ctx context.Context, tx pgx.Tx, queueID string) (model.Queue, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE id = $1
		FOR UPDATE
	`, queueID)
	return scanQueue(row)
}

func insertTurn(ctx context.Context, tx pgx.Tx, queueID, userID, ticketID string, number int) (model.Turn, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO turns (queue_id, user_id, ticket_id, number, status)
		VALUES ($1, $2, $3, $4, 'waiting')
		RETURNING `+turnColumns+`
	`, queueID, userID, ticketID, number)
	return scanTurn(row)
}

func scanQueue(row pgx.Row) (model.Queue, error) {
	var q model.Queue
	err := row.Scan(
		&q.ID,
		&q.SiteID,
		&q.ServiceID,
		&q.Name,
		&q.IsActive,
		&q.ClosedReason,
		&q.AvgServiceMinutes,
		&q.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Queue{}, queue.ErrNotFound
	}
	if err != nil {
		return model.Queue{}, err
	}
	return q, nil
}

func scanTurn(row pgx.Row) (model.Turn, error) {
	var t model.Turn
	var status string
	var calledAt *time.Time
	err := row.Scan(
		&t.ID,
		&t.QueueID,
		&t.UserID,
		&t.TicketID,
		&t.Number,
		&status,
		&t.CreatedAt,
		&calledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Turn{}, queue.ErrNotFound
	}
	if err != nil {
		return model.Turn{}, err
	}
	t.Status = model.TurnStatus(status)
	t.CalledAt = calledAt
	return t, nil
}
