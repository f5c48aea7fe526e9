package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/turnomed/turnomed/libs/db"
)

type Notification struct {
	UserID    string
	Ref       string
	EventType string
	Channel   string
	Recipient string
	Payload   map[string]any
	Status    string
}

// Contact is where a user can be reached. Either field may be empty;
// delivery skips channels without an address.
type Contact struct {
	Email string
	Phone string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, ref, event_type, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.UserID, n.Ref, n.EventType, n.Channel, n.Recipient, payload, n.Status)
	return err
}

// ContactFor looks up the user's delivery addresses. An unknown user gets
// an empty contact, not an error; the caller logs and moves on.
func (r *Repository) ContactFor(ctx context.Context, userID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(email, ''), COALESCE(phone, '')
		FROM user_contacts
		WHERE user_id = $1
	`, userID).Scan(&c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, nil
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}
