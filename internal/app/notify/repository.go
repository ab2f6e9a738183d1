package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification is one inbox row for a user. The primary key doubles as the
// idempotency key: the worker derives it from the assignment id, so redelivered
// messages collapse into a single row.
type Notification struct {
	ID        string    `json:"notification_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	KindAssignment = "assignment"
	KindMessage    = "message"
)

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, n Notification) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]Notification, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createNotificationsSQL = `
CREATE TABLE IF NOT EXISTS notifications (
  id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  kind text NOT NULL,
  title text NOT NULL,
  body text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createNotificationsSQL)
	return err
}

// Insert reports whether a new row was written. A duplicate id is not an
// error: it means the notification was already delivered.
func (r *PostgresRepository) Insert(ctx context.Context, n Notification) (bool, error) {
	res, err := r.Pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Kind, n.Title, n.Body, n.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, user_id, kind, title, body, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
