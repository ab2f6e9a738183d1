package events

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("event not found")

// Record is the persisted event row. RequiredSkills is comma-joined text,
// EventDate is the ISO date string.
type Record struct {
	ID             string
	Name           string
	Description    string
	Location       string
	RequiredSkills string
	Urgency        int
	EventDate      string
	CreatedAt      time.Time
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createEventsSQL = `
CREATE TABLE IF NOT EXISTS events (
  id text PRIMARY KEY,
  name text NOT NULL,
  description text NOT NULL DEFAULT '',
  location text NOT NULL DEFAULT '',
  required_skills text NOT NULL DEFAULT '',
  urgency int NOT NULL DEFAULT 1,
  event_date date NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createEventsSQL)
	return err
}

func (r *PostgresRepository) Insert(ctx context.Context, rec Record) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO events (id, name, description, location, required_skills, urgency, event_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Name, rec.Description, rec.Location, rec.RequiredSkills,
		rec.Urgency, rec.EventDate, rec.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanEvent(r.Pool.QueryRow(ctx,
		`SELECT id, name, description, location, required_skills, urgency, event_date, created_at
		 FROM events
		 WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, name, description, location, required_skills, urgency, event_date, created_at
		 FROM events
		 ORDER BY event_date, name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanEvent(row pgx.Row) (Record, error) {
	var (
		rec  Record
		date time.Time
	)
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Location,
		&rec.RequiredSkills, &rec.Urgency, &date, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.EventDate = date.Format("2006-01-02")
	return rec, nil
}
