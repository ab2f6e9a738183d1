package profile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/volunteerhub/volunteerhub/internal/platform/auth"
)

var ErrProfileNotFound = errors.New("profile not found")

// Record is the persisted shape: skills comma-joined, availability as a
// JSON array of ISO dates. Parsing to set types happens at the boundary.
type Record struct {
	UserID       string
	FullName     string
	Address      string
	City         string
	State        string
	Zip          string
	Skills       string
	Preferences  string
	Availability string
}

// VolunteerSummary is the admin listing row.
type VolunteerSummary struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	City     string `json:"city"`
	State    string `json:"state"`
	Skills   string `json:"skills"`
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	UpsertProfile(ctx context.Context, rec Record) error
	GetProfile(ctx context.Context, userID string) (Record, error)
	ListVolunteers(ctx context.Context) ([]VolunteerSummary, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createProfilesSQL = `
CREATE TABLE IF NOT EXISTS profiles (
  user_id text PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
  full_name text NOT NULL,
  address text NOT NULL DEFAULT '',
  city text NOT NULL DEFAULT '',
  state text NOT NULL DEFAULT '',
  zip text NOT NULL DEFAULT '',
  skills text NOT NULL DEFAULT '',
  preferences text NOT NULL DEFAULT '',
  availability text NOT NULL DEFAULT '[]',
  updated_at timestamptz NOT NULL DEFAULT now()
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createProfilesSQL)
	return err
}

func (r *PostgresRepository) UpsertProfile(ctx context.Context, rec Record) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO profiles (user_id, full_name, address, city, state, zip, skills, preferences, availability, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   full_name = EXCLUDED.full_name,
		   address = EXCLUDED.address,
		   city = EXCLUDED.city,
		   state = EXCLUDED.state,
		   zip = EXCLUDED.zip,
		   skills = EXCLUDED.skills,
		   preferences = EXCLUDED.preferences,
		   availability = EXCLUDED.availability,
		   updated_at = now()`,
		rec.UserID, rec.FullName, rec.Address, rec.City, rec.State, rec.Zip,
		rec.Skills, rec.Preferences, rec.Availability,
	)
	return err
}

func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (Record, error) {
	var rec Record
	err := r.Pool.QueryRow(ctx,
		`SELECT user_id, full_name, address, city, state, zip, skills, preferences, availability
		 FROM profiles
		 WHERE user_id = $1`,
		userID,
	).Scan(&rec.UserID, &rec.FullName, &rec.Address, &rec.City, &rec.State, &rec.Zip,
		&rec.Skills, &rec.Preferences, &rec.Availability)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrProfileNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepository) ListVolunteers(ctx context.Context) ([]VolunteerSummary, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT u.id, u.email, p.full_name, p.city, p.state, p.skills
		 FROM users u
		 INNER JOIN profiles p ON p.user_id = u.id
		 WHERE u.role <> $1
		 ORDER BY p.full_name, u.id`,
		auth.RoleAdmin,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]VolunteerSummary, 0)
	for rows.Next() {
		var v VolunteerSummary
		if err := rows.Scan(&v.UserID, &v.Email, &v.FullName, &v.City, &v.State, &v.Skills); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
