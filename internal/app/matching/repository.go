package matching

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/volunteerhub/volunteerhub/internal/platform/auth"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrVolunteerNotFound = errors.New("volunteer not found")
	ErrAlreadyAssigned   = errors.New("volunteer already assigned to event")
)

// AssignmentRecord is the ledger entity: one row per (event, volunteer) pair.
type AssignmentRecord struct {
	ID          string    `json:"assignment_id"`
	EventID     string    `json:"event_id"`
	VolunteerID string    `json:"volunteer_id"`
	AssignedAt  time.Time `json:"assigned_at"`
}

// AssignmentView joins a ledger row with event/volunteer display fields.
type AssignmentView struct {
	AssignmentID   string    `json:"assignment_id"`
	EventID        string    `json:"event_id"`
	EventName      string    `json:"event_name"`
	EventDate      string    `json:"event_date"`
	VolunteerID    string    `json:"volunteer_id"`
	VolunteerName  string    `json:"volunteer_name"`
	VolunteerEmail string    `json:"volunteer_email"`
	AssignedAt     time.Time `json:"assigned_at"`
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	GetEventSnapshot(ctx context.Context, eventID string) (EventSnapshot, error)
	ListCandidates(ctx context.Context, eventID string) ([]VolunteerSnapshot, error)
	GetVolunteerSnapshot(ctx context.Context, volunteerID string) (VolunteerSnapshot, error)
	HasAssignment(ctx context.Context, eventID, volunteerID string) (bool, error)
	InsertAssignment(ctx context.Context, rec AssignmentRecord) error
	ListAssignments(ctx context.Context, eventID string) ([]AssignmentView, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

// The composite primary key is what makes the at-most-once assignment
// invariant hold under concurrent writers; the service-level pre-check only
// provides the friendlier error ordering.
const createAssignmentsSQL = `
CREATE TABLE IF NOT EXISTS assignments (
  id text NOT NULL,
  event_id text NOT NULL REFERENCES events(id) ON DELETE CASCADE,
  volunteer_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  assigned_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (event_id, volunteer_id)
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createAssignmentsSQL)
	return err
}

func (r *PostgresRepository) GetEventSnapshot(ctx context.Context, eventID string) (EventSnapshot, error) {
	var (
		snap      EventSnapshot
		rawSkills string
		date      time.Time
	)
	err := r.Pool.QueryRow(ctx,
		`SELECT id, name, location, required_skills, event_date
		 FROM events
		 WHERE id = $1`,
		eventID,
	).Scan(&snap.ID, &snap.Name, &snap.Location, &rawSkills, &date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EventSnapshot{}, ErrEventNotFound
		}
		return EventSnapshot{}, err
	}
	snap.RequiredSkills = ParseSkillSet(rawSkills)
	snap.Date = date.Format("2006-01-02")
	return snap, nil
}

func (r *PostgresRepository) ListCandidates(ctx context.Context, eventID string) ([]VolunteerSnapshot, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT u.id, p.full_name, u.email, p.city, p.skills, p.availability
		 FROM users u
		 INNER JOIN profiles p ON p.user_id = u.id
		 WHERE u.role <> $1
		   AND NOT EXISTS (
		     SELECT 1 FROM assignments a
		     WHERE a.event_id = $2 AND a.volunteer_id = u.id
		   )
		 ORDER BY p.full_name, u.id`,
		auth.RoleAdmin, eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]VolunteerSnapshot, 0)
	for rows.Next() {
		var (
			vol             VolunteerSnapshot
			rawSkills       string
			rawAvailability string
		)
		if err := rows.Scan(&vol.ID, &vol.FullName, &vol.Email, &vol.City, &rawSkills, &rawAvailability); err != nil {
			return nil, err
		}
		vol.Skills = ParseSkillSet(rawSkills)
		vol.Availability = ParseAvailability(rawAvailability)
		candidates = append(candidates, vol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *PostgresRepository) GetVolunteerSnapshot(ctx context.Context, volunteerID string) (VolunteerSnapshot, error) {
	var (
		vol             VolunteerSnapshot
		rawSkills       string
		rawAvailability string
	)
	err := r.Pool.QueryRow(ctx,
		`SELECT u.id, p.full_name, u.email, p.city, p.skills, p.availability
		 FROM users u
		 INNER JOIN profiles p ON p.user_id = u.id
		 WHERE u.id = $1 AND u.role <> $2`,
		volunteerID, auth.RoleAdmin,
	).Scan(&vol.ID, &vol.FullName, &vol.Email, &vol.City, &rawSkills, &rawAvailability)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VolunteerSnapshot{}, ErrVolunteerNotFound
		}
		return VolunteerSnapshot{}, err
	}
	vol.Skills = ParseSkillSet(rawSkills)
	vol.Availability = ParseAvailability(rawAvailability)
	return vol, nil
}

func (r *PostgresRepository) HasAssignment(ctx context.Context, eventID, volunteerID string) (bool, error) {
	var exists bool
	err := r.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM assignments WHERE event_id = $1 AND volunteer_id = $2
		 )`,
		eventID, volunteerID,
	).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) InsertAssignment(ctx context.Context, rec AssignmentRecord) error {
	res, err := r.Pool.Exec(ctx,
		`INSERT INTO assignments (id, event_id, volunteer_id, assigned_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id, volunteer_id) DO NOTHING`,
		rec.ID, rec.EventID, rec.VolunteerID, rec.AssignedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrAlreadyAssigned
	}
	return nil
}

func (r *PostgresRepository) ListAssignments(ctx context.Context, eventID string) ([]AssignmentView, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT a.id, a.event_id, e.name, e.event_date, a.volunteer_id, p.full_name, u.email, a.assigned_at
		 FROM assignments a
		 INNER JOIN events e ON e.id = a.event_id
		 INNER JOIN users u ON u.id = a.volunteer_id
		 INNER JOIN profiles p ON p.user_id = u.id
		 WHERE ($1 = '' OR a.event_id = $1)
		 ORDER BY a.assigned_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]AssignmentView, 0)
	for rows.Next() {
		var (
			v    AssignmentView
			date time.Time
		)
		if err := rows.Scan(&v.AssignmentID, &v.EventID, &v.EventName, &date, &v.VolunteerID, &v.VolunteerName, &v.VolunteerEmail, &v.AssignedAt); err != nil {
			return nil, err
		}
		v.EventDate = date.Format("2006-01-02")
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}
