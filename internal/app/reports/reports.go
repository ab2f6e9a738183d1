package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// VolunteerParticipation is one row of the admin participation report:
// a volunteer and every event they are assigned to.
type VolunteerParticipation struct {
	VolunteerID   string             `json:"volunteer_id"`
	FullName      string             `json:"full_name"`
	Email         string             `json:"email"`
	EventCount    int                `json:"event_count"`
	Participation []ParticipationRow `json:"participation"`
}

type ParticipationRow struct {
	EventID    string    `json:"event_id"`
	EventName  string    `json:"event_name"`
	EventDate  string    `json:"event_date"`
	AssignedAt time.Time `json:"assigned_at"`
}

// EventRoster is one row of the admin event report: an event and its
// assigned headcount.
type EventRoster struct {
	EventID        string   `json:"event_id"`
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	EventDate      string   `json:"event_date"`
	Urgency        int      `json:"urgency"`
	AssignedCount  int      `json:"assigned_count"`
	VolunteerNames []string `json:"volunteer_names"`
}

type Repository interface {
	VolunteerParticipation(ctx context.Context) ([]VolunteerParticipation, error)
	EventRosters(ctx context.Context) ([]EventRoster, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) VolunteerParticipation(ctx context.Context) ([]VolunteerParticipation, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT u.id, p.full_name, u.email, a.event_id, e.name, e.event_date, a.assigned_at
		 FROM users u
		 INNER JOIN profiles p ON p.user_id = u.id
		 LEFT JOIN assignments a ON a.volunteer_id = u.id
		 LEFT JOIN events e ON e.id = a.event_id
		 WHERE u.role = 'volunteer'
		 ORDER BY p.full_name, u.id, a.assigned_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]VolunteerParticipation, 0)
	index := map[string]int{}
	for rows.Next() {
		var (
			id, name, email string
			eventID, evName *string
			eventDate       *time.Time
			assignedAt      *time.Time
		)
		if err := rows.Scan(&id, &name, &email, &eventID, &evName, &eventDate, &assignedAt); err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, VolunteerParticipation{
				VolunteerID:   id,
				FullName:      name,
				Email:         email,
				Participation: make([]ParticipationRow, 0),
			})
		}
		if eventID == nil {
			continue
		}
		out[i].Participation = append(out[i].Participation, ParticipationRow{
			EventID:    *eventID,
			EventName:  *evName,
			EventDate:  eventDate.Format("2006-01-02"),
			AssignedAt: *assignedAt,
		})
		out[i].EventCount = len(out[i].Participation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) EventRosters(ctx context.Context) ([]EventRoster, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT e.id, e.name, e.location, e.event_date, e.urgency, p.full_name
		 FROM events e
		 LEFT JOIN assignments a ON a.event_id = e.id
		 LEFT JOIN profiles p ON p.user_id = a.volunteer_id
		 ORDER BY e.event_date, e.name, e.id, p.full_name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]EventRoster, 0)
	index := map[string]int{}
	for rows.Next() {
		var (
			id, name, location string
			eventDate          time.Time
			urgency            int
			volunteerName      *string
		)
		if err := rows.Scan(&id, &name, &location, &eventDate, &urgency, &volunteerName); err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, EventRoster{
				EventID:        id,
				Name:           name,
				Location:       location,
				EventDate:      eventDate.Format("2006-01-02"),
				Urgency:        urgency,
				VolunteerNames: make([]string, 0),
			})
		}
		if volunteerName == nil {
			continue
		}
		out[i].VolunteerNames = append(out[i].VolunteerNames, *volunteerName)
		out[i].AssignedCount = len(out[i].VolunteerNames)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
