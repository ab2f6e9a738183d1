package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nuid"
	"github.com/volunteerhub/volunteerhub/internal/app/matching"
)

var (
	ErrInvalidEvent   = errors.New("invalid event")
	ErrSkillsRequired = errors.New("at least one required skill is needed")
	ErrInvalidDate    = errors.New("event_date must be a YYYY-MM-DD date")
	ErrIDRequired     = errors.New("event id is required")
)

// Event is the API shape; required skills come and go as a parsed set.
type Event struct {
	ID             string   `json:"event_id"`
	Name           string   `json:"name" validate:"required,max=100"`
	Description    string   `json:"description" validate:"max=2000"`
	Location       string   `json:"location" validate:"required,max=200"`
	RequiredSkills []string `json:"required_skills"`
	Urgency        int      `json:"urgency" validate:"min=1,max=5"`
	EventDate      string   `json:"event_date"`
	CreatedAt      string   `json:"created_at"`
}

type Service struct {
	Repo     Repository
	Now      func() time.Time
	NewID    func() string
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{
		Repo:     repo,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    nuid.Next,
		validate: validator.New(),
	}
}

// Create validates and stores a new event. The required-skills set must be
// non-empty: an event nobody can qualify for is a data-entry mistake, not a
// valid record.
func (s *Service) Create(ctx context.Context, e Event) (Event, error) {
	e.Name = strings.TrimSpace(e.Name)
	e.Location = strings.TrimSpace(e.Location)
	e.EventDate = strings.TrimSpace(e.EventDate)

	if err := s.validate.Struct(e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	skills := matching.ParseSkillSet(matching.JoinSkillSet(e.RequiredSkills))
	if len(skills) == 0 {
		return Event{}, ErrSkillsRequired
	}
	if _, err := time.Parse("2006-01-02", e.EventDate); err != nil {
		return Event{}, ErrInvalidDate
	}

	now := s.Now()
	rec := Record{
		ID:             s.NewID(),
		Name:           e.Name,
		Description:    e.Description,
		Location:       e.Location,
		RequiredSkills: matching.JoinSkillSet(skills),
		Urgency:        e.Urgency,
		EventDate:      e.EventDate,
		CreatedAt:      now,
	}
	if err := s.Repo.Insert(ctx, rec); err != nil {
		return Event{}, err
	}
	return toEvent(rec), nil
}

func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Event{}, ErrIDRequired
	}
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	return toEvent(rec), nil
}

func (s *Service) List(ctx context.Context) ([]Event, error) {
	recs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toEvent(rec))
	}
	return out, nil
}

func toEvent(rec Record) Event {
	return Event{
		ID:             rec.ID,
		Name:           rec.Name,
		Description:    rec.Description,
		Location:       rec.Location,
		RequiredSkills: matching.ParseSkillSet(rec.RequiredSkills),
		Urgency:        rec.Urgency,
		EventDate:      rec.EventDate,
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
	}
}
