package matching

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/volunteerhub/volunteerhub/internal/contracts"
	"github.com/volunteerhub/volunteerhub/internal/messaging"
	"go.uber.org/zap"
)

var (
	ErrEventIDRequired     = errors.New("event_id is required")
	ErrVolunteerIDRequired = errors.New("volunteer_id is required")
)

type PublishFunc func(subject string, payload []byte) error

// Service exposes the three ledger/pool operations: compute matches,
// assign, and list assignments. Scoring itself is the pure Score/Rank
// functions; the service only assembles their inputs from the repository.
type Service struct {
	Repo    Repository
	Publish PublishFunc
	Logger  *zap.Logger
	Now     func() time.Time
	NewID   func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		Repo:   repo,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  nuid.Next,
	}
}

// ComputeMatches builds the candidate pool for an event and returns the
// filtered, ranked results. Read-only: an existing event with no qualifying
// candidate yields an empty list, not an error.
func (s *Service) ComputeMatches(ctx context.Context, eventID string) ([]MatchResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, ErrEventIDRequired
	}

	event, err := s.Repo.GetEventSnapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}
	pool, err := s.Repo.ListCandidates(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return Rank(event, pool), nil
}

// Assign records that a volunteer is committed to an event. The pair is
// unique: a repeat request fails with ErrAlreadyAssigned and never creates a
// second record, including under concurrent callers (the repository insert
// is conditional on the pair key).
func (s *Service) Assign(ctx context.Context, eventID, volunteerID string) (AssignmentRecord, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return AssignmentRecord{}, ErrEventIDRequired
	}
	volunteerID = strings.TrimSpace(volunteerID)
	if volunteerID == "" {
		return AssignmentRecord{}, ErrVolunteerIDRequired
	}

	assigned, err := s.Repo.HasAssignment(ctx, eventID, volunteerID)
	if err != nil {
		return AssignmentRecord{}, err
	}
	if assigned {
		return AssignmentRecord{}, ErrAlreadyAssigned
	}

	event, err := s.Repo.GetEventSnapshot(ctx, eventID)
	if err != nil {
		return AssignmentRecord{}, err
	}
	vol, err := s.Repo.GetVolunteerSnapshot(ctx, volunteerID)
	if err != nil {
		return AssignmentRecord{}, err
	}

	rec := AssignmentRecord{
		ID:          s.NewID(),
		EventID:     event.ID,
		VolunteerID: vol.ID,
		AssignedAt:  s.Now(),
	}
	if err := s.Repo.InsertAssignment(ctx, rec); err != nil {
		return AssignmentRecord{}, err
	}

	s.publishAssigned(rec, event, vol)
	return rec, nil
}

func (s *Service) ListAssignments(ctx context.Context, eventID string) ([]AssignmentView, error) {
	return s.Repo.ListAssignments(ctx, strings.TrimSpace(eventID))
}

// Notification delivery is best effort and must not fail the assignment:
// the ledger write already committed.
func (s *Service) publishAssigned(rec AssignmentRecord, event EventSnapshot, vol VolunteerSnapshot) {
	if s.Publish == nil {
		return
	}
	msg := contracts.AssignmentEvent{
		AssignmentID:  rec.ID,
		EventID:       event.ID,
		EventName:     event.Name,
		EventDate:     event.Date,
		EventLocation: event.Location,
		VolunteerID:   vol.ID,
		VolunteerName: vol.FullName,
		AssignedAt:    rec.AssignedAt,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Warn("marshal assignment event failed", zap.Error(err))
		return
	}
	if err := s.Publish(messaging.SubjectAssignments, payload); err != nil {
		s.Logger.Warn("publish assignment event failed",
			zap.String("assignment_id", rec.ID),
			zap.Error(err),
		)
	}
}
