package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/volunteerhub/volunteerhub/internal/contracts"
	"go.uber.org/zap"
)

var (
	ErrUserIDRequired = errors.New("user id is required")
	ErrTitleRequired  = errors.New("title is required")
	ErrBadPayload     = errors.New("malformed assignment event payload")
)

type Service struct {
	Repo   Repository
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		Repo:   repo,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  nuid.Next,
	}
}

// Send writes a direct message notification into a user's inbox.
func (s *Service) Send(ctx context.Context, userID, title, body string) (Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Notification{}, ErrUserIDRequired
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Notification{}, ErrTitleRequired
	}
	n := Notification{
		ID:        s.NewID(),
		UserID:    userID,
		Kind:      KindMessage,
		Title:     title,
		Body:      strings.TrimSpace(body),
		CreatedAt: s.Now(),
	}
	if _, err := s.Repo.Insert(ctx, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *Service) Inbox(ctx context.Context, userID string) ([]Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	return s.Repo.ListForUser(ctx, userID)
}

// HandleAssignmentEvent turns a consumed assignment message into an inbox
// row. The row id is derived from the assignment id, so JetStream redelivery
// never produces a duplicate. ErrBadPayload means the message can never
// succeed and should be terminated rather than retried.
func (s *Service) HandleAssignmentEvent(ctx context.Context, payload []byte) error {
	var evt contracts.AssignmentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if evt.AssignmentID == "" || evt.VolunteerID == "" {
		return fmt.Errorf("%w: missing assignment or volunteer id", ErrBadPayload)
	}

	n := Notification{
		ID:     "assignment-" + evt.AssignmentID,
		UserID: evt.VolunteerID,
		Kind:   KindAssignment,
		Title:  fmt.Sprintf("You have been assigned to %s", evt.EventName),
		Body: fmt.Sprintf("Event %q on %s at %s.",
			evt.EventName, evt.EventDate, evt.EventLocation),
		CreatedAt: s.Now(),
	}
	inserted, err := s.Repo.Insert(ctx, n)
	if err != nil {
		return err
	}
	if !inserted {
		s.Logger.Debug("assignment notification already delivered",
			zap.String("assignment_id", evt.AssignmentID))
	}
	return nil
}
