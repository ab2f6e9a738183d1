package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volunteerhub/volunteerhub/internal/app/matching"
)

var (
	ErrUserIDRequired      = errors.New("user id is required")
	ErrInvalidProfile      = errors.New("invalid profile")
	ErrInvalidAvailability = errors.New("availability entries must be YYYY-MM-DD dates")
)

// Profile is the API shape: skills and availability as parsed sets.
type Profile struct {
	UserID       string   `json:"user_id"`
	FullName     string   `json:"full_name" validate:"required,max=100"`
	Address      string   `json:"address" validate:"max=200"`
	City         string   `json:"city" validate:"max=100"`
	State        string   `json:"state" validate:"omitempty,len=2,alpha"`
	Zip          string   `json:"zip" validate:"omitempty,min=5,max=10"`
	Skills       []string `json:"skills"`
	Preferences  string   `json:"preferences"`
	Availability []string `json:"availability"`
}

type Service struct {
	Repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{
		Repo:     repo,
		validate: validator.New(),
	}
}

// Save validates and upserts the caller's profile. Availability entries are
// rejected if they are not syntactically valid calendar dates, so stored
// records satisfy the matching engine's input invariant.
func (s *Service) Save(ctx context.Context, userID string, p Profile) (Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, ErrUserIDRequired
	}
	p.UserID = userID
	p.FullName = strings.TrimSpace(p.FullName)
	p.City = strings.TrimSpace(p.City)
	p.State = strings.ToUpper(strings.TrimSpace(p.State))
	p.Zip = strings.TrimSpace(p.Zip)

	if err := s.validate.Struct(p); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	skills := matching.ParseSkillSet(matching.JoinSkillSet(p.Skills))
	availability, err := normalizeAvailability(p.Availability)
	if err != nil {
		return Profile{}, err
	}
	p.Skills = skills
	p.Availability = availability

	encoded, err := json.Marshal(availability)
	if err != nil {
		return Profile{}, err
	}
	rec := Record{
		UserID:       p.UserID,
		FullName:     p.FullName,
		Address:      p.Address,
		City:         p.City,
		State:        p.State,
		Zip:          p.Zip,
		Skills:       matching.JoinSkillSet(skills),
		Preferences:  p.Preferences,
		Availability: string(encoded),
	}
	if err := s.Repo.UpsertProfile(ctx, rec); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, ErrUserIDRequired
	}
	rec, err := s.Repo.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		UserID:       rec.UserID,
		FullName:     rec.FullName,
		Address:      rec.Address,
		City:         rec.City,
		State:        rec.State,
		Zip:          rec.Zip,
		Skills:       matching.ParseSkillSet(rec.Skills),
		Preferences:  rec.Preferences,
		Availability: matching.ParseAvailability(rec.Availability),
	}, nil
}

func (s *Service) ListVolunteers(ctx context.Context) ([]VolunteerSummary, error) {
	return s.Repo.ListVolunteers(ctx)
}

func normalizeAvailability(dates []string) ([]string, error) {
	out := make([]string, 0, len(dates))
	seen := map[string]struct{}{}
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, ErrInvalidAvailability
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}
