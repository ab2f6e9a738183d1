package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/volunteerhub/volunteerhub/internal/app/events"
	"github.com/volunteerhub/volunteerhub/internal/app/identity"
	"github.com/volunteerhub/volunteerhub/internal/app/matching"
	"github.com/volunteerhub/volunteerhub/internal/app/notify"
	"github.com/volunteerhub/volunteerhub/internal/app/profile"
	"github.com/volunteerhub/volunteerhub/internal/app/reports"
)

type fakeIdentityRepo struct {
	users         map[string]identity.User
	refreshByHash map[string]identity.RefreshToken
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{
		users:         map[string]identity.User{},
		refreshByHash: map[string]identity.RefreshToken{},
	}
}

func (f *fakeIdentityRepo) EnsureSchema(ctx context.Context) error { return nil }
func (f *fakeIdentityRepo) CreateUser(ctx context.Context, user identity.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return identity.ErrEmailTaken
		}
	}
	f.users[user.ID] = user
	return nil
}
func (f *fakeIdentityRepo) FindUserByEmail(ctx context.Context, email string) (identity.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}
func (f *fakeIdentityRepo) FindUserByID(ctx context.Context, userID string) (identity.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}
func (f *fakeIdentityRepo) CreateRefreshToken(ctx context.Context, token identity.RefreshToken) error {
	f.refreshByHash[token.TokenHash] = token
	return nil
}
func (f *fakeIdentityRepo) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (identity.RefreshToken, error) {
	t, ok := f.refreshByHash[tokenHash]
	if !ok || t.RevokedAt != nil || !t.ExpiresAt.After(time.Now()) {
		return identity.RefreshToken{}, identity.ErrNotFound
	}
	return t, nil
}
func (f *fakeIdentityRepo) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	now := time.Now()
	for hash, t := range f.refreshByHash {
		if t.TokenID == tokenID {
			t.RevokedAt = &now
			f.refreshByHash[hash] = t
		}
	}
	return nil
}

type fakeProfileRepo struct {
	records map[string]profile.Record
}

func (f *fakeProfileRepo) EnsureSchema(ctx context.Context) error { return nil }
func (f *fakeProfileRepo) UpsertProfile(ctx context.Context, rec profile.Record) error {
	f.records[rec.UserID] = rec
	return nil
}
func (f *fakeProfileRepo) GetProfile(ctx context.Context, userID string) (profile.Record, error) {
	rec, ok := f.records[userID]
	if !ok {
		return profile.Record{}, profile.ErrProfileNotFound
	}
	return rec, nil
}
func (f *fakeProfileRepo) ListVolunteers(ctx context.Context) ([]profile.VolunteerSummary, error) {
	out := make([]profile.VolunteerSummary, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, profile.VolunteerSummary{UserID: rec.UserID, FullName: rec.FullName})
	}
	return out, nil
}

type fakeEventsRepo struct {
	records map[string]events.Record
}

func (f *fakeEventsRepo) EnsureSchema(ctx context.Context) error { return nil }
func (f *fakeEventsRepo) Insert(ctx context.Context, rec events.Record) error {
	f.records[rec.ID] = rec
	return nil
}
func (f *fakeEventsRepo) Get(ctx context.Context, id string) (events.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return events.Record{}, events.ErrNotFound
	}
	return rec, nil
}
func (f *fakeEventsRepo) List(ctx context.Context) ([]events.Record, error) {
	out := make([]events.Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

type fakeMatchingRepo struct {
	events     map[string]matching.EventSnapshot
	volunteers map[string]matching.VolunteerSnapshot
	assigned   map[string]bool
}

func pairKey(eventID, volunteerID string) string { return eventID + "\x00" + volunteerID }

func (f *fakeMatchingRepo) EnsureSchema(ctx context.Context) error { return nil }
func (f *fakeMatchingRepo) GetEventSnapshot(ctx context.Context, eventID string) (matching.EventSnapshot, error) {
	snap, ok := f.events[eventID]
	if !ok {
		return matching.EventSnapshot{}, matching.ErrEventNotFound
	}
	return snap, nil
}
func (f *fakeMatchingRepo) ListCandidates(ctx context.Context, eventID string) ([]matching.VolunteerSnapshot, error) {
	out := make([]matching.VolunteerSnapshot, 0, len(f.volunteers))
	for _, v := range f.volunteers {
		if !f.assigned[pairKey(eventID, v.ID)] {
			out = append(out, v)
		}
	}
	return out, nil
}
func (f *fakeMatchingRepo) GetVolunteerSnapshot(ctx context.Context, volunteerID string) (matching.VolunteerSnapshot, error) {
	v, ok := f.volunteers[volunteerID]
	if !ok {
		return matching.VolunteerSnapshot{}, matching.ErrVolunteerNotFound
	}
	return v, nil
}
func (f *fakeMatchingRepo) HasAssignment(ctx context.Context, eventID, volunteerID string) (bool, error) {
	return f.assigned[pairKey(eventID, volunteerID)], nil
}
func (f *fakeMatchingRepo) InsertAssignment(ctx context.Context, rec matching.AssignmentRecord) error {
	key := pairKey(rec.EventID, rec.VolunteerID)
	if f.assigned[key] {
		return matching.ErrAlreadyAssigned
	}
	f.assigned[key] = true
	return nil
}
func (f *fakeMatchingRepo) ListAssignments(ctx context.Context, eventID string) ([]matching.AssignmentView, error) {
	return []matching.AssignmentView{}, nil
}

type fakeNotifyRepo struct {
	rows map[string]notify.Notification
}

func (f *fakeNotifyRepo) EnsureSchema(ctx context.Context) error { return nil }
func (f *fakeNotifyRepo) Insert(ctx context.Context, n notify.Notification) (bool, error) {
	if _, exists := f.rows[n.ID]; exists {
		return false, nil
	}
	f.rows[n.ID] = n
	return true, nil
}
func (f *fakeNotifyRepo) ListForUser(ctx context.Context, userID string) ([]notify.Notification, error) {
	out := make([]notify.Notification, 0)
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeReports struct{}

func (fakeReports) VolunteerParticipation(ctx context.Context) ([]reports.VolunteerParticipation, error) {
	return []reports.VolunteerParticipation{}, nil
}
func (fakeReports) EventRosters(ctx context.Context) ([]reports.EventRoster, error) {
	return []reports.EventRoster{}, nil
}

type testEnv struct {
	handler      http.Handler
	matchingRepo *fakeMatchingRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokenManager := identity.NewTokenManager("test-secret")
	identitySvc := identity.NewService(newFakeIdentityRepo(), tokenManager, []string{"admin@example.org"})
	profileSvc := profile.NewService(&fakeProfileRepo{records: map[string]profile.Record{}})
	eventSvc := events.NewService(&fakeEventsRepo{records: map[string]events.Record{}})

	matchingRepo := &fakeMatchingRepo{
		events:     map[string]matching.EventSnapshot{},
		volunteers: map[string]matching.VolunteerSnapshot{},
		assigned:   map[string]bool{},
	}
	matchingSvc := matching.NewService(matchingRepo)
	notifySvc := notify.NewService(&fakeNotifyRepo{rows: map[string]notify.Notification{}})

	h := NewHandler(identitySvc, profileSvc, eventSvc, matchingSvc, notifySvc, fakeReports{}, "", nil)
	return &testEnv{handler: h.Router(), matchingRepo: matchingRepo}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) register(t *testing.T, email string) identity.AuthResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rr.Code, rr.Body.String())
	}
	var resp identity.AuthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp
}

func TestAuthAndProfileFlow(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, "vol@example.org")
	if sess.Role != "volunteer" {
		t.Fatalf("role = %q, want volunteer", sess.Role)
	}

	if rr := env.do(t, http.MethodGet, "/api/v1/profile", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated profile: status %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/v1/profile", sess.AccessToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("profile before save: status %d", rr.Code)
	}

	rr := env.do(t, http.MethodPut, "/api/v1/profile", sess.AccessToken, map[string]any{
		"full_name":    "Riley Park",
		"city":         "Houston",
		"state":        "TX",
		"skills":       []string{"cooking"},
		"availability": []string{"2026-10-05"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("save profile: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/profile", sess.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get profile: status %d", rr.Code)
	}
	var p profile.Profile
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.FullName != "Riley Park" || len(p.Skills) != 1 {
		t.Fatalf("profile = %+v", p)
	}
}

func TestSaveProfileValidationStatus(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, "vol@example.org")

	rr := env.do(t, http.MethodPut, "/api/v1/profile", sess.AccessToken, map[string]any{
		"full_name":    "Riley Park",
		"availability": []string{"not-a-date"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad availability: status %d body %s", rr.Code, rr.Body.String())
	}
}

func TestAdminGuard(t *testing.T) {
	env := newTestEnv(t)
	vol := env.register(t, "vol@example.org")
	admin := env.register(t, "admin@example.org")

	event := map[string]any{
		"name":            "Food Drive",
		"location":        "Houston Community Center",
		"required_skills": []string{"cooking"},
		"urgency":         3,
		"event_date":      "2026-10-05",
	}
	if rr := env.do(t, http.MethodPost, "/api/v1/events", vol.AccessToken, event); rr.Code != http.StatusForbidden {
		t.Fatalf("volunteer create event: status %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/v1/events", admin.AccessToken, event); rr.Code != http.StatusCreated {
		t.Fatalf("admin create event: status %d body %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, "/api/v1/reports/volunteers", vol.AccessToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("volunteer reports: status %d", rr.Code)
	}
}

func TestMatchAndAssignFlow(t *testing.T) {
	env := newTestEnv(t)
	admin := env.register(t, "admin@example.org")

	env.matchingRepo.events["e1"] = matching.EventSnapshot{
		ID:             "e1",
		Name:           "Food Drive",
		Location:       "Houston Community Center",
		RequiredSkills: []string{"cooking"},
		Date:           "2026-10-05",
	}
	env.matchingRepo.volunteers["u1"] = matching.VolunteerSnapshot{
		ID:           "u1",
		FullName:     "Riley Park",
		City:         "Houston",
		Skills:       []string{"cooking"},
		Availability: []string{"2026-10-05"},
	}

	rr := env.do(t, http.MethodGet, "/api/v1/events/e1/matches", admin.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("matches: status %d body %s", rr.Code, rr.Body.String())
	}
	var results []matching.MatchResult
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode matches: %v", err)
	}
	if len(results) != 1 || results[0].VolunteerID != "u1" {
		t.Fatalf("results = %+v", results)
	}

	if rr := env.do(t, http.MethodGet, "/api/v1/events/missing/matches", admin.AccessToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("matches for unknown event: status %d", rr.Code)
	}

	assign := map[string]string{"volunteer_id": "u1"}
	if rr := env.do(t, http.MethodPost, "/api/v1/events/e1/assignments", admin.AccessToken, assign); rr.Code != http.StatusCreated {
		t.Fatalf("assign: status %d body %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPost, "/api/v1/events/e1/assignments", admin.AccessToken, assign); rr.Code != http.StatusConflict {
		t.Fatalf("repeat assign: status %d body %s", rr.Code, rr.Body.String())
	}

	// An assigned volunteer drops out of the candidate pool.
	rr = env.do(t, http.MethodGet, "/api/v1/events/e1/matches", admin.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("matches after assign: status %d", rr.Code)
	}
	results = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode matches: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty pool, got %+v", results)
	}
}

func TestNotificationsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	vol := env.register(t, "vol@example.org")
	admin := env.register(t, "admin@example.org")

	rr := env.do(t, http.MethodPost, "/api/v1/notifications", admin.AccessToken, map[string]string{
		"user_id": vol.UserID,
		"title":   "Orientation",
		"body":    "Saturday at 9am.",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("send: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/notifications", vol.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("inbox: status %d", rr.Code)
	}
	var inbox []notify.Notification
	if err := json.Unmarshal(rr.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Title != "Orientation" {
		t.Fatalf("inbox = %+v", inbox)
	}
}

func TestStatesIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/states", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("states: status %d", rr.Code)
	}
	var all []profile.State
	if err := json.Unmarshal(rr.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("expected state entries")
	}
}

func TestTokenRefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	sess := env.register(t, "vol@example.org")

	rr := env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": sess.RefreshToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", rr.Code, rr.Body.String())
	}
	var renewed identity.AuthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &renewed); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}

	if rr := env.do(t, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{"refresh_token": renewed.RefreshToken}); rr.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": renewed.RefreshToken}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d", rr.Code)
	}
}
