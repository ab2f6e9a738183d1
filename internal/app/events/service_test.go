package events

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type fakeRepo struct {
	records   map[string]Record
	order     []string
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]Record{}}
}

func (f *fakeRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeRepo) Insert(ctx context.Context, rec Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records[rec.ID] = rec
	f.order = append(f.order, rec.ID)
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) List(ctx context.Context) ([]Record, error) {
	out := make([]Record, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.records[id])
	}
	return out, nil
}

func newTestService(repo *fakeRepo) *Service {
	svc := NewService(repo)
	svc.Now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	svc.NewID = func() string {
		n++
		return "evt-" + string(rune('0'+n))
	}
	return svc
}

func TestCreateAndGet(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	created, err := svc.Create(context.Background(), Event{
		Name:           "  Food Drive ",
		Description:    "Sorting donations",
		Location:       "Houston Community Center",
		RequiredSkills: []string{"lifting", " sorting ", "lifting"},
		Urgency:        3,
		EventDate:      "2026-10-05",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Name != "Food Drive" {
		t.Fatalf("name not trimmed: %q", created.Name)
	}
	if got, want := created.RequiredSkills, []string{"lifting", "sorting"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("skills = %v, want %v", got, want)
	}
	if repo.records[created.ID].RequiredSkills != "lifting,sorting" {
		t.Fatalf("stored skills = %q", repo.records[created.ID].RequiredSkills)
	}

	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, created) {
		t.Fatalf("Get = %+v, want %+v", got, created)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newFakeRepo())

	valid := Event{
		Name:           "Cleanup",
		Location:       "Park",
		RequiredSkills: []string{"gardening"},
		Urgency:        2,
		EventDate:      "2026-10-05",
	}
	cases := []struct {
		name    string
		mutate  func(e *Event)
		wantErr error
	}{
		{"missing name", func(e *Event) { e.Name = " " }, ErrInvalidEvent},
		{"missing location", func(e *Event) { e.Location = "" }, ErrInvalidEvent},
		{"urgency too low", func(e *Event) { e.Urgency = 0 }, ErrInvalidEvent},
		{"urgency too high", func(e *Event) { e.Urgency = 6 }, ErrInvalidEvent},
		{"no skills", func(e *Event) { e.RequiredSkills = nil }, ErrSkillsRequired},
		{"blank skills", func(e *Event) { e.RequiredSkills = []string{" ", ""} }, ErrSkillsRequired},
		{"bad date", func(e *Event) { e.EventDate = "Oct 5" }, ErrInvalidDate},
		{"missing date", func(e *Event) { e.EventDate = "" }, ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := valid
			tc.mutate(&e)
			if _, err := svc.Create(context.Background(), e); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Create error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestGetUnknownEvent(t *testing.T) {
	svc := newTestService(newFakeRepo())
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(context.Background(), "  "); !errors.Is(err, ErrIDRequired) {
		t.Fatalf("Get error = %v, want ErrIDRequired", err)
	}
}

func TestListPreservesOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	for _, name := range []string{"Alpha", "Beta"} {
		_, err := svc.Create(context.Background(), Event{
			Name:           name,
			Location:       "Hall",
			RequiredSkills: []string{"setup"},
			Urgency:        1,
			EventDate:      "2026-12-01",
		})
		if err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}
	all, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Alpha" || all[1].Name != "Beta" {
		t.Fatalf("List = %+v", all)
	}
}

func TestCreateRepositoryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.insertErr = errors.New("pool closed")
	svc := newTestService(repo)
	_, err := svc.Create(context.Background(), Event{
		Name:           "Cleanup",
		Location:       "Park",
		RequiredSkills: []string{"gardening"},
		Urgency:        2,
		EventDate:      "2026-10-05",
	})
	if err == nil {
		t.Fatal("expected repository error")
	}
}
