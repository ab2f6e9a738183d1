package matching

import (
	"encoding/json"
	"sort"
	"strings"
)

const (
	availabilityBonus  = 0.2
	unavailablePenalty = 0.5
	locationBonus      = 0.1
)

// EventSnapshot is the read-only view of an event the engine scores against.
// RequiredSkills is the parsed set; Date is a calendar date (YYYY-MM-DD).
type EventSnapshot struct {
	ID             string
	Name           string
	Location       string
	RequiredSkills []string
	Date           string
}

// VolunteerSnapshot is the read-only view of a candidate volunteer.
// Availability is the parsed set of calendar dates the volunteer declared open.
type VolunteerSnapshot struct {
	ID           string
	FullName     string
	Email        string
	City         string
	Skills       []string
	Availability []string
}

// MatchResult is derived per (event, volunteer) pair. It is recomputed on
// every request and never persisted.
type MatchResult struct {
	VolunteerID    string   `json:"volunteer_id"`
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	City           string   `json:"city"`
	MatchingSkills []string `json:"matching_skills"`
	IsAvailable    bool     `json:"is_available"`
	MatchScore     float64  `json:"match_score"`
}

// Score computes the compatibility of one volunteer for one event. It is a
// pure function: identical inputs always produce the identical result, and
// the score stays within [0, 1].
//
// An event with no required skills yields base score 0, not a vacuous match.
func Score(event EventSnapshot, vol VolunteerSnapshot) MatchResult {
	required := map[string]struct{}{}
	for _, s := range event.RequiredSkills {
		required[s] = struct{}{}
	}

	// Ordered by the volunteer's skill order so output is stable.
	matching := []string{}
	seen := map[string]struct{}{}
	for _, s := range vol.Skills {
		if _, ok := required[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		matching = append(matching, s)
	}

	base := 0.0
	if len(required) > 0 {
		base = float64(len(matching)) / float64(len(required))
	}

	available := false
	if event.Date != "" {
		for _, d := range vol.Availability {
			if d == event.Date {
				available = true
				break
			}
		}
	}

	// Zero skill overlap is a hard floor: neither availability nor location
	// can lift it.
	score := 0.0
	if len(matching) > 0 {
		if available {
			score = clamp(base + availabilityBonus)
		} else {
			score = base * unavailablePenalty
		}
	}

	// Coarse containment heuristic, not geocoding.
	if score > 0 && vol.City != "" && strings.Contains(event.Location, vol.City) {
		score = clamp(score + locationBonus)
	}

	return MatchResult{
		VolunteerID:    vol.ID,
		FullName:       vol.FullName,
		Email:          vol.Email,
		City:           vol.City,
		MatchingSkills: matching,
		IsAvailable:    available,
		MatchScore:     clamp(score),
	}
}

// Rank scores every candidate, drops zero scores, and orders the rest by
// descending score. Ties keep the input iteration order.
func Rank(event EventSnapshot, pool []VolunteerSnapshot) []MatchResult {
	ranked := make([]MatchResult, 0, len(pool))
	for _, vol := range pool {
		res := Score(event, vol)
		if res.MatchScore > 0 {
			ranked = append(ranked, res)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MatchScore > ranked[j].MatchScore
	})
	return ranked
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ParseSkillSet parses the comma-joined skill encoding into an ordered set:
// tokens trimmed, empties dropped, duplicates collapsed.
func ParseSkillSet(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// JoinSkillSet is the inverse boundary encoding.
func JoinSkillSet(skills []string) string {
	return strings.Join(skills, ",")
}

// ParseAvailability decodes the JSON array of ISO date strings. A malformed
// value degrades to an empty set so one corrupt record cannot fail an entire
// pool computation.
func ParseAvailability(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	var dates []string
	if err := json.Unmarshal([]byte(raw), &dates); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
