package contracts

import "time"

// AssignmentEvent is published by the API server when a volunteer is
// assigned to an event and consumed by notify-worker to build the
// volunteer's notification inbox.
type AssignmentEvent struct {
	AssignmentID  string    `json:"assignment_id"`
	EventID       string    `json:"event_id"`
	EventName     string    `json:"event_name"`
	EventDate     string    `json:"event_date"`
	EventLocation string    `json:"event_location"`
	VolunteerID   string    `json:"volunteer_id"`
	VolunteerName string    `json:"volunteer_name"`
	AssignedAt    time.Time `json:"assigned_at"`
}
