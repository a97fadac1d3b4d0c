package models

import "time"

// EventType enumerates the kinds of campus events.
type EventType string

const (
	EventAcademic   EventType = "academic"
	EventCultural   EventType = "cultural"
	EventSports     EventType = "sports"
	EventWorkshop   EventType = "workshop"
	EventSeminar    EventType = "seminar"
	EventConference EventType = "conference"
)

// EventStatus enumerates the lifecycle of an event.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// DefaultEventCapacity applies when an event is created without one.
const DefaultEventCapacity = 100

// Event is a campus event with a bounded participant roster.
type Event struct {
	ID                   string      `db:"id" json:"id"`
	Title                string      `db:"title" json:"title"`
	Description          string      `db:"description" json:"description"`
	Date                 time.Time   `db:"date" json:"date"`
	EndDate              *time.Time  `db:"end_date" json:"end_date,omitempty"`
	Venue                string      `db:"venue" json:"venue"`
	Type                 EventType   `db:"type" json:"type"`
	Organizer            string      `db:"organizer" json:"organizer"`
	MaxParticipants      int         `db:"max_participants" json:"max_participants"`
	Status               EventStatus `db:"status" json:"status"`
	RegistrationDeadline *time.Time  `db:"registration_deadline" json:"registration_deadline,omitempty"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

// EventDetail adds the current participant count.
type EventDetail struct {
	Event
	ParticipantCount int `db:"participant_count" json:"participant_count"`
}

// EventParticipant is one roster row with the user relation expanded.
type EventParticipant struct {
	UserID       string    `db:"user_id" json:"user_id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

// EventFilter provides filters for listing events.
type EventFilter struct {
	Type     string
	Status   string
	Page     int
	PageSize int
}
