package models

import "time"

// ContactStatus tracks the inbox workflow state of a message.
type ContactStatus string

const (
	ContactNew        ContactStatus = "new"
	ContactInProgress ContactStatus = "in-progress"
	ContactResolved   ContactStatus = "resolved"
)

// Contact is an inbound message from the public contact form.
type Contact struct {
	ID            string        `db:"id" json:"id"`
	Name          string        `db:"name" json:"name"`
	Email         string        `db:"email" json:"email"`
	Subject       string        `db:"subject" json:"subject"`
	Message       string        `db:"message" json:"message"`
	Status        ContactStatus `db:"status" json:"status"`
	AssignedTo    *string       `db:"assigned_to" json:"assigned_to,omitempty"`
	Response      *string       `db:"response" json:"response,omitempty"`
	RespondedBy   *string       `db:"responded_by" json:"responded_by,omitempty"`
	RespondedAt   *time.Time    `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// ContactFilter provides filters for listing the inbox.
type ContactFilter struct {
	Status   string
	Page     int
	PageSize int
}
