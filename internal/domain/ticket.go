package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid reports whether s is one of the four known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether the status ends the conversation until the next reply.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// Ticket is a support request thread between a user and staff.
type Ticket struct {
	ID                 string
	Title              string
	Status             TicketStatus
	LastMessageSnippet string
	OwnerID            string
	OwnerEmail         string
	OwnerName          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const (
	// MaxTitleLength caps ticket titles in characters.
	MaxTitleLength = 100
	// MaxMessageLength caps message bodies in characters.
	MaxMessageLength = 1000
)
