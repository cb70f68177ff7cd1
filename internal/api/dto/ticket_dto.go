package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Text string `json:"text"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Status             domain.TicketStatus `json:"status"`
	LastMessageSnippet string              `json:"last_message_snippet"`
	OwnerID            string              `json:"owner_id"`
	OwnerEmail         string              `json:"owner_email,omitempty"`
	OwnerName          string              `json:"owner_name,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// MessageResponse is the wire form of a thread message.
type MessageResponse struct {
	ID         string            `json:"id"`
	TicketID   string            `json:"ticket_id"`
	Sender     string            `json:"sender"`
	SenderType domain.SenderType `json:"sender_type"`
	Text       string            `json:"text"`
	CreatedAt  time.Time         `json:"created_at"`
}

// DataResponse is the success envelope.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// PageResponse is the success envelope of a listing.
type PageResponse[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// TicketFromDomain converts a ticket for the wire.
func TicketFromDomain(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                 ticket.ID,
		Title:              ticket.Title,
		Status:             ticket.Status,
		LastMessageSnippet: ticket.LastMessageSnippet,
		OwnerID:            ticket.OwnerID,
		OwnerEmail:         ticket.OwnerEmail,
		OwnerName:          ticket.OwnerName,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
	}
}

// Domain converts the wire ticket back.
func (r TicketResponse) Domain() domain.Ticket {
	return domain.Ticket{
		ID:                 r.ID,
		Title:              r.Title,
		Status:             r.Status,
		LastMessageSnippet: r.LastMessageSnippet,
		OwnerID:            r.OwnerID,
		OwnerEmail:         r.OwnerEmail,
		OwnerName:          r.OwnerName,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// MessageFromDomain converts a message for the wire.
func MessageFromDomain(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		TicketID:   msg.TicketID,
		Sender:     msg.Sender,
		SenderType: msg.SenderType,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt,
	}
}

// Domain converts the wire message back into a confirmed message.
func (r MessageResponse) Domain() domain.Message {
	return domain.Message{
		Kind:       domain.KindConfirmed,
		ID:         r.ID,
		ServerID:   r.ID,
		TicketID:   r.TicketID,
		Sender:     r.Sender,
		SenderType: r.SenderType,
		Text:       r.Text,
		CreatedAt:  r.CreatedAt,
	}
}
