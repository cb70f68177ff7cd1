// Package desk implements the ticket panel: a session-scoped cache of ticket
// detail with optimistic message delivery, derived status transitions,
// de-duplicated detail fetches and list filtering.
package desk

import (
	"context"

	"github.com/spec-kit/support-desk/internal/domain"
)

// API is the collaborator the panel reads from and writes to. Every call
// requires an authenticated identity; implementations fail a call that has
// no token with an unauthorized error.
type API interface {
	ListTickets(ctx context.Context, scope domain.Scope, filter domain.ListFilter) (domain.TicketPage, error)
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	GetTicketMessages(ctx context.Context, ticketID string) ([]domain.Message, error)
	CreateTicket(ctx context.Context, title, text string) (domain.Ticket, error)
	AddMessage(ctx context.Context, ticketID, text string, actingAs domain.Scope) (domain.Message, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (domain.Ticket, error)
}
