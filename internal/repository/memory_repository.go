package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// memoryTicketRepository keeps tickets in process memory. It backs the
// service when no database is configured and in tests.
type memoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	order   []string
}

// NewMemoryTicketRepository builds an empty in-memory ticket repository.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{tickets: make(map[string]domain.Ticket)}
}

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if _, exists := r.tickets[ticket.ID]; exists {
		return apperrors.NewConflict("ticket already exists", map[string]any{"id": ticket.ID})
	}
	r.tickets[ticket.ID] = *ticket
	r.order = append(r.order, ticket.ID)
	return nil
}

func (r *memoryTicketRepository) RecordMessage(_ context.Context, id, snippet string, at time.Time) (*domain.Ticket, error) {
	return r.mutate(id, at, func(t *domain.Ticket) {
		t.LastMessageSnippet = snippet
	})
}

func (r *memoryTicketRepository) SetStatus(_ context.Context, id string, status domain.TicketStatus, at time.Time) (*domain.Ticket, error) {
	return r.mutate(id, at, func(t *domain.Ticket) {
		t.Status = status
	})
}

func (r *memoryTicketRepository) mutate(id string, at time.Time, fn func(*domain.Ticket)) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	fn(&stored)
	if at.After(stored.UpdatedAt) {
		stored.UpdatedAt = at
	}
	r.tickets[id] = stored
	return &stored, nil
}

func (r *memoryTicketRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.tickets, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &ticket, nil
}

func (r *memoryTicketRepository) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	matched := make([]domain.Ticket, 0, len(r.order))
	for _, id := range r.order {
		ticket := r.tickets[id]
		if filter.OwnerID != nil && ticket.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != "" && ticket.Status != filter.Status {
			continue
		}
		matched = append(matched, ticket)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]domain.Ticket(nil), matched[offset:end]...), nil
}

type memoryTicketMessageRepository struct {
	mu       sync.RWMutex
	messages map[string][]domain.Message
}

// NewMemoryTicketMessageRepository builds an empty in-memory message repository.
func NewMemoryTicketMessageRepository() TicketMessageRepository {
	return &memoryTicketMessageRepository{messages: make(map[string][]domain.Message)}
}

func (r *memoryTicketMessageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.messages[msg.TicketID] = append(r.messages[msg.TicketID], *msg)
	return nil
}

func (r *memoryTicketMessageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Message{}, r.messages[ticketID]...), nil
}
