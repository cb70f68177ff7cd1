package desk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeAPI is an in-memory collaborator with failure injection and hooks
// that let tests hold a call open.
type fakeAPI struct {
	mu       sync.Mutex
	clock    *clock.FakeClock
	tickets  map[string]domain.Ticket
	messages map[string][]domain.Message
	seq      int

	failList   error
	failGet    error
	failAdd    error
	failStatus error

	getHook    func(ticketID string)
	statusHook func(ticketID string, status domain.TicketStatus)

	listCalls   atomic.Int32
	getCalls    atomic.Int32
	addCalls    atomic.Int32
	statusCalls atomic.Int32
}

func newFakeAPI() (*fakeAPI, *clock.FakeClock) {
	clk := clock.Fake(testStart)
	return &fakeAPI{
		clock:    clk,
		tickets:  make(map[string]domain.Ticket),
		messages: make(map[string][]domain.Message),
	}, clk
}

func (f *fakeAPI) seed(ticket domain.Ticket, messages ...domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = f.clock.Now()
	}
	f.tickets[ticket.ID] = ticket
	for i := range messages {
		messages[i].TicketID = ticket.ID
	}
	f.messages[ticket.ID] = append([]domain.Message(nil), messages...)
}

func (f *fakeAPI) setFailure(target *error, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*target = err
}

func (f *fakeAPI) failure(target *error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *target
}

func (f *fakeAPI) ticket(id string) domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[id]
}

func (f *fakeAPI) ListTickets(_ context.Context, _ domain.Scope, filter domain.ListFilter) (domain.TicketPage, error) {
	f.listCalls.Add(1)
	if err := f.failure(&f.failList); err != nil {
		return domain.TicketPage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	page := domain.TicketPage{}
	for _, ticket := range f.tickets {
		if filter.Status != "" && ticket.Status != filter.Status {
			continue
		}
		page.Items = append(page.Items, ticket)
	}
	return page, nil
}

func (f *fakeAPI) GetTicket(_ context.Context, id string) (domain.Ticket, error) {
	f.getCalls.Add(1)
	if f.getHook != nil {
		f.getHook(id)
	}
	if err := f.failure(&f.failGet); err != nil {
		return domain.Ticket{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

func (f *fakeAPI) GetTicketMessages(_ context.Context, id string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.messages[id]...), nil
}

func (f *fakeAPI) CreateTicket(_ context.Context, title, text string) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	now := f.clock.Now()
	ticket := domain.Ticket{
		ID:                 fmt.Sprintf("t-%d", f.seq),
		Title:              title,
		Status:             domain.TicketStatusOpen,
		LastMessageSnippet: domain.Snippet(text, 100),
		OwnerEmail:         "user@example.com",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	f.tickets[ticket.ID] = ticket
	f.messages[ticket.ID] = []domain.Message{{ID: fmt.Sprintf("m-%d", f.seq), TicketID: ticket.ID, Sender: "user@example.com", SenderType: domain.SenderTypeUser, Text: text, CreatedAt: now}}
	return ticket, nil
}

func (f *fakeAPI) AddMessage(_ context.Context, id, text string, actingAs domain.Scope) (domain.Message, error) {
	f.addCalls.Add(1)
	if err := f.failure(&f.failAdd); err != nil {
		return domain.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return domain.Message{}, apperrors.NewNotFound("ticket", nil)
	}
	f.seq++
	sender := "user@example.com"
	if actingAs == domain.ScopeAdmin {
		sender = "admin"
	}
	msg := domain.Message{
		ID:         fmt.Sprintf("m-%d", f.seq),
		TicketID:   id,
		Sender:     sender,
		SenderType: actingAs.SenderType(),
		Text:       text,
		CreatedAt:  f.clock.Now(),
	}
	f.messages[id] = append(f.messages[id], msg)
	ticket.LastMessageSnippet = domain.Snippet(text, 100)
	ticket.UpdatedAt = msg.CreatedAt
	f.tickets[id] = ticket
	return msg, nil
}

func (f *fakeAPI) UpdateTicketStatus(_ context.Context, id string, status domain.TicketStatus) (domain.Ticket, error) {
	f.statusCalls.Add(1)
	if f.statusHook != nil {
		f.statusHook(id, status)
	}
	if err := f.failure(&f.failStatus); err != nil {
		return domain.Ticket{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", nil)
	}
	ticket.Status = status
	ticket.UpdatedAt = f.clock.Now()
	f.tickets[id] = ticket
	return ticket, nil
}

func newTestPanel(api *fakeAPI, clk clock.Clock, scope domain.Scope) *Panel {
	identity := "user@example.com"
	if scope == domain.ScopeAdmin {
		identity = "admin"
	}
	return NewPanel(api, Options{Scope: scope, Identity: identity, Clock: clk})
}

func userMessage(id, text string) domain.Message {
	return domain.Message{ID: id, Sender: "user@example.com", SenderType: domain.SenderTypeUser, Text: text, CreatedAt: testStart}
}

func adminMessage(id, text string) domain.Message {
	return domain.Message{ID: id, Sender: "admin", SenderType: domain.SenderTypeAdmin, Text: text, CreatedAt: testStart}
}
