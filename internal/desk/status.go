package desk

import (
	"context"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// EvaluateAutoTransition returns the status a reply from trigger moves the
// ticket to, given the thread as it was before the reply. It reports false
// when the reply changes nothing.
func EvaluateAutoTransition(ticket domain.Ticket, prior []domain.Message, trigger domain.SenderType) (domain.TicketStatus, bool) {
	switch {
	case ticket.Status.Terminal():
		return domain.TicketStatusInProgress, true
	case ticket.Status == domain.TicketStatusOpen && trigger == domain.SenderTypeAdmin && !domain.HasAdminMessage(prior):
		return domain.TicketStatusInProgress, true
	}
	return "", false
}

// EvaluateOnView repairs an OPEN ticket that already has a staff reply.
func EvaluateOnView(ticket domain.Ticket, messages []domain.Message) (domain.TicketStatus, bool) {
	if ticket.Status == domain.TicketStatusOpen && domain.HasAdminMessage(messages) {
		return domain.TicketStatusInProgress, true
	}
	return "", false
}

// decision picks a target status from the ticket's state at the time the
// per-ticket lock is held.
type decision func(ticket domain.Ticket, messages []domain.Message) (domain.TicketStatus, bool)

// StatusController applies status changes optimistically. Changes to one
// ticket run one at a time in lock order, so an explicit change and a
// reply-triggered change never interleave.
type StatusController struct {
	api   API
	store *Store
	list  *ticketList
	clock clock.Clock
	locks *keyedMutex

	// onRollback observes every reverted change.
	onRollback func(err *StatusChangeError)
}

func newStatusController(api API, store *Store, list *ticketList, c clock.Clock) *StatusController {
	return &StatusController{api: api, store: store, list: list, clock: c, locks: newKeyedMutex()}
}

// Apply changes the ticket's status.
func (s *StatusController) Apply(ctx context.Context, ticketID string, status domain.TicketStatus) (domain.Ticket, error) {
	ticket, _, err := s.applyIf(ctx, ticketID, func(domain.Ticket, []domain.Message) (domain.TicketStatus, bool) {
		return status, true
	})
	return ticket, err
}

// applyIf evaluates decide under the ticket's lock and, when it yields a new
// status, writes it to the cached detail and the listing before calling the
// API. A failed call restores the previous status and update time in both
// places.
func (s *StatusController) applyIf(ctx context.Context, ticketID string, decide decision) (domain.Ticket, bool, error) {
	unlock := s.locks.Lock(ticketID)
	defer unlock()

	current, messages, known := s.current(ticketID)
	if !known {
		current = domain.Ticket{ID: ticketID}
	}
	status, ok := decide(current, messages)
	if !ok || (known && status == current.Status) {
		return current, false, nil
	}
	if !status.Valid() {
		return current, false, apperrors.NewValidationError("unknown status "+string(status), nil)
	}

	previousStatus, previousUpdated := current.Status, current.UpdatedAt
	now := s.clock.Now()
	s.mutate(ticketID, func(t *domain.Ticket) {
		t.Status = status
		t.UpdatedAt = now
	})

	updated, err := s.api.UpdateTicketStatus(ctx, ticketID, status)
	if err != nil {
		s.mutate(ticketID, func(t *domain.Ticket) {
			if t.Status == status {
				t.Status = previousStatus
				t.UpdatedAt = previousUpdated
			}
		})
		changeErr := &StatusChangeError{TicketID: ticketID, Status: status, Err: err}
		if s.onRollback != nil {
			s.onRollback(changeErr)
		}
		return current, true, changeErr
	}

	s.mutate(ticketID, func(t *domain.Ticket) {
		snippet := t.LastMessageSnippet
		*t = updated
		if t.LastMessageSnippet == "" {
			t.LastMessageSnippet = snippet
		}
	})
	return updated, true, nil
}

// current returns the freshest local copy of the ticket: the cached detail
// unless the listing holds a more recently updated copy.
func (s *StatusController) current(ticketID string) (domain.Ticket, []domain.Message, bool) {
	entry, cached := s.store.Get(ticketID)
	listed, inList := s.list.get(ticketID)
	switch {
	case cached && entry.Ticket != nil && (!inList || !listed.UpdatedAt.After(entry.Ticket.UpdatedAt)):
		return *entry.Ticket, entry.Messages, true
	case inList:
		return listed, entry.Messages, true
	}
	return domain.Ticket{}, entry.Messages, false
}

func (s *StatusController) mutate(ticketID string, fn func(*domain.Ticket)) {
	s.store.Update(ticketID, func(e *Entry) bool {
		if e.Ticket == nil {
			return false
		}
		fn(e.Ticket)
		return true
	})
	s.list.update(ticketID, fn)
}
