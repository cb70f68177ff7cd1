package desk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
)

// Messenger sends messages optimistically: the message is visible in the
// store before the API confirms it, and a failed send stays in place so it
// can be retried.
type Messenger struct {
	api      API
	store    *Store
	clock    clock.Clock
	scope    domain.Scope
	identity string

	idMu   sync.Mutex
	lastID int64

	// onDelivery observes every delivery state change.
	onDelivery func(ticketID string, msg domain.Message)
}

// NewMessenger builds a messenger acting as identity within scope.
func NewMessenger(api API, store *Store, c clock.Clock, scope domain.Scope, identity string) *Messenger {
	if c == nil {
		c = clock.Real()
	}
	return &Messenger{api: api, store: store, clock: c, scope: scope, identity: identity}
}

// Send appends a provisional message and issues the create call. On success
// the provisional message is replaced in place by the server record; on
// failure it is marked failed in place and the API error is returned along
// with the failed message.
func (m *Messenger) Send(ctx context.Context, ticketID, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if err := domain.ValidateText(text); err != nil {
		return domain.Message{}, validationError(err)
	}

	provisional := domain.NewProvisionalMessage(m.tempID(), ticketID, m.identity, m.scope.SenderType(), text, m.clock.Now())
	m.store.Update(ticketID, func(e *Entry) bool {
		e.Messages = append(e.Messages, provisional)
		return true
	})
	m.notify(ticketID, provisional)

	return m.deliver(ctx, ticketID, provisional, false)
}

// Retry re-sends a failed message under the same id. It does nothing and
// reports false unless the message is currently failed; of several
// concurrent retries only one proceeds.
func (m *Messenger) Retry(ctx context.Context, ticketID, messageID string) (domain.Message, bool, error) {
	var pending domain.Message
	claimed := m.store.Update(ticketID, func(e *Entry) bool {
		i := indexOf(e.Messages, messageID)
		if i < 0 || e.Messages[i].Delivery != domain.DeliveryFailed {
			return false
		}
		e.Messages[i].Delivery = domain.DeliverySending
		pending = e.Messages[i]
		return true
	})
	if !claimed {
		return domain.Message{}, false, nil
	}
	m.notify(ticketID, pending)

	msg, err := m.deliver(ctx, ticketID, pending, true)
	return msg, true, err
}

func (m *Messenger) deliver(ctx context.Context, ticketID string, pending domain.Message, keepID bool) (domain.Message, error) {
	server, err := m.api.AddMessage(ctx, ticketID, pending.Text, m.scope)
	if err != nil {
		failed := pending
		failed.Delivery = domain.DeliveryFailed
		m.store.Update(ticketID, func(e *Entry) bool {
			i := indexOf(e.Messages, pending.ID)
			if i < 0 {
				e.Messages = append(e.Messages, failed)
				return true
			}
			e.Messages[i].Delivery = domain.DeliveryFailed
			return true
		})
		m.notify(ticketID, failed)
		return failed, err
	}

	confirmed := pending.Confirm(server, keepID)
	m.store.Update(ticketID, func(e *Entry) bool {
		e.Messages = replaceConfirmed(e.Messages, pending.ID, confirmed)
		return true
	})
	m.notify(ticketID, confirmed)
	return confirmed, nil
}

// replaceConfirmed swaps the pending message for its confirmed record at the
// same position and drops any copy of the server record that a refresh may
// have delivered meanwhile.
func replaceConfirmed(messages []domain.Message, pendingID string, confirmed domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(messages)+1)
	replaced := false
	for _, msg := range messages {
		switch {
		case msg.ID == pendingID:
			out = append(out, confirmed)
			replaced = true
		case msg.ServerID != "" && msg.ServerID == confirmed.ServerID:
			continue
		default:
			out = append(out, msg)
		}
	}
	if !replaced {
		out = append(out, confirmed)
	}
	return out
}

// tempID returns a never-reused local id of the form temp-<unix nanos>.
func (m *Messenger) tempID() string {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	next := m.clock.Now().UnixNano()
	if next <= m.lastID {
		next = m.lastID + 1
	}
	m.lastID = next
	return fmt.Sprintf("temp-%d", next)
}

func (m *Messenger) notify(ticketID string, msg domain.Message) {
	if m.onDelivery != nil {
		m.onDelivery(ticketID, msg)
	}
}
