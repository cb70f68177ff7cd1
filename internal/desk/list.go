package desk

import (
	"sync"

	"github.com/spec-kit/support-desk/internal/domain"
)

// ticketList is the panel's working copy of the ticket listing.
type ticketList struct {
	mu     sync.RWMutex
	items  []domain.Ticket
	cursor string
	err    error
}

func (l *ticketList) snapshot() []domain.Ticket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Ticket(nil), l.items...)
}

// replace installs a freshly loaded page; appendPage extends the listing
// with a follow-up page, skipping tickets already present.
func (l *ticketList) replace(page domain.TicketPage, appendPage bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = nil
	l.cursor = page.NextCursor
	if !appendPage {
		l.items = append([]domain.Ticket(nil), page.Items...)
		return
	}
	items := append([]domain.Ticket(nil), l.items...)
	for _, ticket := range page.Items {
		if i := l.indexLocked(items, ticket.ID); i >= 0 {
			items[i] = ticket
			continue
		}
		items = append(items, ticket)
	}
	l.items = items
}

func (l *ticketList) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *ticketList) lastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

func (l *ticketList) nextCursor() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor
}

func (l *ticketList) get(ticketID string) (domain.Ticket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexLocked(l.items, ticketID); i >= 0 {
		return l.items[i], true
	}
	return domain.Ticket{}, false
}

// upsert replaces a listed ticket or, when prepend is set, adds it at the front.
func (l *ticketList) upsert(ticket domain.Ticket, prepend bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := append([]domain.Ticket(nil), l.items...)
	if i := l.indexLocked(items, ticket.ID); i >= 0 {
		items[i] = ticket
	} else if prepend {
		items = append([]domain.Ticket{ticket}, items...)
	} else {
		return
	}
	l.items = items
}

// update mutates a listed ticket in place; missing tickets are ignored.
func (l *ticketList) update(ticketID string, fn func(*domain.Ticket)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(l.items, ticketID)
	if i < 0 {
		return
	}
	items := append([]domain.Ticket(nil), l.items...)
	fn(&items[i])
	l.items = items
}

func (l *ticketList) indexLocked(items []domain.Ticket, ticketID string) int {
	for i := range items {
		if items[i].ID == ticketID {
			return i
		}
	}
	return -1
}
