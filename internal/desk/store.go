package desk

import (
	"sync"
	"time"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
)

// DefaultFreshness is how long a fetched entry is served without a refresh.
const DefaultFreshness = 5 * time.Minute

// Entry is the cached state of one ticket.
type Entry struct {
	Messages  []domain.Message
	Ticket    *domain.Ticket
	FetchedAt time.Time
}

// Loaded reports whether the entry holds fetched ticket detail. Entries
// created by a send before the first fetch carry only messages.
func (e Entry) Loaded() bool {
	return e.Ticket != nil
}

// Message returns the message with the given local id.
func (e Entry) Message(id string) (domain.Message, bool) {
	if i := indexOf(e.Messages, id); i >= 0 {
		return e.Messages[i], true
	}
	return domain.Message{}, false
}

func (e Entry) clone() Entry {
	out := Entry{FetchedAt: e.FetchedAt}
	if e.Messages != nil {
		out.Messages = append([]domain.Message(nil), e.Messages...)
	}
	if e.Ticket != nil {
		ticket := *e.Ticket
		out.Ticket = &ticket
	}
	return out
}

// Store caches ticket detail for one panel session. Reads return copies and
// every write replaces a whole entry under the lock, so no reader observes a
// partially applied mutation.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	clock     clock.Clock
	freshness time.Duration
}

// NewStore builds an empty store. A non-positive freshness uses DefaultFreshness.
func NewStore(c clock.Clock, freshness time.Duration) *Store {
	if c == nil {
		c = clock.Real()
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Store{entries: make(map[string]Entry), clock: c, freshness: freshness}
}

// Get returns a copy of the entry for ticketID.
func (s *Store) Get(ticketID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[ticketID]
	if !ok {
		return Entry{}, false
	}
	return entry.clone(), true
}

// Put overwrites the entry and stamps it with the current time.
func (s *Store) Put(ticketID string, entry Entry) {
	entry = entry.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.FetchedAt = s.clock.Now()
	s.entries[ticketID] = entry
}

// PutPreserving overwrites the entry keeping the caller's FetchedAt.
func (s *Store) PutPreserving(ticketID string, entry Entry) {
	entry = entry.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ticketID] = entry
}

// Update applies fn to a copy of the entry and stores the result when fn
// reports a change. A missing entry is presented to fn as a zero Entry.
// FetchedAt is preserved. Update reports whether anything was written.
// fn runs under the store lock and must not block.
func (s *Store) Update(ticketID string, fn func(*Entry) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.entries[ticketID].clone()
	fetchedAt := current.FetchedAt
	if !fn(&current) {
		return false
	}
	current.FetchedAt = fetchedAt
	s.entries[ticketID] = current
	return true
}

// Refresh stores freshly fetched detail, stamping the entry with the current
// time. The local order of the thread is kept: local messages the server
// does not know about yet stay in place, messages confirmed locally keep the
// id they are shown with, and new server messages are appended.
func (s *Store) Refresh(ticketID string, ticket domain.Ticket, messages []domain.Message) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.entries[ticketID]
	entry := Entry{
		Ticket:    &ticket,
		Messages:  mergeMessages(previous.Messages, messages),
		FetchedAt: s.clock.Now(),
	}
	s.entries[ticketID] = entry
	return entry.clone()
}

// IsStale reports whether entry is older than the freshness window.
func (s *Store) IsStale(entry Entry) bool {
	return s.clock.Now().Sub(entry.FetchedAt) > s.freshness
}

// Len returns the number of cached tickets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// mergeMessages walks the local thread in order. Confirmed messages are
// swapped for their server copy, keeping the local id, and provisional
// messages stay where they are. Server messages not shown locally are placed
// before the next local message the server also lists, or appended when
// none follows.
func mergeMessages(local, server []domain.Message) []domain.Message {
	byID := make(map[string]domain.Message, len(server))
	position := make(map[string]int, len(server))
	for i, msg := range server {
		msg.Kind = domain.KindConfirmed
		msg.ServerID = msg.ID
		byID[msg.ID] = msg
		position[msg.ID] = i
	}
	shown := make(map[string]struct{}, len(local))
	for _, msg := range local {
		if _, ok := byID[msg.ServerID]; ok && !msg.Provisional() {
			shown[msg.ServerID] = struct{}{}
		}
	}

	merged := make([]domain.Message, 0, len(server)+len(local))
	emitted := make(map[string]struct{}, len(server))
	next := 0
	// flush emits the unshown server messages before position until.
	flush := func(until int) {
		for ; next < until; next++ {
			id := server[next].ID
			if _, ok := shown[id]; ok {
				continue
			}
			if _, ok := emitted[id]; ok {
				continue
			}
			emitted[id] = struct{}{}
			merged = append(merged, byID[id])
		}
	}

	for _, msg := range local {
		if msg.Provisional() {
			merged = append(merged, msg)
			continue
		}
		if serverCopy, ok := byID[msg.ServerID]; ok {
			if _, done := emitted[msg.ServerID]; done {
				continue
			}
			if at := position[msg.ServerID]; at >= next {
				flush(at)
				next = at + 1
			}
			emitted[msg.ServerID] = struct{}{}
			serverCopy.ID = msg.ID
			serverCopy.Delivery = msg.Delivery
			merged = append(merged, serverCopy)
			continue
		}
		// Sent locally but not yet visible in the server listing.
		if msg.Delivery == domain.DeliverySent {
			merged = append(merged, msg)
		}
	}
	flush(len(server))
	return merged
}

func indexOf(messages []domain.Message, id string) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}
