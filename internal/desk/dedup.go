package desk

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduplicator tracks in-flight detail fetches per ticket id.
type Deduplicator struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	group    singleflight.Group
}

// NewDeduplicator builds an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{inflight: make(map[string]struct{})}
}

// Begin registers ticketID as in flight. Only the first caller wins; later
// callers must not issue their own fetch.
func (d *Deduplicator) Begin(ticketID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[ticketID]; busy {
		return false
	}
	d.inflight[ticketID] = struct{}{}
	return true
}

// End releases ticketID. It is safe to call for ids that are not in flight.
func (d *Deduplicator) End(ticketID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, ticketID)
}

// InFlight reports whether a fetch for ticketID is running.
func (d *Deduplicator) InFlight(ticketID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.inflight[ticketID]
	return busy
}

// Do runs fetch for ticketID unless a run is already in flight, in which case
// the caller waits for that run and shares its error. performed reports
// whether this caller executed fetch. The id is released when fetch returns,
// whether or not it failed.
func (d *Deduplicator) Do(ticketID string, fetch func() error) (performed bool, err error) {
	_, err, _ = d.group.Do(ticketID, func() (interface{}, error) {
		performed = true
		if d.Begin(ticketID) {
			defer d.End(ticketID)
		}
		return nil, fetch()
	})
	return performed, err
}
