package desk

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Options configures a Panel.
type Options struct {
	Scope         domain.Scope
	Identity      string
	Clock         clock.Clock
	Freshness     time.Duration
	SnippetLength int
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Dispatcher    events.Dispatcher
}

// Panel is one ticket-panel session. It owns its cache, in-flight set and
// listing; nothing is shared between panels.
type Panel struct {
	api        API
	scope      domain.Scope
	clock      clock.Clock
	snippetLen int
	logger     *zap.Logger
	metrics    *observability.Metrics
	dispatcher events.Dispatcher

	store     *Store
	dedup     *Deduplicator
	list      *ticketList
	messenger *Messenger
	status    *StatusController

	mu        sync.Mutex
	selected  string
	detailErr error

	background sync.WaitGroup
}

// NewPanel builds a panel talking to api.
func NewPanel(api API, opts Options) *Panel {
	if opts.Scope == "" {
		opts.Scope = domain.ScopeUser
	}
	if opts.Identity == "" && opts.Scope == domain.ScopeAdmin {
		opts.Identity = "admin"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = 100
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = events.NewInMemoryDispatcher()
	}

	store := NewStore(opts.Clock, opts.Freshness)
	list := &ticketList{}
	p := &Panel{
		api:        api,
		scope:      opts.Scope,
		clock:      opts.Clock,
		snippetLen: opts.SnippetLength,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		dispatcher: opts.Dispatcher,
		store:      store,
		dedup:      NewDeduplicator(),
		list:       list,
		messenger:  NewMessenger(api, store, opts.Clock, opts.Scope, opts.Identity),
		status:     newStatusController(api, store, list, opts.Clock),
	}
	p.messenger.onDelivery = p.deliveryChanged
	p.status.onRollback = p.statusRolledBack
	return p
}

// Store exposes the panel's cache.
func (p *Panel) Store() *Store { return p.store }

// Subscribe registers a change listener.
func (p *Panel) Subscribe(eventType events.EventType, handler events.EventHandler) {
	p.dispatcher.Subscribe(eventType, handler)
}

// Wait blocks until background refreshes have finished.
func (p *Panel) Wait() {
	p.background.Wait()
}

// LoadTickets fetches a page of tickets. A non-empty filter cursor appends
// the page to the current listing. On failure the listing is left as it was
// and the error is kept for ListError.
func (p *Panel) LoadTickets(ctx context.Context, filter domain.ListFilter) error {
	page, err := p.api.ListTickets(ctx, p.scope, filter)
	if err != nil {
		p.list.fail(err)
		p.logger.Warn("ticket list load failed", zap.Error(err))
		return err
	}
	p.list.replace(page, filter.Cursor != "")
	p.publish(ctx, events.Event{Type: events.EventTicketsLoaded, Payload: len(page.Items)})
	return nil
}

// ListError returns the error of the last failed list load, cleared by the
// next successful one.
func (p *Panel) ListError() error { return p.list.lastError() }

// NextCursor returns the cursor of the next listing page, empty at the end.
func (p *Panel) NextCursor() string { return p.list.nextCursor() }

// Tickets returns the listing filtered by text and status, sorted for display.
func (p *Panel) Tickets(text string, filter StatusFilter) []domain.Ticket {
	return FilterAndSort(p.list.snapshot(), text, filter)
}

// Select makes ticketID the current ticket and returns its detail. Cached
// detail is returned immediately; stale detail additionally schedules one
// background refresh. Uncached detail is fetched, with concurrent selections
// of the same ticket sharing one fetch.
func (p *Panel) Select(ctx context.Context, ticketID string) (Entry, error) {
	p.mu.Lock()
	p.selected = ticketID
	p.detailErr = nil
	p.mu.Unlock()

	entry, ok := p.store.Get(ticketID)
	if ok && entry.Loaded() {
		if p.store.IsStale(entry) {
			p.metrics.CacheLookup("stale")
			p.refreshInBackground(ticketID)
		} else {
			p.metrics.CacheLookup("hit")
		}
		return p.repairOnView(ctx, ticketID, entry), nil
	}

	p.metrics.CacheLookup("miss")
	performed, err := p.dedup.Do(ticketID, func() error {
		return p.fetchDetail(ctx, ticketID)
	})
	if performed {
		p.metrics.DetailFetch("foreground")
	} else {
		p.metrics.DetailFetch("deduplicated")
	}
	if err != nil {
		if p.isSelected(ticketID) {
			p.mu.Lock()
			p.detailErr = err
			p.mu.Unlock()
		}
		p.publish(ctx, events.Event{
			Type:     events.EventDetailFailed,
			TicketID: ticketID,
			Payload:  events.DetailFailedPayload{Error: err.Error()},
		})
		return Entry{}, err
	}

	entry, _ = p.store.Get(ticketID)
	return p.repairOnView(ctx, ticketID, entry), nil
}

// Selected returns the current ticket id.
func (p *Panel) Selected() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected, p.selected != ""
}

// Current returns the cached detail of the current ticket.
func (p *Panel) Current() (Entry, bool) {
	ticketID, ok := p.Selected()
	if !ok {
		return Entry{}, false
	}
	return p.store.Get(ticketID)
}

// DetailError returns the detail fetch error of the current ticket.
func (p *Panel) DetailError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detailErr
}

// CreateTicket opens a new ticket and adds it to the front of the listing.
func (p *Panel) CreateTicket(ctx context.Context, title, text string) (domain.Ticket, error) {
	title, text = strings.TrimSpace(title), strings.TrimSpace(text)
	if err := domain.ValidateTitle(title); err != nil {
		return domain.Ticket{}, validationError(err)
	}
	if err := domain.ValidateText(text); err != nil {
		return domain.Ticket{}, validationError(err)
	}
	ticket, err := p.api.CreateTicket(ctx, title, text)
	if err != nil {
		return domain.Ticket{}, err
	}
	p.list.upsert(ticket, true)
	return ticket, nil
}

// SendMessage posts text to the ticket optimistically and, once confirmed,
// applies the reply-triggered status transition. When only that transition
// fails, the confirmed message is returned with a *StatusChangeError.
func (p *Panel) SendMessage(ctx context.Context, ticketID, text string) (domain.Message, error) {
	msg, err := p.messenger.Send(ctx, ticketID, text)
	if err != nil {
		return msg, err
	}
	return msg, p.afterDelivery(ctx, ticketID, msg)
}

// Retry re-sends a failed message. ok is false when the message was not in
// the failed state, in which case nothing changed.
func (p *Panel) Retry(ctx context.Context, ticketID, messageID string) (domain.Message, bool, error) {
	msg, ok, err := p.messenger.Retry(ctx, ticketID, messageID)
	if !ok || err != nil {
		return msg, ok, err
	}
	return msg, true, p.afterDelivery(ctx, ticketID, msg)
}

// ChangeStatus is the explicit staff status change. Only RESOLVED and CLOSED
// are explicit targets; OPEN and IN_PROGRESS follow from the conversation.
func (p *Panel) ChangeStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (domain.Ticket, error) {
	if p.scope != domain.ScopeAdmin {
		return domain.Ticket{}, apperrors.NewForbidden("only staff can change ticket status")
	}
	if status != domain.TicketStatusResolved && status != domain.TicketStatusClosed {
		return domain.Ticket{}, apperrors.NewValidationError("status must be RESOLVED or CLOSED", map[string]any{"status": status})
	}
	return p.status.Apply(ctx, ticketID, status)
}

func (p *Panel) afterDelivery(ctx context.Context, ticketID string, msg domain.Message) error {
	_, _, err := p.status.applyIf(ctx, ticketID, func(ticket domain.Ticket, messages []domain.Message) (domain.TicketStatus, bool) {
		return EvaluateAutoTransition(ticket, without(messages, msg.ID), msg.SenderType)
	})

	snippet := domain.Snippet(msg.Text, p.snippetLen)
	touch := func(t *domain.Ticket) {
		t.LastMessageSnippet = snippet
		if msg.CreatedAt.After(t.UpdatedAt) {
			t.UpdatedAt = msg.CreatedAt
		}
	}
	p.store.Update(ticketID, func(e *Entry) bool {
		if e.Ticket == nil {
			return false
		}
		touch(e.Ticket)
		return true
	})
	p.list.update(ticketID, touch)
	return err
}

// repairOnView moves an OPEN ticket that already has a staff reply to
// IN_PROGRESS when an end-user views it.
func (p *Panel) repairOnView(ctx context.Context, ticketID string, entry Entry) Entry {
	if p.scope != domain.ScopeUser || !p.isSelected(ticketID) {
		return entry
	}
	_, changed, err := p.status.applyIf(ctx, ticketID, EvaluateOnView)
	if err != nil {
		p.logger.Warn("status repair failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	if !changed {
		return entry
	}
	repaired, _ := p.store.Get(ticketID)
	return repaired
}

func (p *Panel) refreshInBackground(ticketID string) {
	if !p.dedup.Begin(ticketID) {
		p.metrics.DetailFetch("deduplicated")
		return
	}
	p.metrics.DetailFetch("background")
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		defer p.dedup.End(ticketID)
		if err := p.fetchDetail(context.Background(), ticketID); err != nil {
			p.logger.Warn("background refresh failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}()
}

func (p *Panel) fetchDetail(ctx context.Context, ticketID string) error {
	ticket, err := p.api.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	messages, err := p.api.GetTicketMessages(ctx, ticketID)
	if err != nil {
		return err
	}
	p.store.Refresh(ticketID, ticket, messages)
	p.list.upsert(ticket, false)
	p.publish(ctx, events.Event{Type: events.EventTicketCached, TicketID: ticketID})
	return nil
}

func (p *Panel) isSelected(ticketID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected == ticketID
}

func (p *Panel) deliveryChanged(ticketID string, msg domain.Message) {
	if msg.Delivery == domain.DeliveryFailed {
		p.metrics.SendFailed()
	}
	p.publish(context.Background(), events.Event{
		Type:     events.EventMessageDelivery,
		TicketID: ticketID,
		Payload:  events.MessageDeliveryPayload{MessageID: msg.ID, Delivery: msg.Delivery},
	})
}

func (p *Panel) statusRolledBack(err *StatusChangeError) {
	p.metrics.StatusRolledBack()
	p.logger.Warn("status change rolled back",
		zap.String("ticket_id", err.TicketID),
		zap.String("status", string(err.Status)),
		zap.Error(err.Err))
	p.publish(context.Background(), events.Event{
		Type:     events.EventStatusChangeFailed,
		TicketID: err.TicketID,
		Payload:  events.StatusChangeFailedPayload{Status: err.Status, Error: err.Err.Error()},
	})
}

func (p *Panel) publish(ctx context.Context, event events.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock.Now()
	}
	event.Actor = events.Actor{Role: roleOf(p.scope)}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Debug("panel listener failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func roleOf(scope domain.Scope) domain.Role {
	if scope == domain.ScopeAdmin {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

func without(messages []domain.Message, id string) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.ID != id {
			out = append(out, msg)
		}
	}
	return out
}
