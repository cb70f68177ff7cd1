package desk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func TestSelectServesFreshCacheAndRefreshesStaleOnce(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusInProgress}, userMessage("m1", "help"))
	p := newTestPanel(api, clk, domain.ScopeAdmin)
	ctx := context.Background()

	_, err := p.Select(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.getCalls.Load())

	clk.Advance(299_999 * time.Millisecond)
	entry, err := p.Select(ctx, "t1")
	require.NoError(t, err)
	p.Wait()
	assert.Equal(t, int32(1), api.getCalls.Load())
	assert.Len(t, entry.Messages, 1)

	clk.Set(testStart.Add(300_001 * time.Millisecond))
	_, err = p.Select(ctx, "t1")
	require.NoError(t, err)
	_, err = p.Select(ctx, "t1")
	require.NoError(t, err)
	p.Wait()
	assert.Equal(t, int32(2), api.getCalls.Load())

	refreshed, _ := p.Store().Get("t1")
	assert.Equal(t, clk.Now(), refreshed.FetchedAt)
}

func TestStaleSelectReturnsCachedDetailImmediately(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Title: "old title", Status: domain.TicketStatusInProgress})
	p := newTestPanel(api, clk, domain.ScopeAdmin)
	ctx := context.Background()
	_, err := p.Select(ctx, "t1")
	require.NoError(t, err)

	release := make(chan struct{})
	api.getHook = func(string) { <-release }
	api.seed(domain.Ticket{ID: "t1", Title: "new title", Status: domain.TicketStatusInProgress})
	clk.Advance(10 * time.Minute)

	entry, err := p.Select(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "old title", entry.Ticket.Title)

	close(release)
	p.Wait()
	refreshed, _ := p.Store().Get("t1")
	assert.Equal(t, "new title", refreshed.Ticket.Title)
}

func TestConcurrentSelectsShareOneFetch(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusInProgress}, userMessage("m1", "help"))
	p := newTestPanel(api, clk, domain.ScopeAdmin)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	api.getHook = func(string) {
		started <- struct{}{}
		<-release
	}

	var wg sync.WaitGroup
	results := make([]Entry, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := p.Select(ctx, "t1")
			assert.NoError(t, err)
			results[i] = entry
		}(i)
	}
	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), api.getCalls.Load())
	assert.Equal(t, results[0], results[1])
	assert.True(t, results[0].Loaded())
}

func TestDetailFailureKeepsSelection(t *testing.T) {
	api, clk := newFakeAPI()
	p := newTestPanel(api, clk, domain.ScopeAdmin)
	ctx := context.Background()

	var failures []events.Event
	p.Subscribe(events.EventDetailFailed, func(_ context.Context, event events.Event) error {
		failures = append(failures, event)
		return nil
	})

	_, err := p.Select(ctx, "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	selected, ok := p.Selected()
	assert.True(t, ok)
	assert.Equal(t, "missing", selected)
	assert.Error(t, p.DetailError())
	require.Len(t, failures, 1)
	assert.Equal(t, "missing", failures[0].TicketID)
	assert.Equal(t, domain.RoleAdmin, failures[0].Actor.Role)

	_, ok = p.Current()
	assert.False(t, ok)
}

func TestLateDetailResponseDoesNotTouchNewSelection(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusInProgress})
	api.seed(domain.Ticket{ID: "t2", Status: domain.TicketStatusInProgress})
	p := newTestPanel(api, clk, domain.ScopeAdmin)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	api.getHook = func(id string) {
		if id == "t1" {
			close(started)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Select(ctx, "t1")
		done <- err
	}()
	<-started

	_, err := p.Select(ctx, "t2")
	require.NoError(t, err)
	api.setFailure(&api.failGet, errors.New("timeout"))
	close(release)
	assert.Error(t, <-done)

	selected, _ := p.Selected()
	assert.Equal(t, "t2", selected)
	assert.NoError(t, p.DetailError())
	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "t2", current.Ticket.ID)
}

func TestLateDetailResponseIsStillCached(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusInProgress})
	api.seed(domain.Ticket{ID: "t2", Status: domain.TicketStatusInProgress})
	p := newTestPanel(api, clk, domain.ScopeAdmin)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	api.getHook = func(id string) {
		if id == "t1" {
			close(started)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Select(ctx, "t1")
		done <- err
	}()
	<-started
	_, err := p.Select(ctx, "t2")
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	selected, _ := p.Selected()
	assert.Equal(t, "t2", selected)
	cached, ok := p.Store().Get("t1")
	require.True(t, ok)
	assert.True(t, cached.Loaded())
}

func TestUserViewRepairsOpenTicketWithStaffReply(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusOpen}, userMessage("m1", "help"), adminMessage("m2", "on it"))
	p := newTestPanel(api, clk, domain.ScopeUser)
	ctx := context.Background()

	entry, err := p.Select(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, entry.Ticket.Status)
	assert.Equal(t, int32(1), api.statusCalls.Load())

	_, err = p.Select(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.statusCalls.Load())
}

func TestAdminViewDoesNotRepair(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusOpen}, adminMessage("m2", "on it"))
	p := newTestPanel(api, clk, domain.ScopeAdmin)

	entry, err := p.Select(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, entry.Ticket.Status)
	assert.Equal(t, int32(0), api.statusCalls.Load())
}

func TestLoadTicketsFailureKeepsListing(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusOpen})
	p := newTestPanel(api, clk, domain.ScopeUser)
	ctx := context.Background()
	require.NoError(t, p.LoadTickets(ctx, domain.ListFilter{}))

	boom := errors.New("offline")
	api.setFailure(&api.failList, boom)
	assert.ErrorIs(t, p.LoadTickets(ctx, domain.ListFilter{}), boom)
	assert.ErrorIs(t, p.ListError(), boom)
	assert.Len(t, p.Tickets("", UserStatusFilter("")), 1)

	api.setFailure(&api.failList, nil)
	require.NoError(t, p.LoadTickets(ctx, domain.ListFilter{}))
	assert.NoError(t, p.ListError())
}

func TestLoadTicketsWithCursorAppends(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusOpen})
	p := newTestPanel(api, clk, domain.ScopeAdmin)
	ctx := context.Background()
	require.NoError(t, p.LoadTickets(ctx, domain.ListFilter{}))

	api.seed(domain.Ticket{ID: "t2", Status: domain.TicketStatusClosed})
	require.NoError(t, p.LoadTickets(ctx, domain.ListFilter{Cursor: "next"}))
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids(p.Tickets("", AdminStatusFilter(""))))

	require.NoError(t, p.LoadTickets(ctx, domain.ListFilter{Status: domain.TicketStatusClosed}))
	assert.Equal(t, []string{"t2"}, ids(p.Tickets("", AdminStatusFilter(""))))
}

func TestCreateTicketPrependsToListing(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "existing", Status: domain.TicketStatusOpen})
	p := newTestPanel(api, clk, domain.ScopeUser)
	ctx := context.Background()
	require.NoError(t, p.LoadTickets(ctx, domain.ListFilter{}))

	_, err := p.CreateTicket(ctx, "  ", "body")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	ticket, err := p.CreateTicket(ctx, " Printer on fire ", "It is smoking")
	require.NoError(t, err)
	assert.Equal(t, "Printer on fire", ticket.Title)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	listed := p.list.snapshot()
	require.Len(t, listed, 2)
	assert.Equal(t, ticket.ID, listed[0].ID)
}

func TestSendUpdatesListingSnippet(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusInProgress, LastMessageSnippet: "old"})
	p := newTestPanel(api, clk, domain.ScopeUser)
	ctx := context.Background()
	require.NoError(t, p.LoadTickets(ctx, domain.ListFilter{}))

	var deliveries []events.Event
	p.Subscribe(events.EventMessageDelivery, func(_ context.Context, event events.Event) error {
		deliveries = append(deliveries, event)
		return nil
	})

	clk.Advance(time.Minute)
	_, err := p.SendMessage(ctx, "t1", "fresh news")
	require.NoError(t, err)
	listed := p.Tickets("fresh", UserStatusFilter(""))
	require.Len(t, listed, 1)
	assert.Equal(t, "fresh news", listed[0].LastMessageSnippet)
	assert.Equal(t, clk.Now(), listed[0].UpdatedAt)

	require.Len(t, deliveries, 2)
	first := deliveries[0].Payload.(events.MessageDeliveryPayload)
	second := deliveries[1].Payload.(events.MessageDeliveryPayload)
	assert.Equal(t, domain.DeliverySending, first.Delivery)
	assert.Equal(t, domain.DeliverySent, second.Delivery)
}

func TestStaleRefreshKeepsFailedMessageOrder(t *testing.T) {
	api, clk := newFakeAPI()
	api.seed(domain.Ticket{ID: "t1", Status: domain.TicketStatusInProgress}, userMessage("m1", "first"))
	p := newTestPanel(api, clk, domain.ScopeUser)
	ctx := context.Background()

	_, err := p.Select(ctx, "t1")
	require.NoError(t, err)

	api.setFailure(&api.failAdd, errors.New("network down"))
	_, err = p.SendMessage(ctx, "t1", "B failed")
	require.Error(t, err)
	api.setFailure(&api.failAdd, nil)
	_, err = p.SendMessage(ctx, "t1", "C sent")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	_, err = p.Select(ctx, "t1")
	require.NoError(t, err)
	p.Wait()

	entry, ok := p.Store().Get("t1")
	require.True(t, ok)
	assert.Equal(t, []string{"first", "B failed", "C sent"}, messageTexts(entry.Messages))
	assert.Equal(t, domain.DeliveryFailed, entry.Messages[1].Delivery)
}
