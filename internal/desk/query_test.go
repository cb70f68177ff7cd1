package desk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-desk/internal/domain"
)

func sampleTickets() []domain.Ticket {
	at := func(minutes int) time.Time { return testStart.Add(time.Duration(minutes) * time.Minute) }
	return []domain.Ticket{
		{ID: "closed", Title: "Refund", Status: domain.TicketStatusClosed, UpdatedAt: at(9), OwnerEmail: "ann@example.com"},
		{ID: "open-old", Title: "Login broken", Status: domain.TicketStatusOpen, UpdatedAt: at(1), OwnerEmail: "bob@example.com"},
		{ID: "progress", Title: "Invoice", Status: domain.TicketStatusInProgress, UpdatedAt: at(5), OwnerName: "Carol", LastMessageSnippet: "Any update on my invoice?"},
		{ID: "open-new", Title: "Password reset", Status: domain.TicketStatusOpen, UpdatedAt: at(3), OwnerEmail: "ann@example.com"},
		{ID: "resolved", Title: "Shipping", Status: domain.TicketStatusResolved, UpdatedAt: at(7)},
	}
}

func ids(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		out = append(out, ticket.ID)
	}
	return out
}

func TestFilterAndSortOrdersByPriorityThenRecency(t *testing.T) {
	got := FilterAndSort(sampleTickets(), "", AdminStatusFilter(FilterAll))
	assert.Equal(t, []string{"open-new", "open-old", "progress", "resolved", "closed"}, ids(got))
}

func TestFilterAndSortIsIdempotent(t *testing.T) {
	filter := AdminStatusFilter("")
	once := FilterAndSort(sampleTickets(), "a", filter)
	twice := FilterAndSort(once, "a", filter)
	assert.Equal(t, once, twice)
}

func TestFilterAndSortDoesNotModifyInput(t *testing.T) {
	input := sampleTickets()
	FilterAndSort(input, "", AdminStatusFilter(""))
	assert.Equal(t, sampleTickets(), input)
}

func TestFilterAndSortTextMatch(t *testing.T) {
	tickets := sampleTickets()
	assert.Equal(t, []string{"open-new", "closed"}, ids(FilterAndSort(tickets, "ANN@", AdminStatusFilter(""))))
	assert.Equal(t, []string{"progress"}, ids(FilterAndSort(tickets, "carol", AdminStatusFilter(""))))
	assert.Equal(t, []string{"progress"}, ids(FilterAndSort(tickets, "update on", AdminStatusFilter(""))))
	assert.Empty(t, FilterAndSort(tickets, "nothing like this", AdminStatusFilter("")))
}

func TestAdminStatusFilterIsExact(t *testing.T) {
	tickets := sampleTickets()
	assert.Equal(t, []string{"open-new", "open-old"}, ids(FilterAndSort(tickets, "", AdminStatusFilter("OPEN"))))
	assert.Equal(t, []string{"closed"}, ids(FilterAndSort(tickets, "", AdminStatusFilter("CLOSED"))))
	assert.Len(t, FilterAndSort(tickets, "", AdminStatusFilter("any")), len(tickets))
}

func TestUserStatusFilterCollapsesBuckets(t *testing.T) {
	tickets := sampleTickets()
	assert.Equal(t, []string{"open-new", "open-old", "progress"}, ids(FilterAndSort(tickets, "", UserStatusFilter("IN_PROGRESS"))))
	assert.Equal(t, []string{"resolved", "closed"}, ids(FilterAndSort(tickets, "", UserStatusFilter("RESOLVED"))))
	assert.Len(t, FilterAndSort(tickets, "", UserStatusFilter("ANY")), len(tickets))
}

func TestUserStatusLabel(t *testing.T) {
	assert.Equal(t, "In Progress", UserStatusLabel(domain.TicketStatusOpen))
	assert.Equal(t, "In Progress", UserStatusLabel(domain.TicketStatusInProgress))
	assert.Equal(t, "Resolved", UserStatusLabel(domain.TicketStatusResolved))
	assert.Equal(t, "Resolved", UserStatusLabel(domain.TicketStatusClosed))
}

func TestStatusPriorityUnknownSortsLast(t *testing.T) {
	assert.Equal(t, 5, StatusPriority("PENDING"))
	tickets := []domain.Ticket{{ID: "x", Status: "PENDING"}, {ID: "y", Status: domain.TicketStatusClosed}}
	assert.Equal(t, []string{"y", "x"}, ids(FilterAndSort(tickets, "", AdminStatusFilter(""))))
}

func TestFilterAndSortKeepsTiesInInputOrder(t *testing.T) {
	tickets := []domain.Ticket{
		{ID: "a", Status: domain.TicketStatusOpen, UpdatedAt: testStart},
		{ID: "b", Status: domain.TicketStatusOpen, UpdatedAt: testStart},
		{ID: "c", Status: domain.TicketStatusOpen, UpdatedAt: testStart},
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(FilterAndSort(tickets, "", AdminStatusFilter(""))))
}
