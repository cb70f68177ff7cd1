package desk

import (
	"sort"
	"strings"

	"github.com/spec-kit/support-desk/internal/domain"
)

// Filter values accepted by both audiences as "no status filter".
const (
	FilterAny = "ANY"
	FilterAll = "ALL"
)

// StatusFilter decides which statuses a listing shows.
type StatusFilter struct {
	value     string
	collapsed bool
}

// AdminStatusFilter keeps all four statuses distinct.
func AdminStatusFilter(value string) StatusFilter {
	return StatusFilter{value: strings.TrimSpace(value)}
}

// UserStatusFilter groups statuses the way end-users see them: "IN_PROGRESS"
// matches OPEN and IN_PROGRESS, "RESOLVED" matches RESOLVED and CLOSED.
func UserStatusFilter(value string) StatusFilter {
	return StatusFilter{value: strings.TrimSpace(value), collapsed: true}
}

// Matches reports whether status passes the filter.
func (f StatusFilter) Matches(status domain.TicketStatus) bool {
	switch strings.ToUpper(f.value) {
	case "", FilterAny, FilterAll:
		return true
	}
	want := domain.TicketStatus(f.value)
	if f.collapsed {
		return userBucket(status) == userBucket(want)
	}
	return status == want
}

func userBucket(status domain.TicketStatus) domain.TicketStatus {
	switch status {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress:
		return domain.TicketStatusInProgress
	case domain.TicketStatusResolved, domain.TicketStatusClosed:
		return domain.TicketStatusResolved
	}
	return status
}

// UserStatusLabel is the end-user display label for status.
func UserStatusLabel(status domain.TicketStatus) string {
	switch userBucket(status) {
	case domain.TicketStatusInProgress:
		return "In Progress"
	case domain.TicketStatusResolved:
		return "Resolved"
	}
	return string(status)
}

// StatusPriority orders statuses for listing; unknown statuses sort last.
func StatusPriority(status domain.TicketStatus) int {
	switch status {
	case domain.TicketStatusOpen:
		return 1
	case domain.TicketStatusInProgress:
		return 2
	case domain.TicketStatusResolved:
		return 3
	case domain.TicketStatusClosed:
		return 4
	}
	return 5
}

// FilterAndSort returns the tickets matching text and filter, ordered by
// status priority and then most recently updated first. Ties keep their input
// order. tickets is not modified.
func FilterAndSort(tickets []domain.Ticket, text string, filter StatusFilter) []domain.Ticket {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]domain.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		if !filter.Matches(ticket.Status) {
			continue
		}
		if needle != "" && !strings.Contains(searchText(ticket), needle) {
			continue
		}
		out = append(out, ticket)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := StatusPriority(out[i].Status), StatusPriority(out[j].Status)
		if pi != pj {
			return pi < pj
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func searchText(ticket domain.Ticket) string {
	return strings.ToLower(strings.Join([]string{
		ticket.Title,
		ticket.OwnerEmail,
		ticket.OwnerName,
		ticket.LastMessageSnippet,
	}, " "))
}
