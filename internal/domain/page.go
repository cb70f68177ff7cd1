package domain

// ListFilter narrows a ticket listing. An empty Status lists every status.
type ListFilter struct {
	Status TicketStatus
	Limit  int
	Cursor string
}

// TicketPage is one page of a ticket listing.
type TicketPage struct {
	Items      []Ticket
	NextCursor string
}
