package domain

import "time"

// SenderType indicates who authored a message.
type SenderType string

const (
	SenderTypeUser  SenderType = "USER"
	SenderTypeAdmin SenderType = "ADMIN"
)

// MessageKind discriminates locally provisional messages from server records.
type MessageKind int

const (
	// KindConfirmed messages exist on the server.
	KindConfirmed MessageKind = iota
	// KindProvisional messages were appended locally and await confirmation.
	KindProvisional
)

// DeliveryStatus is client-only and never persisted.
type DeliveryStatus string

const (
	DeliveryNone    DeliveryStatus = ""
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Message is one entry of a ticket thread.
//
// A provisional message carries a temporary id and a Delivery of sending or
// failed. A confirmed message carries the server id in ServerID; ID equals
// ServerID except for messages confirmed through a retry, which keep the id
// they were first shown with.
type Message struct {
	Kind       MessageKind
	ID         string
	ServerID   string
	TicketID   string
	Sender     string
	SenderType SenderType
	Text       string
	CreatedAt  time.Time
	Delivery   DeliveryStatus
}

// Provisional reports whether the message still awaits server confirmation.
func (m Message) Provisional() bool {
	return m.Kind == KindProvisional
}

// NewProvisionalMessage builds a locally pending message.
func NewProvisionalMessage(tempID, ticketID, sender string, senderType SenderType, text string, now time.Time) Message {
	return Message{
		Kind:       KindProvisional,
		ID:         tempID,
		TicketID:   ticketID,
		Sender:     sender,
		SenderType: senderType,
		Text:       text,
		CreatedAt:  now,
		Delivery:   DeliverySending,
	}
}

// Confirm promotes a provisional message to the server record, keeping its
// position-identifying id when keepID is set.
func (m Message) Confirm(server Message, keepID bool) Message {
	confirmed := server
	confirmed.Kind = KindConfirmed
	confirmed.ServerID = server.ID
	if keepID {
		confirmed.ID = m.ID
	}
	if confirmed.TicketID == "" {
		confirmed.TicketID = m.TicketID
	}
	confirmed.Delivery = DeliverySent
	return confirmed
}

// HasAdminMessage reports whether any message in the thread was sent by staff.
func HasAdminMessage(messages []Message) bool {
	for _, msg := range messages {
		if msg.SenderType == SenderTypeAdmin {
			return true
		}
	}
	return false
}
