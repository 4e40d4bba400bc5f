package domain

import "time"

// MessageAuthorType indicates who authored a message or change.
type MessageAuthorType string

const (
	AuthorTypeUser   MessageAuthorType = "USER"
	AuthorTypeStaff  MessageAuthorType = "STAFF"
	AuthorTypeSystem MessageAuthorType = "SYSTEM"
)

// TicketMessageType differentiates between replies and notes.
type TicketMessageType string

const (
	MessageTypePublicReply  TicketMessageType = "PUBLIC_REPLY"
	MessageTypeInternalNote TicketMessageType = "INTERNAL_NOTE"
)

// Internal reports whether the message is hidden from the end-user.
func (t TicketMessageType) Internal() bool {
	return t == MessageTypeInternalNote
}

// TicketMessage captures communications in a ticket thread.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorType  MessageAuthorType
	AuthorID    *string
	MessageType TicketMessageType
	Body        string
	CreatedAt   time.Time
}

// CountsAsAgentResponse reports whether the message can record the first agent response.
func (m TicketMessage) CountsAsAgentResponse() bool {
	return m.AuthorType == AuthorTypeStaff
}
