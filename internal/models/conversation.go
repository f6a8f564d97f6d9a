package models

// Conversation is a derived view over the message log: one record per
// distinct partner, carrying the most recent message and the number of
// unread messages addressed to the viewing user. It is never persisted
// and must be recomputed after any mutation of the underlying log.
type Conversation struct {
	Partner     User     `json:"partner"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}
