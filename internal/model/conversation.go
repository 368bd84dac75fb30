package model

import "time"

type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

type Conversation struct {
	ID           string           `json:"id"`
	Type         ConversationType `json:"type"`
	Participants []UserSummary    `json:"participants"`
	LastMessage  *Message         `json:"last_message,omitempty"`
	UnreadCount  int              `json:"unread_count"`
	// DisappearingMessagesMS is the disappearing-message duration in
	// milliseconds; nil means disabled.
	DisappearingMessagesMS *int64    `json:"disappearing_messages_duration,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// DisappearingDuration returns the configured duration, or false when the
// feature is disabled.
func (c Conversation) DisappearingDuration() (time.Duration, bool) {
	if c.DisappearingMessagesMS == nil {
		return 0, false
	}
	return time.Duration(*c.DisappearingMessagesMS) * time.Millisecond, true
}
