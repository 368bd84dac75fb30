package model

import "encoding/json"

// Push event types carried over the conversation room.
const (
	EventNewMessage      = "new-message"
	EventMessageUpdated  = "updated-message"
	EventMessageDeleted  = "deleted-message"
	EventReactionChanged = "reaction-changed"
	EventCallStarted     = "call-started"
	EventCallEnded       = "call-ended"
	EventTyping          = "typing"
)

// Control frame types sent by the client.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// Envelope is the standard wire format for push-channel frames, in both
// directions.
type Envelope struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// MessageDeletedPayload carries the id of a soft-deleted message.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
}

// ReactionChangedPayload carries the authoritative reaction list after any
// toggle. Clients replace wholesale, never merge.
type ReactionChangedPayload struct {
	MessageID string     `json:"message_id"`
	Reactions []Reaction `json:"reactions"`
}

// TypingPayload signals a participant starting or stopping typing.
type TypingPayload struct {
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}
