package model

import "time"

type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindVideo AttachmentKind = "video"
	KindAudio AttachmentKind = "audio"
	KindFile  AttachmentKind = "file"
)

// UserSummary is the sender shape embedded in messages and participant lists.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type Attachment struct {
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
	Name string         `json:"name"`
	Size int64          `json:"size"`
}

type Location struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label,omitempty"`
}

type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// Message is one entry in an open conversation. The shared envelope (id,
// sender, timestamps, reactions) is always present; the payload fields
// (Content / Media / Attachments / Location) are each optional and any
// combination may be set.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         UserSummary  `json:"sender"`
	Content        string       `json:"content,omitempty"`
	Media          []string     `json:"media,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Location       *Location    `json:"location,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	IsViewOnce     bool         `json:"is_view_once,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
	DeletedAt      *time.Time   `json:"deleted_at,omitempty"`

	// Client-only state, never sent over the wire.

	// IsExpired marks a view-once payload as consumed on this device.
	IsExpired bool `json:"-"`
	// ClientTag is the correlation id of a pending optimistic send. Empty
	// once the server copy replaces the optimistic one.
	ClientTag string `json:"-"`
}

// Deleted reports whether the message is tombstoned. A tombstone keeps its
// position in the list; consumers must hide its payload.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// HasPayload reports whether any payload field is set.
func (m Message) HasPayload() bool {
	return m.Content != "" || len(m.Media) > 0 || len(m.Attachments) > 0 || m.Location != nil
}

// ViewOncePayload is the ephemeral body returned by the one-shot reveal
// endpoint. It is held in transient overlay state only and never stored.
type ViewOncePayload struct {
	MessageID string   `json:"message_id"`
	Content   string   `json:"content,omitempty"`
	Media     []string `json:"media,omitempty"`
}
