package model

import "time"

type CallType string

const (
	CallVideo CallType = "video_call"
	CallAudio CallType = "audio_call"
)

type CallStatus string

const (
	CallActive CallStatus = "active"
	CallEnded  CallStatus = "ended"
)

// CallEvent is a call announcement tied to a conversation. SessionID names
// the call-engine session participants join.
type CallEvent struct {
	ID        string     `json:"id"`
	Type      CallType   `json:"type"`
	Status    CallStatus `json:"status"`
	SessionID string     `json:"session_id"`
	StartedBy string     `json:"started_by"`
	CreatedAt time.Time  `json:"created_at"`
}
