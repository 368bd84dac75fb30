// Package ephemeral holds the view-once reveal overlay state: a payload, a
// countdown, and nothing else. The viewer keeps no cache; reopening a
// message requires a fresh reveal call.
package ephemeral

import (
	"sync"
	"time"

	"github.com/fathima-sithara/chatsync/internal/model"
)

// DefaultTTL is how long a revealed payload stays on screen.
const DefaultTTL = 30 * time.Second

type Viewer struct {
	ttl       time.Duration
	onDiscard func(messageID string)

	mu      sync.Mutex
	payload *model.ViewOncePayload
	timer   *time.Timer
}

// NewViewer builds a viewer. ttl <= 0 selects DefaultTTL. onDiscard (may be
// nil) fires when the overlay closes, whether by expiry or by hand.
func NewViewer(ttl time.Duration, onDiscard func(messageID string)) *Viewer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if onDiscard == nil {
		onDiscard = func(string) {}
	}
	return &Viewer{ttl: ttl, onDiscard: onDiscard}
}

// Open presents a freshly revealed payload and starts the countdown. Any
// previously open payload is discarded first.
func (v *Viewer) Open(p model.ViewOncePayload) {
	v.mu.Lock()
	prev := v.discardLocked()
	cp := p
	v.payload = &cp
	v.timer = time.AfterFunc(v.ttl, v.expire)
	v.mu.Unlock()
	if prev != "" {
		v.onDiscard(prev)
	}
}

// Payload returns the currently presented payload, if any.
func (v *Viewer) Payload() (model.ViewOncePayload, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.payload == nil {
		return model.ViewOncePayload{}, false
	}
	return *v.payload, true
}

// Close discards the overlay and its payload.
func (v *Viewer) Close() {
	v.mu.Lock()
	id := v.discardLocked()
	v.mu.Unlock()
	if id != "" {
		v.onDiscard(id)
	}
}

func (v *Viewer) expire() {
	v.Close()
}

func (v *Viewer) discardLocked() string {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	if v.payload == nil {
		return ""
	}
	id := v.payload.MessageID
	v.payload = nil
	return id
}
