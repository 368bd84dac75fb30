package syncer

import (
	"github.com/fathima-sithara/chatsync/internal/metrics"
	"github.com/fathima-sithara/chatsync/internal/model"
)

// The controller is the push channel's Handler. Calls arrive on the read
// pump goroutine; the store's own lock makes the mutations safe against
// concurrent UI reads.

func (c *Controller) accepts(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.convID == "" {
		return false
	}
	return conversationID == "" || conversationID == c.convID
}

// OnNewMessage merges a pushed message. The sender's own server echo lands
// here too and collapses against the already-swapped confirmed copy through
// id-based dedupe.
func (c *Controller) OnNewMessage(m model.Message) {
	if !c.accepts(m.ConversationID) {
		return
	}
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	st.Upsert(m)
	metrics.Events.WithLabelValues(model.EventNewMessage).Inc()
	metrics.MessagesSynced.Inc()
	c.opts.OnChange()
}

func (c *Controller) OnMessageUpdated(m model.Message) {
	if !c.accepts(m.ConversationID) {
		return
	}
	editedAt := m.UpdatedAt
	if m.EditedAt != nil {
		editedAt = *m.EditedAt
	}
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	st.ApplyEdit(m.ID, m.Content, editedAt)
	metrics.Events.WithLabelValues(model.EventMessageUpdated).Inc()
	c.opts.OnChange()
}

func (c *Controller) OnMessageDeleted(messageID string) {
	if !c.accepts("") {
		return
	}
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	st.ApplySoftDelete(messageID)
	metrics.Events.WithLabelValues(model.EventMessageDeleted).Inc()
	c.opts.OnChange()
}

func (c *Controller) OnReactionChanged(messageID string, reactions []model.Reaction) {
	if !c.accepts("") {
		return
	}
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	st.ApplyReactionReplace(messageID, reactions)
	metrics.Events.WithLabelValues(model.EventReactionChanged).Inc()
	c.opts.OnChange()
}

func (c *Controller) OnCallStarted(ev model.CallEvent) {
	metrics.Events.WithLabelValues(model.EventCallStarted).Inc()
	if c.calls != nil {
		c.calls.HandleStarted(ev)
	}
}

func (c *Controller) OnCallEnded(ev model.CallEvent) {
	metrics.Events.WithLabelValues(model.EventCallEnded).Inc()
	if c.calls != nil {
		c.calls.HandleEnded(ev)
	}
}

func (c *Controller) OnTyping(userID string, active bool) {
	if userID == c.opts.Self.ID {
		return
	}
	c.opts.OnTyping(userID, active)
}
