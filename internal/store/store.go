// Package store holds the in-memory ordered message collection for one open
// conversation. Every mutation funnels through DedupeAndSort, which is the
// single enforcement point for the two list invariants: ids are unique and
// the list is sorted ascending by created-at.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/chatsync/internal/model"
)

type MessageStore struct {
	mu   sync.RWMutex
	list []model.Message
}

func New() *MessageStore {
	return &MessageStore{}
}

// DedupeAndSort collapses duplicate ids (last write wins) and returns the
// result sorted ascending by CreatedAt, ties broken by id so the order is
// total. All mutation paths pass through here.
func DedupeAndSort(in []model.Message) []model.Message {
	byID := make(map[string]model.Message, len(in))
	order := make([]string, 0, len(in))
	for _, m := range in {
		if _, seen := byID[m.ID]; !seen {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}
	out := make([]model.Message, 0, len(byID))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Upsert inserts or replaces by id.
func (s *MessageStore) Upsert(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = DedupeAndSort(append(s.list, m))
}

// ReplaceAll swaps the whole list, e.g. on first page load.
func (s *MessageStore) ReplaceAll(list []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = DedupeAndSort(list)
}

// Prepend merges an older page into the list. Overlapping boundary records
// from the server collapse in the funnel.
func (s *MessageStore) Prepend(older []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = DedupeAndSort(append(older, s.list...))
}

// Swap atomically removes the optimistic entry carrying clientTag and
// inserts the confirmed server copy in one pass, so no intermediate frame
// ever shows both (or neither). The optimistic entry's local clock may be
// skewed from the server's, which is why this cannot be remove-then-insert.
func (s *MessageStore) Swap(clientTag string, confirmed model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]model.Message, 0, len(s.list)+1)
	for _, m := range s.list {
		if m.ClientTag == clientTag && clientTag != "" {
			continue
		}
		kept = append(kept, m)
	}
	s.list = DedupeAndSort(append(kept, confirmed))
}

// Discard removes the optimistic entry carrying clientTag, used when a send
// fails and the draft is handed back to the user.
func (s *MessageStore) Discard(clientTag string) {
	if clientTag == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.list[:0]
	for _, m := range s.list {
		if m.ClientTag != clientTag {
			kept = append(kept, m)
		}
	}
	s.list = kept
}

// ApplyEdit updates content only when the incoming editedAt is newer than
// any already applied, guarding against out-of-order duplicate push
// delivery. Unknown ids are a no-op.
func (s *MessageStore) ApplyEdit(id, content string, editedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.list {
		if m.ID != id {
			continue
		}
		if m.EditedAt != nil && !editedAt.After(*m.EditedAt) {
			return
		}
		s.list[i].Content = content
		t := editedAt
		s.list[i].EditedAt = &t
		s.list[i].UpdatedAt = editedAt
		return
	}
}

// ApplySoftDelete tombstones the message: DeletedAt is set, the entry stays
// in place so scroll position and surrounding order are stable.
func (s *MessageStore) ApplySoftDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.list {
		if m.ID != id {
			continue
		}
		if m.DeletedAt == nil {
			now := time.Now().UTC()
			s.list[i].DeletedAt = &now
		}
		return
	}
}

// ApplyReactionReplace replaces a message's reaction list wholesale from an
// authoritative server response. Reactions are never merged locally; that
// would race when several users toggle at once.
func (s *MessageStore) ApplyReactionReplace(id string, reactions []model.Reaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.list {
		if m.ID == id {
			s.list[i].Reactions = reactions
			return
		}
	}
}

// MarkExpired sets the client-only expired flag on a view-once message.
// The flag is irreversible.
func (s *MessageStore) MarkExpired(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.list {
		if m.ID == id {
			s.list[i].IsExpired = true
			return
		}
	}
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.list {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

// Messages returns a copy of the current list.
func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.list))
	copy(out, s.list)
	return out
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}
