// Package syncer orchestrates one open conversation: initial load,
// pagination, optimistic sends, edits, deletes, reactions, view-once
// reveals, and the wiring between the push channel and the message store.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/api"
	"github.com/fathima-sithara/chatsync/internal/apperr"
	"github.com/fathima-sithara/chatsync/internal/call"
	"github.com/fathima-sithara/chatsync/internal/metrics"
	"github.com/fathima-sithara/chatsync/internal/model"
	"github.com/fathima-sithara/chatsync/internal/store"
	"github.com/fathima-sithara/chatsync/internal/upload"
)

// API is the REST surface the controller drives.
type API interface {
	Conversation(ctx context.Context, id string) (model.Conversation, error)
	Messages(ctx context.Context, id string, page, limit int) (api.MessagesPage, error)
	SendMessage(ctx context.Context, id string, req api.SendMessageRequest) (model.Message, error)
	EditMessage(ctx context.Context, id, messageID, content string) (model.Message, error)
	DeleteMessage(ctx context.Context, id, messageID string) error
	ToggleReaction(ctx context.Context, id, messageID, emoji string) ([]model.Reaction, error)
	RevealViewOnce(ctx context.Context, id, messageID string) (model.ViewOncePayload, error)
	MarkRead(ctx context.Context, id string) error
	ActiveCalls(ctx context.Context, id string) ([]model.CallEvent, error)
	UpdateSettings(ctx context.Context, id string, disappearingMS *int64) (model.Conversation, error)
}

// Uploader resolves local files into gateway URLs.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (upload.Result, error)
}

// PushChannel is the conversation-room side of the push connection.
// Subscribe joins a conversation room, leaving any previously joined room;
// membership is scoped to exactly one conversation at a time.
type PushChannel interface {
	Subscribe(conversationID string) error
	Unsubscribe(conversationID string) error
	Typing(active bool)
}

// Draft is user input for one send. Files are buffered so a failed send can
// hand the draft back intact for retry.
type Draft struct {
	Text       string
	Files      []DraftFile
	Location   *model.Location
	IsViewOnce bool
}

type DraftFile struct {
	Name string
	Data []byte
}

func (d Draft) empty() bool {
	return d.Text == "" && len(d.Files) == 0 && d.Location == nil
}

// SendError wraps a failed send together with the restored draft.
type SendError struct {
	Draft Draft
	Err   error
}

func (e *SendError) Error() string { return fmt.Sprintf("send failed: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

type Options struct {
	Self       model.UserSummary
	PageSize   int
	EditWindow time.Duration
	// OnChange fires after any store mutation so the view can re-render.
	OnChange func()
	// OnTyping surfaces remote typing signals.
	OnTyping func(userID string, active bool)
}

type Controller struct {
	api     API
	uploads Uploader
	push    PushChannel
	calls   *call.Coordinator
	log     *zap.SugaredLogger
	opts    Options

	mu           sync.Mutex
	epoch        uint64
	cancel       context.CancelFunc
	octx         context.Context
	convID       string
	conv         model.Conversation
	store        *store.MessageStore
	page         int
	hasMore      bool
	loadingOlder bool
	pending      map[string]Draft
}

func New(a API, up Uploader, push PushChannel, calls *call.Coordinator, opts Options, log *zap.SugaredLogger) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.EditWindow <= 0 {
		opts.EditWindow = time.Hour
	}
	if opts.OnChange == nil {
		opts.OnChange = func() {}
	}
	if opts.OnTyping == nil {
		opts.OnTyping = func(string, bool) {}
	}
	return &Controller{
		api:     a,
		uploads: up,
		push:    push,
		calls:   calls,
		log:     log,
		opts:    opts,
		store:   store.New(),
		pending: map[string]Draft{},
	}
}

// SetPush wires the push channel after construction. The channel needs the
// controller as its event handler, so the two are tied together in two
// steps; call this before Open.
func (c *Controller) SetPush(p PushChannel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push = p
}

// current snapshots the open conversation's epoch and id. Operations capture
// these before any network I/O and re-check the epoch before committing, so
// a response that lands after the conversation was switched never mutates
// the new one's state.
func (c *Controller) current() (uint64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.convID == "" {
		return 0, "", apperr.ErrConversationClosed
	}
	return c.epoch, c.convID, nil
}

// liveLocked reports whether the given epoch is still the open
// conversation's. Callers hold c.mu; any response from an abandoned
// conversation fails this check and must not touch the store.
func (c *Controller) liveLocked(epoch uint64) bool {
	return c.epoch == epoch && c.convID != ""
}

// Open switches the controller to a conversation: metadata, first history
// page and active call events are fetched concurrently, then the push room
// is swapped over. A failed open leaves the previous conversation's state
// and room membership intact.
func (c *Controller) Open(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	if c.cancel != nil {
		c.cancel()
	}
	octx, cancel := context.WithCancel(ctx)
	c.octx, c.cancel = octx, cancel
	c.mu.Unlock()

	var (
		wg       sync.WaitGroup
		conv     model.Conversation
		page     api.MessagesPage
		active   []model.CallEvent
		convErr  error
		pageErr  error
		callsErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		conv, convErr = c.api.Conversation(octx, conversationID)
	}()
	go func() {
		defer wg.Done()
		page, pageErr = c.api.Messages(octx, conversationID, 1, c.opts.PageSize)
	}()
	go func() {
		defer wg.Done()
		active, callsErr = c.api.ActiveCalls(octx, conversationID)
	}()
	wg.Wait()

	if convErr != nil {
		return convErr
	}
	if pageErr != nil {
		return pageErr
	}

	c.mu.Lock()
	if !c.liveLockedOrOpening(epoch) {
		c.mu.Unlock()
		return apperr.ErrConversationClosed
	}
	c.convID = conversationID
	c.conv = conv
	c.page = 1
	c.hasMore = page.HasMore()
	c.loadingOlder = false
	c.pending = map[string]Draft{}
	c.store = store.New()
	c.store.ReplaceAll(page.Messages)
	c.mu.Unlock()

	c.mu.Lock()
	push := c.push
	c.mu.Unlock()
	if push != nil {
		if err := push.Subscribe(conversationID); err != nil {
			c.log.Warnw("push subscribe failed", "conversation", conversationID, "err", err)
		}
	}

	// active calls surface through the same path as a call-started push
	if callsErr != nil {
		c.log.Debugw("active call fetch failed", "err", callsErr)
	} else if c.calls != nil {
		for _, ev := range active {
			if ev.Status == model.CallActive {
				c.calls.HandleStarted(ev)
			}
		}
	}

	// best-effort; a failed read marker never fails the open
	go func() {
		if err := c.api.MarkRead(octx, conversationID); err != nil {
			c.log.Debugw("mark read failed", "conversation", conversationID, "err", err)
		}
	}()

	metrics.MessagesSynced.Add(float64(len(page.Messages)))
	c.opts.OnChange()
	return nil
}

// liveLockedOrOpening is the commit check for Open itself: the epoch still
// matches and no newer Open has superseded this one.
func (c *Controller) liveLockedOrOpening(epoch uint64) bool {
	return c.epoch == epoch
}

// LoadOlder fetches the next older history page. At most one request is in
// flight, and exhausted history is a no-op.
func (c *Controller) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	if c.convID == "" {
		c.mu.Unlock()
		return apperr.ErrConversationClosed
	}
	if c.loadingOlder || !c.hasMore {
		c.mu.Unlock()
		return nil
	}
	c.loadingOlder = true
	epoch := c.epoch
	convID := c.convID
	next := c.page + 1
	octx := c.octx
	c.mu.Unlock()

	page, err := c.api.Messages(octx, convID, next, c.opts.PageSize)

	c.mu.Lock()
	if !c.liveLocked(epoch) {
		// the user switched conversations while this was in flight
		c.mu.Unlock()
		return apperr.ErrConversationClosed
	}
	c.loadingOlder = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.page = next
	c.hasMore = page.HasMore()
	st := c.store
	c.mu.Unlock()

	st.Prepend(page.Messages)
	metrics.LoadOlderPages.Inc()
	metrics.MessagesSynced.Add(float64(len(page.Messages)))
	c.opts.OnChange()
	return nil
}

// Send validates the draft, shows it optimistically, resolves uploads, and
// posts it. Success swaps the optimistic entry for the server copy in one
// atomic pass; failure rolls the entry back and returns the draft inside a
// SendError so the user can retry without retyping. Concurrent sends are
// independent, each keyed by its own correlation id.
func (c *Controller) Send(ctx context.Context, draft Draft) (model.Message, error) {
	if draft.empty() {
		return model.Message{}, apperr.ErrEmptyMessage
	}
	epoch, convID, err := c.current()
	if err != nil {
		return model.Message{}, err
	}

	tag := uuid.NewString()
	now := time.Now().UTC()
	optimistic := model.Message{
		ID:             tag,
		ConversationID: convID,
		Sender:         c.opts.Self,
		Content:        draft.Text,
		Location:       draft.Location,
		IsViewOnce:     draft.IsViewOnce,
		CreatedAt:      now,
		UpdatedAt:      now,
		ClientTag:      tag,
	}
	for _, f := range draft.Files {
		switch upload.KindFor(f.Name) {
		case model.KindImage:
			optimistic.Media = append(optimistic.Media, "pending:"+f.Name)
		default:
			optimistic.Attachments = append(optimistic.Attachments, model.Attachment{
				Kind: upload.KindFor(f.Name), Name: f.Name, Size: int64(len(f.Data)),
			})
		}
	}

	c.mu.Lock()
	if !c.liveLocked(epoch) {
		c.mu.Unlock()
		return model.Message{}, apperr.ErrConversationClosed
	}
	st := c.store
	c.pending[tag] = draft
	c.mu.Unlock()
	st.Upsert(optimistic)
	c.opts.OnChange()

	rollback := func(cause error) (model.Message, error) {
		c.mu.Lock()
		if c.liveLocked(epoch) {
			delete(c.pending, tag)
			st.Discard(tag)
		}
		c.mu.Unlock()
		metrics.Sends.WithLabelValues("failure").Inc()
		c.opts.OnChange()
		return model.Message{}, &SendError{Draft: draft, Err: cause}
	}

	req := api.SendMessageRequest{
		Content:    draft.Text,
		Location:   draft.Location,
		IsViewOnce: draft.IsViewOnce,
	}
	for _, f := range draft.Files {
		res, err := c.uploads.Upload(ctx, f.Name, bytes.NewReader(f.Data))
		if err != nil {
			return rollback(err)
		}
		if res.Kind == model.KindImage {
			req.Media = append(req.Media, res.URL)
		} else {
			req.Attachments = append(req.Attachments, model.Attachment{
				URL: res.URL, Kind: res.Kind, Name: res.Name, Size: res.Size,
			})
		}
	}

	confirmed, err := c.api.SendMessage(ctx, convID, req)
	if err != nil {
		return rollback(err)
	}

	c.mu.Lock()
	if !c.liveLocked(epoch) {
		c.mu.Unlock()
		return confirmed, nil
	}
	delete(c.pending, tag)
	c.mu.Unlock()
	st.Swap(tag, confirmed)
	metrics.Sends.WithLabelValues("success").Inc()
	metrics.MessagesSynced.Inc()
	c.opts.OnChange()
	return confirmed, nil
}

// EditMessage rewrites a message's text. Edits are only allowed within the
// edit window after the message was created.
func (c *Controller) EditMessage(ctx context.Context, messageID, newContent string) error {
	epoch, convID, err := c.current()
	if err != nil {
		return err
	}
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()

	msg, ok := st.Get(messageID)
	if !ok {
		return apperr.ErrNotFoundOrExpired
	}
	if time.Since(msg.CreatedAt) >= c.opts.EditWindow {
		return apperr.ErrEditWindowExceeded
	}

	updated, err := c.api.EditMessage(ctx, convID, messageID, newContent)
	if err != nil {
		return err
	}

	editedAt := updated.UpdatedAt
	if updated.EditedAt != nil {
		editedAt = *updated.EditedAt
	}
	c.mu.Lock()
	live := c.liveLocked(epoch)
	c.mu.Unlock()
	if live {
		st.ApplyEdit(messageID, updated.Content, editedAt)
		c.opts.OnChange()
	}
	return nil
}

// DeleteMessage soft-deletes after an explicit confirmation from the user.
func (c *Controller) DeleteMessage(ctx context.Context, messageID string, confirmed bool) error {
	if !confirmed {
		return apperr.ErrConfirmationRequired
	}
	epoch, convID, err := c.current()
	if err != nil {
		return err
	}
	if err := c.api.DeleteMessage(ctx, convID, messageID); err != nil {
		return err
	}
	c.mu.Lock()
	live := c.liveLocked(epoch)
	st := c.store
	c.mu.Unlock()
	if live {
		st.ApplySoftDelete(messageID)
		c.opts.OnChange()
	}
	return nil
}

// ToggleReaction flips the caller's reaction and applies the authoritative
// server list. The list is never predicted locally.
func (c *Controller) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	epoch, convID, err := c.current()
	if err != nil {
		return err
	}
	reactions, err := c.api.ToggleReaction(ctx, convID, messageID, emoji)
	if err != nil {
		return err
	}
	c.mu.Lock()
	live := c.liveLocked(epoch)
	st := c.store
	c.mu.Unlock()
	if live {
		st.ApplyReactionReplace(messageID, reactions)
		c.opts.OnChange()
	}
	return nil
}

// RevealViewOnce consumes a view-once payload. The local expired flag is set
// the moment the server consumes it and never clears; the payload itself is
// returned for transient overlay display only and is not written to the
// store.
func (c *Controller) RevealViewOnce(ctx context.Context, messageID string) (model.ViewOncePayload, error) {
	epoch, convID, err := c.current()
	if err != nil {
		return model.ViewOncePayload{}, err
	}
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()

	msg, ok := st.Get(messageID)
	if !ok || !msg.IsViewOnce {
		return model.ViewOncePayload{}, apperr.ErrNotFoundOrExpired
	}
	if msg.IsExpired {
		return model.ViewOncePayload{}, apperr.ErrAlreadyExpired
	}

	payload, err := c.api.RevealViewOnce(ctx, convID, messageID)
	c.mu.Lock()
	live := c.liveLocked(epoch)
	c.mu.Unlock()
	if err != nil {
		if live && isConsumed(err) {
			st.MarkExpired(messageID)
			c.opts.OnChange()
		}
		return model.ViewOncePayload{}, err
	}
	if live {
		st.MarkExpired(messageID)
		c.opts.OnChange()
	}
	return payload, nil
}

func isConsumed(err error) bool {
	return errors.Is(err, apperr.ErrNotFoundOrExpired)
}

// UpdateSettings patches the disappearing-message duration and refreshes the
// cached conversation metadata.
func (c *Controller) UpdateSettings(ctx context.Context, disappearingMS *int64) error {
	epoch, convID, err := c.current()
	if err != nil {
		return err
	}
	conv, err := c.api.UpdateSettings(ctx, convID, disappearingMS)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.liveLocked(epoch) {
		c.conv = conv
	}
	c.mu.Unlock()
	c.opts.OnChange()
	return nil
}

// Typing forwards local input activity to the push channel's debouncer.
func (c *Controller) Typing(active bool) {
	c.mu.Lock()
	p := c.push
	c.mu.Unlock()
	if p != nil {
		p.Typing(active)
	}
}

// Close leaves the push room and invalidates every in-flight request tied to
// the conversation.
func (c *Controller) Close() {
	c.mu.Lock()
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	prev := c.convID
	push := c.push
	c.convID = ""
	c.conv = model.Conversation{}
	c.store = store.New()
	c.page = 0
	c.hasMore = false
	c.loadingOlder = false
	c.pending = map[string]Draft{}
	c.mu.Unlock()

	if prev != "" && push != nil {
		if err := push.Unsubscribe(prev); err != nil {
			c.log.Debugw("unsubscribe failed", "conversation", prev, "err", err)
		}
	}
}

// Messages returns a copy of the visible list.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	return st.Messages()
}

// Conversation returns the open conversation's metadata.
func (c *Controller) Conversation() (model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv, c.convID != ""
}

// HasMore reports whether older history pages remain.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// PendingSends returns the number of sends awaiting confirmation.
func (c *Controller) PendingSends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
