package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/chatsync/internal/api"
	"github.com/fathima-sithara/chatsync/internal/apperr"
	"github.com/fathima-sithara/chatsync/internal/logger"
	"github.com/fathima-sithara/chatsync/internal/model"
	"github.com/fathima-sithara/chatsync/internal/upload"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func srvMsg(id, convID string, at time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: convID,
		Sender:         model.UserSummary{ID: "u2", DisplayName: "Peer"},
		Content:        "msg " + id,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

type fakeAPI struct {
	mu            sync.Mutex
	convs         map[string]model.Conversation
	pages         map[string]map[int]api.MessagesPage
	active        map[string][]model.CallEvent
	markReads     []string
	markReadErr   error
	messagesGate  chan struct{} // when non-nil, Messages blocks until closed
	messagesCalls int
	sendCalls     int
	sendErr       error
	sendResult    *model.Message
	editErr       error
	deleteErr     error
	deleted       []string
	reactions     map[string][]model.Reaction // post-toggle list per message
	revealCalls   int
	revealErr     error
	revealPayload model.ViewOncePayload
	settings      *int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		convs:     map[string]model.Conversation{},
		pages:     map[string]map[int]api.MessagesPage{},
		active:    map[string][]model.CallEvent{},
		reactions: map[string][]model.Reaction{},
	}
}

func (f *fakeAPI) setPage(convID string, page int, msgs []model.Message, pages int) {
	if f.pages[convID] == nil {
		f.pages[convID] = map[int]api.MessagesPage{}
	}
	f.pages[convID][page] = api.MessagesPage{
		Messages:   msgs,
		Pagination: api.Pagination{Page: page, Limit: 50, Pages: pages},
	}
}

func (f *fakeAPI) Conversation(ctx context.Context, id string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return model.Conversation{}, apperr.ErrNotFoundOrExpired
	}
	return conv, nil
}

func (f *fakeAPI) Messages(ctx context.Context, id string, page, limit int) (api.MessagesPage, error) {
	f.mu.Lock()
	gate := f.messagesGate
	f.messagesCalls++
	p := f.pages[id][page]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return p, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, id string, req api.SendMessageRequest) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return model.Message{}, f.sendErr
	}
	if f.sendResult != nil {
		return *f.sendResult, nil
	}
	return model.Message{
		ID:             fmt.Sprintf("srv-%d", f.sendCalls),
		ConversationID: id,
		Content:        req.Content,
		Media:          req.Media,
		Attachments:    req.Attachments,
		Location:       req.Location,
		IsViewOnce:     req.IsViewOnce,
		CreatedAt:      baseTime.Add(time.Minute),
		UpdatedAt:      baseTime.Add(time.Minute),
	}, nil
}

func (f *fakeAPI) EditMessage(ctx context.Context, id, messageID, content string) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return model.Message{}, f.editErr
	}
	at := baseTime.Add(2 * time.Minute)
	return model.Message{ID: messageID, ConversationID: id, Content: content, UpdatedAt: at, EditedAt: &at}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, id, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) ToggleReaction(ctx context.Context, id, messageID, emoji string) ([]model.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// simulate server-side toggle for the local user
	cur := f.reactions[messageID]
	var next []model.Reaction
	found := false
	for _, r := range cur {
		if r.Emoji == emoji && r.UserID == "u1" {
			found = true
			continue
		}
		next = append(next, r)
	}
	if !found {
		next = append(next, model.Reaction{Emoji: emoji, UserID: "u1"})
	}
	f.reactions[messageID] = next
	return next, nil
}

func (f *fakeAPI) RevealViewOnce(ctx context.Context, id, messageID string) (model.ViewOncePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revealCalls++
	if f.revealErr != nil {
		return model.ViewOncePayload{}, f.revealErr
	}
	return f.revealPayload, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, id)
	return f.markReadErr
}

func (f *fakeAPI) ActiveCalls(ctx context.Context, id string) ([]model.CallEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id], nil
}

func (f *fakeAPI) UpdateSettings(ctx context.Context, id string, disappearingMS *int64) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = disappearingMS
	conv := f.convs[id]
	conv.DisappearingMessagesMS = disappearingMS
	return conv, nil
}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	names []string
}

func (u *fakeUploader) Upload(ctx context.Context, filename string, r io.Reader) (upload.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return upload.Result{}, u.err
	}
	u.names = append(u.names, filename)
	data, _ := io.ReadAll(r)
	return upload.Result{
		URL:  "https://cdn.example/" + filename,
		Kind: upload.KindFor(filename),
		Name: filename,
		Size: int64(len(data)),
	}, nil
}

type fakePush struct {
	mu     sync.Mutex
	subs   []string
	unsubs []string
	typing []bool
}

func (p *fakePush) Subscribe(conversationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, conversationID)
	return nil
}

func (p *fakePush) Unsubscribe(conversationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubs = append(p.unsubs, conversationID)
	return nil
}

func (p *fakePush) Typing(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing = append(p.typing, active)
}

func newController(a *fakeAPI) (*Controller, *fakePush, *fakeUploader) {
	push := &fakePush{}
	up := &fakeUploader{}
	c := New(a, up, push, nil, Options{
		Self:       model.UserSummary{ID: "u1", DisplayName: "Me"},
		PageSize:   50,
		EditWindow: time.Hour,
	}, logger.Nop())
	return c, push, up
}

func openConv(t *testing.T, a *fakeAPI, c *Controller, convID string, msgs []model.Message, pages int) {
	t.Helper()
	a.mu.Lock()
	a.convs[convID] = model.Conversation{ID: convID, Type: model.ConversationPrivate}
	a.mu.Unlock()
	a.setPage(convID, 1, msgs, pages)
	if err := c.Open(context.Background(), convID); err != nil {
		t.Fatalf("Open(%s): %v", convID, err)
	}
}

func TestOpenLoadsFirstPageAndSubscribes(t *testing.T) {
	a := newFakeAPI()
	c, push, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{
		srvMsg("m1", "c1", baseTime),
		srvMsg("m2", "c1", baseTime.Add(5*time.Second)),
	}, 3)

	if got := c.Messages(); len(got) != 2 {
		t.Fatalf("messages = %d, want 2", len(got))
	}
	if !c.HasMore() {
		t.Fatal("HasMore() = false on page 1 of 3")
	}
	push.mu.Lock()
	defer push.mu.Unlock()
	if len(push.subs) != 1 || push.subs[0] != "c1" {
		t.Fatalf("subs = %v", push.subs)
	}
}

func TestOpenSurvivesMarkReadFailure(t *testing.T) {
	a := newFakeAPI()
	a.markReadErr = errors.New("read marker down")
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", nil, 1)

	if _, ok := c.Conversation(); !ok {
		t.Fatal("open failed because of a best-effort mark-read error")
	}
}

func TestLoadOlderGates(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m9", "c1", baseTime)}, 1)

	a.mu.Lock()
	before := a.messagesCalls
	a.mu.Unlock()
	if err := c.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	a.mu.Lock()
	after := a.messagesCalls
	a.mu.Unlock()
	if after != before {
		t.Fatal("LoadOlder fetched despite hasMore=false")
	}
}

func TestLoadOlderSingleFlight(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m9", "c1", baseTime.Add(9*time.Second))}, 2)
	a.setPage("c1", 2, []model.Message{srvMsg("m8", "c1", baseTime.Add(8*time.Second))}, 2)

	gate := make(chan struct{})
	a.mu.Lock()
	a.messagesGate = gate
	base := a.messagesCalls
	a.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.LoadOlder(context.Background()) }()

	// wait until the first request is in flight
	deadline := time.Now().Add(2 * time.Second)
	for {
		a.mu.Lock()
		calls := a.messagesCalls
		a.mu.Unlock()
		if calls == base+1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first LoadOlder never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// second call while the first is in flight is a no-op
	if err := c.LoadOlder(context.Background()); err != nil {
		t.Fatalf("concurrent LoadOlder: %v", err)
	}
	a.mu.Lock()
	calls := a.messagesCalls
	a.messagesGate = nil
	a.mu.Unlock()
	if calls != base+1 {
		t.Fatalf("messages calls = %d, want %d", calls, base+1)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if got := c.Messages(); len(got) != 2 || got[0].ID != "m8" {
		t.Fatalf("merged list wrong: %+v", got)
	}
}

func TestStaleLoadOlderCannotMutateNewConversation(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "convA", []model.Message{srvMsg("a2", "convA", baseTime.Add(2*time.Second))}, 2)
	a.setPage("convA", 2, []model.Message{srvMsg("a1", "convA", baseTime.Add(time.Second))}, 2)

	gate := make(chan struct{})
	a.mu.Lock()
	a.messagesGate = gate
	a.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.LoadOlder(context.Background()) }()
	time.Sleep(20 * time.Millisecond) // let the request get in flight

	// switch to conversation B while A's page 2 is still pending
	a.mu.Lock()
	a.messagesGate = nil
	a.convs["convB"] = model.Conversation{ID: "convB", Type: model.ConversationPrivate}
	a.mu.Unlock()
	a.setPage("convB", 1, []model.Message{srvMsg("b1", "convB", baseTime)}, 1)
	if err := c.Open(context.Background(), "convB"); err != nil {
		t.Fatalf("Open(convB): %v", err)
	}

	close(gate)
	if err := <-done; !errors.Is(err, apperr.ErrConversationClosed) {
		t.Fatalf("stale LoadOlder err = %v, want ErrConversationClosed", err)
	}

	got := c.Messages()
	if len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("conversation B polluted by A's late page: %+v", got)
	}
}

func TestSendRejectsEmptyDraftBeforeNetwork(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", nil, 1)

	_, err := c.Send(context.Background(), Draft{})
	if !errors.Is(err, apperr.ErrEmptyMessage) {
		t.Fatalf("err = %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendCalls != 0 {
		t.Fatal("empty draft reached the network")
	}
}

func TestSendOptimisticSwapScenario(t *testing.T) {
	a := newFakeAPI()
	confirmed := srvMsg("m3", "c1", baseTime.Add(10*time.Second))
	confirmed.Content = "hello"
	a.sendResult = &confirmed

	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{
		srvMsg("m1", "c1", baseTime),
		srvMsg("m2", "c1", baseTime.Add(5*time.Second)),
	}, 1)

	if _, err := c.Send(context.Background(), Draft{Text: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := c.Messages()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, id := range []string{"m1", "m2", "m3"} {
		if got[i].ID != id {
			t.Fatalf("order[%d] = %q, want %q", i, got[i].ID, id)
		}
	}
	for _, m := range got {
		if m.ClientTag != "" {
			t.Fatalf("temporary entry %q still present", m.ID)
		}
	}
	if c.PendingSends() != 0 {
		t.Fatal("pending-send table not cleared")
	}

	// the sender's own push echo must not create a second visible entry
	c.OnNewMessage(confirmed)
	if got := c.Messages(); len(got) != 3 {
		t.Fatalf("echo created duplicate: len = %d", len(got))
	}
}

func TestSendFailureRollsBackAndRestoresDraft(t *testing.T) {
	a := newFakeAPI()
	a.sendErr = fmt.Errorf("%w: gateway timeout", apperr.ErrNetwork)
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m1", "c1", baseTime)}, 1)

	draft := Draft{Text: "will fail", Files: []DraftFile{{Name: "note.txt", Data: []byte("hi")}}}
	_, err := c.Send(context.Background(), draft)

	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T %v, want *SendError", err, err)
	}
	if se.Draft.Text != "will fail" || len(se.Draft.Files) != 1 || string(se.Draft.Files[0].Data) != "hi" {
		t.Fatalf("draft not restored: %+v", se.Draft)
	}
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("unwrap failed: %v", err)
	}
	if got := c.Messages(); len(got) != 1 {
		t.Fatalf("optimistic entry not rolled back: %d messages", len(got))
	}
	if c.PendingSends() != 0 {
		t.Fatal("pending-send table not cleared after failure")
	}
}

func TestSendUploadFailureRollsBack(t *testing.T) {
	a := newFakeAPI()
	c, _, up := newController(a)
	up.err = errors.New("upload gateway down")
	openConv(t, a, c, "c1", nil, 1)

	_, err := c.Send(context.Background(), Draft{Files: []DraftFile{{Name: "pic.jpg", Data: []byte("jpeg")}}})
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendCalls != 0 {
		t.Fatal("send issued despite failed upload")
	}
	if c.Messages() != nil && len(c.Messages()) != 0 {
		t.Fatal("optimistic entry survived upload failure")
	}
}

func TestSendResolvesUploadsIntoMediaAndAttachments(t *testing.T) {
	a := newFakeAPI()
	c, _, up := newController(a)
	openConv(t, a, c, "c1", nil, 1)

	_, err := c.Send(context.Background(), Draft{
		Text: "files",
		Files: []DraftFile{
			{Name: "pic.jpg", Data: []byte("jpegdata")},
			{Name: "song.mp3", Data: []byte("mp3data")},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := c.Messages()
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	m := got[0]
	if len(m.Media) != 1 || m.Media[0] != "https://cdn.example/pic.jpg" {
		t.Fatalf("media = %v", m.Media)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].Kind != model.KindAudio {
		t.Fatalf("attachments = %+v", m.Attachments)
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.names) != 2 {
		t.Fatalf("uploads = %v", up.names)
	}
}

func TestEditWindowEnforced(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	old := srvMsg("m1", "c1", time.Now().UTC().Add(-2*time.Hour))
	fresh := srvMsg("m2", "c1", time.Now().UTC().Add(-time.Minute))
	openConv(t, a, c, "c1", []model.Message{old, fresh}, 1)

	if err := c.EditMessage(context.Background(), "m1", "too late"); !errors.Is(err, apperr.ErrEditWindowExceeded) {
		t.Fatalf("err = %v, want ErrEditWindowExceeded", err)
	}
	if err := c.EditMessage(context.Background(), "m2", "in time"); err != nil {
		t.Fatalf("edit within window: %v", err)
	}
	m, _ := func() (model.Message, bool) {
		for _, m := range c.Messages() {
			if m.ID == "m2" {
				return m, true
			}
		}
		return model.Message{}, false
	}()
	if m.Content != "in time" || m.EditedAt == nil {
		t.Fatalf("edit not applied: %+v", m)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m1", "c1", baseTime)}, 1)

	if err := c.DeleteMessage(context.Background(), "m1", false); !errors.Is(err, apperr.ErrConfirmationRequired) {
		t.Fatalf("err = %v", err)
	}
	a.mu.Lock()
	deleted := len(a.deleted)
	a.mu.Unlock()
	if deleted != 0 {
		t.Fatal("unconfirmed delete reached the network")
	}

	if err := c.DeleteMessage(context.Background(), "m1", true); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	got := c.Messages()
	if len(got) != 1 || !got[0].Deleted() {
		t.Fatalf("tombstone missing: %+v", got)
	}
}

func TestToggleReactionTwiceRoundTrips(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m1", "c1", baseTime)}, 1)

	if err := c.ToggleReaction(context.Background(), "m1", "👍"); err != nil {
		t.Fatal(err)
	}
	if m, _ := getMsg(c, "m1"); len(m.Reactions) != 1 {
		t.Fatalf("reactions after first toggle = %+v", m.Reactions)
	}
	if err := c.ToggleReaction(context.Background(), "m1", "👍"); err != nil {
		t.Fatal(err)
	}
	if m, _ := getMsg(c, "m1"); len(m.Reactions) != 0 {
		t.Fatalf("reactions after second toggle = %+v", m.Reactions)
	}
}

func getMsg(c *Controller, id string) (model.Message, bool) {
	for _, m := range c.Messages() {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

func TestRevealViewOnceIsSingleShot(t *testing.T) {
	a := newFakeAPI()
	a.revealPayload = model.ViewOncePayload{MessageID: "v1", Content: "secret"}
	c, _, _ := newController(a)
	vo := srvMsg("v1", "c1", baseTime)
	vo.IsViewOnce = true
	openConv(t, a, c, "c1", []model.Message{vo}, 1)

	p, err := c.RevealViewOnce(context.Background(), "v1")
	if err != nil {
		t.Fatalf("RevealViewOnce: %v", err)
	}
	if p.Content != "secret" {
		t.Fatalf("payload = %+v", p)
	}
	if m, _ := getMsg(c, "v1"); !m.IsExpired {
		t.Fatal("IsExpired not set after reveal")
	}
	// payload never lands in the store
	if m, _ := getMsg(c, "v1"); m.Content == "secret" {
		t.Fatal("ephemeral payload written into the message list")
	}

	_, err = c.RevealViewOnce(context.Background(), "v1")
	if !errors.Is(err, apperr.ErrAlreadyExpired) {
		t.Fatalf("second reveal err = %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revealCalls != 1 {
		t.Fatalf("reveal endpoint hit %d times, want 1", a.revealCalls)
	}
}

func TestRevealNonViewOnceRejected(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m1", "c1", baseTime)}, 1)

	if _, err := c.RevealViewOnce(context.Background(), "m1"); !errors.Is(err, apperr.ErrNotFoundOrExpired) {
		t.Fatalf("err = %v", err)
	}
}

func TestPushDispatchIntoStore(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m1", "c1", baseTime)}, 1)

	c.OnNewMessage(srvMsg("m2", "c1", baseTime.Add(time.Second)))
	if len(c.Messages()) != 2 {
		t.Fatal("pushed message not merged")
	}

	// a frame for another conversation is dropped
	c.OnNewMessage(srvMsg("x1", "other", baseTime.Add(2*time.Second)))
	if len(c.Messages()) != 2 {
		t.Fatal("foreign-conversation message merged")
	}

	edited := srvMsg("m2", "c1", baseTime.Add(time.Second))
	edited.Content = "edited"
	at := baseTime.Add(3 * time.Second)
	edited.EditedAt = &at
	edited.UpdatedAt = at
	c.OnMessageUpdated(edited)
	if m, _ := getMsg(c, "m2"); m.Content != "edited" {
		t.Fatalf("push edit not applied: %+v", m)
	}

	c.OnMessageDeleted("m1")
	if m, _ := getMsg(c, "m1"); !m.Deleted() {
		t.Fatal("push delete not applied")
	}
	if len(c.Messages()) != 2 {
		t.Fatal("push delete removed the tombstone")
	}

	c.OnReactionChanged("m2", []model.Reaction{{Emoji: "❤️", UserID: "u2"}})
	if m, _ := getMsg(c, "m2"); len(m.Reactions) != 1 {
		t.Fatal("push reaction replace not applied")
	}
}

func TestTypingFromSelfSuppressed(t *testing.T) {
	a := newFakeAPI()
	var got []string
	push := &fakePush{}
	c := New(a, &fakeUploader{}, push, nil, Options{
		Self:     model.UserSummary{ID: "u1"},
		OnTyping: func(userID string, active bool) { got = append(got, userID) },
	}, logger.Nop())
	openConv(t, a, c, "c1", nil, 1)

	c.OnTyping("u1", true)
	c.OnTyping("u2", true)
	if len(got) != 1 || got[0] != "u2" {
		t.Fatalf("typing callbacks = %v", got)
	}
}

func TestUpdateSettingsRefreshesMetadata(t *testing.T) {
	a := newFakeAPI()
	c, _, _ := newController(a)
	openConv(t, a, c, "c1", nil, 1)

	ms := int64(86400000)
	if err := c.UpdateSettings(context.Background(), &ms); err != nil {
		t.Fatal(err)
	}
	conv, ok := c.Conversation()
	if !ok {
		t.Fatal("conversation missing")
	}
	d, enabled := conv.DisappearingDuration()
	if !enabled || d != 24*time.Hour {
		t.Fatalf("duration = %v enabled=%v", d, enabled)
	}
}

func TestCloseUnsubscribesAndBlocksOps(t *testing.T) {
	a := newFakeAPI()
	c, push, _ := newController(a)
	openConv(t, a, c, "c1", []model.Message{srvMsg("m1", "c1", baseTime)}, 1)

	c.Close()

	push.mu.Lock()
	unsubs := append([]string(nil), push.unsubs...)
	push.mu.Unlock()
	if len(unsubs) != 1 || unsubs[0] != "c1" {
		t.Fatalf("unsubs = %v", unsubs)
	}
	if _, err := c.Send(context.Background(), Draft{Text: "hi"}); !errors.Is(err, apperr.ErrConversationClosed) {
		t.Fatalf("send after close err = %v", err)
	}
	if len(c.Messages()) != 0 {
		t.Fatal("store not cleared on close")
	}
}
