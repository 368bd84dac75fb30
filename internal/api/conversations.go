package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fathima-sithara/chatsync/internal/model"
)

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type MessagesPage struct {
	Messages   []model.Message `json:"messages"`
	Pagination Pagination      `json:"pagination"`
}

// HasMore reports whether pages beyond the current one exist.
func (p MessagesPage) HasMore() bool {
	return p.Pagination.Page < p.Pagination.Pages
}

type SendMessageRequest struct {
	Content     string             `json:"content,omitempty"`
	Media       []string           `json:"media,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
	Location    *model.Location    `json:"location,omitempty"`
	IsViewOnce  bool               `json:"is_view_once,omitempty"`
}

func (c *Client) Conversation(ctx context.Context, id string) (model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, http.MethodGet, "/conversations/"+id, nil, &conv)
	return conv, err
}

func (c *Client) Messages(ctx context.Context, id string, page, limit int) (MessagesPage, error) {
	var out MessagesPage
	path := fmt.Sprintf("/conversations/%s/messages?page=%d&limit=%d", id, page, limit)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, id string, req SendMessageRequest) (model.Message, error) {
	var msg model.Message
	err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/messages", req, &msg)
	return msg, err
}

func (c *Client) EditMessage(ctx context.Context, id, messageID, content string) (model.Message, error) {
	var msg model.Message
	body := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPatch, "/conversations/"+id+"/messages/"+messageID, body, &msg)
	return msg, err
}

func (c *Client) DeleteMessage(ctx context.Context, id, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+id+"/messages/"+messageID, nil, nil)
}

type reactionResponse struct {
	MessageID string           `json:"message_id"`
	Reactions []model.Reaction `json:"reactions"`
}

// ToggleReaction flips the caller's reaction and returns the authoritative
// post-toggle list.
func (c *Client) ToggleReaction(ctx context.Context, id, messageID, emoji string) ([]model.Reaction, error) {
	var out reactionResponse
	body := map[string]string{"emoji": emoji}
	err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/messages/"+messageID+"/reactions", body, &out)
	if err != nil {
		return nil, err
	}
	return out.Reactions, nil
}

// RevealViewOnce consumes a view-once payload. The server marks it used; a
// second call fails with NotFoundOrExpired.
func (c *Client) RevealViewOnce(ctx context.Context, id, messageID string) (model.ViewOncePayload, error) {
	var out model.ViewOncePayload
	err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/messages/"+messageID+"/view", nil, &out)
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+id+"/read", nil, nil)
}

func (c *Client) StartCall(ctx context.Context, id string, callType model.CallType) (model.CallEvent, error) {
	var ev model.CallEvent
	body := map[string]model.CallType{"type": callType}
	err := c.do(ctx, http.MethodPost, "/conversations/"+id+"/calls", body, &ev)
	return ev, err
}

func (c *Client) ActiveCalls(ctx context.Context, id string) ([]model.CallEvent, error) {
	var out []model.CallEvent
	err := c.do(ctx, http.MethodGet, "/conversations/"+id+"/calls/active", nil, &out)
	return out, err
}

func (c *Client) EndCall(ctx context.Context, id, callID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+id+"/calls/"+callID+"/end", nil, nil)
}

// UpdateSettings patches the disappearing-message duration; nil disables it.
func (c *Client) UpdateSettings(ctx context.Context, id string, disappearingMS *int64) (model.Conversation, error) {
	var conv model.Conversation
	body := map[string]*int64{"disappearing_messages_duration": disappearingMS}
	err := c.do(ctx, http.MethodPatch, "/conversations/"+id+"/settings", body, &conv)
	return conv, err
}
