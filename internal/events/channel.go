// Package events is the client side of the push channel. A Channel holds one
// websocket connection and is subscribed to at most one conversation room at
// a time; inbound frames are routed to a Handler.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/chatsync/internal/metrics"
	"github.com/fathima-sithara/chatsync/internal/model"
)

const (
	readLimit    = 64 * 1024
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second

	// typingQuiet is the quiet interval that collapses a keystroke burst
	// into a single typing=true emission.
	typingQuiet = 300 * time.Millisecond

	// inboundRPS bounds how many pushed events per second are processed;
	// floods beyond the burst are dropped.
	inboundRPS = 50

	// redialInitial seeds the exponential backoff between redial attempts
	// after a dropped connection.
	redialInitial = 500 * time.Millisecond
)

// Handler receives routed push events. Calls arrive from the read pump
// goroutine.
type Handler interface {
	OnNewMessage(model.Message)
	OnMessageUpdated(model.Message)
	OnMessageDeleted(messageID string)
	OnReactionChanged(messageID string, reactions []model.Reaction)
	OnCallStarted(model.CallEvent)
	OnCallEnded(model.CallEvent)
	OnTyping(userID string, active bool)
}

type Channel struct {
	url     string
	token   string
	handler Handler
	log     *zap.SugaredLogger
	limiter *rate.Limiter

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu   sync.Mutex
	room string

	typingMu    sync.Mutex
	typingBurst bool
	typingTimer *time.Timer
	quiet       time.Duration

	ctx        context.Context
	cancel     context.CancelFunc
	redialWait time.Duration
	done       chan struct{}
}

func NewChannel(url, token string, h Handler, log *zap.SugaredLogger) *Channel {
	return &Channel{
		url:        url,
		token:      token,
		handler:    h,
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(inboundRPS), inboundRPS),
		quiet:      typingQuiet,
		redialWait: redialInitial,
		done:       make(chan struct{}),
	}
}

// Dial connects and starts the read and ping pumps. A connection dropped
// later is re-dialed with exponential backoff and the current room rejoined,
// so a transient outage never kills the push stream for the session.
func (c *Channel) Dial(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	conn, err := c.dial(c.ctx)
	if err != nil {
		c.cancel()
		return err
	}
	c.setConn(conn)
	go c.readPump(conn)
	go c.pingPump()
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, hdr)
	return conn, err
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
}

// Subscribe joins the conversation room, leaving any previously joined room
// first. Room membership is scoped to exactly one conversation.
func (c *Channel) Subscribe(conversationID string) error {
	c.mu.Lock()
	prev := c.room
	c.room = conversationID
	c.mu.Unlock()
	if prev != "" && prev != conversationID {
		if err := c.write(model.Envelope{Type: model.FrameUnsubscribe, ConversationID: prev}); err != nil {
			return err
		}
	}
	return c.write(model.Envelope{Type: model.FrameSubscribe, ConversationID: conversationID})
}

// Unsubscribe leaves the room if it is the one currently joined.
func (c *Channel) Unsubscribe(conversationID string) error {
	c.mu.Lock()
	if c.room != conversationID {
		c.mu.Unlock()
		return nil
	}
	c.room = ""
	c.mu.Unlock()
	c.stopTyping()
	return c.write(model.Envelope{Type: model.FrameUnsubscribe, ConversationID: conversationID})
}

// Typing reports local input activity. Rapid keystrokes collapse into one
// typing=true per burst; active=false is forwarded immediately.
func (c *Channel) Typing(active bool) {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if !active {
		if c.typingTimer != nil {
			c.typingTimer.Stop()
		}
		if c.typingBurst {
			c.typingBurst = false
			c.emitTyping(false)
		}
		return
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.quiet, func() {
		c.typingMu.Lock()
		c.typingBurst = false
		c.typingMu.Unlock()
	})
	if !c.typingBurst {
		c.typingBurst = true
		c.emitTyping(true)
	}
}

func (c *Channel) stopTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingBurst = false
}

func (c *Channel) emitTyping(active bool) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == "" {
		return
	}
	payload, _ := json.Marshal(model.TypingPayload{Active: active})
	if err := c.write(model.Envelope{Type: model.EventTyping, ConversationID: room, Payload: payload}); err != nil {
		c.log.Debugw("typing emit failed", "err", err)
	}
}

func (c *Channel) write(env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		conn.SetReadLimit(readLimit)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if !c.limiter.Allow() {
				continue
			}
			var env model.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue // malformed frame
			}
			c.route(env)
		}
		conn.Close()
		select {
		case <-c.done:
			return
		default:
		}
		c.log.Debugw("push connection dropped, redialing")
		next, err := c.reconnect()
		if err != nil {
			return
		}
		conn = next
	}
}

// reconnect re-dials until the channel is closed, then rejoins the room that
// was subscribed when the connection dropped.
func (c *Channel) reconnect() (*websocket.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.redialWait
	bo.MaxElapsedTime = 0
	var conn *websocket.Conn
	dial := func() error {
		var err error
		conn, err = c.dial(c.ctx)
		return err
	}
	if err := backoff.Retry(dial, backoff.WithContext(bo, c.ctx)); err != nil {
		return nil, err
	}
	c.setConn(conn)
	metrics.Reconnects.Inc()

	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room != "" {
		if err := c.write(model.Envelope{Type: model.FrameSubscribe, ConversationID: room}); err != nil {
			c.log.Warnw("resubscribe after reconnect failed", "conversation", room, "err", err)
		}
	}
	c.log.Infow("push connection re-established", "conversation", room)
	return conn, nil
}

func (c *Channel) route(env model.Envelope) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if env.ConversationID != "" && env.ConversationID != room {
		// late frame from a room already left
		return
	}
	switch env.Type {
	case model.EventNewMessage:
		var m model.Message
		if json.Unmarshal(env.Payload, &m) == nil {
			c.handler.OnNewMessage(m)
		}
	case model.EventMessageUpdated:
		var m model.Message
		if json.Unmarshal(env.Payload, &m) == nil {
			c.handler.OnMessageUpdated(m)
		}
	case model.EventMessageDeleted:
		var p model.MessageDeletedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.handler.OnMessageDeleted(p.MessageID)
		}
	case model.EventReactionChanged:
		var p model.ReactionChangedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.handler.OnReactionChanged(p.MessageID, p.Reactions)
		}
	case model.EventCallStarted:
		var ev model.CallEvent
		if json.Unmarshal(env.Payload, &ev) == nil {
			c.handler.OnCallStarted(ev)
		}
	case model.EventCallEnded:
		var ev model.CallEvent
		if json.Unmarshal(env.Payload, &ev) == nil {
			c.handler.OnCallEnded(ev)
		}
	case model.EventTyping:
		var p model.TypingPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.handler.OnTyping(p.UserID, p.Active)
		}
	default:
		// unknown event types are ignored
	}
}

func (c *Channel) pingPump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			c.writeMu.Unlock()
			if err != nil {
				// the read pump owns redialing; pings resume on the new conn
				continue
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the pumps and closes the connection.
func (c *Channel) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.stopTyping()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
