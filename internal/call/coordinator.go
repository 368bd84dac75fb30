// Package call coordinates the lifecycle of audio/video call events tied to
// one conversation. The media transport itself lives behind the Engine
// interface; only the lifecycle contract is handled here.
package call

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/apperr"
	"github.com/fathima-sithara/chatsync/internal/model"
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateActiveUnjoined
	StateJoining
	StateJoined
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActiveUnjoined:
		return "active-unjoined"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Engine acquires call-engine sessions by id.
type Engine interface {
	Join(ctx context.Context, sessionID string) (Session, error)
}

// Session is one joined call-engine session holding the local capture
// device. At most one session holds the device at a time.
type Session interface {
	SetAudioEnabled(enabled bool) error
	SetVideoEnabled(enabled bool) error
	Leave() error
}

// DeviceProber checks camera/microphone permissions before any server-side
// call event is created, so a start never produces an event the local device
// cannot join.
type DeviceProber interface {
	Probe(ctx context.Context, video bool) error
}

// API is the slice of the REST surface the coordinator needs.
type API interface {
	StartCall(ctx context.Context, conversationID string, callType model.CallType) (model.CallEvent, error)
	EndCall(ctx context.Context, conversationID, callID string) error
}

// Notify observes transitions. err is non-nil only when the transition to
// Ended was caused by a failure.
type Notify func(state State, ev *model.CallEvent, err error)

type Coordinator struct {
	engine Engine
	prober DeviceProber
	api    API
	log    *zap.SugaredLogger
	notify Notify

	mu      sync.Mutex
	state   State
	current *model.CallEvent
	session Session
}

func NewCoordinator(engine Engine, prober DeviceProber, api API, notify Notify, log *zap.SugaredLogger) *Coordinator {
	if notify == nil {
		notify = func(State, *model.CallEvent, error) {}
	}
	return &Coordinator{engine: engine, prober: prober, api: api, notify: notify, log: log, state: StateIdle}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Current() (model.CallEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.CallEvent{}, false
	}
	return *c.current, true
}

func (c *Coordinator) setState(s State, ev *model.CallEvent, err error) {
	c.state = s
	c.notify(s, ev, err)
}

// Start probes the local devices and creates the call event. The probe runs
// first: a denied camera or microphone must not leave a dangling server-side
// event.
func (c *Coordinator) Start(ctx context.Context, conversationID string, callType model.CallType) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("call already in progress (state %s)", c.state)
	}
	c.setState(StateStarting, nil, nil)
	c.mu.Unlock()

	video := callType == model.CallVideo
	if err := c.prober.Probe(ctx, video); err != nil {
		c.mu.Lock()
		c.setState(StateIdle, nil, nil)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", apperr.ErrPermissionDenied, err)
	}

	ev, err := c.api.StartCall(ctx, conversationID, callType)
	if err != nil {
		c.mu.Lock()
		c.setState(StateIdle, nil, nil)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.current = &ev
	c.setState(StateActiveUnjoined, &ev, nil)
	c.mu.Unlock()
	return nil
}

// HandleStarted processes a remote call-started push. While Idle it moves
// straight to ActiveUnjoined with no local action; a duplicate started event
// for the current call is a no-op.
func (c *Coordinator) HandleStarted(ev model.CallEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.ID == ev.ID {
		return
	}
	if c.state != StateIdle {
		c.log.Debugw("ignoring call-started while busy", "state", c.state, "call", ev.ID)
		return
	}
	c.current = &ev
	c.setState(StateActiveUnjoined, &ev, nil)
}

// Join acquires the engine session and configures local tracks for the call
// type. A failure transitions to Ended, never leaving the machine stuck.
func (c *Coordinator) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActiveUnjoined || c.current == nil {
		c.mu.Unlock()
		return fmt.Errorf("no joinable call (state %s)", c.state)
	}
	ev := *c.current
	prior := c.session
	c.session = nil
	c.setState(StateJoining, &ev, nil)
	c.mu.Unlock()

	// the capture device is exclusive; release any prior hold first
	if prior != nil {
		if err := prior.Leave(); err != nil {
			c.log.Warnw("leaving prior session failed", "err", err)
		}
	}

	sess, err := c.engine.Join(ctx, ev.SessionID)
	if err == nil {
		if audioErr := sess.SetAudioEnabled(true); audioErr != nil {
			err = audioErr
		} else {
			err = sess.SetVideoEnabled(ev.Type == model.CallVideo)
		}
		if err != nil {
			sess.Leave()
		}
	}
	if err != nil {
		c.mu.Lock()
		c.current = nil
		c.setState(StateEnded, &ev, err)
		c.setState(StateIdle, nil, nil)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.session = sess
	c.setState(StateJoined, &ev, nil)
	c.mu.Unlock()
	return nil
}

// End terminates the call locally and tells the server.
func (c *Coordinator) End(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil
	}
	ev := *c.current
	c.mu.Unlock()

	err := c.api.EndCall(ctx, conversationID, ev.ID)
	c.teardown(ev, nil)
	return err
}

// HandleEnded processes a remote call-ended push. Every non-ending
// participant leaves the engine session and resets, even though they never
// clicked leave.
func (c *Coordinator) HandleEnded(ev model.CallEvent) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != ev.ID {
		c.mu.Unlock()
		return
	}
	cur := *c.current
	c.mu.Unlock()
	c.teardown(cur, nil)
}

func (c *Coordinator) teardown(ev model.CallEvent, cause error) {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.current = nil
	c.setState(StateEnded, &ev, cause)
	c.setState(StateIdle, nil, nil)
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Leave(); err != nil {
			c.log.Warnw("leaving call session failed", "call", ev.ID, "err", err)
		}
	}
}
