package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/call"
	"github.com/teamloop/teamloop/internal/signal"
)

// relayAdapter presents the relay connection to the call engine. The
// connection itself comes and goes with login; the adapter outlives it, so
// the call Manager can be built once at startup. Broadcast subscribers stay
// registered across reconnects.
type relayAdapter struct {
	mu       sync.Mutex
	conn     *signal.Client
	stopPump func()
	subs     map[chan call.Signal]struct{}
}

func newRelayAdapter() *relayAdapter {
	return &relayAdapter{subs: make(map[chan call.Signal]struct{})}
}

// setConn swaps the underlying connection. Passing nil disconnects.
func (a *relayAdapter) setConn(c *signal.Client) {
	a.mu.Lock()
	stop := a.stopPump
	a.conn = c
	a.stopPump = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	if c == nil {
		return
	}

	ch, cancel := c.Subscribe()
	a.mu.Lock()
	a.stopPump = cancel
	a.mu.Unlock()

	go func() {
		for env := range ch {
			a.fanout(toSignal(env))
		}
	}()
}

func (a *relayAdapter) fanout(sig call.Signal) {
	a.mu.Lock()
	for ch := range a.subs {
		select {
		case ch <- sig:
		default:
		}
	}
	a.mu.Unlock()
}

func (a *relayAdapter) current() (*signal.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil, fmt.Errorf("not connected to relay")
	}
	return a.conn, nil
}

func (a *relayAdapter) JoinCallRoom(callID string) (<-chan call.Signal, func(), error) {
	c, err := a.current()
	if err != nil {
		return nil, nil, err
	}
	sub, err := c.JoinRoom(api.ID(callID))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan call.Signal, 64)
	go func() {
		defer close(out)
		for env := range sub.Events {
			out <- toSignal(env)
		}
	}()
	return out, sub.Leave, nil
}

func (a *relayAdapter) Broadcasts() (<-chan call.Signal, func()) {
	ch := make(chan call.Signal, 16)
	a.mu.Lock()
	a.subs[ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, ch)
			a.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (a *relayAdapter) SendOffer(callID string, sdp []byte) error {
	c, err := a.current()
	if err != nil {
		return err
	}
	return c.SendOffer(api.ID(callID), sdp)
}

func (a *relayAdapter) SendAnswer(callID string, sdp []byte, toUserID string) error {
	c, err := a.current()
	if err != nil {
		return err
	}
	return c.SendAnswer(api.ID(callID), sdp, api.ID(toUserID))
}

func (a *relayAdapter) SendCandidate(callID string, candidate []byte) error {
	c, err := a.current()
	if err != nil {
		return err
	}
	return c.SendCandidate(api.ID(callID), candidate)
}

// toSignal strips a relay envelope down to what the call engine consumes.
func toSignal(env *signal.Envelope) call.Signal {
	return call.Signal{
		Event:         env.Event,
		CallID:        env.CallID.String(),
		FromUserID:    env.FromUserID.String(),
		ToUserID:      env.ToUserID.String(),
		SDP:           env.SDP,
		Candidate:     env.Candidate,
		InitiatorID:   env.InitiatorID.String(),
		InitiatorName: env.InitiatorName,
	}
}

// callBackend adapts the REST call API to the engine's Backend interface.
type callBackend struct {
	calls *api.CallAPI
}

func (b callBackend) CreateCall(ctx context.Context, conversationID string) (call.StartOutcome, error) {
	out, err := b.calls.Create(ctx, api.ID(conversationID), "video")
	if err != nil {
		return call.StartOutcome{}, err
	}
	if out.AlreadyExists() {
		// Initiator left empty on purpose: the session resolves it from the
		// call record.
		return call.StartOutcome{CallID: out.Existing.String()}, nil
	}
	return call.StartOutcome{
		CallID:      out.Created.ID.String(),
		InitiatorID: out.Created.InitiatorID.String(),
	}, nil
}

func (b callBackend) CallInitiator(ctx context.Context, callID string) (string, error) {
	rec, err := b.calls.Get(ctx, api.ID(callID))
	if err != nil {
		return "", err
	}
	return rec.InitiatorID.String(), nil
}

func (b callBackend) JoinCall(ctx context.Context, callID string) error {
	_, err := b.calls.Join(ctx, api.ID(callID))
	return err
}

func (b callBackend) LeaveCall(ctx context.Context, callID string) error {
	return b.calls.Leave(ctx, api.ID(callID))
}

func (b callBackend) EndCall(ctx context.Context, callID string) error {
	return b.calls.End(ctx, api.ID(callID))
}
