// Package signal is the client side of the backend's websocket relay. One
// long-lived connection carries chat events, incoming-call prompts and
// per-call-room signaling traffic.
//
// Handlers are never added to the connection directly. Room traffic is
// consumed through a RoomSub obtained from JoinRoom, whose Leave is tied to
// the call session's teardown; everything else flows through Subscribe's
// (channel, cancel) pair. Both are scoped objects, so a torn-down consumer
// cannot leak a listener on the shared connection.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/teamloop/teamloop/internal/api"
)

var log = logging.Logger("signal")

// roomChanCap bounds the per-room delivery queue. Relay ordering is
// preserved by the single reader goroutine; a slow consumer drops the
// newest message rather than stalling every other room.
const roomChanCap = 64

// Client is the relay connection. Safe for concurrent use once connected.
type Client struct {
	url    string
	token  string
	selfID api.ID

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.RWMutex
	rooms   map[api.ID]map[*RoomSub]struct{}
	global  map[chan *Envelope]struct{}
	closed  bool
	closeCh chan struct{}
}

// RoomSub is a scoped subscription to one call room. Events receives the
// room's relay messages in delivery order until Leave is called or the
// connection drops.
type RoomSub struct {
	CallID api.ID
	Events chan *Envelope

	c    *Client
	once sync.Once
}

// Leave cancels the subscription. Idempotent.
func (s *RoomSub) Leave() {
	s.once.Do(func() {
		s.c.mu.Lock()
		if subs, ok := s.c.rooms[s.CallID]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.c.rooms, s.CallID)
			}
		}
		s.c.mu.Unlock()
		close(s.Events)
		log.Debugf("left room %s", s.CallID)
	})
}

// Dial connects to the relay at url, authenticating with token, and
// registers selfID so the relay can address this user directly.
func Dial(ctx context.Context, url, token string, selfID api.ID) (*Client, error) {
	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url+"/ws", hdr)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Client{
		url:     url,
		token:   token,
		selfID:  selfID,
		conn:    conn,
		rooms:   make(map[api.ID]map[*RoomSub]struct{}),
		global:  make(map[chan *Envelope]struct{}),
		closeCh: make(chan struct{}),
	}

	if err := c.send(&Envelope{Event: EventRegister, UserID: selfID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register: %w", err)
	}

	go c.readLoop()
	log.Infof("connected to relay %s as %s", url, selfID)
	return c, nil
}

// JoinRoom announces presence in a call room and returns a scoped
// subscription to its traffic. The subscription is registered before the
// join event is sent, so a message relayed immediately after join cannot be
// missed.
func (c *Client) JoinRoom(callID api.ID) (*RoomSub, error) {
	sub := &RoomSub{
		CallID: callID,
		Events: make(chan *Envelope, roomChanCap),
		c:      c,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("relay connection closed")
	}
	if c.rooms[callID] == nil {
		c.rooms[callID] = make(map[*RoomSub]struct{})
	}
	c.rooms[callID][sub] = struct{}{}
	c.mu.Unlock()

	if err := c.send(&Envelope{Event: EventJoinCallRoom, CallID: callID}); err != nil {
		sub.Leave()
		return nil, err
	}
	log.Debugf("joined room %s", callID)
	return sub, nil
}

// Subscribe returns a channel of non-room events (incoming calls, chat
// messages). cancel must be called when done.
func (c *Client) Subscribe() (ch chan *Envelope, cancel func()) {
	ch = make(chan *Envelope, 64)

	c.mu.Lock()
	c.global[ch] = struct{}{}
	c.mu.Unlock()

	cancel = func() {
		c.mu.Lock()
		if _, ok := c.global[ch]; ok {
			delete(c.global, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// SendOffer broadcasts a session offer into the call room.
func (c *Client) SendOffer(callID api.ID, sdp json.RawMessage) error {
	return c.send(&Envelope{
		Event:      EventOffer,
		CallID:     callID,
		SDP:        sdp,
		FromUserID: c.selfID,
	})
}

// SendAnswer sends an answer addressed to the initiator.
func (c *Client) SendAnswer(callID api.ID, sdp json.RawMessage, to api.ID) error {
	return c.send(&Envelope{
		Event:      EventAnswer,
		CallID:     callID,
		SDP:        sdp,
		FromUserID: c.selfID,
		ToUserID:   to,
	})
}

// SendCandidate relays a local ICE candidate to the room.
func (c *Client) SendCandidate(callID api.ID, candidate json.RawMessage) error {
	return c.send(&Envelope{
		Event:      EventCandidate,
		CallID:     callID,
		Candidate:  candidate,
		FromUserID: c.selfID,
	})
}

func (c *Client) send(env *Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Close tears down the connection and every subscription.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()

	c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.shutdownSubs()

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.closeCh:
			default:
				log.Warnf("relay read: %v", err)
			}
			return
		}
		c.dispatch(&env)
	}
}

// dispatch routes one inbound envelope. Room-scoped events go to the room's
// subscribers; everything else fans out to global listeners. Own echoes are
// dropped here so a broadcast offer can never loop back into the sender's
// negotiation.
func (c *Client) dispatch(env *Envelope) {
	if env.FromUserID == c.selfID && env.FromUserID != "" {
		return
	}

	switch env.Event {
	case EventOffer, EventAnswer, EventCandidate, EventCallEnded:
		c.mu.RLock()
		subs := make([]*RoomSub, 0, 2)
		for s := range c.rooms[env.CallID] {
			subs = append(subs, s)
		}
		c.mu.RUnlock()
		for _, s := range subs {
			select {
			case s.Events <- env:
			default:
				log.Warnf("room %s: dropping %s, subscriber backlogged", env.CallID, env.Event)
			}
		}
	default:
		c.mu.RLock()
		for ch := range c.global {
			select {
			case ch <- env:
			default:
			}
		}
		c.mu.RUnlock()
	}
}

// shutdownSubs closes every subscription after the read loop exits.
func (c *Client) shutdownSubs() {
	c.mu.Lock()
	rooms := c.rooms
	global := c.global
	c.rooms = make(map[api.ID]map[*RoomSub]struct{})
	c.global = make(map[chan *Envelope]struct{})
	c.closed = true
	c.mu.Unlock()

	for _, subs := range rooms {
		for s := range subs {
			s.once.Do(func() { close(s.Events) })
		}
	}
	for ch := range global {
		close(ch)
	}
}
