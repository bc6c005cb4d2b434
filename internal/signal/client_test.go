package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teamloop/teamloop/internal/api"
)

// relayServer is a minimal fake relay: it records envelopes the client
// sends and lets tests push envelopes down to the client.
type relayServer struct {
	*httptest.Server
	received chan *Envelope
	send     chan *Envelope
}

func newRelayServer(t *testing.T) *relayServer {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	rs := &relayServer{
		received: make(chan *Envelope, 16),
		send:     make(chan *Envelope, 16),
	}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var env Envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				rs.received <- &env
			}
		}()
		for {
			select {
			case <-done:
				return
			case env := <-rs.send:
				if err := conn.WriteJSON(env); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(rs.Server.Close)
	return rs
}

func (rs *relayServer) url() string {
	return "ws" + strings.TrimPrefix(rs.Server.URL, "http")
}

func (rs *relayServer) expect(t *testing.T, event string) *Envelope {
	t.Helper()
	select {
	case env := <-rs.received:
		if env.Event != event {
			t.Fatalf("expected %s, got %s", event, env.Event)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", event)
		return nil
	}
}

func dialTest(t *testing.T, rs *relayServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), rs.url(), "tok", api.ID("me"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(c.Close)
	rs.expect(t, EventRegister)
	return c
}

func recvSignal(t *testing.T, ch chan *Envelope) *Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

func TestRoomDeliveryAndScoping(t *testing.T) {
	rs := newRelayServer(t)
	c := dialTest(t, rs)

	sub, err := c.JoinRoom("7")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if env := rs.expect(t, EventJoinCallRoom); env.CallID != "7" {
		t.Fatalf("joined room %s", env.CallID)
	}

	// Room traffic from the peer is delivered in order.
	rs.send <- &Envelope{Event: EventOffer, CallID: "7", FromUserID: "peer", SDP: []byte(`{"type":"offer"}`)}
	rs.send <- &Envelope{Event: EventCandidate, CallID: "7", FromUserID: "peer", Candidate: []byte(`{}`)}

	if env := recvSignal(t, sub.Events); env.Event != EventOffer {
		t.Fatalf("first event = %s", env.Event)
	}
	if env := recvSignal(t, sub.Events); env.Event != EventCandidate {
		t.Fatalf("second event = %s", env.Event)
	}

	// Traffic for another room never reaches this subscription.
	rs.send <- &Envelope{Event: EventOffer, CallID: "8", FromUserID: "peer"}
	rs.send <- &Envelope{Event: EventCallEnded, CallID: "7", FromUserID: "peer"}
	if env := recvSignal(t, sub.Events); env.Event != EventCallEnded || env.CallID != "7" {
		t.Fatalf("got %s for call %s", env.Event, env.CallID)
	}
}

func TestOwnEchoDropped(t *testing.T) {
	rs := newRelayServer(t)
	c := dialTest(t, rs)

	sub, err := c.JoinRoom("7")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	rs.expect(t, EventJoinCallRoom)

	// A broadcast offer relayed back to its sender must not loop into the
	// sender's own negotiation.
	rs.send <- &Envelope{Event: EventOffer, CallID: "7", FromUserID: "me"}
	rs.send <- &Envelope{Event: EventOffer, CallID: "7", FromUserID: "peer"}

	if env := recvSignal(t, sub.Events); env.FromUserID != "peer" {
		t.Fatalf("own echo delivered: from %s", env.FromUserID)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	rs := newRelayServer(t)
	c := dialTest(t, rs)

	sub, err := c.JoinRoom("7")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	rs.expect(t, EventJoinCallRoom)

	sub.Leave()
	sub.Leave() // second leave is a no-op

	if _, ok := <-sub.Events; ok {
		t.Fatal("events channel should be closed after leave")
	}
}

func TestGlobalSubscription(t *testing.T) {
	rs := newRelayServer(t)
	c := dialTest(t, rs)

	ch, cancel := c.Subscribe()

	rs.send <- &Envelope{Event: EventIncomingCall, CallID: "5", InitiatorID: "peer", InitiatorName: "Bea"}
	env := recvSignal(t, ch)
	if env.Event != EventIncomingCall || env.CallID != "5" || env.InitiatorName != "Bea" {
		t.Fatalf("got %+v", env)
	}

	cancel()
	cancel() // safe twice
	if _, ok := <-ch; ok {
		t.Fatal("subscription channel should be closed after cancel")
	}
}

func TestSendHelpersCarryIdentity(t *testing.T) {
	rs := newRelayServer(t)
	c := dialTest(t, rs)

	if err := c.SendOffer("7", []byte(`{"type":"offer"}`)); err != nil {
		t.Fatalf("send offer: %v", err)
	}
	if env := rs.expect(t, EventOffer); env.FromUserID != "me" || env.CallID != "7" {
		t.Fatalf("offer envelope = %+v", env)
	}

	if err := c.SendAnswer("7", []byte(`{"type":"answer"}`), "peer"); err != nil {
		t.Fatalf("send answer: %v", err)
	}
	if env := rs.expect(t, EventAnswer); env.ToUserID != "peer" {
		t.Fatalf("answer not addressed: %+v", env)
	}

	if err := c.SendCandidate("7", []byte(`{}`)); err != nil {
		t.Fatalf("send candidate: %v", err)
	}
	rs.expect(t, EventCandidate)
}
