package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

// fakeBackend counts lifecycle notifications.
type fakeBackend struct {
	mu        sync.Mutex
	joins     int
	leaves    int
	ends      int
	initiator string
}

func (f *fakeBackend) CreateCall(context.Context, string) (StartOutcome, error) {
	return StartOutcome{}, nil
}

func (f *fakeBackend) CallInitiator(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initiator, nil
}

func (f *fakeBackend) JoinCall(context.Context, string) error {
	f.mu.Lock()
	f.joins++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) LeaveCall(context.Context, string) error {
	f.mu.Lock()
	f.leaves++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) EndCall(context.Context, string) error {
	f.mu.Lock()
	f.ends++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) counts() (joins, leaves, ends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joins, f.leaves, f.ends
}

// testSession builds a session with an injected negotiation, skipping media
// capture and the peer connection entirely.
func testSession(t *testing.T, selfID, initiatorID string) (*Session, *fakeBackend, *fakeSignaler) {
	t.Helper()
	sig := &fakeSignaler{}
	backend := &fakeBackend{initiator: initiatorID}
	s := newSession("c1", selfID, sig, backend, MediaConfig{})
	s.neg = newNegotiation("c1", selfID, initiatorID, &fakePC{}, sig)
	return s, backend, sig
}

func TestTeardownIdempotent(t *testing.T) {
	t.Run("initiator ends once", func(t *testing.T) {
		s, backend, _ := testSession(t, "alice", "alice")

		var closedCalls int
		s.OnClosed(func(bool) { closedCalls++ })

		s.Hangup()
		s.Hangup()
		s.Close()

		if _, leaves, ends := backend.counts(); ends != 1 || leaves != 0 {
			t.Fatalf("initiator teardown: ends=%d leaves=%d, want 1/0", ends, leaves)
		}
		if closedCalls != 1 {
			t.Fatalf("closed hook fired %d times", closedCalls)
		}
		select {
		case <-s.Done():
		default:
			t.Fatal("Done not closed after teardown")
		}
	})

	t.Run("joiner leaves once", func(t *testing.T) {
		s, backend, _ := testSession(t, "bob", "alice")
		s.Hangup()
		s.Hangup()
		if _, leaves, ends := backend.counts(); leaves != 1 || ends != 0 {
			t.Fatalf("joiner teardown: leaves=%d ends=%d, want 1/0", leaves, ends)
		}
	})
}

func TestCallEndedSignalTearsDownOnce(t *testing.T) {
	s, backend, _ := testSession(t, "bob", "alice")

	var navigated []bool
	s.OnClosed(func(nav bool) { navigated = append(navigated, nav) })

	// Duplicate end notifications are a relay reality; only the first acts.
	s.handleSignal(Signal{Event: SignalCallEnded, CallID: "c1"})
	s.handleSignal(Signal{Event: SignalCallEnded, CallID: "c1"})

	if len(navigated) != 1 || !navigated[0] {
		t.Fatalf("expected exactly one navigate-back close, got %v", navigated)
	}
	if _, leaves, _ := backend.counts(); leaves != 1 {
		t.Fatalf("leaves=%d, want 1", leaves)
	}
}

func TestForeignCallSignalsDropped(t *testing.T) {
	s, backend, _ := testSession(t, "bob", "alice")
	s.neg.phase = PhaseWaiting

	s.handleSignal(Signal{Event: SignalCallEnded, CallID: "other"})
	select {
	case <-s.Done():
		t.Fatal("foreign callEnded must not tear down the session")
	default:
	}

	s.handleSignal(Signal{Event: SignalOffer, CallID: "other", FromUserID: "alice", SDP: []byte("{}")})
	if s.neg.phase != PhaseWaiting {
		t.Fatalf("foreign offer advanced the phase to %s", s.neg.phase)
	}

	if _, leaves, ends := backend.counts(); leaves != 0 || ends != 0 {
		t.Fatal("foreign signals must not reach the backend")
	}
}

func TestSignalsIgnoredAfterTeardown(t *testing.T) {
	s, _, sig := testSession(t, "bob", "alice")
	s.neg.phase = PhaseWaiting
	s.Hangup()

	// A late offer after hangup must not produce an answer.
	s.handleSignal(Signal{
		Event:      SignalOffer,
		CallID:     "c1",
		FromUserID: "alice",
		SDP:        sdpJSON(t, webrtc.SDPTypeOffer, "v=0"),
	})
	if len(sig.answers) != 0 {
		t.Fatal("answered an offer after teardown")
	}
}

func TestStatusSnapshot(t *testing.T) {
	s, _, _ := testSession(t, "bob", "alice")
	s.neg.phase = PhaseWaiting
	s.neg.pending = []webrtc.ICECandidateInit{{Candidate: "x"}}

	st := s.Status()
	if st.CallID != "c1" || st.Role != "joiner" || st.Phase != "waiting" || st.PendingCandidates != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestManagerIncomingDispatch(t *testing.T) {
	broadcasts := make(chan Signal, 4)
	sig := &pushSignaler{fakeSignaler: &fakeSignaler{}, broadcasts: broadcasts}
	m := New(sig, &fakeBackend{}, "bob", MediaConfig{})
	defer m.Close()

	got := make(chan IncomingCall, 1)
	m.OnIncoming(func(ic IncomingCall) { got <- ic })

	broadcasts <- Signal{Event: "message"} // unrelated broadcast, skipped
	broadcasts <- Signal{
		Event:         SignalIncoming,
		CallID:        "c9",
		InitiatorID:   "alice",
		InitiatorName: "Alice",
	}

	select {
	case ic := <-got:
		if ic.CallID != "c9" || ic.InitiatorID != "alice" || ic.InitiatorName != "Alice" {
			t.Fatalf("unexpected incoming call: %+v", ic)
		}
	case <-time.After(time.Second):
		t.Fatal("incoming call handler never fired")
	}
}

func TestManagerEventStream(t *testing.T) {
	broadcasts := make(chan Signal, 4)
	sig := &pushSignaler{fakeSignaler: &fakeSignaler{}, broadcasts: broadcasts}
	m := New(sig, &fakeBackend{}, "bob", MediaConfig{})
	defer m.Close()

	ch, cancel := m.SubscribeEvents()

	broadcasts <- Signal{
		Event:         SignalIncoming,
		CallID:        "c9",
		InitiatorID:   "alice",
		InitiatorName: "Alice",
	}

	select {
	case ev := <-ch:
		if ev.Kind != EventIncoming || ev.CallID != "c9" || ev.InitiatorName != "Alice" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("incoming event never delivered")
	}

	m.removeSession("c9")

	select {
	case ev := <-ch:
		if ev.Kind != EventEnded || ev.CallID != "c9" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("ended event never delivered")
	}

	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatal("expected closed event channel after cancel")
	}
}

func TestManagerOpenRequiresCallID(t *testing.T) {
	m := New(&fakeSignaler{}, &fakeBackend{}, "bob", MediaConfig{})
	defer m.Close()
	if _, err := m.Open(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty call id")
	}
}

// pushSignaler lets tests feed the manager's broadcast stream.
type pushSignaler struct {
	*fakeSignaler
	broadcasts chan Signal
}

func (p *pushSignaler) Broadcasts() (<-chan Signal, func()) {
	return p.broadcasts, func() {}
}

func TestStartAfterTeardownAborts(t *testing.T) {
	sig := &fakeSignaler{}
	backend := &fakeBackend{initiator: "alice"}
	s := newSession("c1", "alice", sig, backend, MediaConfig{Disabled: true})
	s.Hangup()

	if err := s.Start(context.Background(), "alice"); err == nil {
		t.Fatal("Start must fail on a torn-down session")
	}
	if len(sig.offers) != 0 {
		t.Fatalf("offer sent after teardown: %d", len(sig.offers))
	}
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc != nil {
		t.Fatal("peer connection retained after aborted start")
	}
}

func TestNegotiationFailureTearsDown(t *testing.T) {
	s, backend, _ := testSession(t, "bob", "alice")
	s.neg.phase = PhaseWaiting
	s.neg.pc = &fakePC{remoteErr: errors.New("m-line mismatch")}

	var navigated []bool
	s.OnClosed(func(nav bool) { navigated = append(navigated, nav) })

	s.handleSignal(Signal{
		Event:      SignalOffer,
		CallID:     "c1",
		FromUserID: "alice",
		SDP:        sdpJSON(t, webrtc.SDPTypeOffer, "v=0"),
	})

	select {
	case <-s.Done():
	default:
		t.Fatal("unrecoverable offer failure must tear down the session")
	}
	if _, leaves, _ := backend.counts(); leaves != 1 {
		t.Fatalf("leaves=%d, want 1", leaves)
	}
	if len(navigated) != 1 || !navigated[0] {
		t.Fatalf("navigated = %v", navigated)
	}
}

func TestCandidateFailureKeepsSession(t *testing.T) {
	s, _, _ := testSession(t, "bob", "alice")
	s.neg.phase = PhaseWaiting
	s.neg.remoteSet = true
	s.neg.pc = &fakePC{failAdd: true}

	s.handleSignal(Signal{
		Event:     SignalCandidate,
		CallID:    "c1",
		Candidate: candJSON(t, "candidate:1 1 udp 1 10.0.0.1 5000 typ host"),
	})

	select {
	case <-s.Done():
		t.Fatal("a single rejected candidate must not tear down the session")
	default:
	}
}

func TestViewerDetachTearsDown(t *testing.T) {
	s, backend, _ := testSession(t, "bob", "alice")
	s.idleGrace = 20 * time.Millisecond

	detach := s.ViewerAttach()
	detach()
	detach() // idempotent

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session survived viewer loss past the grace period")
	}
	if _, leaves, _ := backend.counts(); leaves != 1 {
		t.Fatalf("leaves=%d, want 1", leaves)
	}
}

func TestViewerReattachKeepsSession(t *testing.T) {
	s, _, _ := testSession(t, "bob", "alice")
	s.idleGrace = 30 * time.Millisecond

	first := s.ViewerAttach()
	first()
	second := s.ViewerAttach() // page reload within the grace period

	time.Sleep(80 * time.Millisecond)
	select {
	case <-s.Done():
		t.Fatal("reattached session must stay alive")
	default:
	}

	second()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session survived final viewer loss")
	}
}

func TestStatusCarriesMediaNotes(t *testing.T) {
	s, _, _ := testSession(t, "bob", "alice")
	s.noteMedia("warn", "GetUserMedia (video+audio) failed: device busy")

	st := s.Status()
	if len(st.MediaNotes) != 1 || !strings.Contains(st.MediaNotes[0], "device busy") {
		t.Fatalf("media notes = %v", st.MediaNotes)
	}
}
