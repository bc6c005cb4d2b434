package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// teardownTimeout bounds the backend end/leave notification during cleanup.
const teardownTimeout = 5 * time.Second

// viewerGrace is how long a session survives with no viewer attached before
// it tears itself down. Long enough for a page reload to reattach.
const viewerGrace = 10 * time.Second

// Session owns one mounted call: the peer connection, the negotiation state,
// the relay room subscription and the media streams. It is created by the
// Manager and lives until Hangup, a callEnded notification, an unrecoverable
// connection failure, or Close (unmount) — whichever comes first.
type Session struct {
	callID string
	selfID string

	sig     Signaler
	backend Backend
	media   MediaConfig

	// onClosed is invoked exactly once after teardown. navigateBack is false
	// when teardown was triggered by unmount (the caller is already
	// navigating elsewhere).
	onClosed func(navigateBack bool)
	// removed detaches the session from the Manager's table.
	removed func()

	mu         sync.Mutex
	neg        *negotiation
	pc         *webrtc.PeerConnection
	closeMedia func()
	selfView   SelfViewSource
	leaveRoom  func()
	hung       bool
	notes      []string

	viewers   int
	idleTimer *time.Timer
	idleGrace time.Duration

	remote *webmStream
	self   *webmStream

	closed chan struct{}
}

func newSession(callID, selfID string, sig Signaler, backend Backend, media MediaConfig) *Session {
	return &Session{
		callID:  callID,
		selfID:  selfID,
		sig:     sig,
		backend: backend,
		media:   media,
		remote:    newWebmStream(callID + "/remote"),
		self:      newWebmStream(callID + "/self"),
		idleGrace: viewerGrace,
		closed:    make(chan struct{}),
	}
}

// OnClosed sets the teardown notification hook. Must be called before Start.
func (s *Session) OnClosed(fn func(navigateBack bool)) { s.onClosed = fn }

// CallID returns the call this session is mounted on.
func (s *Session) CallID() string { return s.callID }

// Start runs the session's entry sequence: resolve the local role, acquire
// media, wire the peer connection handlers, join the relay room and either
// send the offer (initiator) or register with the backend and wait (joiner).
//
// A media-acquisition failure is fatal and happens before any network side
// effect. Every other backend failure is logged and does not block startup.
func (s *Session) Start(ctx context.Context, initiatorID string) error {
	// The join-existing path does not carry the initiator id; the call
	// record is the authority, never a guess.
	if initiatorID == "" {
		id, err := s.backend.CallInitiator(ctx, s.callID)
		if err != nil {
			return err
		}
		initiatorID = id
	}

	pc, closeMedia, selfView, err := initMediaPC(s.callID, s.media, s.noteMedia)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// Unmounted while capture was in flight — release and abort.
		if closeMedia != nil {
			closeMedia()
		}
		if selfView != nil {
			selfView.Close()
		}
		pc.Close()
		return ctx.Err()
	}

	neg := newNegotiation(s.callID, s.selfID, initiatorID, pc, s.sig)

	s.mu.Lock()
	if s.hung {
		// Torn down while capture was in flight. Teardown never saw these,
		// so release them here.
		s.mu.Unlock()
		if closeMedia != nil {
			closeMedia()
		}
		if selfView != nil {
			selfView.Close()
		}
		pc.Close()
		return fmt.Errorf("call %s: torn down during startup", s.callID)
	}
	s.neg = neg
	s.pc = pc
	s.closeMedia = closeMedia
	s.selfView = selfView
	neg.transition(PhaseStarting)
	s.mu.Unlock()

	log.Printf("CALL [%s]: starting as %s (initiator=%s)", s.callID, neg.role, initiatorID)

	// Handlers must be registered before the relay room is joined — the
	// relay may deliver messages immediately after join.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := s.sig.SendCandidate(s.callID, b); err != nil {
			log.Printf("CALL [%s]: send candidate: %v", s.callID, err)
		}
	})
	attachRemoteForwarder(pc, s.remote, s.callID, s.closed)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("CALL [%s]: connection state %s", s.callID, state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.mu.Lock()
			if s.neg.phase == PhaseNegotiating {
				s.neg.transition(PhaseConnected)
			}
			s.mu.Unlock()
		case webrtc.PeerConnectionStateFailed:
			go s.teardown(true)
		}
	})

	if neg.role == RoleInitiator {
		// Construct the offer first, join the room, then broadcast it.
		offer, err := neg.buildOffer()
		if err != nil {
			s.releaseEarly()
			return err
		}
		events, leave, err := s.sig.JoinCallRoom(s.callID)
		if err != nil {
			s.releaseEarly()
			return err
		}
		s.setRoom(leave)
		s.mu.Lock()
		if s.hung {
			s.mu.Unlock()
			return fmt.Errorf("call %s: torn down during startup", s.callID)
		}
		neg.transition(PhaseOffering)
		s.mu.Unlock()
		if err := s.sig.SendOffer(s.callID, offer); err != nil {
			log.Printf("CALL [%s]: send offer: %v", s.callID, err)
		}
		go s.loop(events)
	} else {
		// Join via the backend first (idempotent — an "already joined"
		// conflict is success), then enter the room and wait for the offer.
		if err := s.backend.JoinCall(ctx, s.callID); err != nil {
			log.Printf("CALL [%s]: join request failed (continuing): %v", s.callID, err)
		}
		events, leave, err := s.sig.JoinCallRoom(s.callID)
		if err != nil {
			s.releaseEarly()
			return err
		}
		s.setRoom(leave)
		s.mu.Lock()
		if s.hung {
			s.mu.Unlock()
			return fmt.Errorf("call %s: torn down during startup", s.callID)
		}
		neg.transition(PhaseWaiting)
		s.mu.Unlock()
		go s.loop(events)
	}

	go s.pumpSelfView()

	// A session nobody is watching should not outlive the grace period;
	// covers the tab vanishing between starting the call and the page's
	// media sockets connecting.
	s.mu.Lock()
	if s.viewers == 0 && !s.hung {
		s.armIdleLocked()
	}
	s.mu.Unlock()
	return nil
}

// noteMedia records a capture diagnostic for the status endpoints.
func (s *Session) noteMedia(level, msg string) {
	s.mu.Lock()
	s.notes = append(s.notes, level+": "+msg)
	s.mu.Unlock()
}

// releaseEarly frees media and the PC after a startup failure that happened
// before the event loop took ownership.
func (s *Session) releaseEarly() {
	s.mu.Lock()
	closeMedia, pc, sv := s.closeMedia, s.pc, s.selfView
	s.closeMedia, s.selfView = nil, nil
	s.mu.Unlock()
	if closeMedia != nil {
		closeMedia()
	}
	if sv != nil {
		sv.Close()
	}
	if pc != nil {
		pc.Close()
	}
}

func (s *Session) setRoom(leave func()) {
	s.mu.Lock()
	if s.hung {
		// Teardown already ran and will never see this subscription.
		s.mu.Unlock()
		leave()
		return
	}
	s.leaveRoom = leave
	s.mu.Unlock()
}

// loop consumes relay room events until the subscription closes or the
// session is torn down. Events are handled strictly in delivery order.
func (s *Session) loop(events <-chan Signal) {
	for {
		select {
		case <-s.closed:
			return
		case sig, ok := <-events:
			if !ok {
				return
			}
			s.handleSignal(sig)
		}
	}
}

// handleSignal routes one relay message. Role mismatches and foreign call
// ids are protocol noise, dropped without error.
func (s *Session) handleSignal(sig Signal) {
	if sig.CallID != "" && sig.CallID != s.callID {
		return
	}

	switch sig.Event {
	case SignalOffer:
		s.withNeg(func(n *negotiation) error { return n.handleOffer(sig.FromUserID, sig.SDP) })
	case SignalAnswer:
		s.withNeg(func(n *negotiation) error { return n.handleAnswer(sig.FromUserID, sig.SDP) })
	case SignalCandidate:
		s.withNeg(func(n *negotiation) error { return n.handleCandidate(sig.Candidate) })
	case SignalCallEnded:
		log.Printf("CALL [%s]: remote end notification", s.callID)
		s.teardown(true)
	}
}

func (s *Session) withNeg(fn func(*negotiation) error) {
	s.mu.Lock()
	if s.hung || s.neg == nil {
		s.mu.Unlock()
		return
	}
	err := fn(s.neg)
	s.mu.Unlock()
	if err == nil {
		return
	}
	log.Printf("CALL [%s]: %v", s.callID, err)
	if isFatal(err) {
		// The handshake cannot proceed; holding capture in Waiting forever
		// helps nobody.
		s.teardown(true)
	}
}

// ViewerAttach registers one viewer media connection. The returned detach
// must be called when the connection closes; once the last viewer detaches
// and nobody reattaches within the grace period, the session tears down.
// This is what ends the call when the tab is closed or navigated away
// without pressing hang up, while a plain reload reattaches in time.
func (s *Session) ViewerAttach() (detach func()) {
	s.mu.Lock()
	s.viewers++
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.viewers--
			if s.viewers == 0 && !s.hung {
				s.armIdleLocked()
			}
			s.mu.Unlock()
		})
	}
}

func (s *Session) armIdleLocked() {
	if s.idleTimer != nil {
		return
	}
	s.idleTimer = time.AfterFunc(s.idleGrace, func() {
		s.mu.Lock()
		abandoned := s.viewers == 0 && !s.hung
		s.mu.Unlock()
		if abandoned {
			log.Printf("CALL [%s]: no viewer attached for %s, tearing down", s.callID, s.idleGrace)
			s.teardown(false)
		}
	})
}

// Hangup tears down the session and navigates back. Idempotent.
func (s *Session) Hangup() {
	s.teardown(true)
}

// Close tears down the session without triggering navigation — used when
// the call view unmounts because the user is already going elsewhere.
func (s *Session) Close() {
	s.teardown(false)
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.closed }

// teardown runs the exit sequence exactly once: notify the backend
// (end-call for the initiator, leave-call otherwise; failures logged, never
// blocking), stop local tracks, close the peer connection, cancel the room
// subscription and fire the closed hook.
func (s *Session) teardown(navigateBack bool) {
	s.mu.Lock()
	if s.hung {
		s.mu.Unlock()
		return
	}
	s.hung = true
	neg := s.neg
	if neg != nil {
		neg.phase = PhaseClosed
	}
	pc, closeMedia, sv, leave := s.pc, s.closeMedia, s.selfView, s.leaveRoom
	s.closeMedia, s.selfView, s.leaveRoom = nil, nil, nil
	idle := s.idleTimer
	s.idleTimer = nil
	s.mu.Unlock()

	if idle != nil {
		idle.Stop()
	}

	close(s.closed)

	if neg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		var err error
		if neg.role == RoleInitiator {
			err = s.backend.EndCall(ctx, s.callID)
		} else {
			err = s.backend.LeaveCall(ctx, s.callID)
		}
		cancel()
		if err != nil {
			log.Printf("CALL [%s]: %s notify failed: %v", s.callID, neg.role, err)
		}
	}

	if closeMedia != nil {
		closeMedia()
	}
	if sv != nil {
		sv.Close()
	}
	if pc != nil {
		pc.Close()
	}
	if leave != nil {
		leave()
	}
	s.remote.closeAll()
	s.self.closeAll()

	if s.removed != nil {
		s.removed()
	}
	log.Printf("CALL [%s]: torn down (navigate_back=%v)", s.callID, navigateBack)
	if s.onClosed != nil {
		s.onClosed(navigateBack)
	}
}

// pumpSelfView streams encoded local camera frames into the self-view
// stream until the session ends. No-op when capture produced no video.
func (s *Session) pumpSelfView() {
	s.mu.Lock()
	src := s.selfView
	s.mu.Unlock()
	if src == nil {
		return
	}

	start := time.Now()
	for {
		select {
		case <-s.closed:
			return
		default:
		}
		data, release, err := src.ReadFrame()
		if err != nil {
			return
		}
		keyframe := len(data) > 0 && data[0]&0x01 == 0
		s.self.handleVideoFrame(time.Since(start).Milliseconds(), keyframe, data)
		if release != nil {
			release()
		}
	}
}

// SubscribeRemoteMedia streams the remote participant's WebM media.
func (s *Session) SubscribeRemoteMedia() (<-chan []byte, func()) {
	return s.remote.subscribeMedia()
}

// SubscribeSelfMedia streams the local camera preview.
func (s *Session) SubscribeSelfMedia() (<-chan []byte, func()) {
	return s.self.subscribeMedia()
}

// SessionStatus is a diagnostic snapshot for the viewer's debug endpoint.
type SessionStatus struct {
	CallID            string   `json:"call_id"`
	Role              string   `json:"role"`
	Phase             string   `json:"phase"`
	PendingCandidates int      `json:"pending_candidates"`
	MediaNotes        []string `json:"media_notes,omitempty"`
}

// Status reports the session's current negotiation state, including any
// capture diagnostics recorded during media acquisition.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SessionStatus{CallID: s.callID, Phase: PhaseIdle.String()}
	if s.neg != nil {
		st.Role = s.neg.role.String()
		st.Phase = s.neg.phase.String()
		st.PendingCandidates = len(s.neg.pending)
	}
	st.MediaNotes = append(st.MediaNotes, s.notes...)
	return st
}
