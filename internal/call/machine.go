package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/pion/webrtc/v4"
)

// fatalError marks a handshake failure the session cannot recover from:
// the only legitimate peer sent a description we cannot apply, or our own
// answer cannot be produced or delivered. The owning session tears down
// when a handler returns one. Individual candidate failures stay non-fatal;
// the remaining candidates may still connect.
type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

func fatal(err error) error { return fatalError{err: err} }

func isFatal(err error) bool {
	var f fatalError
	return errors.As(err, &f)
}

// Role fixes which side of the handshake this participant drives.
// Exactly one of the two participants in a call is the initiator.
type Role int

const (
	RoleJoiner Role = iota
	RoleInitiator
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "joiner"
}

// Phase is the negotiation state of one session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseOffering    // initiator: offer sent, answer pending
	PhaseWaiting     // joiner: offer pending
	PhaseNegotiating // remote description set, ICE in progress
	PhaseConnected
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseOffering:
		return "offering"
	case PhaseWaiting:
		return "waiting"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseConnected:
		return "connected"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// legalNext returns whether p may transition to next. Closed is reachable
// from every phase (hang-up, remote end, unmount); everything else follows
// the handshake order.
func (p Phase) legalNext(next Phase) bool {
	if next == PhaseClosed {
		return true
	}
	switch p {
	case PhaseIdle:
		return next == PhaseStarting
	case PhaseStarting:
		return next == PhaseOffering || next == PhaseWaiting
	case PhaseOffering, PhaseWaiting:
		return next == PhaseNegotiating
	case PhaseNegotiating:
		return next == PhaseConnected
	}
	return false
}

// peerConn is the slice of *webrtc.PeerConnection the negotiator drives.
// Narrowed to an interface so the handshake logic is testable without ICE.
type peerConn interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
}

// negotiation holds the handshake state for one session. Not safe for
// concurrent use: the owning Session serializes access.
//
// Candidates arriving before the remote description are buffered in arrival
// order and drained as soon as the description is set; the buffer is empty
// in every phase at or past Negotiating.
type negotiation struct {
	callID      string
	selfID      string
	initiatorID string
	role        Role
	phase       Phase

	pc  peerConn
	sig Signaler

	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newNegotiation(callID, selfID, initiatorID string, pc peerConn, sig Signaler) *negotiation {
	role := RoleJoiner
	if selfID == initiatorID {
		role = RoleInitiator
	}
	return &negotiation{
		callID:      callID,
		selfID:      selfID,
		initiatorID: initiatorID,
		role:        role,
		phase:       PhaseIdle,
		pc:          pc,
		sig:         sig,
	}
}

func (n *negotiation) transition(next Phase) error {
	if !n.phase.legalNext(next) {
		return fmt.Errorf("illegal transition %s → %s", n.phase, next)
	}
	log.Printf("CALL [%s]: %s → %s", n.callID, n.phase, next)
	n.phase = next
	return nil
}

// buildOffer constructs the session offer and installs it as the local
// description. Initiator only. The offer is returned for sending after the
// relay room has been joined.
func (n *negotiation) buildOffer() ([]byte, error) {
	if n.role != RoleInitiator {
		return nil, fmt.Errorf("role %s cannot offer", n.role)
	}
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local offer: %w", err)
	}
	return json.Marshal(offer)
}

// handleOffer processes a received offer. Only the joiner acts, and only
// when the sender is the known initiator — anything else is protocol noise
// and is dropped without error.
func (n *negotiation) handleOffer(from string, sdp []byte) error {
	if n.role != RoleJoiner || from != n.initiatorID {
		log.Printf("CALL [%s]: ignoring offer from %s (role=%s)", n.callID, from, n.role)
		return nil
	}
	if n.phase != PhaseWaiting {
		log.Printf("CALL [%s]: ignoring offer in phase %s", n.callID, n.phase)
		return nil
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(sdp, &desc); err != nil {
		return fatal(fmt.Errorf("decode offer: %w", err))
	}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fatal(fmt.Errorf("set remote offer: %w", err))
	}
	n.remoteSet = true
	n.drainPending()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fatal(fmt.Errorf("create answer: %w", err))
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return fatal(fmt.Errorf("set local answer: %w", err))
	}
	b, err := json.Marshal(answer)
	if err != nil {
		return fatal(err)
	}
	if err := n.sig.SendAnswer(n.callID, b, n.initiatorID); err != nil {
		return fatal(fmt.Errorf("send answer: %w", err))
	}
	return n.transition(PhaseNegotiating)
}

// handleAnswer processes a received answer. Only the initiator acts, and
// never on its own echo.
func (n *negotiation) handleAnswer(from string, sdp []byte) error {
	if n.role != RoleInitiator || from == n.selfID {
		log.Printf("CALL [%s]: ignoring answer from %s (role=%s)", n.callID, from, n.role)
		return nil
	}
	if n.phase != PhaseOffering {
		log.Printf("CALL [%s]: ignoring answer in phase %s", n.callID, n.phase)
		return nil
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(sdp, &desc); err != nil {
		return fatal(fmt.Errorf("decode answer: %w", err))
	}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fatal(fmt.Errorf("set remote answer: %w", err))
	}
	n.remoteSet = true
	n.drainPending()
	return n.transition(PhaseNegotiating)
}

// handleCandidate applies a remote ICE candidate, or buffers it when the
// remote description is not set yet. Candidates may legitimately arrive
// before the offer/answer and must not be dropped.
func (n *negotiation) handleCandidate(raw []byte) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &cand); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if !n.remoteSet {
		n.pending = append(n.pending, cand)
		log.Printf("CALL [%s]: buffered candidate (%d pending)", n.callID, len(n.pending))
		return nil
	}
	if err := n.pc.AddICECandidate(cand); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// drainPending applies buffered candidates strictly in arrival order.
func (n *negotiation) drainPending() {
	if len(n.pending) == 0 {
		return
	}
	log.Printf("CALL [%s]: draining %d buffered candidates", n.callID, len(n.pending))
	for _, cand := range n.pending {
		if err := n.pc.AddICECandidate(cand); err != nil {
			log.Printf("CALL [%s]: buffered candidate rejected: %v", n.callID, err)
		}
	}
	n.pending = nil
}
