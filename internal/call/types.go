// Package call manages native WebRTC call sessions using Pion. It is
// designed to be maximally standalone — it imports only Pion libraries and
// stdlib. Coupling to the relay and the REST backend is via the Signaler and
// Backend interfaces only; the concrete adapters live in internal/app, the
// only place that imports all three packages.
package call

import "context"

// Signal is the subset of a relay envelope the call engine consumes.
type Signal struct {
	Event         string
	CallID        string
	FromUserID    string
	ToUserID      string
	SDP           []byte
	Candidate     []byte
	InitiatorID   string
	InitiatorName string
}

// Relay event names the engine reacts to.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "ice-candidate"
	SignalCallEnded = "callEnded"
	SignalIncoming  = "incomingCall"
)

// Signaler is the only surface the call package needs from the relay layer.
type Signaler interface {
	// JoinCallRoom announces presence in the call's relay room and returns
	// the room's event stream with a leave func. The stream must be
	// registered before the join is announced so no message can be missed.
	JoinCallRoom(callID string) (events <-chan Signal, leave func(), err error)

	// Broadcasts streams events delivered outside any room (incoming-call
	// prompts). cancel must be called when done.
	Broadcasts() (events <-chan Signal, cancel func())

	SendOffer(callID string, sdp []byte) error
	SendAnswer(callID string, sdp []byte, toUserID string) error
	SendCandidate(callID string, candidate []byte) error
}

// StartOutcome is the result of creating a call. InitiatorID is empty when
// the conversation already had a call in progress — the session then
// resolves the initiator from the call record itself.
type StartOutcome struct {
	CallID      string
	InitiatorID string
}

// Backend is the slice of the call-lifecycle REST API the engine needs.
type Backend interface {
	CreateCall(ctx context.Context, conversationID string) (StartOutcome, error)
	CallInitiator(ctx context.Context, callID string) (string, error)
	JoinCall(ctx context.Context, callID string) error
	LeaveCall(ctx context.Context, callID string) error
	EndCall(ctx context.Context, callID string) error
}

// IncomingCall is delivered to OnIncoming handlers when the relay announces
// a call to this user. Accept opens the session as a joiner.
type IncomingCall struct {
	CallID        string
	InitiatorID   string
	InitiatorName string
}

// Manager-level event kinds fanned out to SubscribeEvents subscribers.
const (
	EventIncoming = "incoming"
	EventEnded    = "ended"
)

// Event is a manager notification consumed by UI event streams.
type Event struct {
	Kind          string `json:"kind"`
	CallID        string `json:"callId"`
	InitiatorID   string `json:"initiatorId,omitempty"`
	InitiatorName string `json:"initiatorName,omitempty"`
}
