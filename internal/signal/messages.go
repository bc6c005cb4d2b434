package signal

import (
	"encoding/json"

	"github.com/teamloop/teamloop/internal/api"
)

// Event names on the relay wire. Offer, answer and candidate flow inside a
// call room; register/joinCallRoom are outbound control events; incomingCall
// is delivered outside any room to prompt the callee.
const (
	EventRegister     = "register"
	EventJoinCallRoom = "joinCallRoom"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventCandidate    = "ice-candidate"
	EventCallEnded    = "callEnded"
	EventIncomingCall = "incomingCall"
	EventMessage      = "message"
)

// Envelope is one relay message. Only the fields relevant to the event are
// set; SDP and Candidate stay raw so the call engine owns their decoding.
type Envelope struct {
	Event         string          `json:"event"`
	CallID        api.ID          `json:"callId,omitempty"`
	SDP           json.RawMessage `json:"sdp,omitempty"`
	Candidate     json.RawMessage `json:"candidate,omitempty"`
	FromUserID    api.ID          `json:"fromUserId,omitempty"`
	ToUserID      api.ID          `json:"toUserId,omitempty"`
	UserID        api.ID          `json:"userId,omitempty"`
	InitiatorID   api.ID          `json:"initiatorId,omitempty"`
	InitiatorName string          `json:"initiatorName,omitempty"`
	Message       json.RawMessage `json:"message,omitempty"`
}
