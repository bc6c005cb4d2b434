package call

import (
	"log"

	"github.com/pion/webrtc/v4"
)

// MediaConfig controls local capture and ICE gathering for new sessions.
type MediaConfig struct {
	// ICEServers are STUN/TURN URLs handed to the peer connection.
	ICEServers []string

	// Disabled skips capture entirely; the session is receive-only.
	Disabled bool
}

func (c MediaConfig) iceServers() []webrtc.ICEServer {
	urls := c.ICEServers
	if len(urls) == 0 {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}

// SelfViewSource provides encoded VP8 frames of the local camera for
// self-view display in the browser. Only non-nil when video capture
// succeeded. ReadFrame blocks until the next frame is ready.
// Close must be called when the session ends.
type SelfViewSource interface {
	ReadFrame() (data []byte, release func(), err error)
	Close() error
}

// addRecvOnlyTransceivers adds recvonly transceivers for video and audio so
// CreateOffer/CreateAnswer always produces valid m-lines with ICE credentials.
func addRecvOnlyTransceivers(callID string, pc *webrtc.PeerConnection) {
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("CALL [%s]: AddTransceiver(video) error: %v", callID, err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		log.Printf("CALL [%s]: AddTransceiver(audio) error: %v", callID, err)
	}
}
