//go:build !linux

package call

import (
	"log"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// initMediaPC creates a receive-only PeerConnection on non-Linux platforms.
// Camera/mic capture via pion/mediadevices requires platform-specific drivers
// (V4L2/malgo on Linux); elsewhere the call is watch-and-listen only.
func initMediaPC(callID string, cfg MediaConfig, logFn func(level, msg string)) (*webrtc.PeerConnection, func(), SelfViewSource, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, nil, nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, nil, nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.iceServers()})
	if err != nil {
		return nil, nil, nil, err
	}

	// Add recvonly transceivers so SDP has valid m-lines with ICE credentials.
	addRecvOnlyTransceivers(callID, pc)

	log.Printf("CALL [%s]: peer connection ready (receive-only, no local media on this platform)", callID)
	if logFn != nil {
		logFn("info", "no local capture on this platform")
	}
	return pc, nil, nil, nil
}
