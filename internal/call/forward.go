package call

import (
	"log"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

const (
	vp8ClockRate  = 90000
	opusClockRate = 48000

	// pliInterval is how often a PictureLossIndication is sent to the remote
	// peer while its video track is being read.  Without periodic PLIs the
	// remote encoder may never emit another keyframe, so viewers joining
	// mid-call would wait forever for a clean decode point.
	pliInterval = 3 * time.Second
)

// attachRemoteForwarder wires pc's incoming tracks into stream.  Each remote
// track gets a read goroutine that reassembles RTP packets into full encoded
// frames via samplebuilder and feeds them to the stream with millisecond
// timecodes.  Goroutines exit when the track errors out or closed is closed.
func attachRemoteForwarder(pc *webrtc.PeerConnection, stream *webmStream, callID string, closed <-chan struct{}) {
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("CALL [%s]: remote track — kind=%s codec=%s ssrc=%d",
			callID, track.Kind(), track.Codec().MimeType, track.SSRC())
		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			go requestKeyframes(pc, track, callID, closed)
			go forwardVideo(track, stream, callID)
		case webrtc.RTPCodecTypeAudio:
			stream.enableAudio()
			go forwardAudio(track, stream, callID)
		}
	})
}

// requestKeyframes sends a PLI for the track every pliInterval until the
// session closes.
func requestKeyframes(pc *webrtc.PeerConnection, track *webrtc.TrackRemote, callID string, closed <-chan struct{}) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			err := pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			})
			if err != nil {
				log.Printf("CALL [%s]: PLI send error: %v", callID, err)
				return
			}
		}
	}
}

// forwardVideo reassembles VP8 frames from the remote video track and feeds
// them into the stream.  maxLate of 64 packets absorbs moderate reordering
// without adding noticeable latency.
func forwardVideo(track *webrtc.TrackRemote, stream *webmStream, callID string) {
	builder := samplebuilder.New(64, &codecs.VP8Packet{}, vp8ClockRate)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Printf("CALL [%s]: remote video track ended: %v", callID, err)
			return
		}
		builder.Push(pkt)
		for sample := builder.Pop(); sample != nil; sample = builder.Pop() {
			if len(sample.Data) == 0 {
				continue
			}
			// VP8 payload header: P bit (bit 0 of the first byte) is 0 for
			// keyframes, 1 for interframes.
			keyframe := sample.Data[0]&0x01 == 0
			tsMs := int64(sample.PacketTimestamp) * 1000 / vp8ClockRate
			stream.handleVideoFrame(tsMs, keyframe, sample.Data)
		}
	}
}

// forwardAudio reassembles Opus frames from the remote audio track and feeds
// them into the stream.
func forwardAudio(track *webrtc.TrackRemote, stream *webmStream, callID string) {
	builder := samplebuilder.New(32, &codecs.OpusPacket{}, opusClockRate)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Printf("CALL [%s]: remote audio track ended: %v", callID, err)
			return
		}
		builder.Push(pkt)
		for sample := builder.Pop(); sample != nil; sample = builder.Pop() {
			if len(sample.Data) == 0 {
				continue
			}
			tsMs := int64(sample.PacketTimestamp) * 1000 / opusClockRate
			stream.handleAudioFrame(tsMs, sample.Data)
		}
	}
}
