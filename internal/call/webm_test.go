package call

import (
	"bytes"
	"testing"
)

// vp8Key fabricates a minimal VP8 keyframe payload with the given dimensions
// encoded in the uncompressed data chunk header.
func vp8Key(w, h uint16) []byte {
	return []byte{
		0x00, 0x00, 0x00, // frame tag, P bit clear = keyframe
		0x9D, 0x01, 0x2A, // start code
		byte(w), byte(w >> 8),
		byte(h), byte(h >> 8),
	}
}

func TestInitSegmentWaitsForKeyframe(t *testing.T) {
	ws := newWebmStream("t/remote")
	ch, cancel := ws.subscribeMedia()
	defer cancel()

	// Delta frames before any keyframe are discarded.
	ws.handleVideoFrame(0, false, []byte{0x01, 0x00, 0x00})
	select {
	case msg := <-ch:
		t.Fatalf("got %d bytes before first keyframe", len(msg))
	default:
	}

	ws.handleVideoFrame(33, true, vp8Key(320, 240))

	init := <-ch
	if !bytes.HasPrefix(init, idEBML) {
		t.Fatal("first message is not an EBML header")
	}
	if !bytes.Contains(init, []byte("webm")) || !bytes.Contains(init, []byte("V_VP8")) {
		t.Fatal("init segment missing doctype or codec id")
	}
	if bytes.Contains(init, []byte("A_OPUS")) {
		t.Fatal("audio track present without enableAudio")
	}
	if ws.videoWidth != 320 || ws.videoHeight != 240 {
		t.Fatalf("dimensions %dx%d, want 320x240", ws.videoWidth, ws.videoHeight)
	}

	cluster := <-ch
	if !bytes.HasPrefix(cluster, idCluster) {
		t.Fatal("second message is not a cluster")
	}
}

func TestAudioTrackAnnounced(t *testing.T) {
	ws := newWebmStream("t/remote")
	ws.enableAudio()
	ws.handleAudioFrame(0, []byte{0xFC})
	ws.handleVideoFrame(0, true, vp8Key(640, 480))

	ws.mu.Lock()
	init := ws.initSeg
	ws.mu.Unlock()
	if !bytes.Contains(init, []byte("A_OPUS")) {
		t.Fatal("init segment missing Opus track")
	}
	if !bytes.Contains(init, opusHead) {
		t.Fatal("init segment missing OpusHead codec private data")
	}
}

func TestLateSubscriberGetsReplay(t *testing.T) {
	ws := newWebmStream("t/remote")
	ws.handleVideoFrame(0, true, vp8Key(640, 480))

	ch, cancel := ws.subscribeMedia()
	defer cancel()

	init := <-ch
	if !bytes.HasPrefix(init, idEBML) {
		t.Fatal("late subscriber did not receive the init segment first")
	}
	key := <-ch
	if !bytes.HasPrefix(key, idCluster) {
		t.Fatal("late subscriber did not receive the cached keyframe cluster")
	}
}

func TestCloseAllRejectsNewSubscribers(t *testing.T) {
	ws := newWebmStream("t/remote")
	ch1, _ := ws.subscribeMedia()

	ws.closeAll()
	if _, open := <-ch1; open {
		t.Fatal("existing subscriber channel not closed")
	}

	ch2, cancel := ws.subscribeMedia()
	defer cancel()
	if _, open := <-ch2; open {
		t.Fatal("post-close subscription should be closed immediately")
	}

	// Frames after close are discarded without panic.
	ws.handleVideoFrame(0, true, vp8Key(640, 480))
	ws.handleAudioFrame(0, []byte{0xFC})
}

func TestSimpleBlockLayout(t *testing.T) {
	data := []byte{0xAA, 0xBB}
	b := webmSimpleBlock(1, 5, true, data)
	if b[0] != 0xA3 {
		t.Fatalf("element id %#x", b[0])
	}
	// id + vint size + track vint + int16 relMs + flags + payload
	body := b[2:]
	if body[0] != 0x81 {
		t.Fatalf("track vint %#x, want 0x81", body[0])
	}
	if body[1] != 0x00 || body[2] != 0x05 {
		t.Fatalf("relMs bytes %#x %#x", body[1], body[2])
	}
	if body[3] != 0x80 {
		t.Fatalf("keyframe flags %#x", body[3])
	}
	if !bytes.Equal(body[4:], data) {
		t.Fatal("payload mismatch")
	}
}

func TestEbmlVintBoundaries(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x80}},
		{0x7E, []byte{0xFE}},
		{0x7F, []byte{0x40, 0x7F}},
		{0x3FFE, []byte{0x7F, 0xFE}},
		{0x3FFF, []byte{0x20, 0x3F, 0xFF}},
	}
	for _, c := range cases {
		if got := ebmlVint(c.v); !bytes.Equal(got, c.want) {
			t.Errorf("ebmlVint(%#x) = %v, want %v", c.v, got, c.want)
		}
	}
}
