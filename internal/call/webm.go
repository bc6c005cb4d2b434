package call

// webm.go — minimal WebM/EBML muxer for live streaming to the browser.
//
// Pure Go EBML encoding, no external dependencies.
//
// The output is a live WebM stream with a VP8 video track and (optionally)
// an Opus audio track.  The first binary message is the init segment (EBML
// header + Segment start + Info + Tracks); every following message is one
// self-contained Cluster.  The browser feeds these into a MediaSource buffer
// attached to a <video> element, so remote/self video display needs no
// RTCPeerConnection in the page.

import (
	"bytes"
	"encoding/binary"
	"log"
	"math"
	"sync"
)

// ─── EBML encoding helpers ───────────────────────────────────────────────────

// ebmlVint encodes v as an EBML variable-length integer for element sizes.
// Valid range: 0..268435454 (4 bytes max, enough for any WebM element here).
func ebmlVint(v uint64) []byte {
	switch {
	case v < 0x7F:
		return []byte{byte(0x80 | v)}
	case v < 0x3FFF:
		return []byte{byte(0x40 | (v >> 8)), byte(v)}
	case v < 0x1FFFFF:
		return []byte{byte(0x20 | (v >> 16)), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(0x10 | (v >> 24)), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// ebmlUnkSize is the 8-byte unknown-size marker used for the streaming
// Segment element whose length is not known at write time.
var ebmlUnkSize = []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ebmlElem encodes an EBML element: id bytes + vint(len(data)) + data.
func ebmlElem(id, data []byte) []byte {
	b := make([]byte, 0, len(id)+8+len(data))
	b = append(b, id...)
	b = append(b, ebmlVint(uint64(len(data)))...)
	return append(b, data...)
}

// ebmlUint encodes an unsigned integer in the minimal number of big-endian bytes.
func ebmlUint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	n := 0
	for x := v; x > 0; x >>= 8 {
		n++
	}
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func ebmlConcat(slices ...[]byte) []byte {
	n := 0
	for _, s := range slices {
		n += len(s)
	}
	b := make([]byte, 0, n)
	for _, s := range slices {
		b = append(b, s...)
	}
	return b
}

// ─── Element IDs ─────────────────────────────────────────────────────────────

var (
	idEBML         = []byte{0x1A, 0x45, 0xDF, 0xA3}
	idEBMLVersion  = []byte{0x42, 0x86}
	idEBMLReadVer  = []byte{0x42, 0xF7}
	idEBMLMaxIDLen = []byte{0x42, 0xF2}
	idEBMLMaxSzLen = []byte{0x42, 0xF3}
	idDocType      = []byte{0x42, 0x82}
	idDocTypeVer   = []byte{0x42, 0x87}
	idDocTypeRdVer = []byte{0x42, 0x85}
	idSegment      = []byte{0x18, 0x53, 0x80, 0x67}
	idInfo         = []byte{0x15, 0x49, 0xA9, 0x66}
	idTcScale      = []byte{0x2A, 0xD7, 0xB1}
	idMuxApp       = []byte{0x4D, 0x80}
	idWrtApp       = []byte{0x57, 0x41}
	idTracks       = []byte{0x16, 0x54, 0xAE, 0x6B}
	idTrackEntry   = []byte{0xAE}
	idTrackNum     = []byte{0xD7}
	idTrackUID     = []byte{0x73, 0xC5}
	idTrackType    = []byte{0x83}
	idCodecID      = []byte{0x86}
	idCodecPrv     = []byte{0x63, 0xA2}
	idVideo        = []byte{0xE0}
	idPixelW       = []byte{0xB0}
	idPixelH       = []byte{0xBA}
	idAudio        = []byte{0xE1}
	idSampFreq     = []byte{0xB5}
	idChannels     = []byte{0x9F}
	idCluster      = []byte{0x1F, 0x43, 0xB6, 0x75}
	idTimecode     = []byte{0xE7}
	idSimpleBlock  = []byte{0xA3}
)

// opusHead is the codec private data (OpusHead) for mono 48 kHz Opus,
// required by WebM for Opus audio tracks.
var opusHead = []byte{
	'O', 'p', 'u', 's', 'H', 'e', 'a', 'd', // magic
	0x01,       // version = 1
	0x01,       // channels = 1 (mono)
	0x38, 0x01, // pre-skip = 312 (LE)
	0x80, 0xBB, 0x00, 0x00, // input sample rate = 48000 (LE)
	0x00, 0x00, // output gain = 0 (LE)
	0x00, // channel mapping family = 0
}

// webmInitSegment returns the WebM initialisation segment:
// EBML header + Segment (unknown size) + Info + Tracks.
// withAudio adds an Opus audio track (track 2) alongside VP8 video (track 1).
func webmInitSegment(videoW, videoH uint16, withAudio bool) []byte {
	var buf bytes.Buffer

	ebmlBody := ebmlConcat(
		ebmlElem(idEBMLVersion, ebmlUint(1)),
		ebmlElem(idEBMLReadVer, ebmlUint(1)),
		ebmlElem(idEBMLMaxIDLen, ebmlUint(4)),
		ebmlElem(idEBMLMaxSzLen, ebmlUint(8)),
		ebmlElem(idDocType, []byte("webm")),
		ebmlElem(idDocTypeVer, ebmlUint(2)),
		ebmlElem(idDocTypeRdVer, ebmlUint(2)),
	)
	buf.Write(ebmlElem(idEBML, ebmlBody))

	// Segment with unknown size (streaming)
	buf.Write(idSegment)
	buf.Write(ebmlUnkSize)

	infoBody := ebmlConcat(
		ebmlElem(idTcScale, ebmlUint(1000000)), // 1 ms per timecode unit
		ebmlElem(idMuxApp, []byte("teamloop")),
		ebmlElem(idWrtApp, []byte("teamloop")),
	)
	buf.Write(ebmlElem(idInfo, infoBody))

	videoBody := ebmlConcat(
		ebmlElem(idPixelW, ebmlUint(uint64(videoW))),
		ebmlElem(idPixelH, ebmlUint(uint64(videoH))),
	)
	videoEntry := ebmlConcat(
		ebmlElem(idTrackNum, ebmlUint(1)),
		ebmlElem(idTrackUID, ebmlUint(1)),
		ebmlElem(idTrackType, ebmlUint(1)), // 1 = video
		ebmlElem(idCodecID, []byte("V_VP8")),
		ebmlElem(idVideo, videoBody),
	)
	tracksBody := ebmlElem(idTrackEntry, videoEntry)

	if withAudio {
		// SamplingFrequency is a 4-byte IEEE 754 float.
		freqBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(freqBytes, math.Float32bits(48000.0))
		audioBody := ebmlConcat(
			ebmlElem(idSampFreq, freqBytes),
			ebmlElem(idChannels, ebmlUint(1)),
		)
		audioEntry := ebmlConcat(
			ebmlElem(idTrackNum, ebmlUint(2)),
			ebmlElem(idTrackUID, ebmlUint(2)),
			ebmlElem(idTrackType, ebmlUint(2)), // 2 = audio
			ebmlElem(idCodecID, []byte("A_OPUS")),
			ebmlElem(idCodecPrv, opusHead),
			ebmlElem(idAudio, audioBody),
		)
		tracksBody = ebmlConcat(tracksBody, ebmlElem(idTrackEntry, audioEntry))
	}
	buf.Write(ebmlElem(idTracks, tracksBody))
	return buf.Bytes()
}

// webmCluster builds a complete Cluster message from pre-encoded SimpleBlock
// elements.  clusterMs is the cluster's absolute timecode in ms.  Known size
// so MSE doesn't have to scan for the next cluster start.
func webmCluster(clusterMs int64, blocks []byte) []byte {
	tcElem := ebmlElem(idTimecode, ebmlUint(uint64(clusterMs)))
	return ebmlElem(idCluster, ebmlConcat(tcElem, blocks))
}

// webmSimpleBlock encodes a single SimpleBlock element.
// trackNum: 1 = video, 2 = audio.
// relMs: timecode relative to cluster start (signed int16).
// keyframe sets flags = 0x80; delta frames use 0x00.
func webmSimpleBlock(trackNum int, relMs int16, keyframe bool, data []byte) []byte {
	trackVint := ebmlVint(uint64(trackNum))
	var flags byte
	if keyframe {
		flags = 0x80
	}
	content := make([]byte, len(trackVint)+2+1+len(data))
	copy(content, trackVint)
	binary.BigEndian.PutUint16(content[len(trackVint):], uint16(relMs))
	content[len(trackVint)+2] = flags
	copy(content[len(trackVint)+3:], data)
	return ebmlElem(idSimpleBlock, content)
}

// ─── webmStream ──────────────────────────────────────────────────────────────

// webmStream manages one live WebM output, either the remote peer's media or
// the local self-view.  Media goroutines call handleVideoFrame and
// handleAudioFrame; viewer WebSocket handlers subscribe via subscribeMedia.
type webmStream struct {
	mu   sync.Mutex
	name string // "<callID>/remote" or "<callID>/self", for log messages

	// Video track state
	dimKnown    bool
	videoWidth  uint16
	videoHeight uint16
	hasAudio    bool // set before the first frame if an audio track exists

	// Init segment, nil until the first keyframe with known dimensions.
	initSeg []byte

	// Last keyframe cluster, replayed to new subscribers so their VP8
	// decoder starts from a clean reference frame instead of mid-stream
	// P-frames producing garbled video.
	lastKeyCluster []byte
	clusterIsKey   bool

	// Cluster accumulation
	clusterStartMs int64
	clusterBlocks  bytes.Buffer
	clusterOpen    bool

	// Audio frames queued between video frames; drained into each video
	// cluster.  Unbounded so no audio is dropped at low camera frame rates.
	audioQ []webmAudioFrame

	subs   map[chan []byte]struct{}
	closed bool

	// Timestamp normalisation: the first frame of each track becomes t=0.
	// VP8 and Opus RTP clocks start at independent random values; without
	// this the cluster timecodes would be hours off and MSE silently
	// discards the data.
	baseVideoMs  int64
	baseVideoSet bool
	baseAudioMs  int64
	baseAudioSet bool
}

type webmAudioFrame struct {
	timecodeMs int64
	data       []byte
}

func newWebmStream(name string) *webmStream {
	return &webmStream{
		name: name,
		subs: make(map[chan []byte]struct{}),
	}
}

// enableAudio marks that an audio track will be included in the stream.
// Must be called before the first video frame.
func (ws *webmStream) enableAudio() {
	ws.mu.Lock()
	ws.hasAudio = true
	ws.mu.Unlock()
}

// subscribeMedia returns a channel receiving WebM binary messages and a
// cancel function.  If the init segment has already been produced it is the
// first message on the channel, followed by the cached keyframe cluster.
func (ws *webmStream) subscribeMedia() (<-chan []byte, func()) {
	ch := make(chan []byte, 32)
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	replayed := ws.initSeg != nil
	if replayed {
		select {
		case ch <- ws.initSeg:
		default:
		}
		if ws.lastKeyCluster != nil {
			select {
			case ch <- ws.lastKeyCluster:
			default:
			}
		}
	}
	ws.subs[ch] = struct{}{}
	n := len(ws.subs)
	ws.mu.Unlock()
	log.Printf("CALL [%s]: WebM subscriber added (total=%d, init_replayed=%v)", ws.name, n, replayed)
	return ch, func() {
		ws.mu.Lock()
		if _, ok := ws.subs[ch]; !ok {
			ws.mu.Unlock()
			return
		}
		delete(ws.subs, ch)
		n := len(ws.subs)
		ws.mu.Unlock()
		close(ch)
		log.Printf("CALL [%s]: WebM subscriber removed (total=%d)", ws.name, n)
	}
}

// closeAll drops every subscriber and rejects future ones.  Called once on
// session teardown; frames arriving afterwards are discarded.
func (ws *webmStream) closeAll() {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.closed = true
	subs := ws.subs
	ws.subs = make(map[chan []byte]struct{})
	ws.mu.Unlock()
	for ch := range subs {
		close(ch)
	}
}

// handleVideoFrame accepts one encoded VP8 frame.  Each frame becomes its own
// cluster, flushed immediately; audio frames queued since the last flush are
// drained into the cluster ahead of the video block so decoders always see a
// well-formed audio+video cluster.
func (ws *webmStream) handleVideoFrame(timecodeMs int64, keyframe bool, data []byte) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return
	}

	if !ws.baseVideoSet {
		ws.baseVideoMs = timecodeMs
		ws.baseVideoSet = true
	}
	tsMs := timecodeMs - ws.baseVideoMs

	// Extract video dimensions from the first VP8 keyframe header.
	if !ws.dimKnown && keyframe && len(data) >= 10 {
		if data[3] == 0x9D && data[4] == 0x01 && data[5] == 0x2A {
			ws.videoWidth = binary.LittleEndian.Uint16(data[6:8]) & 0x3FFF
			ws.videoHeight = binary.LittleEndian.Uint16(data[8:10]) & 0x3FFF
		} else {
			ws.videoWidth = 640 // fallback
			ws.videoHeight = 480
		}
		ws.dimKnown = true
	}

	// Send init segment on the first keyframe.
	if ws.initSeg == nil {
		if !ws.dimKnown || !keyframe {
			return // wait for a keyframe so dimensions are known and MSE can start
		}
		ws.initSeg = webmInitSegment(ws.videoWidth, ws.videoHeight, ws.hasAudio)
		log.Printf("CALL [%s]: WebM init segment — VP8 %dx%d audio=%v subs=%d",
			ws.name, ws.videoWidth, ws.videoHeight, ws.hasAudio, len(ws.subs))
		ws.broadcastLocked(ws.initSeg)
	}

	// A keyframe starts a new cluster (seekable boundary point).
	if keyframe && ws.clusterOpen {
		ws.flushClusterLocked()
	}

	if !ws.clusterOpen {
		// Anchor the cluster to the earliest queued audio frame so all audio
		// SimpleBlocks get non-negative relative timecodes.
		ws.clusterStartMs = tsMs
		if len(ws.audioQ) > 0 && ws.audioQ[0].timecodeMs < tsMs {
			ws.clusterStartMs = ws.audioQ[0].timecodeMs
		}
		ws.clusterOpen = true
		ws.clusterIsKey = keyframe
		ws.clusterBlocks.Reset()

		for _, af := range ws.audioQ {
			rel := af.timecodeMs - ws.clusterStartMs
			if rel < -30000 || rel > 30000 {
				continue
			}
			ws.clusterBlocks.Write(webmSimpleBlock(2, int16(rel), false, af.data))
		}
		ws.audioQ = ws.audioQ[:0]
	}

	relMs := int16(tsMs - ws.clusterStartMs)
	ws.clusterBlocks.Write(webmSimpleBlock(1, relMs, keyframe, data))
	ws.flushClusterLocked()
}

// handleAudioFrame accepts one encoded Opus frame.  Audio is queued until the
// next video frame opens a cluster and drains it.
func (ws *webmStream) handleAudioFrame(timecodeMs int64, data []byte) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return
	}

	if !ws.baseAudioSet {
		ws.baseAudioMs = timecodeMs
		ws.baseAudioSet = true
	}
	ws.audioQ = append(ws.audioQ, webmAudioFrame{timecodeMs - ws.baseAudioMs, data})
}

// flushClusterLocked builds a Cluster from accumulated blocks and broadcasts
// it.  Must be called with ws.mu held.
func (ws *webmStream) flushClusterLocked() {
	if !ws.clusterOpen || ws.clusterBlocks.Len() == 0 {
		ws.clusterOpen = false
		return
	}
	cluster := webmCluster(ws.clusterStartMs, ws.clusterBlocks.Bytes())
	if ws.clusterIsKey {
		ws.lastKeyCluster = cluster
	}
	ws.clusterOpen = false
	ws.clusterIsKey = false
	ws.clusterBlocks.Reset()
	ws.broadcastLocked(cluster)
}

// broadcastLocked sends data to all subscribers, dropping frames for slow
// ones rather than blocking.  Must be called with ws.mu held.
func (ws *webmStream) broadcastLocked(data []byte) {
	for ch := range ws.subs {
		select {
		case ch <- data:
		default:
		}
	}
}
