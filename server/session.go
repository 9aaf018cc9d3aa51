package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/segmentio/ksuid"

	"github.com/retromux/retromux/media"
)

// sendBuffer is the per-session outbound queue depth. A slow client drops
// packets rather than stalling the relay for everyone else.
const sendBuffer = 256

// Control messages are JSON text frames; media payloads are binary frames
// with a 9-byte header: stream kind, then the presentation timestamp.
const (
	frameKindVideo byte = 0x00
	frameKindAudio byte = 0x01
	frameHeaderLen      = 9
)

type controlMessage struct {
	Type       string       `json:"type"`
	Width      int          `json:"width,omitempty"`
	Height     int          `json:"height,omitempty"`
	BPP        int          `json:"bpp,omitempty"`
	Codec      string       `json:"codec,omitempty"`
	SampleRate int          `json:"sample_rate,omitempty"`
	Channels   int          `json:"channels,omitempty"`
	Bits       int          `json:"bits,omitempty"`
	Palette    *[256]uint32 `json:"palette,omitempty"`
}

type outMessage struct {
	kind websocket.MessageType
	data []byte
}

// WSSession delivers one relay's packets over a websocket connection.
// SendVideo and SendAudio are non-blocking; when the outbound queue is full
// the packet is counted as dropped and discarded.
type WSSession struct {
	id   string
	log  *slog.Logger
	conn *websocket.Conn
	send chan outMessage

	videoSent    atomic.Int64
	audioSent    atomic.Int64
	videoDropped atomic.Int64
	audioDropped atomic.Int64
}

// NewWSSession wraps an accepted websocket connection in a relay viewer.
func NewWSSession(conn *websocket.Conn) *WSSession {
	id := ksuid.New().String()
	return &WSSession{
		id:   id,
		log:  slog.With("component", "ws-session", "session", id),
		conn: conn,
		send: make(chan outMessage, sendBuffer),
	}
}

// ID returns the session's unique identifier.
func (s *WSSession) ID() string { return s.id }

// SendInfo queues the stream descriptors and the current palette, if any.
// Called once at connection setup, before the session joins the relay.
func (s *WSSession) SendInfo(video media.VideoDescriptor, audio *media.AudioDescriptor, palette *media.Palette) {
	s.queueJSON(controlMessage{
		Type:   "video_info",
		Width:  video.Width,
		Height: video.Height,
		BPP:    video.BitsPerPixel,
	})
	if audio != nil {
		s.queueJSON(controlMessage{
			Type:       "audio_info",
			Codec:      audio.Codec.String(),
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
			Bits:       audio.Bits,
		})
	}
	if palette != nil {
		s.queuePalette(palette)
	}
}

// SendVideo queues a video packet. A packet carrying a palette queues the
// palette control frame first so the client applies it before decoding.
func (s *WSSession) SendVideo(pkt *media.Packet) {
	if pkt.Palette != nil {
		s.queuePalette(pkt.Palette)
	}
	if s.queueBinary(frameKindVideo, pkt) {
		s.videoSent.Add(1)
	} else {
		s.videoDropped.Add(1)
	}
}

// SendAudio queues an audio packet.
func (s *WSSession) SendAudio(pkt *media.Packet) {
	if s.queueBinary(frameKindAudio, pkt) {
		s.audioSent.Add(1)
	} else {
		s.audioDropped.Add(1)
	}
}

// Stats returns delivery metrics for this session.
func (s *WSSession) Stats() ViewerStats {
	return ViewerStats{
		ID:           s.id,
		VideoSent:    s.videoSent.Load(),
		AudioSent:    s.audioSent.Load(),
		VideoDropped: s.videoDropped.Load(),
		AudioDropped: s.audioDropped.Load(),
	}
}

func (s *WSSession) queuePalette(p *media.Palette) {
	snapshot := [256]uint32(*p)
	s.queueJSON(controlMessage{Type: "palette", Palette: &snapshot})
}

func (s *WSSession) queueJSON(msg controlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal control message", "error", err)
		return
	}
	select {
	case s.send <- outMessage{kind: websocket.MessageText, data: data}:
	default:
		s.log.Warn("send buffer full, dropping control message", "type", msg.Type)
	}
}

func (s *WSSession) queueBinary(kind byte, pkt *media.Packet) bool {
	framed := make([]byte, frameHeaderLen+len(pkt.Data))
	framed[0] = kind
	binary.LittleEndian.PutUint64(framed[1:frameHeaderLen], uint64(pkt.PTS))
	copy(framed[frameHeaderLen:], pkt.Data)

	select {
	case s.send <- outMessage{kind: websocket.MessageBinary, data: framed}:
		return true
	default:
		return false
	}
}

// WriteLoop drains the outbound queue onto the wire until the context is
// cancelled or a write fails. It owns all writes to the connection.
func (s *WSSession) WriteLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.send:
			if err := s.conn.Write(ctx, msg.kind, msg.data); err != nil {
				return err
			}
		}
	}
}
