// Package pipeline drives a demuxer to completion, forwarding its packets to
// a Broadcaster while collecting forwarding telemetry for the API.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/retromux/retromux/media"
	"github.com/retromux/retromux/mve"
)

// Broadcaster is the subset of the server relay that the pipeline uses to
// fan packets out to sessions. Accepting an interface here decouples the
// pipeline from the concrete relay type, making it testable with stubs.
type Broadcaster interface {
	BroadcastVideo(pkt *media.Packet)
	BroadcastAudio(pkt *media.Packet)
	SetVideoInfo(info media.VideoDescriptor)
	SetAudioInfo(info media.AudioDescriptor)
}

// Pipeline bridges one demuxer and one Broadcaster. The demuxer is pull
// based, so the pipeline owns the pull loop and is the only goroutine
// touching the underlying stream.
type Pipeline struct {
	log       *slog.Logger
	name      string
	demuxer   *mve.Demuxer
	relay     Broadcaster
	startTime time.Time

	videoForwarded atomic.Int64
	audioForwarded atomic.Int64
	paletteLoads   atomic.Int64
	lastVideoPTS   atomic.Int64
	lastAudioPTS   atomic.Int64
}

// New creates a Pipeline forwarding packets from d to relay. name is used
// for log attribution only.
func New(name string, d *mve.Demuxer, relay Broadcaster) *Pipeline {
	return &Pipeline{
		log:       slog.With("component", "pipeline", "stream", name),
		name:      name,
		demuxer:   d,
		relay:     relay,
		startTime: time.Now(),
	}
}

// Run publishes the stream descriptors, then pulls packets until the
// container ends, the context is cancelled, or decoding fails. A clean end
// (shutdown/end chunk) returns nil; corrupt data returns the demux error.
func (p *Pipeline) Run(ctx context.Context) error {
	p.relay.SetVideoInfo(p.demuxer.VideoDescriptor())
	if audio, ok := p.demuxer.AudioDescriptor(); ok {
		p.relay.SetAudioInfo(audio)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pkt, err := p.demuxer.NextPacket()
		if errors.Is(err, io.EOF) {
			p.log.Info("stream complete",
				"video_packets", p.videoForwarded.Load(),
				"audio_packets", p.audioForwarded.Load())
			return nil
		}
		if err != nil {
			p.log.Error("demux failed", "error", err)
			return err
		}

		switch pkt.Stream {
		case media.StreamVideo:
			if pkt.Palette != nil {
				p.paletteLoads.Add(1)
			}
			p.relay.BroadcastVideo(pkt)
			p.videoForwarded.Add(1)
			p.lastVideoPTS.Store(pkt.PTS)
		case media.StreamAudio:
			p.relay.BroadcastAudio(pkt)
			p.audioForwarded.Add(1)
			p.lastAudioPTS.Store(pkt.PTS)
		}
	}
}

// Snapshot is a point-in-time view of forwarding counters, suitable for
// JSON serialization in the API.
type Snapshot struct {
	Name           string `json:"name"`
	UptimeMs       int64  `json:"uptime_ms"`
	VideoForwarded int64  `json:"video_packets"`
	AudioForwarded int64  `json:"audio_packets"`
	PaletteLoads   int64  `json:"palette_loads"`
	LastVideoPTS   int64  `json:"last_video_pts"`
	LastAudioPTS   int64  `json:"last_audio_pts"`
}

// Snapshot returns the current forwarding counters.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		Name:           p.name,
		UptimeMs:       time.Since(p.startTime).Milliseconds(),
		VideoForwarded: p.videoForwarded.Load(),
		AudioForwarded: p.audioForwarded.Load(),
		PaletteLoads:   p.paletteLoads.Load(),
		LastVideoPTS:   p.lastVideoPTS.Load(),
		LastAudioPTS:   p.lastAudioPTS.Load(),
	}
}
