package server

import (
	"context"
	"time"

	"github.com/retromux/retromux/media"
	"github.com/retromux/retromux/pipeline"
)

// Pacer is a Broadcaster decorator that holds each packet until its
// presentation deadline before forwarding it. The demuxer reads from disk far
// faster than real time, so without pacing a viewer would receive the whole
// movie in one burst.
//
// Video timestamps are in microseconds; audio timestamps count samples and
// are converted using the published sample rate.
type Pacer struct {
	ctx        context.Context
	next       pipeline.Broadcaster
	epoch      time.Time
	sampleRate int
}

// NewPacer wraps next with real-time pacing. The epoch is fixed at the first
// forwarded packet. Cancelling ctx releases any in-progress wait.
func NewPacer(ctx context.Context, next pipeline.Broadcaster) *Pacer {
	return &Pacer{ctx: ctx, next: next}
}

func (p *Pacer) SetVideoInfo(info media.VideoDescriptor) {
	p.next.SetVideoInfo(info)
}

func (p *Pacer) SetAudioInfo(info media.AudioDescriptor) {
	p.sampleRate = info.SampleRate
	p.next.SetAudioInfo(info)
}

func (p *Pacer) BroadcastVideo(pkt *media.Packet) {
	p.waitUntil(time.Duration(pkt.PTS) * time.Microsecond)
	p.next.BroadcastVideo(pkt)
}

func (p *Pacer) BroadcastAudio(pkt *media.Packet) {
	if p.sampleRate > 0 {
		p.waitUntil(time.Duration(pkt.PTS) * time.Second / time.Duration(p.sampleRate))
	}
	p.next.BroadcastAudio(pkt)
}

// waitUntil blocks until offset past the epoch. Packets already behind the
// wall clock pass through immediately.
func (p *Pacer) waitUntil(offset time.Duration) {
	if p.epoch.IsZero() {
		p.epoch = time.Now()
	}
	delay := time.Until(p.epoch.Add(offset))
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.ctx.Done():
	}
}
