package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/retromux/retromux/media"
)

// Viewer is the interface a viewer session must implement to receive packets
// from a Relay.
type Viewer interface {
	ID() string
	SendVideo(pkt *media.Packet)
	SendAudio(pkt *media.Packet)
	Stats() ViewerStats
}

// ViewerStats holds delivery metrics for one viewer session.
type ViewerStats struct {
	ID           string `json:"id"`
	VideoSent    int64  `json:"video_sent"`
	AudioSent    int64  `json:"audio_sent"`
	VideoDropped int64  `json:"video_dropped"`
	AudioDropped int64  `json:"audio_dropped"`
}

// Relay is the fan-out hub for a single playing file. It distributes video
// and audio packets from the pipeline to all connected viewers and keeps the
// most recent palette so that late joiners can render the current frame
// without waiting for the next palette change.
type Relay struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]Viewer

	videoInfo      media.VideoDescriptor
	videoInfoSet   bool
	videoInfoReady chan struct{}
	audioInfo      media.AudioDescriptor
	audioInfoSet   bool

	palMu   sync.RWMutex
	palette *media.Palette
}

// NewRelay creates a Relay with no viewers.
func NewRelay() *Relay {
	return &Relay{
		log:            slog.With("component", "relay"),
		sessions:       make(map[string]Viewer),
		videoInfoReady: make(chan struct{}),
	}
}

// SetVideoInfo stores the stream geometry parsed from the container header.
// Called by the pipeline before the first packet.
func (r *Relay) SetVideoInfo(info media.VideoDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.videoInfoSet {
		r.videoInfo = info
		r.videoInfoSet = true
		close(r.videoInfoReady)
		r.log.Debug("video info set",
			"width", info.Width,
			"height", info.Height,
			"bpp", info.BitsPerPixel)
	}
}

// SetAudioInfo stores the audio format parsed from the container header.
// Silent files never call this.
func (r *Relay) SetAudioInfo(info media.AudioDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.audioInfoSet {
		r.audioInfo = info
		r.audioInfoSet = true
		r.log.Debug("audio info set",
			"codec", info.Codec.String(),
			"sampleRate", info.SampleRate,
			"channels", info.Channels)
	}
}

// VideoInfo returns the stream geometry. ok is false until the pipeline has
// published it.
func (r *Relay) VideoInfo() (media.VideoDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.videoInfo, r.videoInfoSet
}

// AudioInfo returns the audio format, or ok=false for silent files.
func (r *Relay) AudioInfo() (media.AudioDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audioInfo, r.audioInfoSet
}

// WaitVideoInfo blocks until the pipeline has published the stream geometry
// or ctx is cancelled. Returns true if the info is available.
func (r *Relay) WaitVideoInfo(ctx context.Context) bool {
	r.mu.RLock()
	if r.videoInfoSet {
		r.mu.RUnlock()
		return true
	}
	r.mu.RUnlock()

	select {
	case <-r.videoInfoReady:
		return true
	case <-ctx.Done():
		return false
	}
}

// LatestPalette returns the most recent palette broadcast on this relay, or
// nil if no palette has been seen yet.
func (r *Relay) LatestPalette() *media.Palette {
	r.palMu.RLock()
	defer r.palMu.RUnlock()
	return r.palette
}

// AddViewer registers a viewer for live packet delivery.
func (r *Relay) AddViewer(session Viewer) {
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	r.log.Info("viewer added", "session", session.ID(), "viewers", r.ViewerCount())
}

// RemoveViewer unregisters a viewer by ID.
func (r *Relay) RemoveViewer(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.log.Info("viewer removed", "session", id, "viewers", r.ViewerCount())
}

// BroadcastVideo sends a video packet to all connected viewers. A packet
// carrying a palette refreshes the cached snapshot first, so viewers that
// join afterwards still receive the colors in effect.
func (r *Relay) BroadcastVideo(pkt *media.Packet) {
	if pkt.Palette != nil {
		r.palMu.Lock()
		r.palette = pkt.Palette
		r.palMu.Unlock()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, session := range r.sessions {
		session.SendVideo(pkt)
	}
}

// BroadcastAudio sends an audio packet to all connected viewers.
func (r *Relay) BroadcastAudio(pkt *media.Packet) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, session := range r.sessions {
		session.SendAudio(pkt)
	}
}

// ViewerCount returns the number of currently connected viewers.
func (r *Relay) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ViewerStatsAll returns delivery metrics for every connected viewer.
func (r *Relay) ViewerStatsAll() []ViewerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]ViewerStats, 0, len(r.sessions))
	for _, s := range r.sessions {
		stats = append(stats, s.Stats())
	}
	return stats
}
