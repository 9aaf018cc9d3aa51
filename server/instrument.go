package server

import (
	"github.com/retromux/retromux/internal/metrics"
	"github.com/retromux/retromux/media"
	"github.com/retromux/retromux/pipeline"
)

// instrumented counts packets and payload bytes as they pass through to the
// wrapped Broadcaster.
type instrumented struct {
	next pipeline.Broadcaster
	m    *metrics.Metrics
}

func (s *Server) instrument(next pipeline.Broadcaster) pipeline.Broadcaster {
	return &instrumented{next: next, m: s.metrics}
}

func (i *instrumented) SetVideoInfo(info media.VideoDescriptor) { i.next.SetVideoInfo(info) }
func (i *instrumented) SetAudioInfo(info media.AudioDescriptor) { i.next.SetAudioInfo(info) }

func (i *instrumented) BroadcastVideo(pkt *media.Packet) {
	i.m.PacketsDemuxed.WithLabelValues(media.StreamVideo.String()).Inc()
	i.m.BytesStreamed.WithLabelValues(media.StreamVideo.String()).Add(float64(len(pkt.Data)))
	i.next.BroadcastVideo(pkt)
}

func (i *instrumented) BroadcastAudio(pkt *media.Packet) {
	i.m.PacketsDemuxed.WithLabelValues(media.StreamAudio.String()).Inc()
	i.m.BytesStreamed.WithLabelValues(media.StreamAudio.String()).Add(float64(len(pkt.Data)))
	i.next.BroadcastAudio(pkt)
}
