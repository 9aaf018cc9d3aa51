package mve

import (
	"fmt"

	"github.com/retromux/retromux/media"
)

// pcmSubHeaderSize is the per-frame sub-header on uncompressed audio
// payloads; DPCM frames carry no sub-header.
const pcmSubHeaderSize = 6

// nextPending materializes the highest-priority pending payload into a
// packet: audio first, then the decode-map/video-data pair. When nothing is
// pending it seeks back to the resume offset and returns nil, meaning the
// caller must scan another chunk.
func (d *Demuxer) nextPending() (*media.Packet, error) {
	switch {
	case d.pendingAudio.ok:
		return d.emitAudio()
	case d.pendingMap.ok || d.pendingVideo.ok:
		if !d.pendingMap.ok || !d.pendingVideo.ok {
			return nil, fmt.Errorf("mve: map=%v video=%v: %w",
				d.pendingMap.ok, d.pendingVideo.ok, ErrIncompletePair)
		}
		return d.emitVideo()
	default:
		if err := d.cur.seekTo(d.resumeOffset); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// emitAudio reads the pending audio payload and stamps it with the running
// sample count. PCM payloads carry a 6-byte sub-header that is not part of
// the frame; DPCM payloads are consumed whole.
func (d *Demuxer) emitAudio() (*media.Packet, error) {
	ref := d.pendingAudio
	d.pendingAudio = pendingRef{}

	if d.audio.Codec == media.AudioNone {
		return nil, fmt.Errorf("mve: audio frame before init_audio_buffers: %w", ErrMalformedChunk)
	}

	// Both codecs require the 6-byte sub-header: PCM strips it, DPCM keeps
	// the frame whole but its sample count still subtracts the header.
	if ref.size < pcmSubHeaderSize {
		return nil, fmt.Errorf("mve: audio frame of %d bytes lacks sub-header: %w", ref.size, ErrMalformedOpcode)
	}

	offset, size := ref.offset, ref.size
	if d.audio.Codec != media.AudioDPCM {
		offset += pcmSubHeaderSize
		size -= pcmSubHeaderSize
	}

	if err := d.cur.seekTo(offset); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := d.cur.readFull(buf); err != nil {
		return nil, fmt.Errorf("mve: audio payload: %w", err)
	}

	pkt := &media.Packet{
		Stream: media.StreamAudio,
		PTS:    int64(d.audioFrameCount),
		Data:   buf,
	}

	if d.audio.Codec != media.AudioDPCM {
		d.audioFrameCount += uint64(size / d.audio.Channels / (d.audio.Bits / 8))
	} else {
		d.audioFrameCount += uint64((ref.size - pcmSubHeaderSize) / d.audio.Channels)
	}
	return pkt, nil
}

// emitVideo joins the decode map and the video data into one payload, decode
// map first, and attaches a full palette snapshot if any palette opcode has
// run since the last video packet.
func (d *Demuxer) emitVideo() (*media.Packet, error) {
	mapRef, videoRef := d.pendingMap, d.pendingVideo
	d.pendingMap = pendingRef{}
	d.pendingVideo = pendingRef{}

	pkt := &media.Packet{
		Stream: media.StreamVideo,
		PTS:    d.videoPTS,
		Data:   make([]byte, mapRef.size+videoRef.size),
	}
	if d.paletteDirty {
		snapshot := d.palette
		pkt.Palette = &snapshot
		d.paletteDirty = false
	}

	if err := d.cur.seekTo(mapRef.offset); err != nil {
		return nil, err
	}
	if err := d.cur.readFull(pkt.Data[:mapRef.size]); err != nil {
		return nil, fmt.Errorf("mve: decode map payload: %w", err)
	}
	if err := d.cur.seekTo(videoRef.offset); err != nil {
		return nil, err
	}
	if err := d.cur.readFull(pkt.Data[mapRef.size:]); err != nil {
		return nil, fmt.Errorf("mve: video payload: %w", err)
	}

	d.videoPTS += int64(d.framePTSInc)
	return pkt, nil
}
