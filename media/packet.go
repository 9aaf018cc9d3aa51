// Package media defines the packet and stream-descriptor types that flow
// through the demuxing pipeline, from container parsing through delivery.
package media

import "fmt"

// StreamType identifies which elementary stream a packet belongs to.
type StreamType int

const (
	StreamVideo StreamType = iota
	StreamAudio
)

// String returns "video" or "audio" for logging and wire headers.
func (s StreamType) String() string {
	switch s {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// PaletteSize is the number of entries in an MVE palette.
const PaletteSize = 256

// Palette holds 256 packed 0x00RRGGBB entries. Components originate as
// 6-bit VGA values scaled to the 8-bit range.
type Palette [PaletteSize]uint32

// Packet is one demuxed audio or video payload, timestamped and ready for a
// decoder. Video PTS is in microseconds; audio PTS counts samples at the
// stream's sample rate.
type Packet struct {
	Stream StreamType
	PTS    int64
	Data   []byte

	// Palette is non-nil on the first video packet after a palette change
	// and carries a full snapshot of all 256 entries.
	Palette *Palette
}

// AudioCodec enumerates the audio encodings an MVE container can carry.
type AudioCodec int

const (
	AudioNone AudioCodec = iota
	AudioPCM8
	AudioPCM16
	AudioDPCM // Interplay DPCM
)

// String returns a short codec label.
func (c AudioCodec) String() string {
	switch c {
	case AudioNone:
		return "none"
	case AudioPCM8:
		return "pcm_u8"
	case AudioPCM16:
		return "pcm_s16le"
	case AudioDPCM:
		return "interplay_dpcm"
	default:
		return fmt.Sprintf("codec(%d)", int(c))
	}
}

// VideoDescriptor describes the single video stream of a container.
type VideoDescriptor struct {
	Width        int
	Height       int
	BitsPerPixel int
}

// AudioDescriptor describes the optional audio stream of a container.
type AudioDescriptor struct {
	Codec      AudioCodec
	Bits       int
	Channels   int
	SampleRate int
}

// BitRate returns the nominal bit rate in bits per second. DPCM packs two
// samples per byte relative to its decoded width, halving the rate.
func (a AudioDescriptor) BitRate() int {
	rate := a.Channels * a.SampleRate * a.Bits
	if a.Codec == AudioDPCM {
		rate /= 2
	}
	return rate
}

// BlockAlign returns the per-sample group alignment in bits, matching the
// container's framing of PCM payloads.
func (a AudioDescriptor) BlockAlign() int {
	return a.Channels * a.Bits
}
