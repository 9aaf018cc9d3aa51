package mve

import (
	"encoding/binary"
	"fmt"

	"github.com/retromux/retromux/media"
)

// applyOpcode consumes one opcode's payload. Configuration opcodes update
// demuxer state in place; payload-bearing opcodes record an (offset, size)
// reference for the scheduler and skip past the bytes; everything else is
// skipped unread. The preamble has already been consumed by the chunk walker.
func (d *Demuxer) applyOpcode(typ, version uint8, size int) error {
	switch typ {
	case opcodeEndOfStream, opcodeEndOfChunk, opcodeStartStopAudio,
		opcodeSendBuffer, opcodeSilenceFrame, opcodeInitVideoMode,
		opcodeCreateGradient, opcodeUnknown06, opcodeUnknown0E,
		opcodeUnknown10, opcodeUnknown12, opcodeUnknown13,
		opcodeUnknown14, opcodeUnknown15:
		return d.cur.skip(size)

	case opcodeSetPaletteCompressed:
		// Documented but not decoded; the payload is treated as opaque.
		return d.cur.skip(size)

	case opcodeCreateTimer:
		return d.parseCreateTimer(version, size)

	case opcodeInitAudioBuffers:
		return d.parseInitAudioBuffers(version, size)

	case opcodeInitVideoBuffers:
		return d.parseInitVideoBuffers(version, size)

	case opcodeSetPalette:
		return d.parseSetPalette(size)

	case opcodeAudioFrame:
		d.pendingAudio = pendingRef{offset: d.cur.tell(), size: size, ok: true}
		return d.cur.skip(size)

	case opcodeSetDecodingMap:
		d.pendingMap = pendingRef{offset: d.cur.tell(), size: size, ok: true}
		return d.cur.skip(size)

	case opcodeVideoData:
		d.pendingVideo = pendingRef{offset: d.cur.tell(), size: size, ok: true}
		return d.cur.skip(size)

	default:
		return fmt.Errorf("mve: opcode type 0x%02X: %w", typ, ErrMalformedOpcode)
	}
}

// readOpcodePayload reads the full declared payload of an opcode that the
// demuxer parses, after validating its size bounds.
func (d *Demuxer) readOpcodePayload(name string, size, minSize, maxSize int) ([]byte, error) {
	if size < minSize || size > maxSize {
		return nil, fmt.Errorf("mve: %s size %d: %w", name, size, ErrMalformedOpcode)
	}
	buf := make([]byte, size)
	if err := d.cur.readFull(buf); err != nil {
		return nil, fmt.Errorf("mve: %s payload: %w", name, err)
	}
	return buf, nil
}

// parseCreateTimer sets the per-frame timestamp increment in microseconds,
// the 64-bit product of a 32-bit divisor and a 16-bit subdivisor.
func (d *Demuxer) parseCreateTimer(version uint8, size int) error {
	if version > 0 {
		return fmt.Errorf("mve: create_timer version %d: %w", version, ErrMalformedOpcode)
	}
	p, err := d.readOpcodePayload("create_timer", size, 6, 6)
	if err != nil {
		return err
	}
	divisor := binary.LittleEndian.Uint32(p[0:4])
	subdivisor := binary.LittleEndian.Uint16(p[4:6])
	d.framePTSInc = uint64(divisor) * uint64(subdivisor)
	return nil
}

func (d *Demuxer) parseInitAudioBuffers(version uint8, size int) error {
	if version > 1 {
		return fmt.Errorf("mve: init_audio_buffers version %d: %w", version, ErrMalformedOpcode)
	}
	p, err := d.readOpcodePayload("init_audio_buffers", size, 6, 10)
	if err != nil {
		return err
	}
	flags := binary.LittleEndian.Uint16(p[2:4])
	d.audio.SampleRate = int(binary.LittleEndian.Uint16(p[4:6]))
	// flag bit 0: mono/stereo, bit 1: 8/16-bit samples, bit 2 (version 1
	// only): Interplay DPCM compression.
	d.audio.Channels = int(flags&1) + 1
	d.audio.Bits = (int(flags>>1&1) + 1) * 8
	switch {
	case version == 1 && flags&0x4 != 0:
		d.audio.Codec = media.AudioDPCM
	case d.audio.Bits == 16:
		d.audio.Codec = media.AudioPCM16
	default:
		d.audio.Codec = media.AudioPCM8
	}
	return nil
}

func (d *Demuxer) parseInitVideoBuffers(version uint8, size int) error {
	if version > 2 {
		return fmt.Errorf("mve: init_video_buffers version %d: %w", version, ErrMalformedOpcode)
	}
	minSize := 4
	if version >= 2 {
		// Version 2 adds the true-color flag at offset 6.
		minSize = 8
	}
	p, err := d.readOpcodePayload("init_video_buffers", size, minSize, 8)
	if err != nil {
		return err
	}
	// Width and height are encoded as counts of 8-pixel blocks.
	d.video.Width = int(binary.LittleEndian.Uint16(p[0:2])) * 8
	d.video.Height = int(binary.LittleEndian.Uint16(p[2:4])) * 8
	if version >= 2 && binary.LittleEndian.Uint16(p[6:8]) != 0 {
		d.video.BitsPerPixel = 16
	} else {
		d.video.BitsPerPixel = 8
	}
	return nil
}

// parseSetPalette loads a contiguous run of palette entries. The components
// are stored as a 6-bit VGA palette, so each is shifted up to the 8-bit
// range before being packed as 0x00RRGGBB.
func (d *Demuxer) parseSetPalette(size int) error {
	p, err := d.readOpcodePayload("set_palette", size, 4, maxPaletteOpcodeSize)
	if err != nil {
		return err
	}
	first := int(binary.LittleEndian.Uint16(p[0:2]))
	count := int(binary.LittleEndian.Uint16(p[2:4]))
	last := first + count - 1
	if first > 0xFF || last > 0xFF {
		return fmt.Errorf("mve: set_palette indices %d..%d: %w", first, last, ErrPaletteRange)
	}
	if 4+3*count > len(p) {
		return fmt.Errorf("mve: set_palette payload %d bytes for %d entries: %w", len(p), count, ErrMalformedOpcode)
	}
	j := 4
	for i := first; i <= last; i++ {
		r := uint32(p[j]) << 2
		g := uint32(p[j+1]) << 2
		b := uint32(p[j+2]) << 2
		j += 3
		d.palette[i] = r<<16 | g<<8 | b
	}
	d.paletteDirty = true
	return nil
}
