package mve

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/retromux/retromux/media"
)

// signature is the 20-byte magic sequence that opens every MVE container.
// It is not necessarily stream-aligned, so locating it takes a byte-by-byte
// scan. Six trailer bytes of fixed magic words follow it before the first
// chunk.
var signature = []byte("Interplay MVE File\x1a\x00")

const signatureTrailerSize = 6

// Probe reports whether buf looks like the start of an MVE container. It
// accepts the signature anywhere in the buffer, matching the sniffing
// behavior of players that tolerate junk before the header.
func Probe(buf []byte) bool {
	return bytes.Contains(buf, signature)
}

// Demuxer pulls timestamped audio and video packets out of an MVE container.
// It owns the stream's read position between calls and is not safe for
// concurrent use.
type Demuxer struct {
	ctx context.Context
	cur *cursor

	// framePTSInc is the timer tick per video frame in microseconds, the
	// video timebase being 1 µs.
	framePTSInc uint64
	video       media.VideoDescriptor
	videoPTS    int64

	palette      media.Palette
	paletteDirty bool

	audio           media.AudioDescriptor
	hasAudio        bool
	audioFrameCount uint64

	// Deferred payload references, set by opcode parsing and cleared by
	// the scheduler. At most one audio reference and one map/video pair
	// are outstanding at a time.
	pendingAudio pendingRef
	pendingMap   pendingRef
	pendingVideo pendingRef

	// resumeOffset is where chunk scanning continues after packet
	// emission has moved the cursor to payload bytes earlier in the file.
	resumeOffset int64

	err  error
	done bool
}

// NewDemuxer locates the container signature in rs, processes the
// initialization chunks, and returns a demuxer ready to produce packets.
// The first chunk must initialize video; a following init-audio chunk is
// optional (its absence means a silent file). ctx is checked between pulls.
func NewDemuxer(ctx context.Context, rs io.ReadSeeker) (*Demuxer, error) {
	cur, err := newCursor(rs)
	if err != nil {
		return nil, err
	}
	d := &Demuxer{ctx: ctx, cur: cur}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Demuxer) readHeader() error {
	if err := d.scanSignature(); err != nil {
		return err
	}
	d.resumeOffset = d.cur.tell() + signatureTrailerSize

	pkt, typ, err := d.processChunk()
	if err != nil {
		return fmt.Errorf("mve: header: %w", err)
	}
	if pkt != nil || typ != chunkInitVideo {
		return fmt.Errorf("mve: first chunk type 0x%04X, want init_video: %w", typ, ErrMalformedChunk)
	}

	// Peek at the next chunk type without consuming it. A video chunk here
	// means the file has no audio stream at all.
	var pre [chunkPreambleSize]byte
	if err := d.cur.readFull(pre[:]); err != nil {
		return fmt.Errorf("mve: header: %w", err)
	}
	peek := binary.LittleEndian.Uint16(pre[2:4])
	if err := d.cur.seekTo(d.cur.tell() - chunkPreambleSize); err != nil {
		return err
	}

	if peek != chunkVideo {
		pkt, typ, err = d.processChunk()
		if err != nil {
			return fmt.Errorf("mve: header: %w", err)
		}
		if pkt != nil || typ != chunkInitAudio {
			return fmt.Errorf("mve: second chunk type 0x%04X, want init_audio: %w", typ, ErrMalformedChunk)
		}
		d.hasAudio = true
	}
	return nil
}

// scanSignature slides a window the length of the signature one byte at a
// time until it matches, since the magic need not be stream-aligned.
func (d *Demuxer) scanSignature() error {
	window := make([]byte, len(signature))
	if err := d.cur.readFull(window); err != nil {
		return fmt.Errorf("mve: signature not found: %w", err)
	}
	for !bytes.Equal(window, signature) {
		b, err := d.cur.readByte()
		if err != nil {
			return fmt.Errorf("mve: signature not found: %w", err)
		}
		copy(window, window[1:])
		window[len(window)-1] = b
	}
	return nil
}

// processChunk runs one driver cycle: emit a pending packet if one exists,
// otherwise decode the next chunk and, for packet-bearing chunk types, emit
// the packet the chunk left pending.
func (d *Demuxer) processChunk() (*media.Packet, uint16, error) {
	pkt, err := d.nextPending()
	if err != nil || pkt != nil {
		return pkt, chunkVideo, err
	}

	typ, err := d.decodeChunk()
	if err != nil {
		return nil, typ, err
	}

	if typ == chunkVideo || typ == chunkAudioOnly {
		pkt, err = d.nextPending()
		if err != nil {
			return nil, typ, err
		}
	}
	return pkt, typ, nil
}

// NextPacket returns the next packet from the container. It returns io.EOF
// after a shutdown or end chunk. Any decode failure is terminal: the same
// error is returned on every subsequent call.
func (d *Demuxer) NextPacket() (*media.Packet, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.done {
		return nil, io.EOF
	}
	for {
		if err := d.ctx.Err(); err != nil {
			return nil, err
		}

		pkt, typ, err := d.processChunk()
		if err != nil {
			d.err = err
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
		if typ == chunkShutdown || typ == chunkEnd {
			d.done = true
			return nil, io.EOF
		}
		// Configuration-only chunk; keep scanning.
	}
}

// VideoDescriptor returns the video stream parameters found during header
// initialization.
func (d *Demuxer) VideoDescriptor() media.VideoDescriptor {
	return d.video
}

// AudioDescriptor returns the audio stream parameters and whether the
// container has an audio stream at all.
func (d *Demuxer) AudioDescriptor() (media.AudioDescriptor, bool) {
	if !d.hasAudio {
		return media.AudioDescriptor{}, false
	}
	return d.audio, true
}
