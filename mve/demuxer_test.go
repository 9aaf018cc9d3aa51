package mve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/retromux/retromux/media"
)

func TestProbe(t *testing.T) {
	t.Parallel()
	c := newContainer().chunk(chunkInitVideo, initVideoOp(0, 8, 6, 0))
	if !Probe(c.buf.Bytes()) {
		t.Error("Probe rejected a valid container")
	}
	if !Probe(newContainerAt([]byte{0xDE, 0xAD}).buf.Bytes()) {
		t.Error("Probe rejected an offset signature")
	}
	if Probe([]byte("RIFF....WAVE")) {
		t.Error("Probe accepted non-MVE data")
	}
}

func TestDemuxer_RoundTrip(t *testing.T) {
	t.Parallel()
	decodeMap := seq(0x10, 7)
	videoData := seq(0x40, 23)
	c := newContainer().
		chunk(chunkInitVideo,
			timerOp(66728, 1),
			initVideoOp(0, 8, 6, 0),
			endOfChunkOp()).
		chunk(chunkInitAudio,
			initAudioOp(0, 0x3, 22050), // stereo, 16-bit
			endOfChunkOp()).
		chunk(chunkVideo,
			paletteOp(0, [][3]byte{{1, 2, 3}, {4, 5, 6}}),
			decodeMapOp(decodeMap),
			videoDataOp(videoData),
			endOfChunkOp()).
		chunk(chunkShutdown, op(opcodeEndOfStream, 0, nil))

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}

	video := d.VideoDescriptor()
	if video.Width != 64 || video.Height != 48 || video.BitsPerPixel != 8 {
		t.Errorf("video descriptor = %+v, want 64x48 8bpp", video)
	}
	audio, ok := d.AudioDescriptor()
	if !ok {
		t.Fatal("audio descriptor missing")
	}
	if audio.Bits != 16 || audio.Channels != 2 || audio.SampleRate != 22050 || audio.Codec != media.AudioPCM16 {
		t.Errorf("audio descriptor = %+v, want 16-bit stereo 22050 Hz PCM", audio)
	}

	pkt, err := d.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if pkt.Stream != media.StreamVideo {
		t.Fatalf("stream = %v, want video", pkt.Stream)
	}
	if pkt.PTS != 0 {
		t.Errorf("first video PTS = %d, want 0", pkt.PTS)
	}
	want := append(append([]byte(nil), decodeMap...), videoData...)
	if !bytes.Equal(pkt.Data, want) {
		t.Errorf("payload = % X, want decode map then video data", pkt.Data)
	}
	if pkt.Palette == nil {
		t.Fatal("video packet missing palette snapshot")
	}
	if got, want := pkt.Palette[0], uint32(1<<2)<<16|uint32(2<<2)<<8|uint32(3<<2); got != want {
		t.Errorf("palette[0] = %06X, want %06X", got, want)
	}
	if got, want := pkt.Palette[1], uint32(4<<2)<<16|uint32(5<<2)<<8|uint32(6<<2); got != want {
		t.Errorf("palette[1] = %06X, want %06X", got, want)
	}
	for i := 2; i < media.PaletteSize; i++ {
		if pkt.Palette[i] != 0 {
			t.Fatalf("palette[%d] = %06X, want untouched zero", i, pkt.Palette[i])
		}
	}

	if _, err := d.NextPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("after shutdown chunk, err = %v, want io.EOF", err)
	}
}

func TestDemuxer_VideoPTSIncrements(t *testing.T) {
	t.Parallel()
	const inc = 66728
	c := newContainer().
		chunk(chunkInitVideo, timerOp(inc, 1), initVideoOp(0, 40, 25, 0)).
		chunk(chunkInitAudio, initAudioOp(0, 0, 11025)).
		chunk(chunkVideo,
			paletteOp(0, [][3]byte{{63, 63, 63}}),
			decodeMapOp(seq(0, 4)), videoDataOp(seq(4, 9))).
		chunk(chunkVideo, decodeMapOp(seq(0, 4)), videoDataOp(seq(4, 9))).
		chunk(chunkVideo, decodeMapOp(seq(0, 4)), videoDataOp(seq(4, 9))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}

	var pts []int64
	for i := 0; i < 3; i++ {
		pkt, err := d.NextPacket()
		if err != nil {
			t.Fatalf("NextPacket %d: %v", i, err)
		}
		if pkt.Stream != media.StreamVideo {
			t.Fatalf("packet %d stream = %v, want video", i, pkt.Stream)
		}
		if i == 0 && pkt.Palette == nil {
			t.Error("first video packet should carry the palette")
		}
		if i > 0 && pkt.Palette != nil {
			t.Errorf("packet %d carries a palette without a preceding update", i)
		}
		pts = append(pts, pkt.PTS)
	}
	for i, want := range []int64{0, inc, 2 * inc} {
		if pts[i] != want {
			t.Errorf("video PTS[%d] = %d, want %d", i, pts[i], want)
		}
	}
	if _, err := d.NextPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestDemuxer_AudioTimestampsPCM(t *testing.T) {
	t.Parallel()
	// 16-bit stereo: 8 payload bytes advance the sample counter by
	// 8 / 2 channels / 2 bytes = 2 samples per frame.
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkInitAudio, initAudioOp(0, 0x3, 22050)).
		chunk(chunkAudioOnly, pcmAudioFrameOp(0, seq(0, 8))).
		chunk(chunkAudioOnly, pcmAudioFrameOp(1, seq(8, 8))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}

	first, err := d.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if first.Stream != media.StreamAudio {
		t.Fatalf("stream = %v, want audio", first.Stream)
	}
	if first.PTS != 0 {
		t.Errorf("first audio PTS = %d, want 0", first.PTS)
	}
	if !bytes.Equal(first.Data, seq(0, 8)) {
		t.Errorf("payload = % X, want samples without the sub-header", first.Data)
	}

	second, err := d.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if second.PTS != 2 {
		t.Errorf("second audio PTS = %d, want 2", second.PTS)
	}
}

func TestDemuxer_AudioTimestampsDPCM(t *testing.T) {
	t.Parallel()
	// DPCM frames are consumed whole; the counter advances by
	// (payload - 6) / channels.
	frame := seq(0, 14) // 6-byte header + 8 delta bytes, stereo → 4 samples
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkInitAudio, initAudioOp(1, 0x1|0x4, 22050)).
		chunk(chunkAudioOnly, op(opcodeAudioFrame, 0, frame)).
		chunk(chunkAudioOnly, op(opcodeAudioFrame, 0, frame)).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	audio, ok := d.AudioDescriptor()
	if !ok || audio.Codec != media.AudioDPCM {
		t.Fatalf("audio descriptor = %+v ok=%v, want Interplay DPCM", audio, ok)
	}

	first, err := d.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if !bytes.Equal(first.Data, frame) {
		t.Errorf("DPCM payload truncated: % X", first.Data)
	}
	second, err := d.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if second.PTS != 4 {
		t.Errorf("second DPCM PTS = %d, want 4", second.PTS)
	}
}

func TestDemuxer_AudioFrameLacksSubHeader(t *testing.T) {
	t.Parallel()
	// A frame shorter than the 6-byte sub-header must fail cleanly for both
	// codecs; the DPCM sample advance would otherwise go negative and wrap.
	tests := []struct {
		name    string
		version uint8
		flags   uint16
	}{
		{"pcm", 0, 0x1},
		{"dpcm", 1, 0x1 | 0x4},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newContainer().
				chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
				chunk(chunkInitAudio, initAudioOp(tt.version, tt.flags, 22050)).
				chunk(chunkAudioOnly, op(opcodeAudioFrame, 0, seq(0, 4))).
				chunk(chunkEnd)

			d, err := NewDemuxer(context.Background(), c.reader())
			if err != nil {
				t.Fatalf("NewDemuxer: %v", err)
			}
			if _, err := d.NextPacket(); !errors.Is(err, ErrMalformedOpcode) {
				t.Errorf("err = %v, want ErrMalformedOpcode", err)
			}
		})
	}
}

func TestDemuxer_SilentFile(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkVideo, decodeMapOp(seq(0, 4)), videoDataOp(seq(4, 4))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	if _, ok := d.AudioDescriptor(); ok {
		t.Error("silent file reported an audio stream")
	}
	pkt, err := d.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if pkt.Stream != media.StreamVideo || len(pkt.Data) != 8 {
		t.Errorf("packet = %v/%d bytes, want video/8", pkt.Stream, len(pkt.Data))
	}
}

func TestDemuxer_SignatureScan(t *testing.T) {
	t.Parallel()
	junk := append([]byte("Interplay MVE Fil"), seq(0, 37)...) // near-miss prefix
	c := newContainerAt(junk).
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkInitAudio, initAudioOp(0, 0, 11025)).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer with offset signature: %v", err)
	}
	if _, err := d.NextPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestDemuxer_MissingSignature(t *testing.T) {
	t.Parallel()
	_, err := NewDemuxer(context.Background(), bytes.NewReader(seq(0, 200)))
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("err = %v, want ErrShortRead", err)
	}
}

func TestDemuxer_HeaderRequiresInitVideo(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitAudio, initAudioOp(0, 0, 11025)).
		chunk(chunkEnd)
	_, err := NewDemuxer(context.Background(), c.reader())
	if !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("err = %v, want ErrMalformedChunk", err)
	}
}

func TestDemuxer_ChunkBudgetOverrun(t *testing.T) {
	t.Parallel()
	// The chunk declares fewer bytes than its opcode's framed size.
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		rawChunk(chunkVideo, 6, decodeMapOp(seq(0, 16))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	_, err = d.NextPacket()
	if !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("err = %v, want ErrMalformedChunk", err)
	}
}

func TestDemuxer_PaletteOutOfRange(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkVideo,
			rawPaletteOp(250, 20, seq(0, 60)),
			decodeMapOp(seq(0, 4)), videoDataOp(seq(4, 4))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	_, err = d.NextPacket()
	if !errors.Is(err, ErrPaletteRange) {
		t.Fatalf("err = %v, want ErrPaletteRange", err)
	}
	for i, v := range d.palette {
		if v != 0 {
			t.Fatalf("palette[%d] = %06X mutated by rejected update", i, v)
		}
	}
}

func TestDemuxer_IncompletePair(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkVideo, decodeMapOp(seq(0, 8))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	_, err = d.NextPacket()
	if !errors.Is(err, ErrIncompletePair) {
		t.Errorf("err = %v, want ErrIncompletePair", err)
	}
}

func TestDemuxer_UnknownOpcodeType(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkVideo, op(0x42, 0, seq(0, 4))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	_, err = d.NextPacket()
	if !errors.Is(err, ErrMalformedOpcode) {
		t.Errorf("err = %v, want ErrMalformedOpcode", err)
	}
}

func TestDemuxer_UnknownChunkType(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkInitAudio, initAudioOp(0, 0, 11025)).
		chunk(0x0006, endOfChunkOp())

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	_, err = d.NextPacket()
	if !errors.Is(err, ErrMalformedChunk) {
		t.Errorf("err = %v, want ErrMalformedChunk", err)
	}
}

func TestDemuxer_TruncatedMidChunk(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		rawChunk(chunkVideo, 64) // declared bytes never arrive

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	_, err = d.NextPacket()
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("err = %v, want ErrShortRead", err)
	}
}

func TestDemuxer_ErrorIsSticky(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkVideo, decodeMapOp(seq(0, 8))).
		chunk(chunkEnd)

	d, err := NewDemuxer(context.Background(), c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	_, first := d.NextPacket()
	_, second := d.NextPacket()
	if !errors.Is(second, ErrIncompletePair) || first.Error() != second.Error() {
		t.Errorf("failure not sticky: first=%v second=%v", first, second)
	}
}

func TestDemuxer_ContextCancellation(t *testing.T) {
	t.Parallel()
	c := newContainer().
		chunk(chunkInitVideo, timerOp(1000, 1), initVideoOp(0, 8, 6, 0)).
		chunk(chunkVideo, decodeMapOp(seq(0, 4)), videoDataOp(seq(4, 4))).
		chunk(chunkEnd)

	ctx, cancel := context.WithCancel(context.Background())
	d, err := NewDemuxer(ctx, c.reader())
	if err != nil {
		t.Fatalf("NewDemuxer: %v", err)
	}
	cancel()
	if _, err := d.NextPacket(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
