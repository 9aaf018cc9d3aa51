package mve

import "errors"

// Decode errors. All failures returned by the demuxer wrap one of these
// sentinels, so callers can classify with errors.Is. Any of them is terminal
// for the stream: the format offers no way to resync chunk framing once it
// is lost.
var (
	// ErrMalformedOpcode indicates a known opcode with an out-of-bounds
	// version or size, or an opcode type the format does not define.
	ErrMalformedOpcode = errors.New("malformed opcode")

	// ErrMalformedChunk indicates an unknown chunk type or an opcode whose
	// framed size overruns the chunk's declared size budget.
	ErrMalformedChunk = errors.New("malformed chunk")

	// ErrShortRead indicates the stream ended, or returned fewer bytes than
	// requested, in the middle of a record.
	ErrShortRead = errors.New("short read")

	// ErrPaletteRange indicates a palette update touching indices outside
	// [0,255]. No palette entry is modified when this is returned.
	ErrPaletteRange = errors.New("palette index out of range")

	// ErrIncompletePair indicates a decode map without matching video data,
	// or vice versa. The two must always arrive together in one chunk.
	ErrIncompletePair = errors.New("decode map and video data not paired")
)
