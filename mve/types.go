// Package mve implements demuxing of Interplay MVE containers. It walks the
// chunk/opcode hierarchy, extracts stream configuration as a side effect of
// opcode parsing, and reassembles deferred audio and video payload references
// into timestamped packets on a pull basis.
package mve

// Chunk and opcode records share the same 4-byte preamble size.
const (
	chunkPreambleSize  = 4
	opcodePreambleSize = 4
)

// Top-level chunk types. Values above chunkEnd are not valid in a container.
const (
	chunkInitAudio uint16 = 0x0000
	chunkAudioOnly uint16 = 0x0001
	chunkInitVideo uint16 = 0x0002
	chunkVideo     uint16 = 0x0003
	chunkShutdown  uint16 = 0x0004
	chunkEnd       uint16 = 0x0005
)

// Opcode types. The "unknown" values are documented in the format but carry
// no payload the demuxer needs; they are skipped. Anything above
// opcodeUnknown15 is a hard decode error.
const (
	opcodeEndOfStream          uint8 = 0x00
	opcodeEndOfChunk           uint8 = 0x01
	opcodeCreateTimer          uint8 = 0x02
	opcodeInitAudioBuffers     uint8 = 0x03
	opcodeStartStopAudio       uint8 = 0x04
	opcodeInitVideoBuffers     uint8 = 0x05
	opcodeUnknown06            uint8 = 0x06
	opcodeSendBuffer           uint8 = 0x07
	opcodeAudioFrame           uint8 = 0x08
	opcodeSilenceFrame         uint8 = 0x09
	opcodeInitVideoMode        uint8 = 0x0A
	opcodeCreateGradient       uint8 = 0x0B
	opcodeSetPalette           uint8 = 0x0C
	opcodeSetPaletteCompressed uint8 = 0x0D
	opcodeUnknown0E            uint8 = 0x0E
	opcodeSetDecodingMap       uint8 = 0x0F
	opcodeUnknown10            uint8 = 0x10
	opcodeVideoData            uint8 = 0x11
	opcodeUnknown12            uint8 = 0x12
	opcodeUnknown13            uint8 = 0x13
	opcodeUnknown14            uint8 = 0x14
	opcodeUnknown15            uint8 = 0x15
)

// maxPaletteOpcodeSize is the logical maximum set-palette payload:
// 4 header bytes plus 3 component bytes for each of 256 entries.
const maxPaletteOpcodeSize = 0x304

// pendingRef is a deferred payload reference: the position and size of raw
// bytes noted during opcode parsing and materialized later by the scheduler.
// The zero value means no payload is pending.
type pendingRef struct {
	offset int64
	size   int
	ok     bool
}
