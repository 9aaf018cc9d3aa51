package mve

import (
	"bytes"
	"encoding/binary"
)

// containerBuilder assembles synthetic MVE containers for tests.
type containerBuilder struct {
	buf bytes.Buffer
}

// newContainer starts a builder with the signature and its trailer words.
func newContainer() *containerBuilder {
	b := &containerBuilder{}
	b.buf.Write(signature)
	b.buf.Write([]byte{0x1A, 0x00, 0x00, 0x01, 0x33, 0x11})
	return b
}

// newContainerAt prefixes junk bytes before the signature to exercise the
// byte-by-byte scan.
func newContainerAt(junk []byte) *containerBuilder {
	b := &containerBuilder{}
	b.buf.Write(junk)
	b.buf.Write(signature)
	b.buf.Write([]byte{0x1A, 0x00, 0x00, 0x01, 0x33, 0x11})
	return b
}

// chunk appends a chunk whose declared size is the sum of its opcodes'
// framed sizes.
func (b *containerBuilder) chunk(typ uint16, opcodes ...[]byte) *containerBuilder {
	size := 0
	for _, op := range opcodes {
		size += len(op)
	}
	var pre [chunkPreambleSize]byte
	binary.LittleEndian.PutUint16(pre[0:2], uint16(size))
	binary.LittleEndian.PutUint16(pre[2:4], typ)
	b.buf.Write(pre[:])
	for _, op := range opcodes {
		b.buf.Write(op)
	}
	return b
}

// rawChunk appends a chunk with an explicit declared size, for malformed
// framing tests.
func (b *containerBuilder) rawChunk(typ uint16, declaredSize int, opcodes ...[]byte) *containerBuilder {
	var pre [chunkPreambleSize]byte
	binary.LittleEndian.PutUint16(pre[0:2], uint16(declaredSize))
	binary.LittleEndian.PutUint16(pre[2:4], typ)
	b.buf.Write(pre[:])
	for _, op := range opcodes {
		b.buf.Write(op)
	}
	return b
}

func (b *containerBuilder) reader() *bytes.Reader {
	return bytes.NewReader(b.buf.Bytes())
}

// op frames one opcode record: preamble plus payload.
func op(typ, version uint8, payload []byte) []byte {
	out := make([]byte, opcodePreambleSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(payload)))
	out[2] = typ
	out[3] = version
	copy(out[opcodePreambleSize:], payload)
	return out
}

func timerOp(divisor uint32, subdivisor uint16) []byte {
	p := make([]byte, 6)
	binary.LittleEndian.PutUint32(p[0:4], divisor)
	binary.LittleEndian.PutUint16(p[4:6], subdivisor)
	return op(opcodeCreateTimer, 0, p)
}

func initAudioOp(version uint8, flags, sampleRate uint16) []byte {
	p := make([]byte, 8)
	binary.LittleEndian.PutUint16(p[2:4], flags)
	binary.LittleEndian.PutUint16(p[4:6], sampleRate)
	return op(opcodeInitAudioBuffers, version, p)
}

func initVideoOp(version uint8, widthBlocks, heightBlocks, trueColor uint16) []byte {
	p := make([]byte, 8)
	binary.LittleEndian.PutUint16(p[0:2], widthBlocks)
	binary.LittleEndian.PutUint16(p[2:4], heightBlocks)
	binary.LittleEndian.PutUint16(p[6:8], trueColor)
	return op(opcodeInitVideoBuffers, version, p)
}

func paletteOp(first uint16, colors [][3]byte) []byte {
	p := make([]byte, 4+3*len(colors))
	binary.LittleEndian.PutUint16(p[0:2], first)
	binary.LittleEndian.PutUint16(p[2:4], uint16(len(colors)))
	for i, c := range colors {
		copy(p[4+3*i:], c[:])
	}
	return op(opcodeSetPalette, 0, p)
}

// rawPaletteOp frames a set-palette opcode with an explicit first/count that
// need not match the supplied component bytes.
func rawPaletteOp(first, count uint16, components []byte) []byte {
	p := make([]byte, 4+len(components))
	binary.LittleEndian.PutUint16(p[0:2], first)
	binary.LittleEndian.PutUint16(p[2:4], count)
	copy(p[4:], components)
	return op(opcodeSetPalette, 0, p)
}

// pcmAudioFrameOp frames an audio-frame opcode whose payload is the 6-byte
// PCM sub-header followed by sample data.
func pcmAudioFrameOp(seq uint16, samples []byte) []byte {
	p := make([]byte, pcmSubHeaderSize+len(samples))
	binary.LittleEndian.PutUint16(p[0:2], seq)
	binary.LittleEndian.PutUint16(p[4:6], uint16(len(samples)))
	copy(p[pcmSubHeaderSize:], samples)
	return op(opcodeAudioFrame, 0, p)
}

func decodeMapOp(data []byte) []byte {
	return op(opcodeSetDecodingMap, 0, data)
}

func videoDataOp(data []byte) []byte {
	return op(opcodeVideoData, 0, data)
}

func endOfChunkOp() []byte {
	return op(opcodeEndOfChunk, 0, nil)
}

// seq returns n distinct bytes for payload content checks.
func seq(start byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = start + byte(i)
	}
	return out
}
