package mve

import (
	"encoding/binary"
	"fmt"
)

// decodeChunk reads one chunk preamble and drives the opcode decoder until
// the chunk's declared size is exhausted. It returns the chunk type even
// when decoding fails partway, and always records the stream position after
// the chunk as the resume point, so scanning can continue correctly after
// packet emission moves the cursor elsewhere.
func (d *Demuxer) decodeChunk() (uint16, error) {
	var pre [chunkPreambleSize]byte
	if err := d.cur.readFull(pre[:]); err != nil {
		return 0, fmt.Errorf("mve: chunk preamble: %w", err)
	}
	remaining := int(binary.LittleEndian.Uint16(pre[0:2]))
	typ := binary.LittleEndian.Uint16(pre[2:4])
	if typ > chunkEnd {
		return 0, fmt.Errorf("mve: chunk type 0x%04X: %w", typ, ErrMalformedChunk)
	}

	var opErr error
	for remaining > 0 {
		var opre [opcodePreambleSize]byte
		if err := d.cur.readFull(opre[:]); err != nil {
			opErr = fmt.Errorf("mve: incomplete chunk: %w", err)
			break
		}
		opSize := int(binary.LittleEndian.Uint16(opre[0:2]))
		opType := opre[2]
		opVersion := opre[3]

		// The opcode's framed size must fit the chunk's remaining budget
		// before its payload is touched.
		remaining -= opcodePreambleSize + opSize
		if remaining < 0 {
			opErr = fmt.Errorf("mve: opcode 0x%02X overruns chunk budget by %d: %w",
				opType, -remaining, ErrMalformedChunk)
			break
		}

		if err := d.applyOpcode(opType, opVersion, opSize); err != nil {
			opErr = err
			break
		}
	}

	d.resumeOffset = d.cur.tell()
	return typ, opErr
}
