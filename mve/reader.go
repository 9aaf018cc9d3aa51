package mve

import (
	"errors"
	"fmt"
	"io"
)

// cursor tracks an absolute read position over an io.ReadSeeker. The demuxer
// assumes exclusive ownership of the underlying stream position between
// calls; interleaving external reads of the same stream is unsupported.
type cursor struct {
	rs  io.ReadSeeker
	pos int64
}

func newCursor(rs io.ReadSeeker) (*cursor, error) {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("mve: stream position: %w", err)
	}
	return &cursor{rs: rs, pos: pos}, nil
}

func (c *cursor) tell() int64 {
	return c.pos
}

func (c *cursor) seekTo(offset int64) error {
	if offset == c.pos {
		return nil
	}
	if _, err := c.rs.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("mve: seek to %d: %w", offset, err)
	}
	c.pos = offset
	return nil
}

func (c *cursor) skip(n int) error {
	return c.seekTo(c.pos + int64(n))
}

// readFull fills buf or fails. EOF before the requested count, clean or not,
// is reported as ErrShortRead.
func (c *cursor) readFull(buf []byte) error {
	n, err := io.ReadFull(c.rs, buf)
	c.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read %d of %d bytes: %w", n, len(buf), ErrShortRead)
		}
		return err
	}
	return nil
}

func (c *cursor) readByte() (byte, error) {
	var b [1]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
