package executor

import (
	"bytes"
	"sync"
	"unicode/utf8"
)

// cappedBuffer collects combined output up to a fixed number of bytes.
// Writes past the cap are accepted and discarded so the child never blocks
// on a full pipe or sees EPIPE.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.limit - c.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			c.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

// Result returns the captured bytes and whether anything was dropped.
// Truncated output never ends in the first bytes of a cut-off character.
func (c *cappedBuffer) Result() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.buf.Bytes()
	if c.truncated {
		out = trimPartialRune(out)
	}
	return string(out), c.truncated
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return b
			}
			return b[:i]
		}
	}
	return b
}
