package fill

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"
)

// CopyChunk is the per-write granularity for target files. It is also
// the largest single token reservation made against the rate limiter,
// so limiter bursts must be at least this large.
const CopyChunk = 4 << 20

// Copier writes target files using the filler as payload source. One
// Copier per worker; it keeps its own chunk buffer and reopens the
// filler lazily, so distinct workers never contend on shared state.
type Copier struct {
	fillerPath string
	limiter    *rate.Limiter // nil = unlimited
	buf        []byte
	filler     *os.File
	fillerSize int64
}

// NewCopier returns a Copier sourcing payload from fillerPath. A nil
// limiter disables throttling.
func NewCopier(fillerPath string, limiter *rate.Limiter) *Copier {
	return &Copier{
		fillerPath: fillerPath,
		limiter:    limiter,
		buf:        make([]byte, CopyChunk),
	}
}

// Copy (re)writes the file at target with exactly size bytes drawn
// from the filler, wrapping around if size exceeds the filler length.
// The write is chunked; ctx cancellation is observed between chunks,
// never mid-chunk. Returns the bytes actually written, which on error
// may be short.
func (c *Copier) Copy(ctx context.Context, target string, size int64) (int64, error) {
	if err := c.openFiller(); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create target %s: %w", target, err)
	}

	var written int64
	var offset int64 // read position within the filler
	for written < size {
		if err := ctx.Err(); err != nil {
			out.Close()
			return written, err
		}

		n := int64(len(c.buf))
		if n > size-written {
			n = size - written
		}
		if n > c.fillerSize-offset {
			n = c.fillerSize - offset
		}

		if c.limiter != nil {
			if err := c.limiter.WaitN(ctx, int(n)); err != nil {
				out.Close()
				return written, err
			}
		}

		r, err := c.filler.ReadAt(c.buf[:n], offset)
		if err != nil && err != io.EOF {
			out.Close()
			return written, fmt.Errorf("read filler: %w", err)
		}
		if r == 0 {
			out.Close()
			return written, fmt.Errorf("filler truncated at offset %d", offset)
		}

		w, err := out.Write(c.buf[:r])
		written += int64(w)
		if err != nil {
			out.Close()
			return written, fmt.Errorf("write %s: %w", target, err)
		}

		offset += int64(r)
		if offset >= c.fillerSize {
			offset = 0
		}
	}

	if err := out.Close(); err != nil {
		return written, fmt.Errorf("close %s: %w", target, err)
	}
	return written, nil
}

// Close releases the filler handle. Safe to call multiple times.
func (c *Copier) Close() error {
	if c.filler == nil {
		return nil
	}
	err := c.filler.Close()
	c.filler = nil
	return err
}

func (c *Copier) openFiller() error {
	if c.filler != nil {
		return nil
	}
	f, err := os.Open(c.fillerPath)
	if err != nil {
		return fmt.Errorf("open filler: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat filler: %w", err)
	}
	if st.Size() == 0 {
		f.Close()
		return fmt.Errorf("filler %s is empty", c.fillerPath)
	}
	c.filler = f
	c.fillerSize = st.Size()
	return nil
}
