// Package fill materializes the filler file: the fixed-size payload
// every worker copies from when writing target files. The filler is
// created once, survives across runs, and is never mutated while
// workers are running.
package fill

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// DefaultSize is the filler length used when the caller does not
// override it: 1 GiB.
const DefaultSize = 1 << 30

// chunkSize is the copy granularity for generating the filler.
const chunkSize = 4 << 20

// Filename is the well-known filler name under the mount path.
const Filename = ".diskburn-filler"

// Ensure guarantees that a filler of exactly size bytes exists at
// path. If the file is already the right length nothing happens;
// otherwise it is deleted and regenerated from crypto/rand and synced
// to stable storage before Ensure returns. The returned bool reports
// whether a regeneration took place.
//
// Ensure is idempotent but not safe against two orchestrator
// processes racing on the same path; callers serialize externally.
func Ensure(path string, size int64) (bool, error) {
	if size <= 0 {
		return false, fmt.Errorf("filler size must be positive, got %d", size)
	}

	if st, err := os.Stat(path); err == nil {
		if st.Mode().IsRegular() && st.Size() == size {
			logrus.WithFields(logrus.Fields{"path": path, "size": size}).
				Debug("filler already present, reusing")
			return false, nil
		}
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("remove stale filler: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat filler: %w", err)
	}

	logrus.WithFields(logrus.Fields{"path": path, "size": size}).
		Info("generating filler")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return false, fmt.Errorf("create filler: %w", err)
	}

	if err := writeRandom(f, size); err != nil {
		f.Close()
		os.Remove(path)
		return false, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return false, fmt.Errorf("sync filler: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close filler: %w", err)
	}
	return true, nil
}

func writeRandom(w io.Writer, size int64) error {
	buf := make([]byte, chunkSize)
	for remaining := size; remaining > 0; {
		n := int64(len(buf))
		if n > remaining {
			n = remaining
		}
		if _, err := io.ReadFull(rand.Reader, buf[:n]); err != nil {
			return fmt.Errorf("read random payload: %w", err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("write filler: %w", err)
		}
		remaining -= n
	}
	return nil
}
