package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const mountsPath = "/proc/self/mounts"

// Resolve maps a mount path to the canonical name of the block device
// backing it, e.g. "/mnt/scratch" -> "nvme0n1p2". The lookup walks the
// mount table for the longest mount-point prefix of the (absolute)
// path and follows symlinks such as /dev/mapper entries, so the result
// matches the device column iostat reports. Resolution happens once at
// startup; an unresolvable mount is a fatal configuration error.
func Resolve(mount string) (string, error) {
	abs, err := filepath.Abs(mount)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", mount, err)
	}
	return resolveIn(mountsPath, abs)
}

func resolveIn(table, abs string) (string, error) {
	f, err := os.Open(table)
	if err != nil {
		return "", fmt.Errorf("open mount table: %w", err)
	}
	defer f.Close()

	var (
		bestLen int
		bestDev string
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		dev, mp := fields[0], unescapeMount(fields[1])
		if !strings.HasPrefix(dev, "/dev/") {
			continue
		}
		if mp == abs || strings.HasPrefix(abs, strings.TrimSuffix(mp, "/")+"/") || mp == "/" {
			if len(mp) > bestLen {
				bestLen = len(mp)
				bestDev = dev
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read mount table: %w", err)
	}
	if bestDev == "" {
		return "", fmt.Errorf("no block device found for %s", abs)
	}

	// dm / LVM devices appear as symlinks; iostat reports the
	// canonical kernel name.
	if resolved, err := filepath.EvalSymlinks(bestDev); err == nil {
		bestDev = resolved
	}
	return filepath.Base(bestDev), nil
}

// unescapeMount decodes the octal escapes /proc/self/mounts uses for
// whitespace in mount points (e.g. "\040" for space).
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			var c byte
			for j := 1; j <= 3; j++ {
				c = c<<3 | (s[i+j] - '0')
			}
			b.WriteByte(c)
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
