package claim

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync/atomic"
)

// ErrNoWork is returned by Discover when the target directory holds
// no files matching the naming convention. Starting a rewrite run with
// nothing to rewrite is a configuration error, not an empty success.
var ErrNoWork = errors.New("no matching work items found")

// targetPattern matches files produced by previous generative runs.
var targetPattern = regexp.MustCompile(`^file\.\d+\.\d+$`)

// Discover scans dir (non-recursively) for existing targets and
// returns them as an ordered work list. Sizes are read from the files
// themselves. The order is deterministic (lexicographic by name) so
// every run over the same directory enumerates the same list.
func Discover(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, e := range entries {
		if e.IsDir() || !targetPattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Deleted between ReadDir and Info; not our item anymore.
			continue
		}
		items = append(items, Item{
			Target: filepath.Join(dir, e.Name()),
			Size:   info.Size(),
		})
	}
	if len(items) == 0 {
		return nil, ErrNoWork
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Target < items[j].Target })
	for i := range items {
		items[i].Index = i
	}
	return items, nil
}

// Enumerative partitions a fixed list of items across workers through
// a single shared counter. The atomic increment is the sole
// correctness mechanism: each index is handed out exactly once no
// matter how workers interleave, start late, or die early. Everything
// after the increment happens outside any critical section.
type Enumerative struct {
	items []Item
	next  atomic.Int64
}

// NewEnumerative returns a source over the given ordered work list.
func NewEnumerative(items []Item) *Enumerative {
	return &Enumerative{items: items}
}

// Next claims the next unclaimed index for workerID. ok is false once
// the list is exhausted.
func (e *Enumerative) Next(workerID int) (Item, bool) {
	idx := e.next.Add(1) - 1
	if idx >= int64(len(e.items)) {
		return Item{}, false
	}
	it := e.items[idx]
	it.Worker = workerID
	return it, true
}

// Total returns the number of items in the list.
func (e *Enumerative) Total() int { return len(e.items) }

// Claimed returns how many indices have been handed out so far,
// capped at the list length.
func (e *Enumerative) Claimed() int {
	n := e.next.Load()
	if n > int64(len(e.items)) {
		n = int64(len(e.items))
	}
	return int(n)
}
