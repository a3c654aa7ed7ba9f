package claim

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"time"
)

// TargetName returns the fixed naming convention for generated
// targets: file.<counter>.<workerID>.
func TargetName(counter, workerID int) string {
	return fmt.Sprintf("file.%d.%d", counter, workerID)
}

// Generative synthesizes collision-free items with no shared mutable
// state: worker w's nth item is always file.<n>.<w>, and since
// (counter, worker) pairs are unique across the pool, no two workers
// can ever produce the same target. Coordination would protect
// nothing here, so there is none.
type Generative struct {
	dir      string
	minBytes int64
	maxBytes int64
	workers  []genWorker
}

type genWorker struct {
	counter int
	rng     *rand.Rand
}

// NewGenerative returns a source producing items under dir with sizes
// drawn uniformly from [minBytes, maxBytes], for a pool of the given
// number of workers. Worker ids must be in [0, workers).
func NewGenerative(dir string, minBytes, maxBytes int64, workers int) *Generative {
	g := &Generative{
		dir:      dir,
		minBytes: minBytes,
		maxBytes: maxBytes,
		workers:  make([]genWorker, workers),
	}
	seed := time.Now().UnixNano()
	for i := range g.workers {
		// Independent streams; workers never touch each other's rng.
		g.workers[i].rng = rand.New(rand.NewSource(seed + int64(i)))
	}
	return g
}

// Next issues the worker's next item. It only mutates state owned by
// that worker, so concurrent calls for distinct workers are safe
// without locking.
func (g *Generative) Next(workerID int) (Item, bool) {
	w := &g.workers[workerID]
	counter := w.counter
	w.counter++

	size := g.minBytes
	if g.maxBytes > g.minBytes {
		size += w.rng.Int63n(g.maxBytes - g.minBytes + 1)
	}

	return Item{
		Index:  counter,
		Worker: workerID,
		Target: filepath.Join(g.dir, TargetName(counter, workerID)),
		Size:   size,
	}, true
}
