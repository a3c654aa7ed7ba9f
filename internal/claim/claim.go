// Package claim hands out work items to workers. It guarantees that no
// two workers ever act on the same target: in generative mode by
// construction of the names, in enumerative mode by an atomic
// compare-and-increment claim over a fixed list.
//
// The claim step is deliberately tiny (a counter bump, never an I/O
// operation), so workers serialize for nanoseconds and write in
// parallel for the rest of the time.
package claim

import "fmt"

// Item is a single unit of work: write Size bytes to Target.
type Item struct {
	// Index orders items. In enumerative mode it is the position in
	// the discovered list; in generative mode it is the worker-local
	// counter.
	Index int

	// Worker is the id of the worker the item was issued to.
	Worker int

	// Target is the absolute path the item writes.
	Target string

	// Size is the number of bytes to write.
	Size int64
}

func (it Item) String() string {
	return fmt.Sprintf("item %d/w%d %s (%d bytes)", it.Index, it.Worker, it.Target, it.Size)
}

// Source issues work items. Implementations must be safe for
// concurrent use by all workers.
type Source interface {
	// Next returns the next item for the given worker. ok is false
	// when no work remains for that worker; the worker then exits its
	// loop. Generative sources never run out.
	Next(workerID int) (it Item, ok bool)
}
