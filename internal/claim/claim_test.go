package claim

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerative_UniqueTargetsAcrossWorkers(t *testing.T) {
	const workers = 4
	const perWorker = 50

	g := NewGenerative("/mnt/x", 100, 200, workers)

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				it, ok := g.Next(id)
				if !ok {
					t.Errorf("generative source ran out of work")
					return
				}
				mu.Lock()
				if seen[it.Target] {
					t.Errorf("duplicate target %s", it.Target)
				}
				seen[it.Target] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique targets, got %d", workers*perWorker, len(seen))
	}
}

func TestGenerative_SizeRange(t *testing.T) {
	g := NewGenerative("/mnt/x", 800, 1000, 1)
	for i := 0; i < 200; i++ {
		it, _ := g.Next(0)
		if it.Size < 800 || it.Size > 1000 {
			t.Fatalf("size %d outside [800,1000]", it.Size)
		}
	}
}

func TestGenerative_NamingConvention(t *testing.T) {
	g := NewGenerative("/mnt/x", 10, 10, 3)
	it, _ := g.Next(2)
	if filepath.Base(it.Target) != "file.0.2" {
		t.Fatalf("expected file.0.2, got %s", filepath.Base(it.Target))
	}
	it, _ = g.Next(2)
	if filepath.Base(it.Target) != "file.1.2" {
		t.Fatalf("expected file.1.2, got %s", filepath.Base(it.Target))
	}
}

func TestEnumerative_ExactlyOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			const m = 100
			items := make([]Item, m)
			for i := range items {
				items[i] = Item{Index: i, Target: fmt.Sprintf("/x/file.%d.0", i), Size: 1}
			}
			e := NewEnumerative(items)

			var mu sync.Mutex
			var claimed []int
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for {
						it, ok := e.Next(id)
						if !ok {
							return
						}
						mu.Lock()
						claimed = append(claimed, it.Index)
						mu.Unlock()
					}
				}(w)
			}
			wg.Wait()

			sort.Ints(claimed)
			require.Len(t, claimed, m, "claimed multiset must cover the list exactly")
			for i, idx := range claimed {
				require.Equal(t, i, idx, "no gaps and no duplicates")
			}
			require.Equal(t, m, e.Claimed())
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()

	mustWrite := func(name string, size int) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("file.0.0", 10)
	mustWrite("file.1.0", 20)
	mustWrite("file.0.1", 30)
	mustWrite("unrelated.txt", 5)
	mustWrite(".diskburn-filler", 99)
	if err := os.Mkdir(filepath.Join(dir, "file.9.9"), 0o755); err != nil {
		t.Fatal(err)
	}

	items, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Deterministic order, indices assigned sequentially, sizes read
	// from the files themselves.
	for i, it := range items {
		require.Equal(t, i, it.Index)
	}
	require.Equal(t, filepath.Join(dir, "file.0.0"), items[0].Target)
	require.Equal(t, int64(10), items[0].Size)
}

func TestDiscover_EmptyDirIsError(t *testing.T) {
	_, err := Discover(t.TempDir())
	require.ErrorIs(t, err, ErrNoWork)
}

func TestLockDir_Exclusive(t *testing.T) {
	dir := t.TempDir()
	l := NewLockDir(dir)
	target := filepath.Join(dir, "file.0.0")

	if !l.TryLock(target) {
		t.Fatal("first TryLock should succeed")
	}
	if l.TryLock(target) {
		t.Fatal("second TryLock should fail while held")
	}
	l.Unlock(target)
	if !l.TryLock(target) {
		t.Fatal("TryLock should succeed after Unlock")
	}
}

func TestLockDir_Sweep(t *testing.T) {
	dir := t.TempDir()
	l := NewLockDir(dir)

	l.TryLock(filepath.Join(dir, "file.0.0"))
	l.TryLock(filepath.Join(dir, "file.1.0"))
	if err := os.WriteFile(filepath.Join(dir, "file.2.0"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := l.Sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Fatalf("lock dir %s survived sweep", e.Name())
		}
	}
	if !l.TryLock(filepath.Join(dir, "file.0.0")) {
		t.Fatal("lock should be acquirable after sweep")
	}
}
