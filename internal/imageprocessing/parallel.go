package imageprocessing

import (
	"runtime"
	"sync"
)

// parallelRows runs fn(y) for y in [0, n) on up to GOMAXPROCS workers.
// Rows are handed out by striding so slow rows do not pile up on one worker.
func parallelRows(n int, fn func(y int)) {
	if n <= 0 {
		return
	}
	workers := min(runtime.GOMAXPROCS(0), n)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := range workers {
		go func() {
			defer wg.Done()
			for y := w; y < n; y += workers {
				fn(y)
			}
		}()
	}
	wg.Wait()
}
