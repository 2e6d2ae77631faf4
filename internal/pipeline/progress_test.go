package pipeline

import (
	"fmt"
	"io"
	"sync"
	"testing"
)

// The compose stage reports from every worker goroutine at once, so
// the sink must tolerate concurrent calls. Run with -race.
func TestBarSink_ConcurrentReports(t *testing.T) {
	sink := newBarSink(io.Discard)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for pct := 0; pct <= 100; pct += 10 {
				sink(Progress{
					Stage:   "compose",
					Percent: pct,
					Message: fmt.Sprintf("worker %d", w),
				})
			}
		}(w)
	}
	wg.Wait()
}

func TestBarSink_StageTransition(t *testing.T) {
	sink := newBarSink(io.Discard)

	// A new stage finishes the old bar and opens a fresh one; the
	// transition must not panic on the first report either.
	sink(Progress{Stage: "scan", Percent: 100, Message: "12 base images"})
	sink(Progress{Stage: "exif", Percent: 50})
	sink(Progress{Stage: "exif", Percent: 100})
}
