package exifmeta

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"
)

// batchSize limits paths per exiftool invocation; startup cost is
// amortized without building oversized command lines.
const batchSize = 20

// batchTimeout bounds a single exiftool batch.
const batchTimeout = 60 * time.Second

// GPS is a position in signed decimal degrees.
type GPS struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64 // meters, negative below sea level
}

// Metadata is what the pipeline needs from a file's EXIF block. Absent
// values stay nil/empty; a missing capture time is not an error.
type Metadata struct {
	TakenAt     *time.Time
	Position    *GPS
	CameraMake  string
	CameraModel string
}

// Reader batch-reads EXIF metadata through the external exiftool
// binary and caches results by path for the lifetime of the run.
type Reader struct {
	binPath string

	mu    sync.RWMutex
	cache map[string]Metadata
}

// NewReader creates a Reader. binPath may be empty to use the exiftool
// found on PATH.
func NewReader(binPath string) *Reader {
	return &Reader{
		binPath: binPath,
		cache:   make(map[string]Metadata),
	}
}

func (r *Reader) newExiftool() (*exiftool.Exiftool, error) {
	if r.binPath != "" {
		return exiftool.NewExiftool(exiftool.SetExiftoolBinaryPath(r.binPath))
	}
	return exiftool.NewExiftool()
}

// Available reports whether the exiftool binary can be started.
func (r *Reader) Available() error {
	et, err := r.newExiftool()
	if err != nil {
		return fmt.Errorf("exiftool unavailable: %w", err)
	}
	return et.Close()
}

// Cached returns the cached metadata for path, if any.
func (r *Reader) Cached(path string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.cache[path]
	return m, ok
}

// Read resolves metadata for every path, hitting the cache first and
// invoking exiftool in batches for the rest. Batches run on a bounded
// worker pool. A failing batch falls back to per-file extraction; a
// file that still fails yields empty Metadata rather than an error.
func (r *Reader) Read(ctx context.Context, paths []string, workers int) (map[string]Metadata, error) {
	out := make(map[string]Metadata, len(paths))

	var missing []string
	r.mu.RLock()
	for _, p := range paths {
		if m, ok := r.cache[p]; ok {
			out[p] = m
		} else {
			missing = append(missing, p)
		}
	}
	r.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = 1
	}

	var batches [][]string
	for start := 0; start < len(missing); start += batchSize {
		end := min(start+batchSize, len(missing))
		batches = append(batches, missing[start:end])
	}

	type batchResult struct {
		meta map[string]Metadata
		err  error
	}
	results := make(chan batchResult, len(batches))
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, batch := range batches {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				results <- batchResult{err: ctx.Err()}
				return
			}
			meta, err := r.readBatch(ctx, batch)
			results <- batchResult{meta: meta, err: err}
		}(batch)
	}
	wg.Wait()
	close(results)

	var firstErr error
	for res := range results {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		for p, m := range res.meta {
			out[p] = m
		}
	}

	// Files a failed batch never reached still get an entry; callers
	// must tolerate empty metadata.
	for _, p := range missing {
		if _, ok := out[p]; !ok {
			out[p] = Metadata{}
		}
	}

	r.mu.Lock()
	for p, m := range out {
		r.cache[p] = m
	}
	r.mu.Unlock()

	if errors.Is(firstErr, context.Canceled) || errors.Is(firstErr, context.DeadlineExceeded) {
		return out, firstErr
	}
	return out, nil
}

// readBatch extracts one batch, retrying file by file when the batch
// call itself fails.
func (r *Reader) readBatch(ctx context.Context, paths []string) (map[string]Metadata, error) {
	bctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	out := make(map[string]Metadata, len(paths))

	et, err := r.newExiftool()
	if err != nil {
		return out, fmt.Errorf("starting exiftool: %w", err)
	}
	defer et.Close()

	infos := et.ExtractMetadata(paths...)
	for i, info := range infos {
		if bctx.Err() != nil {
			return out, bctx.Err()
		}
		path := paths[i]
		if info.Err != nil {
			// Per-file fallback; a file that still fails gets empty
			// metadata, which downstream treats as "no capture time".
			single := et.ExtractMetadata(path)
			if len(single) == 1 && single[0].Err == nil {
				out[path] = parseFields(single[0])
				continue
			}
			out[path] = Metadata{}
			continue
		}
		out[path] = parseFields(info)
	}
	return out, nil
}
