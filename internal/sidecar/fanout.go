// Package sidecar fans a composed record out to every file a
// super-group touches.
package sidecar

import (
	"context"
	"sort"
	"sync"

	"github.com/rkubicek/rawsidecar/internal/groups"
	"github.com/rkubicek/rawsidecar/internal/metadata"
	"github.com/rkubicek/rawsidecar/internal/scan"
	"github.com/rkubicek/rawsidecar/internal/xmp"
)

// RecordWriter writes one sidecar document.
type RecordWriter interface {
	Write(path string, rec *metadata.Record) error
}

// EmitResult reports one sidecar write.
type EmitResult struct {
	ImagePath   string
	SidecarPath string
	Err         error
}

// Fanout writes sidecars for super-groups, a bounded number at a time.
type Fanout struct {
	writer  RecordWriter
	workers int
}

func NewFanout(writer RecordWriter, workers int) *Fanout {
	if workers < 1 {
		workers = 1
	}
	return &Fanout{writer: writer, workers: workers}
}

// AffectedFiles collects every file the super-group touches: all base
// images across its sub-groups, their derivatives, and their bracketed
// siblings. Deduplicated by path, sorted.
func AffectedFiles(sg *groups.SuperGroup, result *scan.ScanResult) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, sub := range sg.SubGroups() {
		bases := sub.Members
		if sub.Cluster != nil && sub.Cluster.IsBracketed {
			bases = sub.Cluster.Members
		}
		for _, base := range bases {
			add(base.Path)
			for _, d := range result.DerivativesOf(base) {
				add(d.Path)
			}
		}
	}

	sort.Strings(paths)
	return paths
}

// Emit writes one sidecar per affected file. Writes run concurrently;
// a failing write is reported in its result and does not cancel peers.
// Cancellation skips files not yet started.
func (f *Fanout) Emit(ctx context.Context, sg *groups.SuperGroup, rec *metadata.Record, result *scan.ScanResult) []EmitResult {
	paths := AffectedFiles(sg, result)
	results := make([]EmitResult, len(paths))

	var wg sync.WaitGroup
	sem := make(chan struct{}, f.workers)

	for i, imagePath := range paths {
		if ctx.Err() != nil {
			results[i] = EmitResult{ImagePath: imagePath, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, imagePath string) {
			defer wg.Done()
			defer func() { <-sem }()

			sidecarPath := xmp.SidecarPath(imagePath)
			err := f.writer.Write(sidecarPath, rec)
			results[i] = EmitResult{
				ImagePath:   imagePath,
				SidecarPath: sidecarPath,
				Err:         err,
			}
		}(i, imagePath)
	}

	wg.Wait()
	return results
}
