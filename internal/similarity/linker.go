package similarity

import (
	"context"
	"fmt"
	"sync"

	"github.com/rkubicek/rawsidecar/internal/cluster"
)

// DefaultThresholdPercent is the minimum similarity percent for an edge.
const DefaultThresholdPercent = 80

// Edge connects two sub-groups (by index) with a similarity percent.
// A < B always holds, which makes deduplication by ordered pair free.
type Edge struct {
	A       int
	B       int
	Percent int
}

// Previewer resolves a camera file to a browse JPEG on disk.
type Previewer interface {
	Extract(path string) (string, error)
}

// Linker connects sub-groups across the whole run by embedding cosine
// similarity of their representatives.
type Linker struct {
	client   *Client
	previews Previewer
}

// NewLinker creates a Linker.
func NewLinker(client *Client, previews Previewer) *Linker {
	return &Linker{client: client, previews: previews}
}

// Link embeds every sub-group representative and emits an edge for
// each pair at or above thresholdPercent. The computed embeddings are
// returned alongside the edges, indexed like groups, so callers can
// persist them without embedding twice. When the embedding service is
// unreachable the return is (nil, nil, ErrUnavailable): callers treat
// the missing edges as a warning, not a failure.
func (l *Linker) Link(ctx context.Context, groups []*cluster.SubGroup, thresholdPercent, workers int) ([]Edge, [][]float32, error) {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultThresholdPercent
	}
	if len(groups) < 2 {
		return nil, nil, nil
	}

	embeddings, err := l.representativeEmbeddings(ctx, groups, workers)
	if err != nil {
		return nil, nil, err
	}

	return edgesFromEmbeddings(embeddings, thresholdPercent), embeddings, nil
}

// edgesFromEmbeddings runs the pairwise cosine scan over
// representatives only; n stays in the low hundreds so the quadratic
// scan is trivial next to embedding. Nil vectors take part in no edge.
func edgesFromEmbeddings(embeddings [][]float32, thresholdPercent int) []Edge {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultThresholdPercent
	}
	var edges []Edge
	for i := 0; i < len(embeddings); i++ {
		if embeddings[i] == nil {
			continue
		}
		for j := i + 1; j < len(embeddings); j++ {
			if embeddings[j] == nil {
				continue
			}
			pct := Percent(Cosine(embeddings[i], embeddings[j]))
			if pct >= thresholdPercent {
				edges = append(edges, Edge{A: i, B: j, Percent: pct})
			}
		}
	}
	return edges
}

// representativeEmbeddings extracts the representative preview of each
// sub-group and embeds them. Preview workers run concurrently; the
// embedding calls batch internally. Entries stay nil for groups whose
// preview failed.
func (l *Linker) representativeEmbeddings(ctx context.Context, groups []*cluster.SubGroup, workers int) ([][]float32, error) {
	if workers <= 0 {
		workers = 1
	}

	previews := make([]string, len(groups))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)
	for i, g := range groups {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			if ctx.Err() != nil {
				return
			}
			if p, err := l.previews.Extract(path); err == nil {
				previews[i] = p
			}
		}(i, g.Representative.Path)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Embed only the groups with a preview, then scatter back.
	var paths []string
	var indices []int
	for i, p := range previews {
		if p != "" {
			paths = append(paths, p)
			indices = append(indices, i)
		}
	}

	embeddings := make([][]float32, len(groups))
	if len(paths) == 0 {
		return embeddings, nil
	}

	vectors, err := l.client.Embeddings(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("embedding representatives: %w", err)
	}
	for k, vec := range vectors {
		embeddings[indices[k]] = vec
	}
	return embeddings, nil
}
