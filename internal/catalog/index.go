package catalog

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

const indexMaxNeighbors = 16

// Index is an in-memory nearest-neighbor index over stored
// embeddings, used to surface similar shots from earlier runs.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	byID  map[string]*StoredEmbedding
}

// Neighbor is one similar past shot.
type Neighbor struct {
	Path     string
	Distance float32
}

// NewIndex builds an index from the store's embeddings.
func NewIndex(embeddings []StoredEmbedding) *Index {
	idx := &Index{byID: make(map[string]*StoredEmbedding, len(embeddings))}
	if len(embeddings) == 0 {
		return idx
	}

	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	for i := range embeddings {
		e := &embeddings[i]
		if len(e.Vector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(e.Path, e.Vector))
		idx.byID[e.Path] = e
	}
	idx.graph = g
	return idx
}

// Add inserts or replaces one embedding.
func (idx *Index) Add(e *StoredEmbedding) {
	if len(e.Vector) == 0 {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.graph == nil {
		g := hnsw.NewGraph[string]()
		g.M = indexMaxNeighbors
		g.Ml = 1.0 / float64(indexMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		idx.graph = g
	}
	idx.graph.Add(hnsw.MakeNode(e.Path, e.Vector))
	idx.byID[e.Path] = e
}

// Len returns the number of indexed embeddings.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// SimilarShots loads every stored embedding into an index and returns
// the k shots nearest to the one at path. The shot must carry an
// embedding from an earlier run.
func (s *Store) SimilarShots(path string, k int) ([]Neighbor, error) {
	embeddings, err := s.Embeddings()
	if err != nil {
		return nil, err
	}

	var query []float32
	for i := range embeddings {
		if embeddings[i].Path == path {
			query = embeddings[i].Vector
			break
		}
	}
	if query == nil {
		return nil, fmt.Errorf("no embedding stored for %s, ingest it first", path)
	}

	return NewIndex(embeddings).Search(path, query, k), nil
}

// Search returns up to k shots nearest to the query vector, excluding
// the query path itself when it is already indexed.
func (idx *Index) Search(queryPath string, vector []float32, k int) []Neighbor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil || len(vector) == 0 || k <= 0 {
		return nil
	}

	nodes := idx.graph.Search(vector, k+1)
	out := make([]Neighbor, 0, k)
	for _, n := range nodes {
		if n.Key == queryPath {
			continue
		}
		e, ok := idx.byID[n.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{
			Path:     e.Path,
			Distance: hnsw.CosineDistance(vector, e.Vector),
		})
		if len(out) == k {
			break
		}
	}
	return out
}
