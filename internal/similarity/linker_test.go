package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rkubicek/rawsidecar/internal/cluster"
	"github.com/rkubicek/rawsidecar/internal/scan"
)

type passthroughPreviewer struct{}

func (passthroughPreviewer) Extract(path string) (string, error) { return path, nil }

func subGroup(path string) *cluster.SubGroup {
	b := &scan.BaseImage{File: scan.File{Path: path}}
	return &cluster.SubGroup{
		Members:        []*scan.BaseImage{b},
		Representative: b,
		Similarity:     100,
	}
}

// embeddingServer returns canned vectors keyed by request path.
func embeddingServer(t *testing.T, vectors map[string][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		resp := embeddingsResponse{}
		for _, p := range req.Paths {
			resp.Embeddings = append(resp.Embeddings, vectors[p])
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: %f, want 1", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: %f, want 0", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("dimension mismatch: %f, want 0", got)
	}
}

func TestLink_EmitsEdgeAboveThreshold(t *testing.T) {
	srv := embeddingServer(t, map[string][]float32{
		"/a/IMG_0001.CR2": {1, 0, 0},
		"/b/IMG_0050.CR2": {0.95, 0.312, 0}, // cosine ~0.95 with a
		"/c/IMG_0100.CR2": {0, 0, 1},        // orthogonal
	})
	defer srv.Close()

	l := NewLinker(NewClient(srv.URL), passthroughPreviewer{})
	groups := []*cluster.SubGroup{
		subGroup("/a/IMG_0001.CR2"),
		subGroup("/b/IMG_0050.CR2"),
		subGroup("/c/IMG_0100.CR2"),
	}

	edges, embeddings, err := l.Link(context.Background(), groups, 80, 2)
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	e := edges[0]
	if e.A != 0 || e.B != 1 {
		t.Errorf("expected edge 0-1, got %d-%d", e.A, e.B)
	}
	if e.Percent < 80 {
		t.Errorf("edge percent %d below threshold", e.Percent)
	}

	// Embeddings come back indexed like the input so callers can
	// persist them per sub-group.
	if len(embeddings) != len(groups) {
		t.Fatalf("expected %d embeddings, got %d", len(groups), len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) != 3 {
			t.Errorf("embedding %d has dimension %d, want 3", i, len(emb))
		}
	}
}

func TestLink_SymmetricPairsDeduplicated(t *testing.T) {
	srv := embeddingServer(t, map[string][]float32{
		"/a.cr2": {1, 0},
		"/b.cr2": {1, 0},
	})
	defer srv.Close()

	l := NewLinker(NewClient(srv.URL), passthroughPreviewer{})
	edges, _, err := l.Link(context.Background(), []*cluster.SubGroup{subGroup("/a.cr2"), subGroup("/b.cr2")}, 80, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected exactly 1 edge for a pair, got %d", len(edges))
	}
	if edges[0].A >= edges[0].B {
		t.Errorf("edges must keep A < B, got %d-%d", edges[0].A, edges[0].B)
	}
}

func TestLink_ServiceDownDegrades(t *testing.T) {
	l := NewLinker(NewClient("http://127.0.0.1:1"), passthroughPreviewer{})
	edges, embeddings, err := l.Link(context.Background(), []*cluster.SubGroup{subGroup("/a.cr2"), subGroup("/b.cr2")}, 80, 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if edges != nil || embeddings != nil {
		t.Error("no edges or embeddings expected when the service is down")
	}
}

func TestLink_SingleGroupNoEdges(t *testing.T) {
	l := NewLinker(NewClient("http://127.0.0.1:1"), passthroughPreviewer{})
	edges, _, err := l.Link(context.Background(), []*cluster.SubGroup{subGroup("/a.cr2")}, 80, 1)
	if err != nil {
		t.Fatalf("single group must not touch the service: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("expected no edges, got %d", len(edges))
	}
}
