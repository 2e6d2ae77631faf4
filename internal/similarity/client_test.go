package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbeddings_Batch(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		gotPaths = append(gotPaths, req.Paths...)
		resp := embeddingsResponse{Embeddings: make([][]float32, len(req.Paths))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{1, 0, 0}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	vectors, err := c.Embeddings(context.Background(), []string{"/a.jpg", "/b.jpg"})
	if err != nil {
		t.Fatalf("embeddings failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if len(gotPaths) != 2 {
		t.Errorf("expected 2 paths sent, got %d", len(gotPaths))
	}
}

func TestEmbeddings_NullEntryForFailedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Second image failed server-side: null in place.
		w.Write([]byte(`{"embeddings": [[0.5, 0.5], null]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	vectors, err := c.Embeddings(context.Background(), []string{"/a.jpg", "/b.jpg"})
	if err != nil {
		t.Fatalf("embeddings failed: %v", err)
	}
	if vectors[0] == nil {
		t.Error("first vector should be present")
	}
	if vectors[1] != nil {
		t.Error("failed image must yield a nil vector")
	}
}

func TestPost_RetriesTransportErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"embeddings": [[1]]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Embeddings(context.Background(), []string{"/a.jpg"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestPost_NoRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Embeddings(context.Background(), []string{"/a.jpg"}); err == nil {
		t.Fatal("expected error on 400")
	}
	if attempts != 1 {
		t.Errorf("4xx must not retry, got %d attempts", attempts)
	}
}

func TestEmbeddings_UnreachableIsErrUnavailable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Embeddings(context.Background(), []string{"/a.jpg"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSimilarity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/similarity" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"similarity": 0.92}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	sim, err := c.Similarity(context.Background(), []float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("similarity failed: %v", err)
	}
	if math.Abs(sim-0.92) > 1e-9 {
		t.Errorf("expected 0.92, got %f", sim)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Health(context.Background()); err != nil {
		t.Errorf("health probe failed: %v", err)
	}
	if err := NewClient("http://127.0.0.1:1").Health(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for dead service, got %v", err)
	}
}
