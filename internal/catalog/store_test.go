package catalog

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopen must not re-apply migrations.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	s.Close()
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run, err := s.BeginRun("/photos")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run to have an id")
	}

	if err := s.FinishRun(run.ID, 42, 50, false); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
}

func TestSaveAndQueryGroups(t *testing.T) {
	s := openTestStore(t)
	run, err := s.BeginRun("/photos")
	if err != nil {
		t.Fatal(err)
	}

	records := []GroupRecord{
		{RunID: run.ID, MainPath: "/photos/a.CR2", Connections: 1, Title: "A", Keywords: []string{"x"}, Provider: "openai", Confidence: 90},
		{RunID: run.ID, MainPath: "/photos/b.CR2", Connections: 3, Title: "B", Keywords: []string{"y", "z"}, Provider: "gemini", Confidence: 70, NeedsReview: true},
	}
	for i := range records {
		if err := s.SaveGroup(&records[i]); err != nil {
			t.Fatalf("SaveGroup failed: %v", err)
		}
	}

	got, err := s.GroupsForRun(run.ID)
	if err != nil {
		t.Fatalf("GroupsForRun failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
	if got[0].MainPath != "/photos/b.CR2" {
		t.Errorf("groups should order by connections desc, got %s first", got[0].MainPath)
	}
	if !got[0].NeedsReview {
		t.Error("review flag lost on round trip")
	}
	if len(got[0].Keywords) != 2 {
		t.Errorf("keywords lost on round trip: %v", got[0].Keywords)
	}
}

func TestEmbeddingUpsert(t *testing.T) {
	s := openTestStore(t)
	run, err := s.BeginRun("/photos")
	if err != nil {
		t.Fatal(err)
	}

	e := &StoredEmbedding{Path: "/photos/a.CR2", RunID: run.ID, Vector: []float32{1, 0, 0}}
	if err := s.SaveEmbedding(e); err != nil {
		t.Fatalf("SaveEmbedding failed: %v", err)
	}

	// Second save for the same path replaces, not duplicates.
	e.Vector = []float32{0, 1, 0}
	if err := s.SaveEmbedding(e); err != nil {
		t.Fatalf("second SaveEmbedding failed: %v", err)
	}

	all, err := s.Embeddings()
	if err != nil {
		t.Fatalf("Embeddings failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(all))
	}
	if all[0].Vector[1] != 1 {
		t.Errorf("upsert did not replace vector: %v", all[0].Vector)
	}
}

func TestIndex_SearchExcludesQueryPath(t *testing.T) {
	idx := NewIndex([]StoredEmbedding{
		{Path: "/p/a.CR2", Vector: []float32{1, 0, 0}},
		{Path: "/p/b.CR2", Vector: []float32{0.99, 0.1, 0}},
		{Path: "/p/c.CR2", Vector: []float32{0, 1, 0}},
	})

	got := idx.Search("/p/a.CR2", []float32{1, 0, 0}, 2)
	if len(got) == 0 {
		t.Fatal("expected neighbors")
	}
	for _, n := range got {
		if n.Path == "/p/a.CR2" {
			t.Error("query path should be excluded from results")
		}
	}
	if got[0].Path != "/p/b.CR2" {
		t.Errorf("nearest neighbor should be b, got %s", got[0].Path)
	}
}

func TestSimilarShots(t *testing.T) {
	s := openTestStore(t)
	run, err := s.BeginRun("/photos")
	if err != nil {
		t.Fatal(err)
	}

	embeddings := []StoredEmbedding{
		{Path: "/p/a.CR2", RunID: run.ID, Vector: []float32{1, 0, 0}},
		{Path: "/p/b.CR2", RunID: run.ID, Vector: []float32{0.99, 0.1, 0}},
		{Path: "/p/c.CR2", RunID: run.ID, Vector: []float32{0, 1, 0}},
	}
	for i := range embeddings {
		if err := s.SaveEmbedding(&embeddings[i]); err != nil {
			t.Fatalf("SaveEmbedding failed: %v", err)
		}
	}

	got, err := s.SimilarShots("/p/a.CR2", 2)
	if err != nil {
		t.Fatalf("SimilarShots failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected neighbors")
	}
	if got[0].Path != "/p/b.CR2" {
		t.Errorf("nearest shot should be b, got %s", got[0].Path)
	}
	for _, n := range got {
		if n.Path == "/p/a.CR2" {
			t.Error("query shot should be excluded from results")
		}
	}
}

func TestSimilarShots_UnknownPath(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.SimilarShots("/p/never-ingested.CR2", 5); err == nil {
		t.Error("expected an error for a shot without a stored embedding")
	}
}

func TestIndex_Empty(t *testing.T) {
	idx := NewIndex(nil)
	if got := idx.Search("/p/a.CR2", []float32{1, 0}, 3); got != nil {
		t.Errorf("empty index should return nil, got %v", got)
	}
	if idx.Len() != 0 {
		t.Errorf("empty index Len = %d", idx.Len())
	}
}
