package vecstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
	"github.com/halcyonlabs/vecstore/pkg/search"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

func newTestStore(t *testing.T) *VectorStore {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDirectory = t.TempDir()
	// bagofwords never requires Fit, unlike the bm25 default; LoadWorkspace
	// tests embed immediately on first sight of a file.
	cfg.DefaultEmbeddingProvider = "bagofwords"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetCollection(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateCollection("docs", collection.Config{Dimension: embedding.DefaultDimension})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if c.Name() != "docs" {
		t.Errorf("Name() = %q, want docs", c.Name())
	}

	got, err := s.GetCollection("docs")
	if err != nil || got != c {
		t.Fatalf("GetCollection mismatch: %v, %v", got, err)
	}
}

func TestCreateCollectionDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateCollection("docs", collection.Config{Dimension: 64}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := s.CreateCollection("docs", collection.Config{Dimension: 64}); err == nil {
		t.Fatal("expected Conflict error on duplicate collection name")
	} else if !errIsConflict(err) {
		t.Errorf("expected a Conflict-kind error, got %v", err)
	}
}

func errIsConflict(err error) bool {
	ve, ok := err.(*verrors.Error)
	return ok && ve.Kind == verrors.KindConflict
}

func TestGetCollectionNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetCollection("missing"); err == nil {
		t.Error("expected NotFound for an unregistered collection")
	}
}

func TestListCollectionsAlphabetical(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"zebra", "apple", "mango"} {
		if _, err := s.CreateCollection(name, collection.Config{Dimension: 32}); err != nil {
			t.Fatalf("CreateCollection(%q): %v", name, err)
		}
	}
	got := s.ListCollections()
	want := []string{"apple", "mango", "zebra"}
	if len(got) != len(want) {
		t.Fatalf("ListCollections() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListCollections()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDeleteCollection(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateCollection("docs", collection.Config{Dimension: 32}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := s.DeleteCollection("docs"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if _, err := s.GetCollection("docs"); err == nil {
		t.Error("expected collection to be gone after delete")
	}
}

func TestListEmptyCollectionsAndCleanupDryRun(t *testing.T) {
	s := newTestStore(t)
	empty, err := s.CreateCollection("empty", collection.Config{Dimension: 32})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	nonEmpty, err := s.CreateCollection("nonempty", collection.Config{Dimension: 32})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := nonEmpty.Insert("1", make([]float32, 32), nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	names := s.ListEmptyCollections()
	if len(names) != 1 || names[0] != "empty" {
		t.Fatalf("ListEmptyCollections() = %v, want [empty]", names)
	}
	_ = empty

	result := s.CleanupEmptyCollections(true)
	if len(result.Removed) != 1 || result.Removed[0] != "empty" {
		t.Fatalf("dry-run CleanupEmptyCollections() = %+v", result)
	}
	if _, err := s.GetCollection("empty"); err != nil {
		t.Error("dry run must not actually remove the collection")
	}

	result = s.CleanupEmptyCollections(false)
	if len(result.Removed) != 1 || result.Removed[0] != "empty" {
		t.Fatalf("CleanupEmptyCollections() = %+v", result)
	}
	if _, err := s.GetCollection("empty"); err == nil {
		t.Error("expected empty collection to be removed after real cleanup")
	}
	if _, err := s.GetCollection("nonempty"); err != nil {
		t.Error("non-empty collection must survive cleanup")
	}
}

func TestSaveAndLoadCollectionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateCollection("docs", collection.Config{Dimension: 4})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := c.Insert("1", []float32{1, 0, 0, 0}, map[string]any{"k": "v"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SaveCollection("docs"); err != nil {
		t.Fatalf("SaveCollection: %v", err)
	}

	// Drop the in-memory registration and force a reload from disk.
	if err := s.DeleteCollection("docs"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	reloaded, err := s.GetCollection("docs")
	if err != nil {
		t.Fatalf("GetCollection after reload: %v", err)
	}
	if reloaded.VectorCount() != 1 {
		t.Errorf("reloaded collection has %d vectors, want 1", reloaded.VectorCount())
	}
}

func TestRefuseOverwriteNonEmptyOnDisk(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateCollection("docs", collection.Config{Dimension: 4})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := c.Insert("1", []float32{1, 0, 0, 0}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SaveCollection("docs"); err != nil {
		t.Fatalf("SaveCollection: %v", err)
	}

	if err := s.DeleteCollection("docs"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	empty, err := s.CreateCollection("docs", collection.Config{Dimension: 4})
	if err != nil {
		t.Fatalf("re-CreateCollection: %v", err)
	}
	_ = empty

	if err := s.SaveCollection("docs"); err == nil {
		t.Error("expected save to refuse overwriting a non-empty on-disk file with an empty collection")
	}
}

func TestSaveCollectionWritesVocabularySidecar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bm25, err := s.providers.Get("bm25")
	if err != nil {
		t.Fatalf("get bm25: %v", err)
	}
	if err := bm25.Fit(ctx, []string{"alpha beta gamma", "beta gamma delta"}); err != nil {
		t.Fatalf("fit: %v", err)
	}

	c, err := s.CreateCollection("docs", collection.Config{Dimension: bm25.Dimension(), EmbeddingProvider: "bm25"})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	vec, err := bm25.Embed(ctx, "alpha beta")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if err := c.Insert("1", vec, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SaveCollection("docs"); err != nil {
		t.Fatalf("SaveCollection: %v", err)
	}

	if _, err := os.Stat(s.vocabPath("docs")); err != nil {
		t.Fatalf("expected vocabulary sidecar after save: %v", err)
	}

	// A fresh store must restore the vocabulary on load so the provider can
	// embed without being re-fit.
	cfg := DefaultConfig()
	cfg.DataDirectory = s.cfg.DataDirectory
	s2, err := New(cfg)
	if err != nil {
		t.Fatalf("New second store: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	if _, err := s2.LoadCollection("docs"); err != nil {
		t.Fatalf("LoadCollection: %v", err)
	}
	if _, err := s2.SemanticSearch(ctx, "docs", "alpha beta", search.SemanticOptions{MaxResults: 1}); err != nil {
		t.Fatalf("SemanticSearch after vocabulary reload: %v", err)
	}
}

func TestLoadWorkspaceRoutesAndSkipsUnchanged(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "note.md"), []byte("hello vector store world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ws := WorkspaceConfig{Roots: []string{root}, DefaultCollection: "auto-docs"}
	results, err := s.LoadWorkspace(context.Background(), ws)
	if err != nil {
		t.Fatalf("LoadWorkspace: %v", err)
	}
	if len(results) != 1 || results[0].ChunksInserted == 0 {
		t.Fatalf("LoadWorkspace results = %+v", results)
	}

	again, err := s.LoadWorkspace(context.Background(), ws)
	if err != nil {
		t.Fatalf("second LoadWorkspace: %v", err)
	}
	if len(again) != 1 || !again[0].Skipped {
		t.Fatalf("expected second run to skip unchanged file, got %+v", again)
	}
}
