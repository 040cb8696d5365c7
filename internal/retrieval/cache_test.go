package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/schema"
)

func cacheSettings(dir string) config.Settings {
	cfg := config.Load().Clamped()
	cfg.EmbedCacheDir = dir
	return cfg
}

func TestCachePath_SensitiveToSettings(t *testing.T) {
	cfg := cacheSettings("cache")
	base := CachePath(cfg, "dochash", 10)

	changed := cfg
	changed.ChunkChars = cfg.ChunkChars + 1
	if CachePath(changed, "dochash", 10) == base {
		t.Error("chunk size change should change the cache path")
	}

	changed = cfg
	changed.EmbedModel = "other-model"
	if CachePath(changed, "dochash", 10) == base {
		t.Error("embed model change should change the cache path")
	}

	if CachePath(cfg, "otherhash", 10) == base {
		t.Error("document hash change should change the cache path")
	}
	if CachePath(cfg, "dochash", 11) == base {
		t.Error("chunk count change should change the cache path")
	}
	if CachePath(cfg, "dochash", 10) != base {
		t.Error("identical inputs should give an identical path")
	}
}

func TestCachePath_PagesFilter(t *testing.T) {
	cfg := cacheSettings("cache")
	base := CachePath(cfg, "dochash", 10)

	cfg.PagesFilter = map[int]bool{3: true, 5: true}
	filtered := CachePath(cfg, "dochash", 10)
	if filtered == base {
		t.Error("pages filter should change the cache path")
	}

	// Map iteration order must not matter.
	cfg.PagesFilter = map[int]bool{5: true, 3: true}
	if CachePath(cfg, "dochash", 10) != filtered {
		t.Error("expected page set to hash order-independently")
	}
}

func TestHashPages(t *testing.T) {
	a := []schema.Page{{Page: 1, Text: "alpha"}, {Page: 2, Text: "beta"}}
	b := []schema.Page{{Page: 1, Text: "alpha"}, {Page: 2, Text: "beta"}}
	if HashPages(a) != HashPages(b) {
		t.Error("identical pages should hash identically")
	}
	c := []schema.Page{{Page: 1, Text: "alpha"}, {Page: 2, Text: "gamma"}}
	if HashPages(a) == HashPages(c) {
		t.Error("different text should change the hash")
	}
}

func TestSaveLoadEmbeddings_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings_test.json")
	chunks := []schema.Chunk{
		{ChunkID: "p1_c0", Page: 1, Text: "a"},
		{ChunkID: "p1_c1", Page: 1, Text: "b"},
	}
	embeddings := [][]float64{{0.1, 0.2}, {0.3, 0.4}}

	if err := SaveEmbeddings(path, chunks, embeddings); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := LoadEmbeddings(path, chunks)
	if len(got) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got))
	}
	if got[1][0] != 0.3 {
		t.Errorf("unexpected embedding value: %v", got[1])
	}
}

func TestLoadEmbeddings_ChunkIDMismatchIsMiss(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings_test.json")
	chunks := []schema.Chunk{{ChunkID: "p1_c0"}, {ChunkID: "p1_c1"}}
	if err := SaveEmbeddings(path, chunks, [][]float64{{1}, {2}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Same length, different id sequence.
	renamed := []schema.Chunk{{ChunkID: "p1_c0"}, {ChunkID: "p2_c0"}}
	if got := LoadEmbeddings(path, renamed); got != nil {
		t.Error("expected chunk-id mismatch to be a cache miss")
	}

	// Different length.
	if got := LoadEmbeddings(path, chunks[:1]); got != nil {
		t.Error("expected length mismatch to be a cache miss")
	}
}

func TestLoadEmbeddings_MissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	if got := LoadEmbeddings(filepath.Join(dir, "nope.json"), nil); got != nil {
		t.Error("expected missing file to be a cache miss")
	}

	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := LoadEmbeddings(path, nil); got != nil {
		t.Error("expected corrupt file to be a cache miss")
	}
}

func TestSaveEmbeddings_CreatesDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cache", "embeddings_test.json")
	if err := SaveEmbeddings(path, nil, nil); err != nil {
		t.Fatalf("save into missing dir: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file to exist: %v", err)
	}
}
