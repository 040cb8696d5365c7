package retrieval

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/schema"
)

// The embedding cache stores one JSON file per (document, chunking, filter)
// combination. A cache entry is only valid when its chunk-id sequence
// matches the current chunk list exactly.

type cachePayload struct {
	ChunkIDs   []string    `json:"chunk_ids"`
	Embeddings [][]float64 `json:"embeddings"`
}

// CachePath derives the cache file path from the document hash and every
// setting that shapes the chunk list.
func CachePath(cfg config.Settings, docHash string, chunkCount int) string {
	pagesKey := "all"
	if len(cfg.PagesFilter) > 0 {
		pages := make([]int, 0, len(cfg.PagesFilter))
		for p := range cfg.PagesFilter {
			pages = append(pages, p)
		}
		sort.Ints(pages)
		parts := make([]string, len(pages))
		for i, p := range pages {
			parts[i] = fmt.Sprintf("%d", p)
		}
		pagesKey = strings.Join(parts, ",")
	}

	meta := strings.Join([]string{
		docHash,
		cfg.EmbedModel,
		fmt.Sprintf("%d", cfg.ChunkChars),
		fmt.Sprintf("%d", cfg.OverlapChars),
		fmt.Sprintf("%d", cfg.MinChunkChars),
		pagesKey,
		fmt.Sprintf("%d", cfg.MaxPages),
		cfg.ChapterFilter,
		fmt.Sprintf("%d", chunkCount),
	}, "|")
	key := fmt.Sprintf("%x", sha1.Sum([]byte(meta)))
	return filepath.Join(cfg.EmbedCacheDir, "embeddings_"+key+".json")
}

// HashPages fingerprints the source pages for cache keying.
func HashPages(pages []schema.Page) string {
	h := sha1.New()
	for _, p := range pages {
		fmt.Fprintf(h, "%d\x00%s\x00", p.Page, p.Text)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// LoadEmbeddings reads a cache file and validates it against the current
// chunk list. Any mismatch or decode failure is a miss, never an error.
func LoadEmbeddings(path string, chunks []schema.Chunk) [][]float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var payload cachePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if len(payload.ChunkIDs) != len(chunks) || len(payload.Embeddings) != len(chunks) {
		return nil
	}
	for i, chunk := range chunks {
		if payload.ChunkIDs[i] != chunk.ChunkID {
			return nil
		}
	}
	return payload.Embeddings
}

// SaveEmbeddings writes the cache file, creating the cache directory as
// needed. Failures are returned but callers treat them as non-fatal.
func SaveEmbeddings(path string, chunks []schema.Chunk, embeddings [][]float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	payload := cachePayload{
		ChunkIDs:   make([]string, len(chunks)),
		Embeddings: embeddings,
	}
	for i, chunk := range chunks {
		payload.ChunkIDs[i] = chunk.ChunkID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
