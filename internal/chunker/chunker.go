// Package chunker splits source pages into overlapping retrieval chunks
// with stable pN_cM identifiers.
package chunker

import (
	"fmt"
	"strings"

	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

// Config controls chunking behavior. Sizes are in runes, not bytes, so CJK
// text chunks the same as Latin.
type Config struct {
	ChunkChars   int // Target chunk size.
	OverlapChars int // Overlap between consecutive chunks.
	MinChars     int // Minimum chunk size to emit.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkChars:   800,
		OverlapChars: 120,
		MinChars:     40,
	}
}

// ChunkPages splits every page into chunks. Chunk ids are pN_cM where M
// restarts at 1 per page; the numbering is stable for a given input, which
// the embedding cache depends on.
func ChunkPages(pages []schema.Page, cfg Config) []schema.Chunk {
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = 800
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.ChunkChars {
		cfg.OverlapChars = cfg.ChunkChars / 6
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 40
	}

	var chunks []schema.Chunk
	for _, page := range pages {
		sectionTitle := pageSectionTitle(page.Text)
		parts := splitText(page.Text, cfg.ChunkChars, cfg.OverlapChars)
		idx := 0
		for _, part := range parts {
			if len([]rune(part)) < cfg.MinChars {
				continue
			}
			idx++
			chunks = append(chunks, schema.Chunk{
				ChunkID:      fmt.Sprintf("p%d_c%d", page.Page, idx),
				Page:         page.Page,
				SectionTitle: sectionTitle,
				Text:         part,
			})
		}
	}
	return chunks
}

// splitText cuts cleaned text into size-bounded windows, preferring a space
// in the back half of the window so words stay whole. Consecutive windows
// overlap by overlap runes.
func splitText(text string, size, overlap int) []string {
	cleaned := []rune(textutil.CleanText(text))
	if len(cleaned) == 0 {
		return nil
	}

	var parts []string
	start := 0
	for start < len(cleaned) {
		end := start + size
		if end > len(cleaned) {
			end = len(cleaned)
		}
		if end < len(cleaned) {
			if cut := lastSpace(cleaned, start+size/2, end); cut > 0 {
				end = cut
			}
		}
		if end <= start {
			break
		}
		part := strings.TrimSpace(string(cleaned[start:end]))
		if part != "" {
			parts = append(parts, part)
		}
		if end == len(cleaned) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return parts
}

func lastSpace(runes []rune, from, to int) int {
	if from < 0 {
		from = 0
	}
	for i := to - 1; i >= from; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// pageSectionTitle returns the first line of the page when it looks like a
// heading, otherwise "".
func pageSectionTitle(text string) string {
	lines := textutil.NormalizeLines(text)
	if len(lines) == 0 {
		return ""
	}
	if textutil.DetectSectionTitle(lines[0]) {
		return lines[0]
	}
	return ""
}
