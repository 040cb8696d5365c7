// Package evidence decides which chunks can ground a claim and extracts
// verbatim quotes from them.
package evidence

import (
	"context"
	"strings"

	"github.com/dgallion1/quizgen/internal/retrieval"
	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

// ChunkBodyLines returns the informative lines of a chunk: normalized,
// with the leading heading, low-info lines, and noisy lines removed.
func ChunkBodyLines(chunk schema.Chunk) []string {
	lines := textutil.NormalizeLines(chunk.Text)
	if len(lines) > 0 {
		if textutil.DetectSectionTitle(lines[0]) || (chunk.SectionTitle != "" && lines[0] == chunk.SectionTitle) {
			lines = lines[1:]
		}
	}
	var cleaned []string
	for _, line := range lines {
		if textutil.IsLowInfoLine(line) || textutil.IsNoisyLine(line) {
			continue
		}
		if textutil.DetectSectionTitle(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return cleaned
}

// IsLowInfoChunk reports whether a chunk has too little clean body text to
// serve as evidence.
func IsLowInfoChunk(chunk schema.Chunk) bool {
	lines := ChunkBodyLines(chunk)
	if len(lines) == 0 {
		return true
	}
	body := strings.Join(lines, " ")
	if len([]rune(body)) < 40 {
		return true
	}
	return textutil.AllowedCharRatio(body) < 0.6
}

// FilterLowInfo drops low-info chunks.
func FilterLowInfo(chunks []schema.Chunk) []schema.Chunk {
	var out []schema.Chunk
	for _, chunk := range chunks {
		if !IsLowInfoChunk(chunk) {
			out = append(out, chunk)
		}
	}
	return out
}

const (
	quoteMinLen = 40
	quoteMaxLen = 80
)

// ExtractQuote pulls a clean verbatim excerpt from the chunk body:
// preferably a single line of at least 40 runes, then at least 20, then the
// joined body. Always capped at 80 runes; "" when nothing qualifies.
func ExtractQuote(chunk schema.Chunk) string {
	lines := ChunkBodyLines(chunk)
	for _, line := range lines {
		if len([]rune(line)) < quoteMinLen {
			continue
		}
		if textutil.AllowedCharRatio(line) < 0.7 {
			continue
		}
		return headRunes(line, quoteMaxLen)
	}
	for _, line := range lines {
		if len([]rune(line)) < 20 {
			continue
		}
		if textutil.AllowedCharRatio(line) < 0.7 {
			continue
		}
		return headRunes(line, quoteMaxLen)
	}
	body := strings.TrimSpace(strings.Join(lines, " "))
	if len([]rune(body)) >= quoteMinLen && textutil.AllowedCharRatio(body) >= 0.7 {
		return headRunes(body, quoteMaxLen)
	}
	if len([]rune(body)) >= 20 && textutil.AllowedCharRatio(body) >= 0.7 {
		return headRunes(body, quoteMaxLen)
	}
	return ""
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// CollectByCitations resolves citations to chunks, falling back to the
// given list when none resolve.
func CollectByCitations(citations []schema.Citation, lookup map[string]schema.Chunk, fallback []schema.Chunk) []schema.Chunk {
	var chunks []schema.Chunk
	for _, citation := range citations {
		if chunk, ok := lookup[citation.ChunkID]; ok {
			chunks = append(chunks, chunk)
		}
	}
	if len(chunks) == 0 {
		return fallback
	}
	return chunks
}

// Lookup builds a chunk-id index.
func Lookup(chunks []schema.Chunk) map[string]schema.Chunk {
	lookup := make(map[string]schema.Chunk, len(chunks))
	for _, chunk := range chunks {
		lookup[chunk.ChunkID] = chunk
	}
	return lookup
}

// SelectForConcept gathers up to 6 unique informative chunks for a concept:
// cited chunks first, then semantic matches on the concept name, then any
// informative chunks as a last resort.
func SelectForConcept(ctx context.Context, concept schema.Concept, chunks []schema.Chunk, embeddings [][]float64, embed retrieval.EmbedFunc) []schema.Chunk {
	lookup := Lookup(chunks)
	fallback, err := retrieval.Search(ctx, concept.Name, chunks, embeddings, embed, 8)
	if err != nil {
		fallback = nil
	}

	selected := CollectByCitations(concept.Citations, lookup, fallback)
	selected = FilterLowInfo(selected)
	if len(selected) == 0 {
		selected = FilterLowInfo(fallback)
	}
	if len(selected) == 0 {
		informative := FilterLowInfo(chunks)
		if len(informative) > 3 {
			informative = informative[:3]
		}
		selected = informative
	}

	var unique []schema.Chunk
	seen := make(map[string]bool)
	for _, chunk := range selected {
		if seen[chunk.ChunkID] {
			continue
		}
		seen[chunk.ChunkID] = true
		unique = append(unique, chunk)
		if len(unique) >= 6 {
			break
		}
	}
	return unique
}
