// Package summarize runs the map-reduce summary phase: per-chunk mini
// summaries, a merged study summary with validation gates, and the
// deterministic fallback built straight from the mini summaries.
package summarize

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/evidence"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/retrieval"
	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

// Client is the chat surface the summarizer needs.
type Client interface {
	ChatJSON(ctx context.Context, model string, messages []llm.Message, opts *llm.Options, timeout time.Duration) (map[string]any, error)
}

// Summarizer holds the corpus and backends for one summary run.
type Summarizer struct {
	cfg        config.Settings
	client     Client
	embed      retrieval.EmbedFunc
	chunks     []schema.Chunk
	embeddings [][]float64
	logger     *slog.Logger
}

func New(cfg config.Settings, client Client, embed retrieval.EmbedFunc, chunks []schema.Chunk, embeddings [][]float64, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		cfg:        cfg,
		client:     client,
		embed:      embed,
		chunks:     chunks,
		embeddings: embeddings,
		logger:     logger,
	}
}

// targetSectionCount scales section count with page coverage: one section
// per ~5 pages, between 3 and 6.
func targetSectionCount(selected []schema.Chunk) int {
	pages := uniquePages(selected)
	n := (len(pages) + 4) / 5
	if n < 3 {
		n = 3
	}
	if n > 6 {
		n = 6
	}
	return n
}

func uniquePages(chunks []schema.Chunk) map[int]bool {
	pages := make(map[int]bool)
	for _, chunk := range chunks {
		pages[chunk.Page] = true
	}
	return pages
}

func sentencesFromMini(miniSummaries []schema.MiniSummary) []string {
	var sentences []string
	seen := make(map[string]bool)
	for _, ms := range miniSummaries {
		for _, s := range textutil.SplitSentences(ms.MiniSummary) {
			if s == "" || textutil.IsIncompleteSentence(s) {
				continue
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			sentences = append(sentences, s)
		}
	}
	return sentences
}

var (
	chunkMarkerRe = regexp.MustCompile(`p\d+_c\d+`)
	emptyParenRe  = regexp.MustCompile(`\(\s*\)`)
)

// normalizeKeypoints cleans the raw keypoints, deduplicates, backfills from
// mini-summary sentences up to 5, and caps at 8.
func normalizeKeypoints(raw []string, fallbackSentences []string) []string {
	var cleaned []string
	seen := make(map[string]bool)
	for _, kp := range raw {
		kp = chunkMarkerRe.ReplaceAllString(kp, "")
		kp = emptyParenRe.ReplaceAllString(kp, "")
		kp = strings.TrimRight(strings.TrimSpace(kp), "。；; ")
		if kp == "" || textutil.IsIncompleteSentence(kp) {
			continue
		}
		if seen[kp] {
			continue
		}
		seen[kp] = true
		cleaned = append(cleaned, kp)
	}
	if len(cleaned) < 5 {
		for _, s := range fallbackSentences {
			if len(cleaned) >= 5 {
				break
			}
			candidate := strings.TrimRight(strings.TrimSpace(s), "。")
			if candidate == "" || textutil.IsIncompleteSentence(candidate) {
				continue
			}
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			cleaned = append(cleaned, candidate)
		}
	}
	if len(cleaned) > 8 {
		cleaned = cleaned[:8]
	}
	return cleaned
}

// citationsForText finds 2-4 citations for free text by semantic search,
// preferring unique pages.
func (s *Summarizer) citationsForText(ctx context.Context, query string) []schema.Citation {
	const (
		minCount = 2
		maxCount = 4
	)
	if query == "" {
		return nil
	}
	matches, err := retrieval.Search(ctx, query, s.chunks, s.embeddings, s.embed, 8)
	if err != nil {
		return nil
	}
	matches = evidence.FilterLowInfo(matches)

	var citations []schema.Citation
	seenPages := make(map[int]bool)
	for _, chunk := range matches {
		if seenPages[chunk.Page] {
			continue
		}
		citations = append(citations, schema.Citation{Page: chunk.Page, ChunkID: chunk.ChunkID})
		seenPages[chunk.Page] = true
		if len(citations) >= maxCount {
			break
		}
	}
	if len(citations) < minCount {
		for _, chunk := range matches {
			if len(citations) >= minCount {
				break
			}
			citation := schema.Citation{Page: chunk.Page, ChunkID: chunk.ChunkID}
			if containsCitation(citations, citation) {
				continue
			}
			citations = append(citations, citation)
		}
	}
	if len(citations) > maxCount {
		citations = citations[:maxCount]
	}
	return citations
}

func containsCitation(citations []schema.Citation, c schema.Citation) bool {
	for _, existing := range citations {
		if existing == c {
			return true
		}
	}
	return false
}
