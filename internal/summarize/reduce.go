package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/quizgen/internal/evidence"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/retrieval"
	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

// ReduceSummarize merges mini summaries into a validated summary block.
// Each attempt is normalized and gated; when the retry budget runs out the
// deterministic fallback takes over, so a summary is always returned.
func (s *Summarizer) ReduceSummarize(ctx context.Context, miniSummaries []schema.MiniSummary, selected []schema.Chunk) schema.SummaryBlock {
	miniContext := llm.FormatMiniSummaries(miniSummaries, s.cfg.SummaryBudgetTokens, s.cfg.MaxInputChars)
	targetSections := targetSectionCount(selected)
	prompt := llm.BuildReduceSummaryPrompt(targetSections, miniContext)

	miniByChunkID := miniLookup(miniSummaries)
	fallbackSentences := sentencesFromMini(miniSummaries)
	totalPages := len(uniquePages(selected))
	minUniquePages, minCitations := 2, 2
	if totalPages < 2 {
		minUniquePages, minCitations = 1, 1
	}

	for attempt := 0; attempt <= s.cfg.SummaryRetries; attempt++ {
		data, err := s.client.ChatJSON(ctx, s.cfg.ChatModel,
			[]llm.Message{{Role: "user", Content: prompt}},
			&llm.Options{Temperature: 0.2}, s.cfg.ReduceTimeout)
		if err != nil {
			s.logger.Warn("reduce summarize failed", "attempt", attempt, "error", err)
			data = nil
		}

		overview := textutil.NormalizeParagraph(asString(data["overview"]), 2, 3, fallbackSentences)
		rawSections, _ := data["sections"].([]any)
		sections := s.normalizeSections(ctx, rawSections, miniByChunkID, targetSections)
		sections = ensureSectionCoverage(sections, selected)
		keypoints := normalizeKeypoints(rawStrings(data["keypoints"]), fallbackSentences)

		block := schema.SummaryBlock{Overview: overview, Sections: sections, Keypoints: keypoints}
		if ValidateSummaryBlock(block, minUniquePages, minCitations) {
			return block
		}
	}

	s.logger.Info("reduce summary fallback triggered")
	return s.buildFromMini(ctx, miniSummaries, selected)
}

func miniLookup(miniSummaries []schema.MiniSummary) map[string]schema.MiniSummary {
	lookup := make(map[string]schema.MiniSummary, len(miniSummaries))
	for _, ms := range miniSummaries {
		lookup[ms.ChunkID] = ms
	}
	return lookup
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func rawStrings(v any) []string {
	items, _ := v.([]any)
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// normalizeSections repairs the raw sections from the reduce call: resegment
// summaries, backfill citations by retrieval, dedup citations by page, and
// invent a title when none survives.
func (s *Summarizer) normalizeSections(ctx context.Context, rawSections []any, miniByChunkID map[string]schema.MiniSummary, targetSections int) []schema.SummarySection {
	chunkLookup := evidence.Lookup(s.chunks)
	var sections []schema.SummarySection

	for _, raw := range rawSections {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := asString(m["title"])
		summary := asString(m["summary"])
		query := trimJoin(title, summary)

		matches, err := retrieval.Search(ctx, orElse(query, title), s.chunks, s.embeddings, s.embed, 6)
		if err != nil {
			matches = nil
		}
		matches = evidence.FilterLowInfo(matches)

		var fallbackSentences []string
		for _, chunk := range matches {
			if ms, ok := miniByChunkID[chunk.ChunkID]; ok {
				fallbackSentences = append(fallbackSentences, textutil.SplitSentences(ms.MiniSummary)...)
			}
		}
		summary = textutil.NormalizeParagraph(summary, 2, 4, fallbackSentences)

		citations := schema.NormalizeCitations(m["citations"])
		citations = filterKnown(citations, chunkLookup)
		if len(citations) < 2 {
			citations = s.citationsForText(ctx, orElse(query, summary))
		}
		citations = dedupeByPage(citations, 4)

		if title == "" {
			if len(matches) > 0 {
				title = matches[0].SectionTitle
				if title == "" {
					title = fmt.Sprintf("Page %d topics", matches[0].Page)
				}
			} else {
				title = "Section highlights"
			}
		}
		if summary == "" {
			summary = textutil.NormalizeParagraph("", 2, 4, fallbackSentences)
		}
		if summary == "" {
			continue
		}

		sections = append(sections, schema.SummarySection{Title: title, Summary: summary, Citations: citations})
		if len(sections) >= targetSections {
			break
		}
	}
	return sections
}

func trimJoin(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}

func orElse(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func filterKnown(citations []schema.Citation, lookup map[string]schema.Chunk) []schema.Citation {
	var out []schema.Citation
	for _, c := range citations {
		if _, ok := lookup[c.ChunkID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func dedupeByPage(citations []schema.Citation, limit int) []schema.Citation {
	var out []schema.Citation
	seen := make(map[int]bool)
	for _, c := range citations {
		if seen[c.Page] {
			continue
		}
		out = append(out, c)
		seen[c.Page] = true
		if len(out) >= limit {
			break
		}
	}
	return out
}

// ensureSectionCoverage checks that section citations cover at least 60% of
// the selected pages and injects citations for missing pages round-robin,
// respecting the per-section cap of 4.
func ensureSectionCoverage(sections []schema.SummarySection, selected []schema.Chunk) []schema.SummarySection {
	if len(sections) == 0 {
		return sections
	}
	pagesAll := sortedPages(selected)
	if len(pagesAll) == 0 {
		return sections
	}
	required := len(pagesAll) * 6 / 10
	if required < 1 {
		required = 1
	}
	covered := make(map[int]bool)
	for _, section := range sections {
		for _, c := range section.Citations {
			covered[c.Page] = true
		}
	}
	if len(covered) >= required {
		return sections
	}

	pageChunks := make(map[int]schema.Chunk)
	var missing []int
	for _, page := range pagesAll {
		if covered[page] {
			continue
		}
		missing = append(missing, page)
		for _, chunk := range selected {
			if chunk.Page == page && !evidence.IsLowInfoChunk(chunk) {
				pageChunks[page] = chunk
				break
			}
		}
	}

	for idx, page := range missing {
		chunk, ok := pageChunks[page]
		if !ok {
			continue
		}
		section := &sections[idx%len(sections)]
		if hasPage(section.Citations, page) {
			continue
		}
		if len(section.Citations) >= 4 {
			continue
		}
		section.Citations = append(section.Citations, schema.Citation{Page: chunk.Page, ChunkID: chunk.ChunkID})
	}
	return sections
}

func hasPage(citations []schema.Citation, page int) bool {
	for _, c := range citations {
		if c.Page == page {
			return true
		}
	}
	return false
}

func sortedPages(chunks []schema.Chunk) []int {
	seen := uniquePages(chunks)
	pages := make([]int, 0, len(seen))
	for page := range seen {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// ValidateSummaryBlock gates a summary block: a 2+ sentence overview, at
// least 3 sections each with 2+ sentences and enough citations across
// enough unique pages, and at least 5 keypoints.
func ValidateSummaryBlock(block schema.SummaryBlock, minUniquePages, minCitations int) bool {
	if len(textutil.SplitSentences(block.Overview)) < 2 {
		return false
	}
	if len(block.Sections) < 3 {
		return false
	}
	if len(block.Keypoints) < 5 {
		return false
	}
	for _, section := range block.Sections {
		if len(textutil.SplitSentences(section.Summary)) < 2 {
			return false
		}
		if len(section.Citations) < minCitations {
			return false
		}
		pages := make(map[int]bool)
		for _, c := range section.Citations {
			pages[c.Page] = true
		}
		if len(pages) < minUniquePages {
			return false
		}
	}
	return true
}
