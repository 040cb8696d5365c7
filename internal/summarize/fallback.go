package summarize

import (
	"context"
	"fmt"

	"github.com/dgallion1/quizgen/internal/evidence"
	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

// buildFromMini assembles a summary block without any further model calls:
// the overview and keypoints come from mini-summary sentences and sections
// come from page-bucket groups. Used when the reduce gate never passes.
func (s *Summarizer) buildFromMini(ctx context.Context, miniSummaries []schema.MiniSummary, selected []schema.Chunk) schema.SummaryBlock {
	fallbackSentences := sentencesFromMini(miniSummaries)
	overview := textutil.NormalizeParagraph("", 2, 3, fallbackSentences)
	targetSections := targetSectionCount(selected)
	miniByChunkID := miniLookup(miniSummaries)

	var sections []schema.SummarySection
	for _, group := range buildSectionGroups(selected, targetSections) {
		var groupSentences []string
		for _, chunk := range group.chunks {
			if ms, ok := miniByChunkID[chunk.ChunkID]; ok {
				groupSentences = append(groupSentences, textutil.SplitSentences(ms.MiniSummary)...)
			}
		}
		summary := textutil.NormalizeParagraph("", 2, 4, groupSentences)
		citations := s.citationsForText(ctx, trimJoin(group.title, summary))
		sections = append(sections, schema.SummarySection{Title: group.title, Summary: summary, Citations: citations})
		if len(sections) >= targetSections {
			break
		}
	}
	sections = ensureSectionCoverage(sections, selected)

	return schema.SummaryBlock{
		Overview:  overview,
		Sections:  sections,
		Keypoints: normalizeKeypoints(nil, fallbackSentences),
	}
}

type sectionGroup struct {
	title  string
	chunks []schema.Chunk
}

// buildSectionGroups splits the selected pages into contiguous near-even
// ranges, one per target section, skipping low-info chunks. With fewer pages
// than sections every page gets its own group, so a 4-page corpus still
// yields enough sections to satisfy the summary gate.
func buildSectionGroups(selected []schema.Chunk, targetSections int) []sectionGroup {
	pages := sortedPages(selected)
	if len(pages) == 0 {
		return nil
	}
	numGroups := targetSections
	if numGroups > len(pages) {
		numGroups = len(pages)
	}
	if numGroups < 1 {
		numGroups = 1
	}
	base := len(pages) / numGroups
	extra := len(pages) % numGroups

	var groups []sectionGroup
	idx := 0
	for g := 0; g < numGroups; g++ {
		size := base
		if g < extra {
			size++
		}
		end := idx + size
		bucketPages := make(map[int]bool)
		for _, page := range pages[idx:end] {
			bucketPages[page] = true
		}
		var bucketChunks []schema.Chunk
		for _, chunk := range selected {
			if bucketPages[chunk.Page] && !evidence.IsLowInfoChunk(chunk) {
				bucketChunks = append(bucketChunks, chunk)
			}
		}
		if len(bucketChunks) > 0 {
			title := bucketChunks[0].SectionTitle
			if title == "" {
				title = fmt.Sprintf("Pages %d-%d highlights", pages[idx], pages[end-1])
			}
			groups = append(groups, sectionGroup{title: title, chunks: bucketChunks})
		}
		idx = end
	}
	return groups
}
