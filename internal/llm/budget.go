package llm

import (
	"encoding/json"

	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

// Prompt context serializers. Both enforce a token budget and a character
// ceiling so a single oversized chunk cannot blow up the prompt; at least
// one entry is always emitted when input is non-empty.

type evidenceEntry struct {
	ChunkID      string `json:"chunk_id"`
	Page         int    `json:"page"`
	SectionTitle string `json:"section_title"`
	Text         string `json:"text"`
}

// FormatEvidence serializes evidence chunks as an indented JSON array,
// trimming each chunk's text to the remaining token budget.
func FormatEvidence(chunks []schema.Chunk, maxTokens, maxChars int) string {
	entries := make([]evidenceEntry, 0, len(chunks))
	totalTokens := 0
	totalChars := 0
	for _, chunk := range chunks {
		remaining := maxTokens - totalTokens
		if remaining <= 0 {
			break
		}
		text := textutil.TrimToTokens(chunk.Text, remaining)
		entry := evidenceEntry{
			ChunkID:      chunk.ChunkID,
			Page:         chunk.Page,
			SectionTitle: chunk.SectionTitle,
			Text:         text,
		}
		serialized, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if maxChars > 0 && totalChars+len(serialized) > maxChars && len(entries) > 0 {
			break
		}
		entries = append(entries, entry)
		totalTokens += textutil.EstimateTokens(text)
		totalChars += len(serialized)
		if maxChars > 0 && totalChars >= maxChars {
			break
		}
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return string(out)
}

type miniSummaryEntry struct {
	MiniSummary string            `json:"mini_summary"`
	Keywords    []string          `json:"keywords"`
	Citations   []schema.Citation `json:"citations"`
}

// FormatMiniSummaries serializes mini summaries as an indented JSON array
// within the same budgets.
func FormatMiniSummaries(summaries []schema.MiniSummary, maxTokens, maxChars int) string {
	entries := make([]miniSummaryEntry, 0, len(summaries))
	totalTokens := 0
	totalChars := 0
	for _, ms := range summaries {
		entry := miniSummaryEntry{
			MiniSummary: ms.MiniSummary,
			Keywords:    ms.Keywords,
			Citations:   ms.Citations,
		}
		serialized, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		tokens := textutil.EstimateTokens(string(serialized))
		if maxTokens > 0 && totalTokens+tokens > maxTokens && len(entries) > 0 {
			break
		}
		if maxChars > 0 && totalChars+len(serialized) > maxChars && len(entries) > 0 {
			break
		}
		entries = append(entries, entry)
		totalTokens += tokens
		totalChars += len(serialized)
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return string(out)
}
