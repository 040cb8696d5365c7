package schema

import (
	"fmt"
	"strings"
)

// Normalization maps whatever the generator returned into the canonical
// shapes. Every function here is total: malformed input yields empty or
// default fields, never an error.

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case bool:
		return fmt.Sprintf("%t", s)
	default:
		return ""
	}
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		var i int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

// NormalizeCitations extracts well-formed citations from a raw JSON value.
// Items without both a page number and a chunk id are skipped.
func NormalizeCitations(raw any) []Citation {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var citations []Citation
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		page, ok := asInt(m["page"])
		if !ok {
			continue
		}
		chunkID := asString(m["chunk_id"])
		if chunkID == "" {
			chunkID = asString(m["chunkId"])
		}
		if chunkID == "" {
			continue
		}
		citations = append(citations, Citation{Page: page, ChunkID: chunkID})
	}
	return citations
}

// NormalizeMiniSummary shapes a map-phase response. A missing citation list
// defaults to the chunk the summary was generated from.
func NormalizeMiniSummary(raw map[string]any, page int, chunkID string) MiniSummary {
	ms := MiniSummary{
		Page:        page,
		ChunkID:     chunkID,
		MiniSummary: asString(raw["mini_summary"]),
		Keywords:    asStringSlice(raw["keywords"]),
		Citations:   NormalizeCitations(raw["citations"]),
	}
	if len(ms.Citations) == 0 {
		ms.Citations = []Citation{{Page: page, ChunkID: chunkID}}
	}
	return ms
}

// NormalizeConcepts shapes a concept-extraction response. Nameless entries
// are dropped.
func NormalizeConcepts(raw any) []Concept {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var concepts []Concept
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := asString(m["name"])
		if name == "" {
			continue
		}
		difficulty := strings.ToLower(asString(m["difficulty"]))
		if difficulty == "" {
			difficulty = "medium"
		}
		concepts = append(concepts, Concept{
			Name:        name,
			Description: asString(m["description"]),
			Citations:   NormalizeCitations(m["citations"]),
			Difficulty:  difficulty,
		})
	}
	return concepts
}

// NormalizeQuestion shapes a question-generation response. Unknown types
// default to tf; type-specific fields are only populated for their type.
func NormalizeQuestion(raw map[string]any, fallbackID string) Question {
	qType := strings.ToLower(asString(raw["type"]))
	if !KnownType(qType) {
		qType = TypeTF
	}

	id := asString(raw["id"])
	if id == "" {
		id = fallbackID
	}
	difficulty := strings.ToLower(asString(raw["difficulty"]))
	if difficulty == "" {
		difficulty = "medium"
	}

	q := Question{
		ID:          id,
		Type:        qType,
		Question:    asString(raw["question"]),
		Answer:      asString(raw["answer"]),
		Rationale:   asString(raw["rationale"]),
		Citations:   NormalizeCitations(raw["citations"]),
		Difficulty:  difficulty,
		ConceptTags: asStringSlice(raw["concept_tags"]),
	}

	switch qType {
	case TypeMCQ:
		q.Choices = asStringSlice(raw["choices"])
		q.CorrectOption = strings.ToUpper(asString(raw["correct_option"]))
		if q.CorrectOption == "" {
			q.CorrectOption = strings.ToUpper(q.Answer)
		}
	case TypeCalc:
		q.StepByStep = asStringSlice(raw["step_by_step"])
		q.FinalAnswer = asString(raw["final_answer"])
	}

	return q
}
