package question

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dgallion1/quizgen/internal/evidence"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/retrieval"
	"github.com/dgallion1/quizgen/internal/schema"
)

// Verify fact-checks each question against fresh evidence. Unsupported
// questions are rewritten from the model's revision, regenerated from their
// concept, or dropped; everything returned passes Validate.
func (g *Generator) Verify(ctx context.Context, questions []schema.Question, conceptLookup map[string]schema.Concept) []schema.Question {
	chunkLookup := evidence.Lookup(g.chunks)
	var verified []schema.Question

	for _, q := range questions {
		current := q
		supported := false
		for attempts := 0; attempts <= g.cfg.VerifyRetries; attempts++ {
			evidenceChunks := g.verifyEvidence(ctx, current, chunkLookup)
			evidenceText := llm.FormatEvidence(evidenceChunks, g.cfg.EvidenceBudgetTokens, g.cfg.MaxInputChars)

			questionJSON, _ := json.Marshal(current)
			prompt := llm.BuildVerifyPrompt(string(questionJSON), evidenceText)
			data, err := g.client.ChatJSON(ctx, g.cfg.ChatModel,
				[]llm.Message{{Role: "user", Content: prompt}},
				&llm.Options{Temperature: 0.2}, g.cfg.ChatTimeout)
			if err != nil {
				g.logger.Warn("verify question failed", "question_id", current.ID, "error", err)
				data = nil
			}

			verdict, _ := data["supported"].(bool)
			if g.overruleSupport(current, evidenceChunks, chunkLookup) {
				verdict = false
			}
			if verdict {
				supported = true
				break
			}

			if revised, ok := data["revised_question"].(map[string]any); ok {
				g.logger.Info("question rewritten", "question_id", current.ID)
				next := schema.NormalizeQuestion(revised, current.ID)
				next.ID = current.ID
				next.EvidenceQuotes = nil
				if len(next.ConceptTags) == 0 {
					next.ConceptTags = current.ConceptTags
				}
				if !g.applyTypeRules(&next, next.ID) {
					continue
				}
				EnsureCitations(&next, evidenceChunks)
				EnsureEvidenceQuotes(&next, evidenceChunks)
				EnsureRationaleQuote(&next)
				current = next
				if Validate(current, g.cfg.QuestionTypes) {
					supported = true
					break
				}
			}
		}

		if !supported {
			current, supported = g.regenerate(ctx, current, conceptLookup)
		}
		if !supported || !Validate(current, g.cfg.QuestionTypes) {
			g.logger.Info("question dropped", "question_id", current.ID)
			continue
		}
		verified = append(verified, current)
	}
	return verified
}

// verifyEvidence resolves the question's citations, backed by a semantic
// search on the question text.
func (g *Generator) verifyEvidence(ctx context.Context, q schema.Question, chunkLookup map[string]schema.Chunk) []schema.Chunk {
	fallback, err := retrieval.Search(ctx, q.Question, g.chunks, g.embeddings, g.embed, 5)
	if err != nil {
		fallback = nil
	}
	fallback = evidence.FilterLowInfo(fallback)

	chunks := evidence.CollectByCitations(q.Citations, chunkLookup, fallback)
	chunks = evidence.FilterLowInfo(chunks)
	if len(chunks) == 0 {
		chunks = fallback
	}
	if len(chunks) == 0 {
		chunks = evidence.FilterLowInfo(g.chunks)
		if len(chunks) > 3 {
			chunks = chunks[:3]
		}
	}
	return chunks
}

// overruleSupport applies the deterministic checks that veto a supported
// verdict regardless of what the model said.
func (g *Generator) overruleSupport(q schema.Question, evidenceChunks []schema.Chunk, chunkLookup map[string]schema.Chunk) bool {
	if len(q.Citations) == 0 {
		return true
	}
	if IsMetaQuestion(q.Question) {
		return true
	}
	if q.Type == schema.TypeTF && IsQuestionSentence(q.Question) {
		return true
	}
	if q.Type == schema.TypeShort {
		if lower := strings.ToLower(q.Answer); lower == "true" || lower == "false" {
			return true
		}
	}
	if q.Type == schema.TypeMCQ && HasBannedMCQChoice(q.Choices) {
		return true
	}

	var evidenceText strings.Builder
	for _, chunk := range evidenceChunks {
		evidenceText.WriteString(chunk.Text)
		evidenceText.WriteString("\n")
	}
	if ContainsExternalReference(q.Question+" "+q.Answer+" "+q.Rationale, evidenceText.String()) {
		return true
	}

	for _, quote := range q.EvidenceQuotes {
		chunk, ok := chunkLookup[quote.ChunkID]
		if !ok || !strings.Contains(chunk.Text, quote.Quote) {
			return true
		}
	}
	return false
}

// regenerate rebuilds a failed question from its first concept tag. The
// second return is false when no valid replacement could be produced.
func (g *Generator) regenerate(ctx context.Context, q schema.Question, conceptLookup map[string]schema.Concept) (schema.Question, bool) {
	if len(q.ConceptTags) == 0 {
		return q, false
	}
	concept, ok := conceptLookup[q.ConceptTags[0]]
	if !ok {
		return q, false
	}
	id := q.ID
	if id == "" {
		id = "q"
	}
	qType := q.Type
	if qType == "" {
		qType = g.cfg.QuestionTypes[0]
	}
	evidenceChunks := g.SelectEvidence(ctx, concept)
	regenerated := g.Generate(ctx, concept, evidenceChunks, id, qType)
	if Validate(regenerated, g.cfg.QuestionTypes) {
		return regenerated, true
	}
	return q, false
}
