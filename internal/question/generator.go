package question

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/evidence"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/retrieval"
	"github.com/dgallion1/quizgen/internal/schema"
)

// Client is the chat surface generation and verification need.
type Client interface {
	ChatJSON(ctx context.Context, model string, messages []llm.Message, opts *llm.Options, timeout time.Duration) (map[string]any, error)
}

// Generator produces and verifies questions over a fixed corpus.
type Generator struct {
	cfg        config.Settings
	client     Client
	embed      retrieval.EmbedFunc
	chunks     []schema.Chunk
	embeddings [][]float64
	logger     *slog.Logger
}

func NewGenerator(cfg config.Settings, client Client, embed retrieval.EmbedFunc, chunks []schema.Chunk, embeddings [][]float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		cfg:        cfg,
		client:     client,
		embed:      embed,
		chunks:     chunks,
		embeddings: embeddings,
		logger:     logger,
	}
}

// SelectEvidence picks the evidence chunks for a concept.
func (g *Generator) SelectEvidence(ctx context.Context, concept schema.Concept) []schema.Chunk {
	return evidence.SelectForConcept(ctx, concept, g.chunks, g.embeddings, g.embed)
}

// Generate writes one question for a concept within the retry budget. The
// returned question may still fail Validate when every attempt came back
// malformed; callers gate on Validate before accepting it.
func (g *Generator) Generate(ctx context.Context, concept schema.Concept, evidenceChunks []schema.Chunk, questionID, questionType string) schema.Question {
	evidenceText := llm.FormatEvidence(evidenceChunks, g.cfg.EvidenceBudgetTokens, g.cfg.MaxInputChars)
	conceptJSON, _ := json.Marshal(concept)

	var question schema.Question
	for attempt := 0; attempt <= g.cfg.QuestionRetries; attempt++ {
		prompt := llm.BuildQuestionPrompt(questionID, questionType, string(conceptJSON), evidenceText)
		data, err := g.client.ChatJSON(ctx, g.cfg.ChatModel,
			[]llm.Message{{Role: "user", Content: prompt}},
			&llm.Options{Temperature: 0.3}, g.cfg.ChatTimeout)
		if err != nil {
			g.logger.Warn("question generation failed", "question_id", questionID, "error", err)
			data = nil
		}
		if insufficientEvidence(data) {
			g.logger.Info("question reports insufficient evidence", "question_id", questionID)
			continue
		}

		question = schema.NormalizeQuestion(data, questionID)
		question.ID = questionID
		question.Type = questionType
		question.EvidenceQuotes = nil
		if len(question.ConceptTags) == 0 {
			name := concept.Name
			if name == "" {
				name = "concept"
			}
			question.ConceptTags = []string{name}
		}

		if !g.applyTypeRules(&question, questionID) {
			continue
		}

		EnsureCitations(&question, evidenceChunks)
		EnsureEvidenceQuotes(&question, evidenceChunks)
		EnsureRationaleQuote(&question)
		if Validate(question, g.cfg.QuestionTypes) {
			return question
		}
		g.logger.Info("question missing citations or fields", "question_id", questionID, "attempt", attempt+1)
	}
	return question
}

// applyTypeRules enforces the per-type shape before the full gate. Returns
// false when the attempt should be retried.
func (g *Generator) applyTypeRules(q *schema.Question, questionID string) bool {
	switch q.Type {
	case schema.TypeTF:
		fixed := FixTFQuestion(q.Question)
		if fixed == "" {
			g.logger.Info("question rejected", "question_id", questionID, "reason", "tf question format")
			return false
		}
		q.Question = fixed
	case schema.TypeShort:
		if lower := strings.ToLower(q.Answer); lower == "true" || lower == "false" {
			g.logger.Info("question rejected", "question_id", questionID, "reason", "short answer format")
			return false
		}
	case schema.TypeMCQ:
		if HasBannedMCQChoice(q.Choices) {
			g.logger.Info("question rejected", "question_id", questionID, "reason", "banned mcq choice")
			return false
		}
	}
	if IsMetaQuestion(q.Question) {
		g.logger.Info("question rejected", "question_id", questionID, "reason", "meta question")
		return false
	}
	return true
}

func insufficientEvidence(data map[string]any) bool {
	if data == nil {
		return false
	}
	if v, ok := data["insufficient_evidence"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	if s, ok := data["error"].(string); ok && s == "insufficient_evidence" {
		return true
	}
	return false
}
