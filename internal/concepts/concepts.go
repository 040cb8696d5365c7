// Package concepts turns the summary phase output into a list of
// examinable concepts, with a deterministic fallback when the model
// underdelivers.
package concepts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/schema"
)

// Client is the chat surface concept extraction needs.
type Client interface {
	ChatJSON(ctx context.Context, model string, messages []llm.Message, opts *llm.Options, timeout time.Duration) (map[string]any, error)
}

// Extract asks the model for concepts grounded in the keypoints and mini
// summaries, then tops up from the fallback until questionCount concepts
// exist. Never returns an error; a failed call just means pure fallback.
func Extract(ctx context.Context, client Client, cfg config.Settings, keypoints []string, miniSummaries []schema.MiniSummary, logger *slog.Logger) []schema.Concept {
	if logger == nil {
		logger = slog.Default()
	}
	miniContext := llm.FormatMiniSummaries(miniSummaries, cfg.SummaryBudgetTokens, cfg.MaxInputChars)
	prompt := llm.BuildConceptPrompt(cfg.QuestionCount, keypoints, miniContext)

	data, err := client.ChatJSON(ctx, cfg.ChatModel,
		[]llm.Message{{Role: "user", Content: prompt}},
		&llm.Options{Temperature: 0.2}, cfg.ChatTimeout)
	if err != nil {
		logger.Warn("concept extract failed", "error", err)
		data = nil
	}

	concepts := schema.NormalizeConcepts(data["concepts"])
	if len(concepts) > cfg.QuestionCount {
		concepts = concepts[:cfg.QuestionCount]
	}

	if len(concepts) < cfg.QuestionCount {
		used := make(map[string]bool, len(concepts))
		for _, c := range concepts {
			used[c.Name] = true
		}
		for _, c := range FallbackConcepts(keypoints, miniSummaries, cfg.QuestionCount) {
			if used[c.Name] {
				continue
			}
			concepts = append(concepts, c)
			used[c.Name] = true
			if len(concepts) >= cfg.QuestionCount {
				break
			}
		}
	}

	logger.Info("concepts extracted", "count", len(concepts))
	return concepts
}

// FallbackConcepts derives concepts without the model: keypoints first,
// then mini-summary keywords, then mini-summary snippets, each carrying a
// citation so evidence selection still works.
func FallbackConcepts(keypoints []string, miniSummaries []schema.MiniSummary, limit int) []schema.Concept {
	var concepts []schema.Concept
	used := make(map[string]bool)

	add := func(name, description string, citations []schema.Citation) {
		if name == "" || used[name] {
			return
		}
		used[name] = true
		concepts = append(concepts, schema.Concept{
			Name:        name,
			Description: description,
			Citations:   citations,
			Difficulty:  "medium",
		})
	}

	var firstCitation []schema.Citation
	for _, ms := range miniSummaries {
		if len(ms.Citations) > 0 {
			firstCitation = ms.Citations[:1]
			break
		}
	}

	for _, kp := range keypoints {
		add(kp, "", firstCitation)
		if len(concepts) >= limit {
			return concepts
		}
	}

	for _, ms := range miniSummaries {
		citations := ms.Citations
		if len(citations) > 1 {
			citations = citations[:1]
		}
		for _, kw := range ms.Keywords {
			add(kw, headRunes(ms.MiniSummary, 50), citations)
			if len(concepts) >= limit {
				return concepts
			}
		}
		snippet := strings.TrimSpace(ms.MiniSummary)
		if snippet != "" {
			name := strings.TrimRight(headRunes(snippet, 20), "，。；") + "..."
			add(name, snippet, citations)
			if len(concepts) >= limit {
				return concepts
			}
		}
	}

	return concepts
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
