package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/quizgen/internal/chunker"
	"github.com/dgallion1/quizgen/internal/concepts"
	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/evidence"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/question"
	"github.com/dgallion1/quizgen/internal/retrieval"
	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/summarize"
)

// Backend is the model surface the pipeline needs. *llm.Client satisfies it.
type Backend interface {
	ChatJSON(ctx context.Context, model string, messages []llm.Message, opts *llm.Options, timeout time.Duration) (map[string]any, error)
	Embed(ctx context.Context, model, text string, timeout time.Duration) ([]float64, error)
	CheckHealth(ctx context.Context) error
}

// Runner executes the full quiz pipeline over a set of source pages.
type Runner struct {
	cfg     config.Settings
	backend Backend
	logger  *slog.Logger

	// OnPhase and OnProgress report pipeline state when set.
	OnPhase    func(phase string)
	OnProgress func(update func(*Progress))
}

func NewRunner(cfg config.Settings, backend Backend, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, backend: backend, logger: logger}
}

func (r *Runner) phase(phase string) {
	if r.OnPhase != nil {
		r.OnPhase(phase)
	}
}

func (r *Runner) progress(update func(*Progress)) {
	if r.OnProgress != nil {
		r.OnProgress(update)
	}
}

// Run executes chunking, embedding, selection, summarization, concept
// extraction, question generation, and verification, and returns the quiz.
func (r *Runner) Run(ctx context.Context, pages []schema.Page) (*schema.QuizOutput, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages in document")
	}
	pages = r.filterPages(pages)

	r.phase(PhaseChunking)
	chunks := chunker.ChunkPages(pages, chunker.Config{
		ChunkChars:   r.cfg.ChunkChars,
		OverlapChars: r.cfg.OverlapChars,
		MinChars:     r.cfg.MinChunkChars,
	})
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text chunks generated")
	}
	if informative := evidence.FilterLowInfo(chunks); len(informative) > 0 {
		if removed := len(chunks) - len(informative); removed > 0 {
			r.logger.Info("filtered low-info chunks", "removed", removed)
		}
		chunks = informative
	}
	r.progress(func(p *Progress) { p.TotalChunks = len(chunks) })

	if err := r.backend.CheckHealth(ctx); err != nil {
		return nil, fmt.Errorf("backend health: %w", err)
	}

	embed := func(ctx context.Context, text string) ([]float64, error) {
		return r.backend.Embed(ctx, r.cfg.EmbedModel, text, r.cfg.EmbedTimeout)
	}

	r.phase(PhaseEmbedding)
	embeddings, err := r.buildOrLoadEmbeddings(ctx, pages, chunks, embed)
	if err != nil {
		return nil, err
	}

	r.phase(PhaseSelecting)
	selected, err := r.selectChunkSet(ctx, pages, chunks, embeddings, embed)
	if err != nil {
		return nil, err
	}
	r.logger.Info("selected chunks for map-reduce", "selected", len(selected), "total", len(chunks))
	r.progress(func(p *Progress) { p.SelectedChunks = len(selected) })

	r.phase(PhaseSummarizing)
	summarizer := summarize.New(r.cfg, r.backend, embed, chunks, embeddings, r.logger)
	miniSummaries := summarizer.MapSummarize(ctx, selected)
	r.progress(func(p *Progress) { p.MiniSummaries = len(miniSummaries) })
	summaryBlock := summarizer.ReduceSummarize(ctx, miniSummaries, selected)

	r.phase(PhaseConcepts)
	conceptList := concepts.Extract(ctx, r.backend, r.cfg, summaryBlock.Keypoints, miniSummaries, r.logger)
	r.progress(func(p *Progress) { p.Concepts = len(conceptList) })
	conceptLookup := make(map[string]schema.Concept, len(conceptList))
	for _, c := range conceptList {
		conceptLookup[c.Name] = c
	}

	r.phase(PhaseGenerating)
	generator := question.NewGenerator(r.cfg, r.backend, embed, chunks, embeddings, r.logger)
	var questions []schema.Question
	limit := r.cfg.QuestionCount
	if limit > len(conceptList) {
		limit = len(conceptList)
	}
	for idx := 0; idx < limit; idx++ {
		concept := conceptList[idx]
		evidenceChunks := generator.SelectEvidence(ctx, concept)
		qType := r.cfg.QuestionTypes[idx%len(r.cfg.QuestionTypes)]
		q := generator.Generate(ctx, concept, evidenceChunks, fmt.Sprintf("q%d", idx+1), qType)
		questions = append(questions, q)
	}
	r.progress(func(p *Progress) { p.QuestionsGenerated = len(questions) })

	r.phase(PhaseVerifying)
	verified := generator.Verify(ctx, questions, conceptLookup)
	verified = r.topUp(ctx, generator, conceptList, conceptLookup, verified)
	r.progress(func(p *Progress) { p.QuestionsVerified = len(verified) })

	return &schema.QuizOutput{Summary: summaryBlock, Questions: verified}, nil
}

// topUp regenerates questions round-robin over the concepts until the quiz
// is full or the attempt budget runs out.
func (r *Runner) topUp(ctx context.Context, generator *question.Generator, conceptList []schema.Concept, conceptLookup map[string]schema.Concept, verified []schema.Question) []schema.Question {
	if len(verified) >= r.cfg.QuestionCount || len(conceptList) == 0 {
		return verified
	}
	attempts := 0
	nextID := len(verified) + 1
	maxAttempts := r.cfg.QuestionCount * (r.cfg.QuestionRetries + 2)
	for len(verified) < r.cfg.QuestionCount && attempts < maxAttempts {
		concept := conceptList[attempts%len(conceptList)]
		evidenceChunks := generator.SelectEvidence(ctx, concept)
		qType := r.cfg.QuestionTypes[(nextID-1)%len(r.cfg.QuestionTypes)]
		candidate := generator.Generate(ctx, concept, evidenceChunks, fmt.Sprintf("q%d", nextID), qType)
		if passed := generator.Verify(ctx, []schema.Question{candidate}, conceptLookup); len(passed) > 0 {
			verified = append(verified, passed[0])
			nextID++
		}
		attempts++
	}
	return verified
}

func (r *Runner) filterPages(pages []schema.Page) []schema.Page {
	filtered := pages
	if len(r.cfg.PagesFilter) > 0 {
		var matched []schema.Page
		for _, page := range filtered {
			if r.cfg.PagesFilter[page.Page] {
				matched = append(matched, page)
			}
		}
		if len(matched) > 0 {
			filtered = matched
		} else {
			r.logger.Warn("page filter matched no pages, keeping full document")
		}
	}
	if r.cfg.ChapterFilter != "" {
		var matched []schema.Page
		for _, page := range filtered {
			if strings.Contains(page.Text, r.cfg.ChapterFilter) {
				matched = append(matched, page)
			}
		}
		if len(matched) > 0 {
			filtered = matched
		} else {
			r.logger.Warn("chapter filter matched no pages, keeping previous selection")
		}
	}
	if r.cfg.MaxPages > 0 && len(filtered) > r.cfg.MaxPages {
		filtered = filtered[:r.cfg.MaxPages]
	}
	return filtered
}

func (r *Runner) buildOrLoadEmbeddings(ctx context.Context, pages []schema.Page, chunks []schema.Chunk, embed retrieval.EmbedFunc) ([][]float64, error) {
	if !r.cfg.EmbedCacheEnabled {
		return retrieval.BuildIndex(ctx, chunks, embed, r.cfg.EmbedConcurrency)
	}

	cachePath := retrieval.CachePath(r.cfg, retrieval.HashPages(pages), len(chunks))
	if cached := retrieval.LoadEmbeddings(cachePath, chunks); cached != nil {
		r.logger.Info("loaded embeddings from cache", "path", cachePath)
		return cached, nil
	}
	embeddings, err := retrieval.BuildIndex(ctx, chunks, embed, r.cfg.EmbedConcurrency)
	if err != nil {
		return nil, err
	}
	if err := retrieval.SaveEmbeddings(cachePath, chunks, embeddings); err != nil {
		r.logger.Warn("embedding cache write failed", "path", cachePath, "error", err)
	}
	return embeddings, nil
}

// selectChunkSet applies the long-document policy: small documents keep
// every chunk, larger ones go through balanced top-K selection.
func (r *Runner) selectChunkSet(ctx context.Context, pages []schema.Page, chunks []schema.Chunk, embeddings [][]float64, embed retrieval.EmbedFunc) ([]schema.Chunk, error) {
	useSelector := len(pages) >= r.cfg.LongDocThresholdPages ||
		len(chunks) >= r.cfg.SelectorChunkThreshold ||
		len(chunks) > r.cfg.MaxChunks
	if !useSelector {
		return chunks, nil
	}

	topK := r.cfg.TopKChunks
	if topK > r.cfg.MaxChunks {
		topK = r.cfg.MaxChunks
	}
	if topK > len(chunks) {
		topK = len(chunks)
	}
	return retrieval.Select(ctx, chunks, embeddings, embed, topK, r.cfg.Seed, true)
}
