package summarize

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

// mapChunkTokens caps how much of a chunk goes into the map prompt.
const mapChunkTokens = 600

// MapSummarize produces one mini summary per selected chunk with bounded
// concurrency. A chunk whose call fails still yields a mini summary built
// from the chunk head, so the reduce phase always has full coverage.
func (s *Summarizer) MapSummarize(ctx context.Context, selected []schema.Chunk) []schema.MiniSummary {
	summaries := make([]schema.MiniSummary, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MapConcurrency)
	for i, chunk := range selected {
		i, chunk := i, chunk
		g.Go(func() error {
			summaries[i] = s.mapOne(gctx, chunk)
			return nil
		})
	}
	// Workers never return errors; Wait only observes ctx cancellation.
	_ = g.Wait()

	s.logger.Info("map summarize done", "mini_summaries", len(summaries))
	return summaries
}

func (s *Summarizer) mapOne(ctx context.Context, chunk schema.Chunk) schema.MiniSummary {
	chunkText := textutil.TrimToTokens(chunk.Text, mapChunkTokens)
	prompt := llm.BuildMapSummaryPrompt(chunk.Page, chunk.ChunkID, chunkText)

	var data map[string]any
	for attempt := 0; attempt < llm.MaxRetries; attempt++ {
		var err error
		data, err = s.client.ChatJSON(ctx, s.cfg.ChatModel,
			[]llm.Message{{Role: "user", Content: prompt}},
			&llm.Options{Temperature: 0.2}, s.cfg.ChatTimeout)
		if err == nil {
			break
		}
		if !llm.IsRetryable(err) || ctx.Err() != nil {
			s.logger.Warn("map summarize failed", "chunk_id", chunk.ChunkID, "error", err)
			data = nil
			break
		}
		s.logger.Warn("map summarize retrying", "chunk_id", chunk.ChunkID, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return fallbackMini(chunk, chunkText)
		case <-time.After(llm.Backoff(attempt)):
		}
	}

	mini := schema.NormalizeMiniSummary(data, chunk.Page, chunk.ChunkID)
	if mini.MiniSummary == "" {
		mini.MiniSummary = textutil.TextHead(chunkText, 120)
	}
	return mini
}

func fallbackMini(chunk schema.Chunk, chunkText string) schema.MiniSummary {
	return schema.MiniSummary{
		Page:        chunk.Page,
		ChunkID:     chunk.ChunkID,
		MiniSummary: textutil.TextHead(chunkText, 120),
		Citations:   []schema.Citation{{Page: chunk.Page, ChunkID: chunk.ChunkID}},
	}
}
