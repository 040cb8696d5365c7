package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/quizgen/internal/llm"
)

// funcClient delegates to fn under a lock so it is safe for the concurrent
// map phase.
type funcClient struct {
	mu    sync.Mutex
	calls int
	fn    func(prompt string) (map[string]any, error)
}

func (c *funcClient) ChatJSON(_ context.Context, _ string, messages []llm.Message, _ *llm.Options, _ time.Duration) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	prompt := ""
	if len(messages) > 0 {
		prompt = messages[0].Content
	}
	return c.fn(prompt)
}

func TestMapSummarize_OneMiniPerChunk(t *testing.T) {
	chunks, embeddings, _ := testCorpus()
	client := &funcClient{fn: func(prompt string) (map[string]any, error) {
		return map[string]any{"mini_summary": "本段說明一個核心概念。", "keywords": []any{"概念"}}, nil
	}}

	s := New(testSettings(), client, roundRobinEmbed(len(chunks)), chunks, embeddings, nil)
	minis := s.MapSummarize(context.Background(), chunks)

	if len(minis) != len(chunks) {
		t.Fatalf("expected %d minis, got %d", len(chunks), len(minis))
	}
	for i, mini := range minis {
		if mini.ChunkID != chunks[i].ChunkID || mini.Page != chunks[i].Page {
			t.Errorf("mini %d not aligned with its chunk: %+v", i, mini)
		}
		if mini.MiniSummary == "" {
			t.Errorf("mini %d has no summary", i)
		}
		if len(mini.Citations) == 0 {
			t.Errorf("mini %d has no citations", i)
		}
	}
}

func TestMapSummarize_FailureFallsBackToChunkHead(t *testing.T) {
	chunks, embeddings, _ := testCorpus()
	client := &funcClient{fn: func(prompt string) (map[string]any, error) {
		return nil, fmt.Errorf("backend unavailable")
	}}

	s := New(testSettings(), client, roundRobinEmbed(len(chunks)), chunks, embeddings, nil)
	minis := s.MapSummarize(context.Background(), chunks)

	if len(minis) != len(chunks) {
		t.Fatalf("expected full coverage, got %d minis", len(minis))
	}
	for i, mini := range minis {
		if mini.MiniSummary == "" {
			t.Errorf("mini %d missing fallback summary", i)
		}
		if !strings.HasPrefix(chunks[i].Text, mini.MiniSummary) {
			t.Errorf("fallback summary should be the chunk head, got %q", mini.MiniSummary)
		}
		if len(mini.Citations) != 1 || mini.Citations[0].ChunkID != chunks[i].ChunkID {
			t.Errorf("fallback mini should self-cite, got %v", mini.Citations)
		}
	}
}
