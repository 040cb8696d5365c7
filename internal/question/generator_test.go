package question

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/schema"
)

// scriptedClient replays canned JSON responses in order, repeating the last
// one when the script runs out.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) ChatJSON(_ context.Context, _ string, _ []llm.Message, _ *llm.Options, _ time.Duration) (map[string]any, error) {
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	var data map[string]any
	if err := json.Unmarshal([]byte(c.responses[idx]), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func testSettings() config.Settings {
	return config.Settings{
		ChatModel:            "test-model",
		ChatTimeout:          time.Second,
		QuestionTypes:        []string{schema.TypeTF, schema.TypeMCQ, schema.TypeShort},
		QuestionRetries:      2,
		VerifyRetries:        1,
		EvidenceBudgetTokens: 2000,
		MaxInputChars:        12000,
	}
}

func evidenceChunks() []schema.Chunk {
	return []schema.Chunk{
		{
			ChunkID: "p1_c1",
			Page:    1,
			Text:    "Gradient descent iteratively updates the model weights to reduce the training loss",
		},
		{
			ChunkID: "p2_c1",
			Page:    2,
			Text:    "The learning rate controls the step size taken along the negative gradient",
		},
	}
}

func stubEmbed(_ context.Context, _ string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func newTestGenerator(client Client) *Generator {
	chunks := evidenceChunks()
	embeddings := [][]float64{{1, 0}, {0, 1}}
	return NewGenerator(testSettings(), client, stubEmbed, chunks, embeddings, nil)
}

func TestGenerate_AcceptsWellFormedResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{`{
		"type": "tf",
		"question": "梯度下降法會逐步更新模型權重",
		"answer": "true",
		"rationale": "權重沿負梯度方向更新",
		"citations": [{"page": 1, "chunk_id": "p1_c1"}]
	}`}}
	g := newTestGenerator(client)

	concept := schema.Concept{Name: "gradient descent"}
	q := g.Generate(context.Background(), concept, evidenceChunks(), "q1", schema.TypeTF)

	if !Validate(q, g.cfg.QuestionTypes) {
		t.Fatalf("expected valid question, got %+v", q)
	}
	if q.ID != "q1" || q.Type != schema.TypeTF {
		t.Errorf("expected forced id/type, got %s/%s", q.ID, q.Type)
	}
	if len(q.EvidenceQuotes) == 0 {
		t.Error("expected an evidence quote to be attached")
	}
	if len(q.ConceptTags) != 1 || q.ConceptTags[0] != "gradient descent" {
		t.Errorf("expected concept tag default, got %v", q.ConceptTags)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 chat call, got %d", client.calls)
	}
}

func TestGenerate_RetriesOnInsufficientEvidence(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"insufficient_evidence": true}`,
		`{"error": "insufficient_evidence"}`,
		`{
			"type": "tf",
			"question": "學習率決定每一步的更新幅度",
			"answer": "true",
			"rationale": "學習率控制沿負梯度方向的步長",
			"citations": [{"page": 2, "chunk_id": "p2_c1"}]
		}`,
	}}
	g := newTestGenerator(client)

	q := g.Generate(context.Background(), schema.Concept{Name: "learning rate"}, evidenceChunks(), "q2", schema.TypeTF)
	if !Validate(q, g.cfg.QuestionTypes) {
		t.Fatalf("expected valid question after retries, got %+v", q)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 chat calls, got %d", client.calls)
	}
}

func TestGenerate_RewritesInterrogativeTF(t *testing.T) {
	client := &scriptedClient{responses: []string{`{
		"type": "tf",
		"question": "請問梯度下降法是否會更新權重？",
		"answer": "true",
		"rationale": "權重沿負梯度方向更新",
		"citations": [{"page": 1, "chunk_id": "p1_c1"}]
	}`}}
	g := newTestGenerator(client)

	q := g.Generate(context.Background(), schema.Concept{Name: "gradient descent"}, evidenceChunks(), "q3", schema.TypeTF)
	if !Validate(q, g.cfg.QuestionTypes) {
		t.Fatalf("expected valid question, got %+v", q)
	}
	if q.Question != "梯度下降法會更新權重" {
		t.Errorf("expected declarative rewrite, got %q", q.Question)
	}
}

func TestGenerate_FiltersUngroundedCitations(t *testing.T) {
	client := &scriptedClient{responses: []string{`{
		"type": "tf",
		"question": "梯度下降法會逐步更新模型權重",
		"answer": "true",
		"rationale": "權重沿負梯度方向更新",
		"citations": [{"page": 9, "chunk_id": "p9_c9"}]
	}`}}
	g := newTestGenerator(client)

	q := g.Generate(context.Background(), schema.Concept{Name: "gradient descent"}, evidenceChunks(), "q4", schema.TypeTF)
	if !Validate(q, g.cfg.QuestionTypes) {
		t.Fatalf("expected valid question, got %+v", q)
	}
	if len(q.Citations) != 1 || q.Citations[0].ChunkID != "p1_c1" {
		t.Errorf("expected citation replaced by first evidence chunk, got %v", q.Citations)
	}
}

func TestVerify_KeepsSupportedQuestion(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"supported": true}`}}
	g := newTestGenerator(client)

	q := supportedQuestion()
	got := g.Verify(context.Background(), []schema.Question{q}, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 verified question, got %d", len(got))
	}
	if got[0].Question != q.Question {
		t.Error("supported question should pass through unchanged")
	}
}

func TestVerify_AcceptsRevision(t *testing.T) {
	client := &scriptedClient{responses: []string{`{
		"supported": false,
		"revised_question": {
			"type": "tf",
			"question": "學習率決定每一步的更新幅度",
			"answer": "true",
			"rationale": "學習率控制沿負梯度方向的步長",
			"citations": [{"page": 2, "chunk_id": "p2_c1"}]
		}
	}`}}
	g := newTestGenerator(client)

	q := supportedQuestion()
	got := g.Verify(context.Background(), []schema.Question{q}, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 verified question, got %d", len(got))
	}
	if got[0].Question != "學習率決定每一步的更新幅度" {
		t.Errorf("expected the revision to win, got %q", got[0].Question)
	}
	if got[0].ID != q.ID {
		t.Error("revision must keep the original question id")
	}
}

func TestVerify_DropsUnrepairableQuestion(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"supported": false}`}}
	g := newTestGenerator(client)

	// Unsupported, no revision offered, nothing to regenerate from: dropped.
	q := supportedQuestion()
	q.ConceptTags = nil
	got := g.Verify(context.Background(), []schema.Question{q}, nil)
	if len(got) != 0 {
		t.Fatalf("expected unsupported question to be dropped, got %d", len(got))
	}
}

func TestVerify_OverrulesFabricatedQuote(t *testing.T) {
	// The model says supported, but the quote is not verbatim from its chunk.
	client := &scriptedClient{responses: []string{`{"supported": true}`}}
	g := newTestGenerator(client)

	q := supportedQuestion()
	q.ConceptTags = nil
	q.EvidenceQuotes[0].Quote = "this sentence never appears in any chunk at all"
	got := g.Verify(context.Background(), []schema.Question{q}, nil)
	if len(got) != 0 {
		t.Fatalf("expected fabricated-quote question to be dropped, got %d", len(got))
	}
}

func TestVerify_OverrulesExternalReference(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"supported": true}`}}
	g := newTestGenerator(client)

	q := supportedQuestion()
	q.ConceptTags = nil
	q.Rationale = "根據《機器學習聖經》的說法 " + q.Rationale
	got := g.Verify(context.Background(), []schema.Question{q}, nil)
	if len(got) != 0 {
		t.Fatalf("expected external-reference question to be dropped, got %d", len(got))
	}
}

func supportedQuestion() schema.Question {
	return schema.Question{
		ID:        "q1",
		Type:      schema.TypeTF,
		Question:  "梯度下降法會逐步更新模型權重",
		Answer:    "true",
		Rationale: "權重沿負梯度方向更新",
		Citations: []schema.Citation{{Page: 1, ChunkID: "p1_c1"}},
		EvidenceQuotes: []schema.EvidenceQuote{{
			Page:    1,
			ChunkID: "p1_c1",
			Quote:   "Gradient descent iteratively updates the model weights",
		}},
		Difficulty:  "medium",
		ConceptTags: []string{"gradient descent"},
	}
}
