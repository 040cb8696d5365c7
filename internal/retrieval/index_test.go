package retrieval

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/dgallion1/quizgen/internal/schema"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero norm", []float64{0, 0}, []float64{1, 2}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, []float64{1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

// axisEmbed maps each chunk to a one-hot vector so similarity is an exact
// match test: queries named "c<N>" hit chunk N.
func axisEmbed(dims int, lookup map[string]int) EmbedFunc {
	return func(_ context.Context, text string) ([]float64, error) {
		vec := make([]float64, dims)
		if i, ok := lookup[text]; ok {
			vec[i] = 1
		}
		return vec, nil
	}
}

func makeChunks(n int) []schema.Chunk {
	chunks := make([]schema.Chunk, n)
	for i := range chunks {
		chunks[i] = schema.Chunk{
			ChunkID: fmt.Sprintf("p1_c%d", i),
			Page:    1,
			Text:    fmt.Sprintf("c%d", i),
		}
	}
	return chunks
}

func TestBuildIndex_PartialFailureDegrades(t *testing.T) {
	chunks := makeChunks(3)
	embed := func(_ context.Context, text string) ([]float64, error) {
		if text == "c1" {
			return nil, fmt.Errorf("embed backend down")
		}
		return []float64{1, 0}, nil
	}

	embeddings, err := BuildIndex(context.Background(), chunks, embed, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(embeddings))
	}
	if embeddings[1] != nil {
		t.Errorf("failed chunk should keep a nil (zero) vector, got %v", embeddings[1])
	}
	if embeddings[0] == nil || embeddings[2] == nil {
		t.Error("successful chunks should have vectors")
	}
}

func TestBuildIndex_AllFail(t *testing.T) {
	chunks := makeChunks(2)
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return nil, fmt.Errorf("down")
	}
	if _, err := BuildIndex(context.Background(), chunks, embed, 1); err == nil {
		t.Fatal("expected error when every embedding fails")
	}
}

func TestSearch_RanksByCosine(t *testing.T) {
	chunks := makeChunks(4)
	lookup := map[string]int{"c0": 0, "c1": 1, "c2": 2, "c3": 3}
	embed := axisEmbed(4, lookup)

	embeddings, err := BuildIndex(context.Background(), chunks, embed, 1)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	got, err := Search(context.Background(), "c2", chunks, embeddings, embed, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ChunkID != "p1_c2" {
		t.Errorf("expected best match p1_c2, got %s", got[0].ChunkID)
	}
}

func TestSearch_TopKClampedAndZero(t *testing.T) {
	chunks := makeChunks(2)
	lookup := map[string]int{"c0": 0, "c1": 1}
	embed := axisEmbed(2, lookup)
	embeddings, _ := BuildIndex(context.Background(), chunks, embed, 1)

	got, err := Search(context.Background(), "c0", chunks, embeddings, embed, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected topK clamped to corpus size, got %d", len(got))
	}

	got, err = Search(context.Background(), "c0", chunks, embeddings, embed, 0)
	if err != nil || got != nil {
		t.Errorf("expected nil results for topK=0, got %v (%v)", got, err)
	}
}

func TestSelect_BalancedBucketCap(t *testing.T) {
	// Two sections, six chunks, all identical embeddings: every chunk ties.
	// Balanced selection with topK=4 must cap each section at 2.
	var chunks []schema.Chunk
	var embeddings [][]float64
	for i := 0; i < 6; i++ {
		section := "Intro"
		if i >= 3 {
			section = "Methods"
		}
		chunks = append(chunks, schema.Chunk{
			ChunkID:      fmt.Sprintf("p1_c%d", i),
			Page:         1,
			SectionTitle: section,
			Text:         "body",
		})
		embeddings = append(embeddings, []float64{1, 0})
	}
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return []float64{1, 0}, nil
	}

	got, err := Select(context.Background(), chunks, embeddings, embed, 4, 42, true)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(got))
	}
	counts := map[string]int{}
	for _, c := range got {
		counts[c.SectionTitle]++
	}
	if counts["Intro"] != 2 || counts["Methods"] != 2 {
		t.Errorf("expected 2 per section, got %v", counts)
	}
}

func TestSelect_SeedDeterministic(t *testing.T) {
	chunks := makeChunks(8)
	embeddings := make([][]float64, len(chunks))
	for i := range embeddings {
		embeddings[i] = []float64{1, 0}
	}
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return []float64{1, 0}, nil
	}

	first, err := Select(context.Background(), chunks, embeddings, embed, 3, 7, false)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	second, err := Select(context.Background(), chunks, embeddings, embed, 3, 7, false)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for i := range first {
		if first[i].ChunkID != second[i].ChunkID {
			t.Fatalf("same seed gave different selections: %v vs %v", first, second)
		}
	}
}

func TestSelect_AllProbesFail(t *testing.T) {
	chunks := makeChunks(2)
	embeddings := [][]float64{{1}, {1}}
	embed := func(_ context.Context, _ string) ([]float64, error) {
		return nil, fmt.Errorf("down")
	}
	if _, err := Select(context.Background(), chunks, embeddings, embed, 1, 42, false); err == nil {
		t.Fatal("expected error when every probe embedding fails")
	}
}

func TestBucketKey(t *testing.T) {
	withSection := schema.Chunk{Page: 2, SectionTitle: "Loss functions"}
	if got := bucketKey(withSection); got != "Loss functions" {
		t.Errorf("bucketKey = %q, want section title", got)
	}
	bare := schema.Chunk{Page: 2}
	if got := bucketKey(bare); got != "page_2" {
		t.Errorf("bucketKey = %q, want page_2", got)
	}
}
