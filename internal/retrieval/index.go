// Package retrieval implements the brute-force embedding index used for
// evidence lookup and chunk selection, plus the on-disk embedding cache.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/quizgen/internal/schema"
)

// EmbedFunc produces one embedding vector for text.
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or a zero-norm vector score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BuildIndex embeds every chunk with bounded concurrency. A chunk whose
// embedding fails degrades to a zero vector (it never matches); the build
// only fails when no chunk embeds at all.
func BuildIndex(ctx context.Context, chunks []schema.Chunk, embed EmbedFunc, concurrency int) ([][]float64, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	embeddings := make([][]float64, len(chunks))
	failures := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := embed(gctx, chunk.Text)
			if err != nil {
				failures[i] = true
				return nil
			}
			embeddings[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	if len(chunks) > 0 && failed == len(chunks) {
		return nil, fmt.Errorf("embedding failed for all %d chunks", len(chunks))
	}
	return embeddings, nil
}

type scoredChunk struct {
	score float64
	index int
}

// rankByScore sorts descending by score. The sort is stable, so ties keep
// their incoming order: corpus order in Search, seeded order in Select.
func rankByScore(scored []scoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
}

// Search returns the topK chunks most similar to query.
func Search(ctx context.Context, query string, chunks []schema.Chunk, embeddings [][]float64, embed EmbedFunc, topK int) ([]schema.Chunk, error) {
	if topK <= 0 || len(chunks) == 0 {
		return nil, nil
	}
	queryEmb, err := embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored := make([]scoredChunk, len(chunks))
	for i := range chunks {
		scored[i] = scoredChunk{score: CosineSimilarity(queryEmb, embeddings[i]), index: i}
	}
	rankByScore(scored)

	if topK > len(scored) {
		topK = len(scored)
	}
	out := make([]schema.Chunk, 0, topK)
	for _, sc := range scored[:topK] {
		out = append(out, chunks[sc.index])
	}
	return out, nil
}

// probeQueries covers the kinds of content worth examining. Mixed language
// because the corpora are.
var probeQueries = []string{
	"definition",
	"theorem",
	"algorithm",
	"conclusion",
	"summary",
	"keypoint",
	"重要",
	"結論",
	"定義",
	"方法",
	"例子",
}

// Select picks topK chunks by best probe-query similarity. When balanced,
// chunks are bucketed by section title (or page) and each bucket is capped
// at max(1, topK/buckets); leftover capacity fills from the remainder in
// score order. The seed only permutes ties among equal scores.
func Select(ctx context.Context, chunks []schema.Chunk, embeddings [][]float64, embed EmbedFunc, topK int, seed int64, balanced bool) ([]schema.Chunk, error) {
	if topK <= 0 || len(chunks) == 0 {
		return nil, nil
	}

	probeEmbeddings := make([][]float64, 0, len(probeQueries))
	for _, q := range probeQueries {
		emb, err := embed(ctx, q)
		if err != nil {
			continue
		}
		probeEmbeddings = append(probeEmbeddings, emb)
	}
	if len(probeEmbeddings) == 0 {
		return nil, fmt.Errorf("embedding failed for all probe queries")
	}

	scored := make([]scoredChunk, len(chunks))
	for i := range chunks {
		best := 0.0
		for _, probe := range probeEmbeddings {
			if s := CosineSimilarity(embeddings[i], probe); s > best {
				best = s
			}
		}
		scored[i] = scoredChunk{score: best, index: i}
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(scored), func(i, j int) { scored[i], scored[j] = scored[j], scored[i] })
	rankByScore(scored)

	if topK > len(scored) {
		topK = len(scored)
	}
	if !balanced {
		out := make([]schema.Chunk, 0, topK)
		for _, sc := range scored[:topK] {
			out = append(out, chunks[sc.index])
		}
		return out, nil
	}

	buckets := make(map[string]int)
	for _, sc := range scored {
		buckets[bucketKey(chunks[sc.index])] = 0
	}
	maxPerBucket := topK / len(buckets)
	if maxPerBucket < 1 {
		maxPerBucket = 1
	}

	var selected []schema.Chunk
	var remainder []schema.Chunk
	for _, sc := range scored {
		chunk := chunks[sc.index]
		key := bucketKey(chunk)
		if buckets[key] < maxPerBucket {
			selected = append(selected, chunk)
			buckets[key]++
		} else {
			remainder = append(remainder, chunk)
		}
		if len(selected) >= topK {
			break
		}
	}
	if len(selected) < topK {
		needed := topK - len(selected)
		if needed > len(remainder) {
			needed = len(remainder)
		}
		selected = append(selected, remainder[:needed]...)
	}
	if len(selected) > topK {
		selected = selected[:topK]
	}
	return selected, nil
}

func bucketKey(chunk schema.Chunk) string {
	if chunk.SectionTitle != "" {
		return chunk.SectionTitle
	}
	return fmt.Sprintf("page_%d", chunk.Page)
}
