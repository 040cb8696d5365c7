package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the immutable configuration for one quizgen process. It is
// built once at startup and passed by value into components; pipeline code
// never reads the environment directly.
type Settings struct {
	Port string

	// Auth
	APIKey string

	// Ollama backend
	OllamaBaseURL string
	ChatModel     string
	EmbedModel    string
	ChatTimeout   time.Duration
	ReduceTimeout time.Duration
	EmbedTimeout  time.Duration

	// Quiz shape
	QuestionCount int
	QuestionTypes []string

	// Retry budgets
	SummaryRetries  int
	QuestionRetries int
	VerifyRetries   int

	// Prompt budgets
	SummaryBudgetTokens  int
	EvidenceBudgetTokens int
	MaxInputChars        int

	// Chunking defaults for callers that submit raw pages
	ChunkChars    int
	OverlapChars  int
	MinChunkChars int

	// Selection policy
	MaxChunks              int
	TopKChunks             int
	LongDocThresholdPages  int
	SelectorChunkThreshold int
	Seed                   int64

	// Input filters
	PagesFilter   map[int]bool
	ChapterFilter string
	MaxPages      int

	// Embedding cache
	EmbedCacheEnabled bool
	EmbedCacheDir     string

	// Bounded fan-out for embedding and map summaries
	EmbedConcurrency int
	MapConcurrency   int

	// Job orchestration
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration
}

// Load builds Settings from the environment. A .env file in the working
// directory is honored when present.
func Load() Settings {
	_ = godotenv.Load()

	cfg := Settings{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("QUIZGEN_API_KEY"),

		OllamaBaseURL: envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		ChatModel:     envOr("QUIZGEN_CHAT_MODEL", "llama3.1:8b-instruct-q8_0"),
		EmbedModel:    envOr("QUIZGEN_EMBED_MODEL", "nomic-embed-text:v1.5"),
		ChatTimeout:   envDuration("QUIZGEN_CHAT_TIMEOUT", 120*time.Second),
		ReduceTimeout: envDuration("QUIZGEN_REDUCE_TIMEOUT", 180*time.Second),
		EmbedTimeout:  envDuration("QUIZGEN_EMBED_TIMEOUT", 60*time.Second),

		QuestionCount: envInt("QUIZGEN_QUESTION_COUNT", 5),
		QuestionTypes: splitList(envOr("QUIZGEN_QUESTION_TYPES", "tf,mcq")),

		SummaryRetries:  envInt("QUIZGEN_SUMMARY_RETRIES", 1),
		QuestionRetries: envInt("QUIZGEN_QUESTION_RETRIES", 2),
		VerifyRetries:   envInt("QUIZGEN_VERIFY_RETRIES", 1),

		SummaryBudgetTokens:  envInt("QUIZGEN_SUMMARY_BUDGET_TOKENS", 3000),
		EvidenceBudgetTokens: envInt("QUIZGEN_EVIDENCE_BUDGET_TOKENS", 2000),
		MaxInputChars:        envInt("QUIZGEN_MAX_INPUT_CHARS", 12000),

		ChunkChars:    envInt("QUIZGEN_CHUNK_CHARS", 800),
		OverlapChars:  envInt("QUIZGEN_OVERLAP_CHARS", 120),
		MinChunkChars: envInt("QUIZGEN_MIN_CHUNK_CHARS", 40),

		MaxChunks:              envInt("QUIZGEN_MAX_CHUNKS", 120),
		TopKChunks:             envInt("QUIZGEN_TOP_K_CHUNKS", 40),
		LongDocThresholdPages:  envInt("QUIZGEN_LONG_DOC_PAGES", 15),
		SelectorChunkThreshold: envInt("QUIZGEN_SELECTOR_CHUNKS", 60),
		Seed:                   int64(envInt("QUIZGEN_SEED", 42)),

		PagesFilter:   ParsePageRanges(os.Getenv("QUIZGEN_PAGES")),
		ChapterFilter: os.Getenv("QUIZGEN_CHAPTER"),
		MaxPages:      envInt("QUIZGEN_MAX_PAGES", 0),

		EmbedCacheEnabled: envBool("QUIZGEN_EMBED_CACHE", true),
		EmbedCacheDir:     envOr("QUIZGEN_EMBED_CACHE_DIR", ".quizgen-cache"),

		EmbedConcurrency: envInt("QUIZGEN_EMBED_CONCURRENCY", 4),
		MapConcurrency:   envInt("QUIZGEN_MAP_CONCURRENCY", 2),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 20),
		JobTTL:       envDuration("JOB_TTL", 2*time.Hour),
	}

	return cfg.Clamped()
}

// Clamped returns a copy with out-of-range values pulled back to defaults.
func (c Settings) Clamped() Settings {
	if c.QuestionCount <= 0 {
		c.QuestionCount = 5
	}
	if len(c.QuestionTypes) == 0 {
		c.QuestionTypes = []string{"tf", "mcq"}
	}
	if c.SummaryRetries < 0 {
		c.SummaryRetries = 0
	}
	if c.QuestionRetries < 0 {
		c.QuestionRetries = 0
	}
	if c.VerifyRetries < 0 {
		c.VerifyRetries = 0
	}
	if c.SummaryBudgetTokens <= 0 {
		c.SummaryBudgetTokens = 3000
	}
	if c.EvidenceBudgetTokens <= 0 {
		c.EvidenceBudgetTokens = 2000
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = 12000
	}
	if c.ChunkChars <= 0 {
		c.ChunkChars = 800
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.ChunkChars {
		c.OverlapChars = c.ChunkChars / 6
	}
	if c.MinChunkChars <= 0 {
		c.MinChunkChars = 40
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = 120
	}
	if c.TopKChunks <= 0 {
		c.TopKChunks = 40
	}
	if c.LongDocThresholdPages <= 0 {
		c.LongDocThresholdPages = 15
	}
	if c.SelectorChunkThreshold <= 0 {
		c.SelectorChunkThreshold = 60
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 1
	}
	if c.MapConcurrency <= 0 {
		c.MapConcurrency = 1
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 20
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 2 * time.Hour
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = 120 * time.Second
	}
	if c.ReduceTimeout <= 0 {
		c.ReduceTimeout = c.ChatTimeout
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 60 * time.Second
	}
	return c
}

// Validate checks requirements for running the HTTP service.
func (c Settings) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("QUIZGEN_API_KEY is required")
	}
	for _, t := range c.QuestionTypes {
		switch t {
		case "tf", "mcq", "short", "calc":
		default:
			return fmt.Errorf("unknown question type %q", t)
		}
	}
	return nil
}

// ParsePageRanges parses "3,5-8,12" into a page set. Returns nil when
// nothing parses.
func ParsePageRanges(value string) map[int]bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	pages := make(map[int]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				continue
			}
			if start > end {
				start, end = end, start
			}
			for p := start; p <= end; p++ {
				pages[p] = true
			}
			continue
		}
		if p, err := strconv.Atoi(part); err == nil {
			pages[p] = true
		}
	}
	if len(pages) == 0 {
		return nil
	}
	return pages
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
