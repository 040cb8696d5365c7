package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/quizgen/internal/config"
	"github.com/dgallion1/quizgen/internal/llm"
	"github.com/dgallion1/quizgen/internal/pipeline"
	"github.com/dgallion1/quizgen/internal/schema"
)

func newGenerateCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
		questions  int
		types      string
		pages      string
		chapter    string
		maxPages   int
		seed       int64
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a quiz from a pages JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if questions > 0 {
				cfg.QuestionCount = questions
			}
			if types != "" {
				cfg.QuestionTypes = nil
				for _, t := range strings.Split(types, ",") {
					if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
						cfg.QuestionTypes = append(cfg.QuestionTypes, t)
					}
				}
			}
			if pages != "" {
				cfg.PagesFilter = config.ParsePageRanges(pages)
			}
			if chapter != "" {
				cfg.ChapterFilter = chapter
			}
			if maxPages > 0 {
				cfg.MaxPages = maxPages
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if noCache {
				cfg.EmbedCacheEnabled = false
			}
			cfg = cfg.Clamped()
			for _, t := range cfg.QuestionTypes {
				if !schema.KnownType(t) {
					return fmt.Errorf("unknown question type %q", t)
				}
			}

			sourcePages, err := loadPages(inputPath)
			if err != nil {
				return err
			}

			log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
			client := llm.NewClient(cfg.OllamaBaseURL)
			defer client.Close()

			runner := pipeline.NewRunner(cfg, client, log)
			runner.OnPhase = func(phase string) {
				log.Info("phase", "phase", phase)
			}

			result, err := runner.Run(cmd.Context(), sourcePages)
			if err != nil {
				return err
			}
			return writeResult(outputPath, result)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "pages JSON file (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "quiz.json", "output quiz JSON file")
	cmd.Flags().IntVarP(&questions, "questions", "n", 0, "number of questions")
	cmd.Flags().StringVarP(&types, "types", "t", "", "comma-separated question types (tf,mcq,short,calc)")
	cmd.Flags().StringVar(&pages, "pages", "", "page ranges to include, e.g. 3,5-8")
	cmd.Flags().StringVar(&chapter, "chapter", "", "only pages containing this text")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "cap on page count after filtering")
	cmd.Flags().Int64Var(&seed, "seed", 42, "selection tie-break seed")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the embedding cache")
	cmd.MarkFlagRequired("input")

	return cmd
}

// loadPages accepts either a bare page array or an object with a "pages"
// field.
func loadPages(path string) ([]schema.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pages file: %w", err)
	}

	var pages []schema.Page
	if err := json.Unmarshal(data, &pages); err == nil && len(pages) > 0 {
		return pages, nil
	}

	var wrapped struct {
		Pages []schema.Page `json:"pages"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse pages file: %w", err)
	}
	if len(wrapped.Pages) == 0 {
		return nil, fmt.Errorf("no pages in %s", path)
	}
	return wrapped.Pages, nil
}

func writeResult(path string, result *schema.QuizOutput) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write quiz: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d questions to %s\n", len(result.Questions), path)
	return nil
}
