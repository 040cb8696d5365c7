package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/quizgen/internal/grader"
	"github.com/dgallion1/quizgen/internal/schema"
)

func newQuizCmd() *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Play a generated quiz interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("read quiz file: %w", err)
			}
			var quiz schema.QuizOutput
			if err := json.Unmarshal(data, &quiz); err != nil {
				return fmt.Errorf("parse quiz file: %w", err)
			}
			if len(quiz.Questions) == 0 {
				return fmt.Errorf("no questions in %s", inputPath)
			}

			score, wrongIDs := runQuiz(quiz.Questions, os.Stdin, os.Stdout)
			fmt.Printf("\n=== Quiz Summary ===\n")
			fmt.Printf("Score: %d/%d\n", score, len(quiz.Questions))
			if len(wrongIDs) > 0 {
				fmt.Printf("Incorrect questions: %s\n", strings.Join(wrongIDs, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "quiz.json", "quiz JSON file")
	return cmd
}

// runQuiz walks the questions, grading answers with one retry after a hint.
func runQuiz(questions []schema.Question, in io.Reader, out io.Writer) (int, []string) {
	reader := bufio.NewScanner(in)
	readLine := func() string {
		if !reader.Scan() {
			return ""
		}
		return strings.TrimSpace(reader.Text())
	}

	score := 0
	var wrongIDs []string

	for idx, q := range questions {
		fmt.Fprintf(out, "\nQ%d. (%s) %s\n", idx+1, q.Type, q.Question)
		for _, choice := range q.Choices {
			fmt.Fprintf(out, "  %s\n", choice)
		}

		fmt.Fprint(out, "Your answer: ")
		correct := grader.Grade(q, readLine())

		if !correct {
			if q.Rationale != "" {
				hint := q.Rationale
				if runes := []rune(hint); len(runes) > 60 {
					hint = string(runes[:60]) + "..."
				}
				fmt.Fprintf(out, "Hint: %s\n", hint)
			}
			fmt.Fprint(out, "Try again (or press Enter to skip): ")
			if retry := readLine(); retry != "" {
				correct = grader.Grade(q, retry)
			}
		}

		if correct {
			fmt.Fprintln(out, "Correct!")
			score++
		} else {
			fmt.Fprintln(out, "Incorrect.")
			id := q.ID
			if id == "" {
				id = fmt.Sprintf("q%d", idx+1)
			}
			wrongIDs = append(wrongIDs, id)
		}

		fmt.Fprintln(out, "Answer:", q.Answer)
		fmt.Fprintln(out, "Rationale:", q.Rationale)
		fmt.Fprintln(out, "Citations:", grader.FormatCitations(q))
	}

	return score, wrongIDs
}
