// Command quizgen runs the quiz pipeline from the command line: generate a
// quiz from a pages JSON file, or play an existing quiz interactively.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "quizgen",
		Short:         "Generate citation-grounded quizzes from lecture pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenerateCmd(), newQuizCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
