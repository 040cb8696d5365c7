// Package grader scores user answers against generated questions.
package grader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/quizgen/internal/schema"
)

var choiceLetterRe = regexp.MustCompile(`\b([A-Da-d])\b`)

func normalizeTF(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch normalized {
	case "t", "true", "yes", "y", "對", "正确", "正確":
		return "true"
	case "f", "false", "no", "n", "錯", "错误", "錯誤":
		return "false"
	}
	return normalized
}

func extractChoiceLetter(text string) string {
	if m := choiceLetterRe.FindStringSubmatch(text); len(m) > 1 {
		return strings.ToUpper(m[1])
	}
	return ""
}

func gradeMCQ(userAnswer, correct string, choices []string) bool {
	correctLetter := extractChoiceLetter(correct)
	if correctLetter == "" {
		for idx, choice := range choices {
			if strings.EqualFold(strings.TrimSpace(correct), strings.TrimSpace(choice)) {
				correctLetter = string(rune('A' + idx))
				break
			}
		}
	}

	if userLetter := extractChoiceLetter(userAnswer); userLetter != "" {
		return userLetter == correctLetter
	}
	for idx, choice := range choices {
		if strings.EqualFold(strings.TrimSpace(userAnswer), strings.TrimSpace(choice)) {
			return string(rune('A'+idx)) == correctLetter
		}
	}
	return false
}

// Grade reports whether userAnswer is correct for the question. tf accepts
// common synonyms in English and Chinese; mcq accepts a letter or the full
// choice text; short and calc compare case-insensitively.
func Grade(q schema.Question, userAnswer string) bool {
	switch q.Type {
	case schema.TypeMCQ:
		answer := q.CorrectOption
		if answer == "" {
			answer = q.Answer
		}
		return gradeMCQ(userAnswer, answer, q.Choices)
	case schema.TypeShort:
		return strings.EqualFold(strings.TrimSpace(userAnswer), strings.TrimSpace(q.Answer))
	case schema.TypeCalc:
		answer := q.FinalAnswer
		if answer == "" {
			answer = q.Answer
		}
		return strings.EqualFold(strings.TrimSpace(userAnswer), strings.TrimSpace(answer))
	default:
		return normalizeTF(userAnswer) == normalizeTF(q.Answer)
	}
}

// FormatCitations renders citations as "p3:p3_c2, p5:p5_c1" for display.
func FormatCitations(q schema.Question) string {
	if len(q.Citations) == 0 {
		return "N/A"
	}
	parts := make([]string, len(q.Citations))
	for i, c := range q.Citations {
		parts[i] = fmt.Sprintf("p%d:%s", c.Page, c.ChunkID)
	}
	return strings.Join(parts, ", ")
}
