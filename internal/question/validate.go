// Package question generates, repairs, and verifies quiz questions against
// their evidence chunks.
package question

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/quizgen/internal/evidence"
	"github.com/dgallion1/quizgen/internal/schema"
	"github.com/dgallion1/quizgen/internal/textutil"
)

var (
	metaQuestionRe = regexp.MustCompile(`(?i)(哪一頁|哪一段|頁碼|頁號|頁面|page\b|chunk(?:_id)?|出處|來源|段落|p\d+_c\d+)`)
	bannedMCQRe    = regexp.MustCompile(`(?i)(all of the above|none of the above|以上皆是|以上皆對|以上皆為|以上皆正確|以上皆非)`)
	questionWordRe = regexp.MustCompile(`(?i)(什麼|為何|如何|哪|幾|多少|是否|能否|可否|嗎|呢|\bwhat\b|\bwhy\b|\bhow\b|\bwhich\b|\bwhen\b)`)
	auxLeadRe      = regexp.MustCompile(`(?i)^(do|does|did|is|are|was|were|can|could|will|would|should|has|have|had)\b`)
	tfLeadRe       = regexp.MustCompile(`^(請問|請回答)`)
	tfModalRe      = regexp.MustCompile(`(是否|是不是|能否|可否)`)
	tfTailRe       = regexp.MustCompile(`(嗎|呢)$`)
	bookTitleRe    = regexp.MustCompile(`《[^》]{2,20}》`)
)

// IsMetaQuestion reports whether text asks about the document apparatus
// (pages, chunks, sources) instead of the material.
func IsMetaQuestion(text string) bool {
	return text != "" && metaQuestionRe.MatchString(text)
}

// IsQuestionSentence reports whether text reads as an interrogative.
func IsQuestionSentence(text string) bool {
	s := strings.TrimSpace(text)
	if s == "" {
		return false
	}
	if strings.HasSuffix(s, "?") || strings.HasSuffix(s, "？") {
		return true
	}
	if tfTailRe.MatchString(s) {
		return true
	}
	// Yes/no questions lead with an auxiliary verb.
	if auxLeadRe.MatchString(s) {
		return true
	}
	return questionWordRe.MatchString(s)
}

// FixTFQuestion rewrites a true/false prompt into declarative form. Returns
// "" when it cannot be salvaged.
func FixTFQuestion(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	s = strings.TrimRight(s, "？?")
	s = strings.TrimSpace(tfLeadRe.ReplaceAllString(s, ""))
	s = tfModalRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(tfTailRe.ReplaceAllString(s, ""))
	if s == "" || IsQuestionSentence(s) {
		return ""
	}
	return s
}

// HasBannedMCQChoice reports whether any choice is a catch-all option.
func HasBannedMCQChoice(choices []string) bool {
	for _, choice := range choices {
		if bannedMCQRe.MatchString(choice) {
			return true
		}
	}
	return false
}

// ContainsExternalReference reports whether text cites a 《book title》 that
// never appears in the evidence.
func ContainsExternalReference(text, evidenceText string) bool {
	for _, title := range bookTitleRe.FindAllString(text, -1) {
		if !strings.Contains(evidenceText, title) {
			return true
		}
	}
	return false
}

// Validate is the full acceptance gate for a question: allowed type, core
// fields present, grounded citations, clean verbatim quotes, and the
// type-specific shape rules.
func Validate(q schema.Question, allowedTypes []string) bool {
	qType := strings.ToLower(q.Type)
	if !typeAllowed(qType, allowedTypes) {
		return false
	}
	if q.Question == "" || q.Answer == "" || q.Rationale == "" {
		return false
	}
	if IsMetaQuestion(q.Question) {
		return false
	}
	if len(q.Citations) == 0 {
		return false
	}
	if len(q.EvidenceQuotes) == 0 {
		return false
	}
	for _, quote := range q.EvidenceQuotes {
		text := strings.TrimSpace(quote.Quote)
		n := len([]rune(text))
		if n < 20 || n > 80 {
			return false
		}
		if textutil.AllowedCharRatio(text) < 0.7 {
			return false
		}
		if textutil.IsNoisyLine(text) {
			return false
		}
	}

	switch qType {
	case schema.TypeMCQ:
		if len(q.Choices) != 4 {
			return false
		}
		if HasBannedMCQChoice(q.Choices) {
			return false
		}
		for idx, choice := range q.Choices {
			prefix := fmt.Sprintf("%c ", 'A'+idx)
			if !strings.HasPrefix(choice, prefix) {
				return false
			}
		}
		correct := strings.ToUpper(q.CorrectOption)
		if correct == "" {
			correct = strings.ToUpper(q.Answer)
		}
		if len(correct) != 1 || correct < "A" || correct > "D" {
			return false
		}
		if strings.ToUpper(q.Answer) != correct {
			return false
		}
	case schema.TypeTF:
		if q.Answer != "true" && q.Answer != "false" {
			return false
		}
		if IsQuestionSentence(q.Question) {
			return false
		}
	case schema.TypeShort:
		if lower := strings.ToLower(q.Answer); lower == "true" || lower == "false" {
			return false
		}
	case schema.TypeCalc:
		if len(q.StepByStep) == 0 || q.FinalAnswer == "" {
			return false
		}
	}
	return true
}

func typeAllowed(qType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.EqualFold(t, qType) {
			return true
		}
	}
	return false
}

// EnsureCitations keeps only citations that point into the evidence set,
// defaulting to the first evidence chunk when none survive.
func EnsureCitations(q *schema.Question, evidenceChunks []schema.Chunk) {
	ids := make(map[string]bool, len(evidenceChunks))
	for _, chunk := range evidenceChunks {
		ids[chunk.ChunkID] = true
	}
	var kept []schema.Citation
	for _, c := range q.Citations {
		if ids[c.ChunkID] {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 && len(evidenceChunks) > 0 {
		kept = []schema.Citation{{Page: evidenceChunks[0].Page, ChunkID: evidenceChunks[0].ChunkID}}
	}
	q.Citations = kept
}

// EnsureEvidenceQuotes attaches one extracted verbatim quote, preferring a
// cited chunk over the rest of the evidence.
func EnsureEvidenceQuotes(q *schema.Question, evidenceChunks []schema.Chunk) {
	lookup := evidence.Lookup(evidenceChunks)
	var quotes []schema.EvidenceQuote

	for _, citation := range q.Citations {
		chunk, ok := lookup[citation.ChunkID]
		if !ok {
			continue
		}
		if quote := evidence.ExtractQuote(chunk); quote != "" {
			quotes = append(quotes, schema.EvidenceQuote{Page: chunk.Page, ChunkID: chunk.ChunkID, Quote: quote})
			break
		}
	}
	if len(quotes) == 0 {
		for _, chunk := range evidenceChunks {
			if quote := evidence.ExtractQuote(chunk); quote != "" {
				quotes = append(quotes, schema.EvidenceQuote{Page: chunk.Page, ChunkID: chunk.ChunkID, Quote: quote})
				break
			}
		}
	}
	q.EvidenceQuotes = quotes
}

// EnsureRationaleQuote appends the first evidence quote to the rationale
// when the rationale does not already contain any of them verbatim.
func EnsureRationaleQuote(q *schema.Question) {
	for _, quote := range q.EvidenceQuotes {
		if quote.Quote != "" && strings.Contains(q.Rationale, quote.Quote) {
			return
		}
	}
	if len(q.EvidenceQuotes) > 0 {
		q.Rationale = strings.TrimSpace(fmt.Sprintf("%s（原文：%s）", q.Rationale, q.EvidenceQuotes[0].Quote))
	}
}
