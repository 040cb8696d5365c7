// Package textutil holds the text heuristics shared across the pipeline:
// line normalization, noise detection, token estimation, and sentence
// segmentation for mixed Latin/CJK lecture material.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizeLine collapses runs of whitespace and trims a single line.
func NormalizeLine(line string) string {
	line = strings.ReplaceAll(line, " ", " ")
	return strings.Join(strings.Fields(line), " ")
}

// CleanText collapses all whitespace in a block of text to single spaces.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, " ", " ")
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeLines splits text into normalized, non-empty lines.
func NormalizeLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if n := NormalizeLine(line); n != "" {
			out = append(out, n)
		}
	}
	return out
}

var (
	digitsOnlyRe = regexp.MustCompile(`^\d+$`)
	ruleLineRe   = regexp.MustCompile(`[-_=~]{4,}`)
	bulletRunRe  = regexp.MustCompile(`[*•·]{3,}`)
	controlRe    = regexp.MustCompile("[\x00-\x08\x0b-\x1f]")
)

// IsLowInfoLine reports whether a line carries no useful content: page
// numbers, decorative rules, near-empty or repetitive text.
func IsLowInfoLine(line string) bool {
	if line == "" {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(line))
	if lower == "note" || lower == "notes" || lower == "page" {
		return true
	}
	if digitsOnlyRe.MatchString(line) {
		return true
	}
	runes := []rune(line)
	if len(runes) <= 2 {
		return true
	}
	unique := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		unique[r] = struct{}{}
	}
	if len(runes) > 5 && float64(len(unique))/float64(len(runes)) < 0.2 {
		return true
	}
	alnum := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			alnum++
		}
	}
	if float64(alnum)/float64(len(runes)) < 0.3 {
		return true
	}
	if ruleLineRe.MatchString(line) || bulletRunRe.MatchString(line) {
		return true
	}
	return false
}

// allowedRune reports whether a rune belongs to the expected script mix
// (Latin, digits, CJK, common punctuation). The set is policy, tuned for
// lecture slides mixing Chinese and English.
func allowedRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r >= 0x4e00 && r <= 0x9fff: // CJK unified ideographs
		return true
	case r >= 0x3000 && r <= 0x303f: // CJK punctuation
		return true
	case r >= 0xff00 && r <= 0xffef: // fullwidth forms
		return true
	case unicode.IsSpace(r):
		return true
	}
	switch r {
	case '。', '，', '、', '；', '：', '？', '！',
		'「', '」', '『', '』', '（', '）', '《', '》',
		'(', ')', '"', '\'', '’', '‘', '“', '”',
		'—', '–', '-', '…', '·', '•',
		'.', ',', ';', ':', '?', '!', '%', '/', '+', '=':
		return true
	}
	return false
}

// AllowedCharRatio returns the fraction of runes in the allowed script mix.
// Empty text scores 0.
func AllowedCharRatio(text string) float64 {
	if text == "" {
		return 0
	}
	total, allowed := 0, 0
	for _, r := range text {
		total++
		if allowedRune(r) {
			allowed++
		}
	}
	return float64(allowed) / float64(total)
}

// IsNoisyLine reports whether a line looks like garbled extraction output:
// replacement characters, control bytes, or a poor allowed-character ratio.
func IsNoisyLine(line string) bool {
	if strings.ContainsRune(line, '�') {
		return true
	}
	if controlRe.MatchString(line) {
		return true
	}
	if len([]rune(line)) >= 8 && AllowedCharRatio(line) < 0.6 {
		return true
	}
	return false
}

// EstimateTokens approximates token count as words plus standalone
// punctuation. CJK runs count one token per rune, which keeps budgets honest
// for ideographic text.
func EstimateTokens(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case r >= 0x4e00 && r <= 0x9fff:
			count++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if !inWord {
				count++
				inWord = true
			}
		default:
			count++
			inWord = false
		}
	}
	return count
}

// TrimToTokens truncates text to at most maxTokens estimated tokens.
// Non-positive maxTokens leaves the text untouched.
func TrimToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}
	count := 0
	inWord := false
	var b strings.Builder
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case r >= 0x4e00 && r <= 0x9fff:
			count++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if !inWord {
				count++
				inWord = true
			}
		default:
			count++
			inWord = false
		}
		if count > maxTokens {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// TextHead returns the first maxChars runes of text.
func TextHead(text string, maxChars int) string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}
	return strings.TrimRight(string(runes[:maxChars]), " \t\n")
}

var (
	chapterTitleRe = regexp.MustCompile(`^第\s*\d+\s*[章節篇]`)
	numberedRe     = regexp.MustCompile(`^[0-9]+\.[0-9]+(\.[0-9]+)?\s+.+`)
	bulletTitleRe  = regexp.MustCompile(`^[•▌■◆▍▶►]\s*\S+`)
)

// DetectSectionTitle reports whether a line looks like a section heading.
func DetectSectionTitle(line string) bool {
	if chapterTitleRe.MatchString(line) || numberedRe.MatchString(line) || bulletTitleRe.MatchString(line) {
		return true
	}
	runes := []rune(line)
	if len(runes) >= 3 && len(runes) <= 30 && line == strings.ToUpper(line) && line != strings.ToLower(line) {
		return true
	}
	return false
}

// ContainsCJK reports whether text contains any CJK ideograph.
func ContainsCJK(text string) bool {
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			return true
		}
	}
	return false
}
