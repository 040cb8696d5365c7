package textutil

import "strings"

// incompleteSuffixes are connectives that mark a sentence as cut off
// mid-thought. Mixed Latin/CJK because source material is.
var incompleteSuffixes = []string{
	" and", " or", " but", " with", " such as", " e.g.", " i.e.", " including",
	"並", "以及", "而且", "且", "並且", "包含", "包括", "例如", "如", "等", "等等", "並將",
}

var danglingSuffixes = []string{
	"(", "（", "：", ":", "，", ",", "、", "；", ";", "-", "—", "…",
}

// SplitSentences segments text into sentences. Semicolons and newlines act
// as sentence breaks; Latin terminators only split at a word boundary so
// decimals and abbreviations survive.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '。', '！', '？', '；', ';', '\n':
			flush()
		case '.', '!', '?':
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				flush()
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return sentences
}

// IsIncompleteSentence reports whether a sentence looks truncated: ends in a
// connective, a dangling opener, or has unbalanced parentheses.
func IsIncompleteSentence(sentence string) bool {
	s := strings.TrimSpace(sentence)
	if s == "" {
		return true
	}
	for _, suffix := range incompleteSuffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	for _, suffix := range danglingSuffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	if strings.Count(s, "（") > strings.Count(s, "）") {
		return true
	}
	if strings.Count(s, "(") > strings.Count(s, ")") {
		return true
	}
	return false
}

// JoinSentences reassembles segmented sentences, using the ideographic full
// stop for CJK sentences and a period otherwise.
func JoinSentences(sentences []string) string {
	var b strings.Builder
	for i, s := range sentences {
		b.WriteString(s)
		if ContainsCJK(s) {
			b.WriteString("。")
		} else {
			b.WriteString(".")
			if i < len(sentences)-1 {
				b.WriteString(" ")
			}
		}
	}
	return b.String()
}

// NormalizeParagraph resegments text into complete sentences, backfills from
// the fallback pool up to minSentences, and caps at maxSentences. Returns ""
// when nothing survives.
func NormalizeParagraph(text string, minSentences, maxSentences int, fallback []string) string {
	var sentences []string
	for _, s := range SplitSentences(text) {
		if !IsIncompleteSentence(s) {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) < minSentences {
		for _, extra := range fallback {
			extra = strings.TrimSpace(extra)
			if extra == "" || IsIncompleteSentence(extra) {
				continue
			}
			if containsString(sentences, extra) {
				continue
			}
			sentences = append(sentences, extra)
			if len(sentences) >= minSentences {
				break
			}
		}
	}
	if len(sentences) > maxSentences {
		sentences = sentences[:maxSentences]
	}
	if len(sentences) == 0 {
		return ""
	}
	return JoinSentences(sentences)
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
