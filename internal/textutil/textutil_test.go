package textutil

import (
	"strings"
	"testing"
)

func TestNormalizeLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello   world  ", "hello world"},
		{"tab\tseparated\twords", "tab separated words"},
		{"non breaking space", "non breaking space"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLine(tt.in); got != tt.want {
			t.Errorf("NormalizeLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLines_DropsEmpty(t *testing.T) {
	got := NormalizeLines("first line\n\n   \nsecond  line\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(got), got)
	}
	if got[0] != "first line" || got[1] != "second line" {
		t.Errorf("unexpected lines: %v", got)
	}
}

func TestIsLowInfoLine(t *testing.T) {
	lowInfo := []string{
		"",
		"42",
		"ab",
		"Note",
		"NOTES",
		"----------",
		"••••••",
		"aaaaaaaaaaaa",
		"!!! ??? ***",
	}
	for _, line := range lowInfo {
		if !IsLowInfoLine(line) {
			t.Errorf("expected %q to be low-info", line)
		}
	}

	useful := []string{
		"Gradient descent updates weights iteratively",
		"梯度下降法是一種最佳化演算法",
		"3.2 Loss functions overview",
	}
	for _, line := range useful {
		if IsLowInfoLine(line) {
			t.Errorf("expected %q to be kept", line)
		}
	}
}

func TestAllowedCharRatio(t *testing.T) {
	if got := AllowedCharRatio(""); got != 0 {
		t.Errorf("empty text ratio = %v, want 0", got)
	}
	if got := AllowedCharRatio("plain english text 123"); got != 1.0 {
		t.Errorf("clean text ratio = %v, want 1.0", got)
	}
	if got := AllowedCharRatio("神經網路與深度學習。"); got != 1.0 {
		t.Errorf("CJK text ratio = %v, want 1.0", got)
	}
	// Half the runes come from an unexpected script.
	mixed := "abcd☃☃☃☃"
	if got := AllowedCharRatio(mixed); got != 0.5 {
		t.Errorf("mixed text ratio = %v, want 0.5", got)
	}
}

func TestIsNoisyLine(t *testing.T) {
	noisy := []string{
		"text with � replacement",
		"bell\x07character",
		"☃☃☃☃☃☃☃☃☃☃☃☃", // long run outside the allowed set
	}
	for _, line := range noisy {
		if !IsNoisyLine(line) {
			t.Errorf("expected %q to be noisy", line)
		}
	}

	// Short lines never trip the ratio check.
	if IsNoisyLine("☃☃") {
		t.Error("short line should not be flagged by ratio alone")
	}
	if IsNoisyLine("類神經網路 neural networks") {
		t.Error("clean mixed-script line flagged as noisy")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one two three", 3},
		{"hello, world", 3}, // comma counts as a token
		{"深度學習", 4},         // one token per ideograph
		{"深度 learning", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTrimToTokens(t *testing.T) {
	text := "alpha beta gamma delta"
	got := TrimToTokens(text, 2)
	if got != "alpha beta" {
		t.Errorf("TrimToTokens = %q, want %q", got, "alpha beta")
	}
	if TrimToTokens(text, 0) != text {
		t.Error("non-positive budget should leave text untouched")
	}
	if TrimToTokens(text, 100) != text {
		t.Error("budget above estimate should leave text untouched")
	}

	cjk := "一二三四五"
	if got := TrimToTokens(cjk, 3); got != "一二三" {
		t.Errorf("CJK trim = %q, want %q", got, "一二三")
	}
}

func TestTextHead(t *testing.T) {
	if got := TextHead("abcdef", 3); got != "abc" {
		t.Errorf("TextHead = %q, want %q", got, "abc")
	}
	if got := TextHead("abc", 10); got != "abc" {
		t.Errorf("TextHead under limit = %q, want %q", got, "abc")
	}
	if got := TextHead("ab cdef", 3); got != "ab" {
		t.Errorf("TextHead should trim trailing space, got %q", got)
	}
	if got := TextHead("中文字元測試", 2); got != "中文" {
		t.Errorf("TextHead runes = %q, want %q", got, "中文")
	}
}

func TestDetectSectionTitle(t *testing.T) {
	titles := []string{
		"第 3 章 神經網路",
		"2.1 Activation functions",
		"• Overview",
		"INTRODUCTION",
	}
	for _, line := range titles {
		if !DetectSectionTitle(line) {
			t.Errorf("expected %q to be a section title", line)
		}
	}

	body := []string{
		"the model minimizes the loss over the training set",
		"ab",
		strings.Repeat("A", 40), // too long for the all-caps rule
	}
	for _, line := range body {
		if DetectSectionTitle(line) {
			t.Errorf("expected %q not to be a section title", line)
		}
	}
}

func TestContainsCJK(t *testing.T) {
	if !ContainsCJK("mixed 中文 text") {
		t.Error("expected CJK to be detected")
	}
	if ContainsCJK("latin only") {
		t.Error("expected no CJK in latin text")
	}
}
