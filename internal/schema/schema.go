// Package schema defines the canonical entities produced by the quiz
// generation pipeline, plus the normalization boundary that maps raw
// generator JSON into those shapes.
package schema

// Page is a segmented source page as produced by an external ingestion stage.
type Page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Chunk is a retrievable unit of source text with page/section provenance.
type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	Page         int    `json:"page"`
	SectionTitle string `json:"section_title,omitempty"`
	Text         string `json:"text"`
}

// Citation points at a source chunk.
type Citation struct {
	Page    int    `json:"page"`
	ChunkID string `json:"chunk_id"`
}

// EvidenceQuote is a verbatim excerpt from a cited chunk.
type EvidenceQuote struct {
	Page    int    `json:"page"`
	ChunkID string `json:"chunk_id"`
	Quote   string `json:"quote"`
}

// MiniSummary is the per-chunk map-phase summary.
type MiniSummary struct {
	Page        int        `json:"page"`
	ChunkID     string     `json:"chunk_id"`
	MiniSummary string     `json:"mini_summary"`
	Keywords    []string   `json:"keywords"`
	Citations   []Citation `json:"citations"`
}

// Concept is an examinable concept derived from the summary phase.
type Concept struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Citations   []Citation `json:"citations"`
	Difficulty  string     `json:"difficulty"`
}

// SummarySection is one topic section of the study summary.
type SummarySection struct {
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Citations []Citation `json:"citations"`
}

// SummaryBlock is the full study summary: overview, sections, keypoints.
type SummaryBlock struct {
	Overview  string           `json:"overview"`
	Sections  []SummarySection `json:"sections"`
	Keypoints []string         `json:"keypoints"`
}

// Question types.
const (
	TypeTF    = "tf"
	TypeMCQ   = "mcq"
	TypeShort = "short"
	TypeCalc  = "calc"
)

// KnownType reports whether t is a supported question type.
func KnownType(t string) bool {
	switch t {
	case TypeTF, TypeMCQ, TypeShort, TypeCalc:
		return true
	}
	return false
}

// Question is a generated quiz question. Choices/CorrectOption are only set
// for mcq; StepByStep/FinalAnswer only for calc.
type Question struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Question       string          `json:"question"`
	Choices        []string        `json:"choices,omitempty"`
	Answer         string          `json:"answer"`
	CorrectOption  string          `json:"correct_option,omitempty"`
	Rationale      string          `json:"rationale"`
	Citations      []Citation      `json:"citations"`
	EvidenceQuotes []EvidenceQuote `json:"evidence_quotes"`
	Difficulty     string          `json:"difficulty"`
	ConceptTags    []string        `json:"concept_tags"`
	StepByStep     []string        `json:"step_by_step,omitempty"`
	FinalAnswer    string          `json:"final_answer,omitempty"`
}

// QuizOutput is the terminal artifact returned by the pipeline.
type QuizOutput struct {
	Summary   SummaryBlock `json:"summary"`
	Questions []Question   `json:"questions"`
}
