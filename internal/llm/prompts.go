package llm

import (
	"fmt"
	"strings"
)

// Prompt builders for the five pipeline calls. Every prompt demands a single
// JSON object and instructs the model to answer in the language of the
// source material, since lecture decks mix Chinese and English freely.

const mapSummaryPrompt = `[MAP_SUMMARY]
You are a teaching assistant. Summarize a single lecture passage.

Requirements:
- mini_summary: 1-2 sentences in the same language as the passage
- keywords: 2-5 key terms from the passage
- citations: must include this passage's page and chunk_id

Output JSON only:
{
  "mini_summary": "...",
  "keywords": ["...", "..."],
  "citations": [{"page": %d, "chunk_id": "%s"}]
}

Passage info:
page=%d
chunk_id=%s

Passage text:
%s`

// BuildMapSummaryPrompt renders the per-chunk map prompt.
func BuildMapSummaryPrompt(page int, chunkID, chunkText string) string {
	return fmt.Sprintf(mapSummaryPrompt, page, chunkID, page, chunkID, chunkText)
}

const reduceSummaryPrompt = `[REDUCE_SUMMARY]
You are a teaching assistant. Merge the mini summaries below into a study
summary. Do not introduce any information absent from them.

Requirements:
- overview: 2-3 sentences, same language as the source
- sections: %d topic sections, each with a title, a 2-4 sentence summary,
  and 2-4 citations (page + chunk_id) drawn from the mini summaries
- keypoints: 5-8 short points

Output JSON only:
{
  "overview": "...",
  "sections": [
    {"title": "...", "summary": "...", "citations": [{"page": 3, "chunk_id": "p3_c2"}]}
  ],
  "keypoints": ["...", "..."]
}

Mini summaries (with citations):
%s`

// BuildReduceSummaryPrompt renders the reduce prompt over serialized mini
// summaries.
func BuildReduceSummaryPrompt(targetSections int, miniSummariesJSON string) string {
	return fmt.Sprintf(reduceSummaryPrompt, targetSections, miniSummariesJSON)
}

const conceptPrompt = `[CONCEPT_EXTRACT]
You are a teaching assistant. Extract the examinable concepts from the
keypoints and mini summaries below.

Requirements:
- each concept needs citations (page + chunk_id)
- return a "concepts" array with at most %d entries

Output JSON only:
{
  "concepts": [
    {
      "name": "...",
      "description": "...",
      "citations": [{"page": 3, "chunk_id": "p3_c2"}],
      "difficulty": "easy|medium|hard"
    }
  ]
}

Keypoints:
%s

Mini summaries:
%s`

// BuildConceptPrompt renders the concept extraction prompt.
func BuildConceptPrompt(maxConcepts int, keypoints []string, miniSummariesJSON string) string {
	return fmt.Sprintf(conceptPrompt, maxConcepts, "- "+strings.Join(keypoints, "\n- "), miniSummariesJSON)
}

const questionPrompt = `[QUESTION_GENERATION]
You are a teaching assistant. Write one quiz question about the concept
below, grounded ONLY in the evidence passages.

Rules:
- Use only the evidence passages for the question and the answer.
- The question must carry citations (page and chunk_id).
- rationale must include a fragment of the source text plus a 2-3 sentence
  explanation in the language of the source.
- Allowed type: %s only.
- tf answers are "true" or "false"; the statement must NOT read as a question.
- mcq must provide exactly 4 choices prefixed "A ", "B ", "C ", "D ", and
  answer/correct_option is the letter. Never use choices like "all of the
  above" or "none of the above".
- calc must include step_by_step (ordered steps) and final_answer.
- If the evidence is insufficient for this concept, output exactly:
  {"error": "insufficient_evidence"}
- Output JSON only, no extra text.

Output format:
{
  "id": "%s",
  "type": "%s",
  "question": "...",
  "choices": ["A ...", "B ...", "C ...", "D ..."],
  "answer": "true/false" or "B",
  "rationale": "...",
  "citations": [{"page": 3, "chunk_id": "p3_c2"}],
  "difficulty": "easy|medium|hard",
  "concept_tags": ["..."],
  "step_by_step": ["..."],
  "final_answer": "..."
}

Concept:
%s

Evidence passages (use only these):
%s`

// BuildQuestionPrompt renders the question generation prompt for one concept
// and one target type.
func BuildQuestionPrompt(questionID, questionType, conceptJSON, evidenceJSON string) string {
	return fmt.Sprintf(questionPrompt, questionType, questionID, questionType, conceptJSON, evidenceJSON)
}

const verifyPrompt = `[VERIFY_QUESTION]
You are a strict fact checker. Decide whether the question below is fully
supported by the evidence passages.

If supported: supported=true.
If not: supported=false, and provide a revised_question that is fully
supported by the evidence.

Requirements:
- revised_question must use the evidence passages and carry citations.
- Keep the original id and type.
- rationale must include a fragment of the source text plus a 2-3 sentence
  explanation.
- Output JSON only.

Output format:
{
  "supported": true/false,
  "reason": "...",
  "revised_question": null or { ...question object... }
}

Question JSON:
%s

Evidence passages:
%s`

// BuildVerifyPrompt renders the verification prompt.
func BuildVerifyPrompt(questionJSON, evidenceJSON string) string {
	return fmt.Sprintf(verifyPrompt, questionJSON, evidenceJSON)
}
