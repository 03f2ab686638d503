package qa

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// missingValue is the placeholder spreadsheets and CSV exports use for an empty cell.
const missingValue = "nan"

// QAPair is one historical question/answer record.
type QAPair struct {
	ID           string            `json:"question_id"`
	QuestionText string            `json:"question_text"`
	AnswerText   string            `json:"answer_text"`
	Category     string            `json:"category"`
	Client       string            `json:"client,omitempty"`
	ProjectType  string            `json:"project_type,omitempty"`
	CreatedAt    time.Time         `json:"date"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ScoredPair is a pair as returned by a query, with per-query scores attached.
type ScoredPair struct {
	QAPair
	SemanticScore float64 `json:"confidence_score"`
	LexicalScore  float64 `json:"fuzzy_score"`
}

// Generation outcomes, also used as metric label values.
const (
	OutcomeSuccess          = "success"
	OutcomeNoSources        = "no_sources"
	OutcomeCompletionFailed = "completion_failed"
)

// AnswerResult is the outcome of a generation request. It is never persisted.
type AnswerResult struct {
	AnswerText      string       `json:"answer"`
	ConfidenceScore float64      `json:"confidence_score"`
	LexicalScore    float64      `json:"fuzzy_score"`
	Sources         []ScoredPair `json:"sources"`
	GeneratedAt     time.Time    `json:"generated_at"`
	Outcome         string       `json:"-"`
}

// NewPair validates question and answer and returns a pair with a fresh id,
// a keyword-derived category and the current time.
func NewPair(question, answer string) (QAPair, error) {
	p := QAPair{
		ID:           uuid.NewString(),
		QuestionText: strings.TrimSpace(question),
		AnswerText:   strings.TrimSpace(answer),
		CreatedAt:    time.Now().UTC(),
		Metadata:     map[string]string{},
	}
	if err := p.Validate(); err != nil {
		return QAPair{}, err
	}
	p.Category = Categorize(p.QuestionText)
	return p, nil
}

// Validate rejects pairs that must never reach the index.
func (p QAPair) Validate() error {
	if p.ID == "" {
		return &ValidationError{Field: "question_id", Reason: "must not be empty"}
	}
	if IsBlank(p.QuestionText) {
		return &ValidationError{Field: "question_text", Reason: "must not be empty"}
	}
	if IsBlank(p.AnswerText) {
		return &ValidationError{Field: "answer_text", Reason: "must not be empty"}
	}
	if p.Category != "" && !IsCategory(p.Category) {
		return &ValidationError{Field: "category", Reason: "unknown category " + p.Category}
	}
	return nil
}

// IsBlank reports whether s is empty, whitespace or the missing-value placeholder.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, missingValue)
}
