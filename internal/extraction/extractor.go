package extraction

import (
	"path/filepath"
	"strings"

	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/pkg/logger"
	"go.uber.org/zap"
)

var (
	questionKeywords = []string{"question", "requirement", "query", "q", "frage", "anfrage", "abfrage", "anforderung"}
	answerKeywords   = []string{"answer", "response", "reply", "a", "antwort", "antworten", "lösung", "loesung"}
)

// Table is tabular input as produced by the spreadsheet and CSV readers.
// Columns keeps header order; each row maps column name to cell value.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// FromRows turns a table into pairs. The returned error is a diagnostic only:
// it is set when nothing could be extracted, and pairs is then empty.
func (e *Extractor) FromRows(table Table, source string) ([]qa.QAPair, error) {
	qCol, aCol := findColumns(table.Columns)
	if qCol == "" || aCol == "" {
		return nil, &qa.ExtractionError{Source: source, Reason: "no question/answer columns found"}
	}

	var pairs []qa.QAPair
	skipped := 0
	for _, row := range table.Rows {
		pair, err := newPair(row[qCol], row[aCol], source)
		if err != nil {
			skipped++
			continue
		}
		pairs = append(pairs, pair)
	}

	if skipped > 0 {
		logger.Debug("skipped incomplete rows",
			zap.String("source", source),
			zap.Int("skipped", skipped),
		)
	}
	if len(pairs) == 0 {
		return nil, &qa.ExtractionError{Source: source, Reason: "no complete rows"}
	}
	return pairs, nil
}

// FromText runs every freeform pattern over text and keeps all candidates.
func (e *Extractor) FromText(text, source string) ([]qa.QAPair, error) {
	var pairs []qa.QAPair
	for _, p := range textPatterns {
		for _, m := range p.findAll(text) {
			if !longEnough(m.question) || !longEnough(m.answer) {
				continue
			}
			pair, err := newPair(m.question, m.answer, source)
			if err != nil {
				continue
			}
			pairs = append(pairs, pair)
		}
	}

	if len(pairs) == 0 {
		return nil, &qa.ExtractionError{Source: source, Reason: "no question/answer patterns matched"}
	}
	return pairs, nil
}

// findColumns returns the first question column and the first answer column
// that is not the question column.
func findColumns(columns []string) (string, string) {
	var qCol string
	for _, c := range columns {
		if containsAny(strings.ToLower(c), questionKeywords) {
			qCol = c
			break
		}
	}

	var aCol string
	for _, c := range columns {
		if c == qCol {
			continue
		}
		if containsAny(strings.ToLower(c), answerKeywords) {
			aCol = c
			break
		}
	}
	return qCol, aCol
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func newPair(question, answer, source string) (qa.QAPair, error) {
	pair, err := qa.NewPair(question, answer)
	if err != nil {
		return qa.QAPair{}, err
	}
	pair.Client = sourceStem(source)
	if source != "" {
		pair.Metadata["source_file"] = source
	}
	return pair, nil
}

func sourceStem(source string) string {
	base := filepath.Base(source)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
