package extraction

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minFieldLength = 10

type match struct {
	question string
	answer   string
}

// textPattern captures a question and an answer. The answer runs lazily up to
// the next question marker or end of text; the marker is not consumed so the
// following record can still match.
type textPattern struct {
	name string
	re   *regexp.Regexp
}

var textPatterns = []textPattern{
	{"q_a", regexp.MustCompile(`(?is)\bQ:\s*(.*?)\s*\bA:\s*(.*?)\s*(?:\bQ:|\z)`)},
	{"question_answer", regexp.MustCompile(`(?is)\bQuestion:?\s*(.*?)\s*\bAnswer:?\s*(.*?)\s*(?:\bQuestion:|\z)`)},
	{"numbered", regexp.MustCompile(`(?is)(?:^|\n)\s*\d+\.\s*(.*?)\s*\bAnswer:?\s*(.*?)\s*(?:\n\s*\d+\.\s|\z)`)},
	{"frage_antwort", regexp.MustCompile(`(?is)\bFrage:?\s*(.*?)\s*\bAntwort:?\s*(.*?)\s*(?:\bFrage:|\z)`)},
}

func (p textPattern) findAll(text string) []match {
	var out []match
	pos := 0
	for pos < len(text) {
		loc := p.re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		out = append(out, match{
			question: strings.TrimSpace(text[pos+loc[2] : pos+loc[3]]),
			answer:   strings.TrimSpace(text[pos+loc[4] : pos+loc[5]]),
		})

		next := pos + loc[5]
		if next <= pos {
			next = pos + loc[1]
		}
		if next <= pos {
			break
		}
		pos = next
	}
	return out
}

func longEnough(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) > minFieldLength
}
