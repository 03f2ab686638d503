package scoring

import (
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"github.com/reqanswer/backend/internal/qa"
)

// Semantic maps a cosine distance to a confidence in [0,1].
func Semantic(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Lexical is the Indel-normalised similarity of a and b, 2*LCS/(|a|+|b|),
// measured in runes and case-sensitive.
func Lexical(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	return float64(2*edlib.LCS(a, b)) / float64(total)
}

// Scorer attaches semantic and lexical scores to retrieved pairs. Either
// function can be replaced independently.
type Scorer struct {
	Semantic func(distance float64) float64
	Lexical  func(query, question string) float64
}

func NewScorer() *Scorer {
	return &Scorer{Semantic: Semantic, Lexical: Lexical}
}

func (s *Scorer) Score(query string, pair qa.QAPair, distance float64) qa.ScoredPair {
	return qa.ScoredPair{
		QAPair:        pair,
		SemanticScore: s.Semantic(distance),
		LexicalScore:  s.Lexical(query, pair.QuestionText),
	}
}

// ScoreUnranked scores a pair that was found by filter rather than by
// similarity, so it has no distance and a semantic score of zero.
func (s *Scorer) ScoreUnranked(query string, pair qa.QAPair) qa.ScoredPair {
	return qa.ScoredPair{
		QAPair:       pair,
		LexicalScore: s.Lexical(query, pair.QuestionText),
	}
}
