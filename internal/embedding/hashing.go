package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Hashing is an offline embedder that hashes words and character trigrams
// into a fixed number of buckets and L2-normalises the counts. Texts that
// share vocabulary or word stems end up with positive cosine similarity.
//
// Pair texts of the form "Question: q\nAnswer: a" are embedded as the unit
// question vector plus answerWeight times the unit answer vector. Querying
// with q alone then has cosine similarity of at least
// 1/sqrt(1+answerWeight^2) (about 0.93) with the pair, whatever the answer.
type Hashing struct {
	dim int
}

const (
	questionLabel = "Question: "
	answerLabel   = "\nAnswer: "
	answerWeight  = 0.4
)

func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 384
	}
	return &Hashing{dim: dim}
}

func (h *Hashing) Dim() int { return h.dim }

func (h *Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	var v []float64
	if question, answer, ok := splitPairText(text); ok {
		v = normalize(h.features(question))
		for i, x := range normalize(h.features(answer)) {
			v[i] += answerWeight * x
		}
	} else {
		v = h.features(text)
	}

	out := make([]float32, h.dim)
	for i, x := range normalize(v) {
		out[i] = float32(x)
	}
	return out, nil
}

func (h *Hashing) features(text string) []float64 {
	v := make([]float64, h.dim)
	for _, word := range tokenize(text) {
		v[h.bucket("w:"+word)] += 1.0
		padded := []rune("#" + word + "#")
		for i := 0; i+3 <= len(padded); i++ {
			v[h.bucket("t:"+string(padded[i:i+3]))] += 0.5
		}
	}
	return v
}

// splitPairText splits the text the index embeds for a pair.
func splitPairText(text string) (question, answer string, ok bool) {
	rest, found := strings.CutPrefix(text, questionLabel)
	if !found {
		return "", "", false
	}
	return strings.Cut(rest, answerLabel)
}

// normalize scales v to unit length in place. A zero vector stays zero.
func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *Hashing) bucket(feature string) int {
	return int(xxhash.Sum64String(feature) % uint64(h.dim))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
