package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqanswer/backend/internal/vector"
)

func TestHashingDeterministicAndNormalised(t *testing.T) {
	h := NewHashing(128)
	ctx := context.Background()

	a, err := h.Embed(ctx, "Was ist Ihre Preisstruktur?")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "Was ist Ihre Preisstruktur?")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashingSharedStemsAreClose(t *testing.T) {
	h := NewHashing(256)
	ctx := context.Background()

	doc, _ := h.Embed(ctx, "Question: Was ist Ihre Preisstruktur?\nAnswer: Wir bieten Festpreis- und Zeit-und-Material-Modelle.")
	query, _ := h.Embed(ctx, "Wie berechnen Sie Preise?")
	unrelated, _ := h.Embed(ctx, "")

	assert.Less(t, vector.CosineDistance(doc, query), 1.0)
	assert.InDelta(t, 1.0, vector.CosineDistance(doc, unrelated), 1e-9)
}

func TestHashingPairTextStaysCloseToQuestion(t *testing.T) {
	h := NewHashing(512)
	ctx := context.Background()
	question := "Welche Verfügbarkeit garantieren Sie im Betrieb?"

	answers := []string{
		"99,9 %.",
		strings.Repeat("Der Betrieb erfolgt redundant mit Monitoring rund um die Uhr und definierten Eskalationsstufen. ", 20),
	}
	query, err := h.Embed(ctx, question)
	require.NoError(t, err)

	for _, a := range answers {
		doc, err := h.Embed(ctx, "Question: "+question+"\nAnswer: "+a)
		require.NoError(t, err)
		assert.Greater(t, 1-vector.CosineDistance(doc, query), 0.9)
	}
}

func TestSplitPairText(t *testing.T) {
	q, a, ok := splitPairText("Question: Wann?\nAnswer: Im Mai.")
	require.True(t, ok)
	assert.Equal(t, "Wann?", q)
	assert.Equal(t, "Im Mai.", a)

	_, _, ok = splitPairText("Wann liefern Sie?")
	assert.False(t, ok)
}

type countingEmbedder struct {
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("provider down")
	}
	return []float32{float32(len(text))}, nil
}

type mapCache struct {
	data    map[string][]float32
	readErr error
}

func (m *mapCache) GetEmbedding(_ context.Context, key string) ([]float32, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) SetEmbedding(_ context.Context, key string, v []float32) error {
	m.data[key] = v
	return nil
}

func TestCachedEmbedHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCached(inner, &mapCache{data: map[string][]float32{}}, "test-model")
	ctx := context.Background()

	v1, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedBatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCached(inner, &mapCache{data: map[string][]float32{}}, "test-model")
	ctx := context.Background()

	_, err := c.Embed(ctx, "bb")
	require.NoError(t, err)

	out, err := c.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, out)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedFallsThroughOnCacheError(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCached(inner, &mapCache{data: map[string][]float32{}, readErr: errors.New("redis down")}, "m")

	v, err := c.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v)
}

func TestCachedPropagatesEmbedderError(t *testing.T) {
	c := NewCached(&countingEmbedder{fail: true}, &mapCache{data: map[string][]float32{}}, "m")
	_, err := c.Embed(context.Background(), "abc")
	assert.Error(t, err)
}
