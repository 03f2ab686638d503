package answer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqanswer/backend/internal/embedding"
	"github.com/reqanswer/backend/internal/extraction"
	"github.com/reqanswer/backend/internal/index"
	"github.com/reqanswer/backend/internal/llm"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/vector/memory"
)

type fakeRetriever struct {
	mu         sync.Mutex
	hits       []index.Hit
	byCategory []qa.QAPair
	err        error
	lastK      int
}

func (f *fakeRetriever) QueryByText(_ context.Context, _ string, k int) ([]index.Hit, error) {
	f.mu.Lock()
	f.lastK = k
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeRetriever) QueryByCategory(_ context.Context, category string, limit int) ([]qa.QAPair, error) {
	var out []qa.QAPair
	for _, p := range f.byCategory {
		if p.Category == category && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply}, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func pair(id, q, a, category string) qa.QAPair {
	return qa.QAPair{ID: id, QuestionText: q, AnswerText: a, Category: category}
}

func TestGenerateAnswerNoSources(t *testing.T) {
	completer := &fakeCompleter{reply: "unused"}
	g := NewGenerator(&fakeRetriever{}, completer, nil, DefaultConfig())

	res, err := g.GenerateAnswer(context.Background(), "What is your SLA?", "", 5)
	require.NoError(t, err)

	assert.Equal(t, insufficientData, res.AnswerText)
	assert.Zero(t, res.ConfidenceScore)
	assert.Empty(t, res.Sources)
	assert.Equal(t, qa.OutcomeNoSources, res.Outcome)
	assert.Zero(t, completer.calls())
}

func TestGenerateAnswerSuccess(t *testing.T) {
	retriever := &fakeRetriever{hits: []index.Hit{
		{Pair: pair("1", "What is your SLA?", "99.9% uptime.", qa.CategorySupport), Distance: 0.2},
		{Pair: pair("2", "Do you offer support?", "24/7 support.", qa.CategorySupport), Distance: 0.4},
	}}
	completer := &fakeCompleter{reply: "We guarantee 99.9% uptime."}
	g := NewGenerator(retriever, completer, nil, DefaultConfig())

	res, err := g.GenerateAnswer(context.Background(), "What is your SLA?", "Enterprise tier", 0)
	require.NoError(t, err)

	assert.Equal(t, "We guarantee 99.9% uptime.", res.AnswerText)
	assert.Equal(t, qa.OutcomeSuccess, res.Outcome)
	assert.InDelta(t, 0.7, res.ConfidenceScore, 1e-9)
	assert.Len(t, res.Sources, 2)
	assert.InDelta(t, 1.0, res.Sources[0].LexicalScore, 1e-9)
	assert.Equal(t, 5, retriever.lastK)

	require.Equal(t, 1, completer.calls())
	req := completer.requests[0]
	assert.Equal(t, 2000, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.1, *req.Temperature, 1e-6)
	assert.Contains(t, req.UserPrompt, "Aktuelle Frage: What is your SLA?")
	assert.Contains(t, req.UserPrompt, "Zusätzlicher Kontext: Enterprise tier")
	assert.Contains(t, req.UserPrompt, "Beispiel 2 (Ähnlichkeit: 0.60)")
}

func TestGenerateAnswerCompletionFailureKeepsSources(t *testing.T) {
	retriever := &fakeRetriever{hits: []index.Hit{
		{Pair: pair("1", "What is your SLA?", "99.9% uptime.", qa.CategorySupport), Distance: 0.1},
	}}
	completer := &fakeCompleter{err: &qa.CompletionError{Provider: "openai", Err: errors.New("timeout")}}
	g := NewGenerator(retriever, completer, nil, DefaultConfig())

	res, err := g.GenerateAnswer(context.Background(), "SLA?", "", 5)
	require.NoError(t, err)

	assert.Equal(t, "Error generating answer: openai completion failed: timeout", res.AnswerText)
	assert.Zero(t, res.ConfidenceScore)
	assert.Zero(t, res.LexicalScore)
	assert.Len(t, res.Sources, 1)
	assert.Equal(t, qa.OutcomeCompletionFailed, res.Outcome)
}

func TestGenerateAnswerRetrievalError(t *testing.T) {
	retriever := &fakeRetriever{err: &qa.IndexError{Op: "search", Err: errors.New("disk")}}
	g := NewGenerator(retriever, &fakeCompleter{}, nil, DefaultConfig())

	_, err := g.GenerateAnswer(context.Background(), "SLA?", "", 5)
	var indexErr *qa.IndexError
	assert.ErrorAs(t, err, &indexErr)
}

func TestGenerateAnswerByCategoryDedupes(t *testing.T) {
	shared := pair("1", "What does pricing look like?", "Fixed price.", qa.CategoryPricing)
	retriever := &fakeRetriever{
		byCategory: []qa.QAPair{
			shared,
			pair("2", "Any discounts on cost?", "Volume discounts.", qa.CategoryPricing),
		},
		hits: []index.Hit{
			{Pair: shared, Distance: 0.1},
			{Pair: pair("3", "How is the budget billed?", "Monthly.", qa.CategoryPricing), Distance: 0.3},
		},
	}
	completer := &fakeCompleter{reply: "Pricing answer"}
	g := NewGenerator(retriever, completer, nil, DefaultConfig())

	res, err := g.GenerateAnswerByCategory(context.Background(), "What are your prices?", qa.CategoryPricing, "")
	require.NoError(t, err)

	ids := []string{}
	for _, s := range res.Sources {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Zero(t, res.Sources[0].SemanticScore)
	assert.InDelta(t, 0.7/3, res.ConfidenceScore, 1e-9)

	prompt := completer.requests[0].UserPrompt
	assert.Contains(t, prompt, "specializing in pricing questions")
	assert.Contains(t, prompt, "Example 3 (Category: pricing, Confidence: 0.70)")
}

func TestGenerateAnswerByCategoryEmpty(t *testing.T) {
	completer := &fakeCompleter{}
	g := NewGenerator(&fakeRetriever{}, completer, nil, DefaultConfig())

	res, err := g.GenerateAnswerByCategory(context.Background(), "Anything?", qa.CategoryLegal, "")
	require.NoError(t, err)

	assert.Equal(t, "I don't have enough historical data in the 'legal' category to answer this question confidently.", res.AnswerText)
	assert.Empty(t, res.Sources)
	assert.Zero(t, completer.calls())
}

func TestBatchGenerateAnswersKeepsOrder(t *testing.T) {
	retriever := &fakeRetriever{hits: []index.Hit{
		{Pair: pair("1", "What is your SLA?", "99.9% uptime.", qa.CategorySupport), Distance: 0.2},
	}}
	cfg := DefaultConfig()
	cfg.BatchConcurrency = 4
	g := NewGenerator(retriever, &fakeCompleter{reply: "ok"}, nil, cfg)

	questions := []string{"What is your SLA?", "What is your uptime?", "Who supports us?", "SLA?"}
	results, err := g.BatchGenerateAnswers(context.Background(), questions, "")
	require.NoError(t, err)
	require.Len(t, results, len(questions))

	for i, q := range questions {
		want := g.scorer.Lexical(q, "What is your SLA?")
		assert.InDelta(t, want, results[i].LexicalScore, 1e-9, "question %d", i)
	}
}

func TestBatchGenerateAnswersEmpty(t *testing.T) {
	g := NewGenerator(&fakeRetriever{}, &fakeCompleter{}, nil, DefaultConfig())

	results, err := g.BatchGenerateAnswers(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSuggestImprovements(t *testing.T) {
	retriever := &fakeRetriever{hits: []index.Hit{
		{Pair: pair("1", "What is your SLA?", "99.9% uptime.", qa.CategorySupport), Distance: 0.2},
	}}
	completer := &fakeCompleter{reply: "Mention the uptime figure."}
	g := NewGenerator(retriever, completer, nil, DefaultConfig())

	out, err := g.SuggestImprovements(context.Background(), "What is your SLA?", "We are reliable.")
	require.NoError(t, err)
	assert.Equal(t, "Mention the uptime figure.", out)
	assert.Equal(t, 3, retriever.lastK)

	req := completer.requests[0]
	assert.Equal(t, 1500, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-6)
	assert.Contains(t, req.UserPrompt, "Current Answer:\nWe are reliable.\n")
	assert.Contains(t, req.UserPrompt, "\nExample 1:\nQ: What is your SLA?\nA: 99.9% uptime.\n")
}

func TestSuggestImprovementsNoExamples(t *testing.T) {
	completer := &fakeCompleter{}
	g := NewGenerator(&fakeRetriever{}, completer, nil, DefaultConfig())

	out, err := g.SuggestImprovements(context.Background(), "Q?", "draft")
	require.NoError(t, err)
	assert.Equal(t, "No similar examples found for comparison.", out)
	assert.Zero(t, completer.calls())
}

func TestSuggestImprovementsCompletionFailure(t *testing.T) {
	retriever := &fakeRetriever{hits: []index.Hit{{Pair: pair("1", "Q one here?", "A one here.", qa.CategoryGeneral)}}}
	g := NewGenerator(retriever, &fakeCompleter{err: errors.New("rate limited")}, nil, DefaultConfig())

	out, err := g.SuggestImprovements(context.Background(), "Q?", "draft")
	require.NoError(t, err)
	assert.Equal(t, "Error generating suggestions: rate limited", out)
}

func TestEndToEndGermanPricing(t *testing.T) {
	ctx := context.Background()

	table := extraction.Table{
		Columns: []string{"Frage", "Antwort"},
		Rows: []map[string]string{
			{"Frage": "Welche Preismodelle bieten Sie an?", "Antwort": "Wir bieten Festpreis und Time & Material an."},
		},
	}
	pairs, err := extraction.NewExtractor().FromRows(table, "kunde_a.xlsx")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, qa.CategoryPricing, pairs[0].Category)

	ix := index.New(memory.NewStore(), embedding.NewHashing(256))
	require.NoError(t, ix.Upsert(ctx, pairs))

	completer := &fakeCompleter{reply: "Wir bieten Festpreis- und T&M-Modelle an."}
	g := NewGenerator(ix, completer, nil, DefaultConfig())

	res, err := g.GenerateAnswer(ctx, "Welche Preismodelle bieten Sie an?", "", 5)
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Equal(t, "kunde_a", res.Sources[0].Client)
	assert.Greater(t, res.ConfidenceScore, 0.0)
	assert.InDelta(t, 1.0, res.LexicalScore, 1e-9)
	assert.Equal(t, "Wir bieten Festpreis- und T&M-Modelle an.", res.AnswerText)
	assert.Contains(t, completer.requests[0].UserPrompt, "Kunde: kunde_a")
}

func TestEndToEndParaphrasedPricingQuestion(t *testing.T) {
	ctx := context.Background()

	table := extraction.Table{
		Columns: []string{"Question", "Answer"},
		Rows: []map[string]string{
			{"Question": "Was ist Ihre Preisstruktur?", "Answer": "Wir bieten Festpreis- und Zeit-und-Material-Modelle."},
		},
	}
	pairs, err := extraction.NewExtractor().FromRows(table, "history.xlsx")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, qa.CategoryPricing, pairs[0].Category)

	ix := index.New(memory.NewStore(), embedding.NewHashing(384))
	require.NoError(t, ix.Upsert(ctx, pairs))
	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	completer := &fakeCompleter{reply: "Wir rechnen wahlweise zum Festpreis oder nach Aufwand ab."}
	g := NewGenerator(ix, completer, nil, DefaultConfig())

	res, err := g.GenerateAnswer(ctx, "Wie berechnen Sie Preise?", "", 5)
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Equal(t, pairs[0].ID, res.Sources[0].ID)
	assert.Greater(t, res.Sources[0].SemanticScore, 0.0)
	assert.Greater(t, res.ConfidenceScore, 0.0)
	assert.NotEmpty(t, res.AnswerText)
	assert.Equal(t, 1, completer.calls())
}
