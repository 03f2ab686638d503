package answer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reqanswer/backend/internal/index"
	"github.com/reqanswer/backend/internal/llm"
	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/scoring"
	"github.com/reqanswer/backend/pkg/logger"
)

const (
	insufficientData   = "I don't have enough historical data to answer this question confidently. Please provide more context or add this to your Q&A knowledge base."
	insufficientFormat = "I don't have enough historical data in the '%s' category to answer this question confidently."
	noExamples         = "No similar examples found for comparison."

	// ErrorPrefix starts the answer text of a failed completion.
	ErrorPrefix = "Error generating answer: "
)

// Completer produces text for a prompt. Implementations wrap failures in
// *qa.CompletionError.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Retriever is the part of the index the generator reads from.
type Retriever interface {
	QueryByText(ctx context.Context, query string, k int) ([]index.Hit, error)
	QueryByCategory(ctx context.Context, category string, limit int) ([]qa.QAPair, error)
}

type Config struct {
	NumSources            int
	CategoryLimit         int
	SuggestionSources     int
	MaxTokens             int
	Temperature           float32
	SuggestionMaxTokens   int
	SuggestionTemperature float32
	BatchConcurrency      int
}

func DefaultConfig() Config {
	return Config{
		NumSources:            5,
		CategoryLimit:         3,
		SuggestionSources:     3,
		MaxTokens:             2000,
		Temperature:           0.1,
		SuggestionMaxTokens:   1500,
		SuggestionTemperature: 0.2,
		BatchConcurrency:      1,
	}
}

type Generator struct {
	retriever Retriever
	completer Completer
	scorer    *scoring.Scorer
	cfg       Config
}

func NewGenerator(retriever Retriever, completer Completer, scorer *scoring.Scorer, cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.NumSources <= 0 {
		cfg.NumSources = def.NumSources
	}
	if cfg.CategoryLimit <= 0 {
		cfg.CategoryLimit = def.CategoryLimit
	}
	if cfg.SuggestionSources <= 0 {
		cfg.SuggestionSources = def.SuggestionSources
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.SuggestionMaxTokens <= 0 {
		cfg.SuggestionMaxTokens = def.SuggestionMaxTokens
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}
	if scorer == nil {
		scorer = scoring.NewScorer()
	}

	return &Generator{retriever: retriever, completer: completer, scorer: scorer, cfg: cfg}
}

// GenerateAnswer answers question from the k most similar historical pairs.
// A k of zero uses the configured default. Completion failures are reported
// in the answer text; only retrieval failures return an error.
func (g *Generator) GenerateAnswer(ctx context.Context, question, extra string, k int) (*qa.AnswerResult, error) {
	start := time.Now()
	defer observe("text", start)

	if k <= 0 {
		k = g.cfg.NumSources
	}

	sources, err := g.similar(ctx, question, k)
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		metrics.AnswersTotal.WithLabelValues("text", qa.OutcomeNoSources).Inc()
		logger.Info("No sources found for question", zap.String("question", question))
		return emptyResult(insufficientData), nil
	}

	prompt := buildAnswerPrompt(question, extra, sources)
	return g.complete(ctx, "text", prompt, sources), nil
}

// GenerateAnswerByCategory answers from pairs in category plus the most
// similar pairs overall, deduplicated by id with category pairs first.
func (g *Generator) GenerateAnswerByCategory(ctx context.Context, question, category, extra string) (*qa.AnswerResult, error) {
	start := time.Now()
	defer observe("category", start)

	byCategory, err := g.retriever.QueryByCategory(ctx, category, g.cfg.CategoryLimit)
	if err != nil {
		return nil, err
	}
	similar, err := g.similar(ctx, question, g.cfg.CategoryLimit)
	if err != nil {
		return nil, err
	}

	sources := make([]qa.ScoredPair, 0, len(byCategory)+len(similar))
	seen := make(map[string]bool, cap(sources))
	for _, p := range byCategory {
		if !seen[p.ID] {
			seen[p.ID] = true
			sources = append(sources, g.scorer.ScoreUnranked(question, p))
		}
	}
	for _, s := range similar {
		if !seen[s.ID] {
			seen[s.ID] = true
			sources = append(sources, s)
		}
	}

	if len(sources) == 0 {
		metrics.AnswersTotal.WithLabelValues("category", qa.OutcomeNoSources).Inc()
		return emptyResult(fmt.Sprintf(insufficientFormat, category)), nil
	}

	prompt := buildCategoryPrompt(question, category, extra, sources)
	return g.complete(ctx, "category", prompt, sources), nil
}

// BatchGenerateAnswers answers each question independently. Results keep the
// input order. The first retrieval error cancels the batch.
func (g *Generator) BatchGenerateAnswers(ctx context.Context, questions []string, extra string) ([]*qa.AnswerResult, error) {
	results := make([]*qa.AnswerResult, len(questions))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.BatchConcurrency)

	for i, question := range questions {
		i, question := i, question
		eg.Go(func() error {
			res, err := g.GenerateAnswer(ctx, question, extra, g.cfg.NumSources)
			if err != nil {
				return fmt.Errorf("failed to answer question %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logger.Info("Batch answers generated", zap.Int("count", len(questions)))
	return results, nil
}

// SuggestImprovements compares a hand-written draft with similar historical
// answers and returns the model's suggestions as plain text.
func (g *Generator) SuggestImprovements(ctx context.Context, question, draft string) (string, error) {
	sources, err := g.similar(ctx, question, g.cfg.SuggestionSources)
	if err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return noExamples, nil
	}

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  buildSuggestionPrompt(question, draft, sources),
		MaxTokens:   g.cfg.SuggestionMaxTokens,
		Temperature: llm.Temperature(g.cfg.SuggestionTemperature),
	})
	if err != nil {
		logger.Warn("Suggestion completion failed", zap.Error(err))
		return "Error generating suggestions: " + err.Error(), nil
	}
	return resp.Content, nil
}

func (g *Generator) similar(ctx context.Context, question string, k int) ([]qa.ScoredPair, error) {
	hits, err := g.retriever.QueryByText(ctx, question, k)
	if err != nil {
		return nil, err
	}

	scored := make([]qa.ScoredPair, len(hits))
	for i, h := range hits {
		scored[i] = g.scorer.Score(question, h.Pair, h.Distance)
	}
	return scored, nil
}

func (g *Generator) complete(ctx context.Context, mode, prompt string, sources []qa.ScoredPair) *qa.AnswerResult {
	metrics.SourcesRetrieved.Observe(float64(len(sources)))

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  prompt,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: llm.Temperature(g.cfg.Temperature),
	})
	if err != nil {
		metrics.AnswersTotal.WithLabelValues(mode, qa.OutcomeCompletionFailed).Inc()
		logger.Error("Answer completion failed", zap.String("mode", mode), zap.Error(err))
		return &qa.AnswerResult{
			AnswerText:  ErrorPrefix + err.Error(),
			Sources:     sources,
			GeneratedAt: time.Now().UTC(),
			Outcome:     qa.OutcomeCompletionFailed,
		}
	}

	var semantic, lexical float64
	for _, s := range sources {
		semantic += s.SemanticScore
		lexical += s.LexicalScore
	}
	n := float64(len(sources))
	result := &qa.AnswerResult{
		AnswerText:      resp.Content,
		ConfidenceScore: semantic / n,
		LexicalScore:    lexical / n,
		Sources:         sources,
		GeneratedAt:     time.Now().UTC(),
		Outcome:         qa.OutcomeSuccess,
	}

	metrics.AnswersTotal.WithLabelValues(mode, qa.OutcomeSuccess).Inc()
	metrics.ConfidenceScore.Observe(result.ConfidenceScore)
	logger.Info("Answer generated",
		zap.String("mode", mode),
		zap.Int("sources", len(sources)),
		zap.Float64("confidence", result.ConfidenceScore),
	)
	return result
}

func emptyResult(text string) *qa.AnswerResult {
	return &qa.AnswerResult{
		AnswerText:  text,
		Sources:     []qa.ScoredPair{},
		GeneratedAt: time.Now().UTC(),
		Outcome:     qa.OutcomeNoSources,
	}
}

func observe(mode string, start time.Time) {
	metrics.AnswerDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
