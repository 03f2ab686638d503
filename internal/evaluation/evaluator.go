package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/index"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/scoring"
	"github.com/reqanswer/backend/internal/storage/models"
	"github.com/reqanswer/backend/internal/vector"
	"github.com/reqanswer/backend/pkg/logger"
)

// Answerer is the part of the answer generator the evaluator drives.
type Answerer interface {
	GenerateAnswer(ctx context.Context, question, extra string, k int) (*qa.AnswerResult, error)
	GenerateAnswerByCategory(ctx context.Context, question, category, extra string) (*qa.AnswerResult, error)
}

// RunStore persists evaluation summaries.
type RunStore interface {
	SaveEvaluation(ctx context.Context, run *models.EvaluationRun) error
}

type Dataset struct {
	Name  string        `json:"name"`
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer"`
	Category       string `json:"category,omitempty"`
	Context        string `json:"context,omitempty"`
}

// ItemResult scores one generated answer against its expected answer.
type ItemResult struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Similarity float64 `json:"similarity"`
	Lexical    float64 `json:"lexical"`
	Confidence float64 `json:"confidence"`
	Outcome    string  `json:"outcome"`
}

type Report struct {
	Dataset          string       `json:"dataset"`
	TotalQuestions   int          `json:"total_questions"`
	MeanSimilarity   float64      `json:"mean_similarity"`
	MeanLexical      float64      `json:"mean_lexical"`
	MeanConfidence   float64      `json:"mean_confidence"`
	NoSourcesAnswers int          `json:"no_sources_answers"`
	FailedAnswers    int          `json:"failed_answers"`
	Items            []ItemResult `json:"items"`
}

const (
	outcomeAnswered  = "answered"
	outcomeNoSources = "no_sources"
	outcomeFailed    = "failed"
)

type Evaluator struct {
	answerer Answerer
	embedder index.Embedder
	runs     RunStore
}

// NewEvaluator builds an evaluator. runs may be nil.
func NewEvaluator(answerer Answerer, embedder index.Embedder, runs RunStore) *Evaluator {
	return &Evaluator{answerer: answerer, embedder: embedder, runs: runs}
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	for i, item := range dataset.Items {
		if qa.IsBlank(item.Question) || qa.IsBlank(item.ExpectedAnswer) {
			return nil, &qa.ValidationError{Field: fmt.Sprintf("items[%d]", i), Reason: "question and expected_answer are required"}
		}
	}
	return &dataset, nil
}

// Run answers every dataset question and compares the answer with the
// expected one. Means cover answered items only.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.String("dataset", dataset.Name), zap.Int("items", len(dataset.Items)))

	report := &Report{Dataset: dataset.Name, TotalQuestions: len(dataset.Items)}
	var totalSimilarity, totalLexical, totalConfidence float64
	answered := 0

	for i, item := range dataset.Items {
		result, err := e.evaluateItem(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate item %d: %w", i+1, err)
		}
		report.Items = append(report.Items, *result)

		switch result.Outcome {
		case outcomeNoSources:
			report.NoSourcesAnswers++
		case outcomeFailed:
			report.FailedAnswers++
		default:
			answered++
			totalSimilarity += result.Similarity
			totalLexical += result.Lexical
			totalConfidence += result.Confidence
		}
	}

	if answered > 0 {
		report.MeanSimilarity = totalSimilarity / float64(answered)
		report.MeanLexical = totalLexical / float64(answered)
		report.MeanConfidence = totalConfidence / float64(answered)
	}

	if e.runs != nil {
		run := &models.EvaluationRun{
			Dataset:          report.Dataset,
			Questions:        report.TotalQuestions,
			MeanSimilarity:   report.MeanSimilarity,
			MeanLexical:      report.MeanLexical,
			MeanConfidence:   report.MeanConfidence,
			NoSourcesAnswers: report.NoSourcesAnswers,
			FailedAnswers:    report.FailedAnswers,
			CreatedAt:        time.Now().UTC(),
		}
		if err := e.runs.SaveEvaluation(ctx, run); err != nil {
			logger.Warn("Failed to save evaluation run", zap.Error(err))
		}
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Float64("mean_similarity", report.MeanSimilarity),
		zap.Int("no_sources", report.NoSourcesAnswers),
		zap.Int("failed", report.FailedAnswers),
	)
	return report, nil
}

func (e *Evaluator) evaluateItem(ctx context.Context, item DatasetItem) (*ItemResult, error) {
	var (
		res *qa.AnswerResult
		err error
	)
	if item.Category != "" {
		res, err = e.answerer.GenerateAnswerByCategory(ctx, item.Question, item.Category, item.Context)
	} else {
		res, err = e.answerer.GenerateAnswer(ctx, item.Question, item.Context, 0)
	}
	if err != nil {
		return nil, err
	}

	out := &ItemResult{Question: item.Question, Answer: res.AnswerText, Confidence: res.ConfidenceScore}
	switch {
	case res.Outcome == qa.OutcomeCompletionFailed:
		out.Outcome = outcomeFailed
		return out, nil
	case res.Outcome == qa.OutcomeNoSources || len(res.Sources) == 0:
		out.Outcome = outcomeNoSources
		return out, nil
	}

	out.Outcome = outcomeAnswered
	out.Lexical = scoring.Lexical(res.AnswerText, item.ExpectedAnswer)

	similarity, err := e.similarity(ctx, res.AnswerText, item.ExpectedAnswer)
	if err != nil {
		logger.Warn("Failed to calculate cosine similarity", zap.Error(err))
	}
	out.Similarity = similarity
	return out, nil
}

func (e *Evaluator) similarity(ctx context.Context, text1, text2 string) (float64, error) {
	emb1, err := e.embedder.Embed(ctx, text1)
	if err != nil {
		return 0, err
	}
	emb2, err := e.embedder.Embed(ctx, text2)
	if err != nil {
		return 0, err
	}
	return 1 - vector.CosineDistance(emb1, emb2), nil
}

func GenerateReport(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Dataset: %s
Total Questions: %d

Outcomes:
- Answered: %d
- No sources: %d
- Failed: %d

Mean Scores (answered only):
- Embedding similarity: %.3f
- Lexical ratio: %.3f
- Confidence: %.3f
`,
		report.Dataset,
		report.TotalQuestions,
		report.TotalQuestions-report.NoSourcesAnswers-report.FailedAnswers,
		report.NoSourcesAnswers,
		report.FailedAnswers,
		report.MeanSimilarity,
		report.MeanLexical,
		report.MeanConfidence,
	)
}
