package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/graph"
	"github.com/reqanswer/backend/internal/index"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/scoring"
	"github.com/reqanswer/backend/pkg/logger"
)

const (
	defaultSearchLimit   = 5
	defaultCategoryLimit = 10
	maxLimit             = 100
)

// PairIndex is the similarity index as seen by the HTTP layer.
type PairIndex interface {
	Upsert(ctx context.Context, pairs []qa.QAPair) error
	Update(ctx context.Context, pair qa.QAPair) error
	Delete(ctx context.Context, ids ...string) error
	Get(ctx context.Context, id string) (qa.QAPair, bool, error)
	QueryByText(ctx context.Context, query string, k int) ([]index.Hit, error)
	QueryByCategory(ctx context.Context, category string, limit int) ([]qa.QAPair, error)
	ListCategories(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Graph is the optional provenance graph.
type Graph interface {
	MergePairs(ctx context.Context, pairs []qa.QAPair) error
	DeletePair(ctx context.Context, id string) error
	ClientsForCategory(ctx context.Context, category string) ([]graph.ClientCount, error)
	Clear(ctx context.Context) error
}

type QAHandler struct {
	index  PairIndex
	scorer *scoring.Scorer
	graph  Graph
}

// NewQAHandler builds the pair handler. g may be nil when the graph is disabled.
func NewQAHandler(ix PairIndex, scorer *scoring.Scorer, g Graph) *QAHandler {
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	return &QAHandler{index: ix, scorer: scorer, graph: g}
}

type pairRequest struct {
	QuestionText string            `json:"question_text"`
	AnswerText   string            `json:"answer_text"`
	Client       string            `json:"client"`
	ProjectType  string            `json:"project_type"`
	Metadata     map[string]string `json:"metadata"`
}

func (h *QAHandler) CreatePair(c *fiber.Ctx) error {
	var req pairRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	pair, err := qa.NewPair(req.QuestionText, req.AnswerText)
	if err != nil {
		return respondError(c, "Failed to create pair", err)
	}
	pair.Client = req.Client
	pair.ProjectType = req.ProjectType
	for k, v := range req.Metadata {
		pair.Metadata[k] = v
	}

	if err := h.index.Upsert(c.Context(), []qa.QAPair{pair}); err != nil {
		return respondError(c, "Failed to store pair", err)
	}
	h.mergeGraph(c.Context(), pair)

	return c.Status(fiber.StatusCreated).JSON(pair)
}

func (h *QAHandler) UpdatePair(c *fiber.Ctx) error {
	id := c.Params("id")

	var req pairRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	pair, found, err := h.index.Get(c.Context(), id)
	if err != nil {
		return respondError(c, "Failed to load pair", err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Q&A pair not found"})
	}

	// The category follows the question text; it is never set directly.
	if req.QuestionText != "" {
		pair.QuestionText = strings.TrimSpace(req.QuestionText)
		pair.Category = qa.Categorize(pair.QuestionText)
	}
	if req.AnswerText != "" {
		pair.AnswerText = strings.TrimSpace(req.AnswerText)
	}
	if req.Client != "" {
		pair.Client = req.Client
	}
	if req.ProjectType != "" {
		pair.ProjectType = req.ProjectType
	}
	if pair.Metadata == nil {
		pair.Metadata = map[string]string{}
	}
	for k, v := range req.Metadata {
		pair.Metadata[k] = v
	}
	if err := pair.Validate(); err != nil {
		return respondError(c, "Invalid pair", err)
	}

	if err := h.index.Update(c.Context(), pair); err != nil {
		return respondError(c, "Failed to update pair", err)
	}
	h.mergeGraph(c.Context(), pair)

	return c.JSON(pair)
}

func (h *QAHandler) DeletePair(c *fiber.Ctx) error {
	id := c.Params("id")

	_, found, err := h.index.Get(c.Context(), id)
	if err != nil {
		return respondError(c, "Failed to load pair", err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Q&A pair not found"})
	}

	if err := h.index.Delete(c.Context(), id); err != nil {
		return respondError(c, "Failed to delete pair", err)
	}
	if h.graph != nil {
		if err := h.graph.DeletePair(c.Context(), id); err != nil {
			logger.Warn("Failed to delete pair from graph", zap.String("id", id), zap.Error(err))
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *QAHandler) ClearPairs(c *fiber.Ctx) error {
	if err := h.index.Clear(c.Context()); err != nil {
		return respondError(c, "Failed to clear index", err)
	}
	if h.graph != nil {
		if err := h.graph.Clear(c.Context()); err != nil {
			logger.Warn("Failed to clear graph", zap.Error(err))
		}
	}

	logger.Info("All Q&A pairs cleared")
	return c.JSON(fiber.Map{"message": "All data cleared successfully"})
}

func (h *QAHandler) ListCategories(c *fiber.Ctx) error {
	categories, err := h.index.ListCategories(c.Context())
	if err != nil {
		return respondError(c, "Failed to list categories", err)
	}
	return c.JSON(fiber.Map{"categories": categories})
}

func (h *QAHandler) PairsByCategory(c *fiber.Ctx) error {
	category := c.Params("category")
	if !qa.IsCategory(category) {
		return badRequest(c, "unknown category: "+category)
	}

	limit := c.QueryInt("limit", defaultCategoryLimit)
	if limit <= 0 || limit > maxLimit {
		return badRequest(c, "limit must be between 1 and 100")
	}

	pairs, err := h.index.QueryByCategory(c.Context(), category, limit)
	if err != nil {
		return respondError(c, "Failed to load pairs", err)
	}
	if pairs == nil {
		pairs = []qa.QAPair{}
	}
	return c.JSON(fiber.Map{"qa_pairs": pairs})
}

func (h *QAHandler) Search(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		return badRequest(c, "query is required")
	}

	limit := c.QueryInt("limit", defaultSearchLimit)
	if limit <= 0 || limit > maxLimit {
		return badRequest(c, "limit must be between 1 and 100")
	}

	hits, err := h.index.QueryByText(c.Context(), query, limit)
	if err != nil {
		return respondError(c, "Failed to search pairs", err)
	}

	results := make([]qa.ScoredPair, len(hits))
	for i, hit := range hits {
		results[i] = h.scorer.Score(query, hit.Pair, hit.Distance)
	}
	return c.JSON(fiber.Map{"results": results})
}

func (h *QAHandler) Stats(c *fiber.Ctx) error {
	count, err := h.index.Count(c.Context())
	if err != nil {
		return respondError(c, "Failed to count pairs", err)
	}
	categories, err := h.index.ListCategories(c.Context())
	if err != nil {
		return respondError(c, "Failed to list categories", err)
	}

	return c.JSON(fiber.Map{
		"total_qa_pairs": count,
		"categories":     categories,
		"category_count": len(categories),
	})
}

func (h *QAHandler) CategoryClients(c *fiber.Ctx) error {
	category := c.Params("category")
	if !qa.IsCategory(category) {
		return badRequest(c, "unknown category: "+category)
	}

	clients := []graph.ClientCount{}
	if h.graph != nil {
		found, err := h.graph.ClientsForCategory(c.Context(), category)
		if err != nil {
			return respondError(c, "Failed to query graph", err)
		}
		clients = append(clients, found...)
	}
	return c.JSON(fiber.Map{"category": category, "clients": clients})
}

func (h *QAHandler) mergeGraph(ctx context.Context, pair qa.QAPair) {
	if h.graph == nil {
		return
	}
	if err := h.graph.MergePairs(ctx, []qa.QAPair{pair}); err != nil {
		logger.Warn("Failed to record provenance", zap.String("id", pair.ID), zap.Error(err))
	}
}
