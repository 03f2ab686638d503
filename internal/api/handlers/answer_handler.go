package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/pkg/logger"
)

// Answerer is the answer generator as seen by the HTTP layer.
type Answerer interface {
	GenerateAnswer(ctx context.Context, question, extra string, k int) (*qa.AnswerResult, error)
	GenerateAnswerByCategory(ctx context.Context, question, category, extra string) (*qa.AnswerResult, error)
	BatchGenerateAnswers(ctx context.Context, questions []string, extra string) ([]*qa.AnswerResult, error)
	SuggestImprovements(ctx context.Context, question, draft string) (string, error)
}

type AnswerHandler struct {
	answerer Answerer
}

func NewAnswerHandler(answerer Answerer) *AnswerHandler {
	return &AnswerHandler{answerer: answerer}
}

func (h *AnswerHandler) GenerateAnswer(c *fiber.Ctx) error {
	var req struct {
		Question   string `json:"question"`
		Context    string `json:"context"`
		NumSources int    `json:"num_sources"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}
	if req.Question == "" {
		return badRequest(c, "question is required")
	}
	if req.NumSources < 0 || req.NumSources > 50 {
		return badRequest(c, "num_sources must be between 0 and 50")
	}

	result, err := h.answerer.GenerateAnswer(c.Context(), req.Question, req.Context, req.NumSources)
	if err != nil {
		return respondError(c, "Failed to generate answer", err)
	}
	return c.JSON(result)
}

func (h *AnswerHandler) BatchGenerateAnswers(c *fiber.Ctx) error {
	var req struct {
		Questions []string `json:"questions"`
		Context   string   `json:"context"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}
	if len(req.Questions) == 0 {
		return badRequest(c, "questions must not be empty")
	}
	for _, q := range req.Questions {
		if q == "" {
			return badRequest(c, "questions must not contain empty entries")
		}
	}

	results, err := h.answerer.BatchGenerateAnswers(c.Context(), req.Questions, req.Context)
	if err != nil {
		return respondError(c, "Failed to generate answers", err)
	}
	return c.JSON(fiber.Map{"answers": results})
}

func (h *AnswerHandler) GenerateAnswerByCategory(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
		Category string `json:"category"`
		Context  string `json:"context"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}
	if req.Question == "" {
		return badRequest(c, "question is required")
	}
	if !qa.IsCategory(req.Category) {
		return badRequest(c, "unknown category: "+req.Category)
	}

	result, err := h.answerer.GenerateAnswerByCategory(c.Context(), req.Question, req.Category, req.Context)
	if err != nil {
		return respondError(c, "Failed to generate answer", err)
	}
	return c.JSON(result)
}

func (h *AnswerHandler) SuggestImprovements(c *fiber.Ctx) error {
	var req struct {
		Question      string `json:"question"`
		CurrentAnswer string `json:"current_answer"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}
	if req.Question == "" || req.CurrentAnswer == "" {
		return badRequest(c, "question and current_answer are required")
	}

	suggestions, err := h.answerer.SuggestImprovements(c.Context(), req.Question, req.CurrentAnswer)
	if err != nil {
		return respondError(c, "Failed to generate suggestions", err)
	}
	return c.JSON(fiber.Map{"suggestions": suggestions})
}
