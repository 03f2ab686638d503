package validation

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxQuestionLength   int
	MaxBatchSize        int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// textFields are the request fields that carry user text.
var textFields = []string{"question", "context", "current_answer", "question_text", "answer_text", "category"}

// Middleware rejects bodies of unexpected content types and, for JSON
// answer and pair requests, enforces text limits and strips NUL bytes
// before the handler sees the body.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 5000
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = 100
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		path := c.Path()
		if !strings.Contains(path, "/answers") && !strings.Contains(path, "/qa-pairs") {
			return c.Next()
		}
		if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
			return c.Next()
		}

		var req map[string]any
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		for _, field := range textFields {
			if s, ok := req[field].(string); ok {
				if utf8.RuneCountInString(s) > cfg.MaxQuestionLength {
					return tooLong(c, cfg, field)
				}
				req[field] = sanitizeString(s)
			}
		}

		if list, ok := req["questions"].([]any); ok {
			if len(list) > cfg.MaxBatchSize {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Too many questions in batch",
				})
			}
			for i, item := range list {
				if s, ok := item.(string); ok {
					if utf8.RuneCountInString(s) > cfg.MaxQuestionLength {
						return tooLong(c, cfg, "questions")
					}
					list[i] = sanitizeString(s)
				}
			}
		}

		body, err := json.Marshal(req)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}
		c.Request().SetBody(body)

		return c.Next()
	}
}

func tooLong(c *fiber.Ctx, cfg Config, field string) error {
	cfg.Logger.Warn("Request field too long",
		zap.String("ip", c.IP()),
		zap.String("field", field),
		zap.String("path", c.Path()),
	)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": field + " exceeds maximum length",
	})
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
