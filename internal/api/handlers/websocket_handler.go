package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/pkg/logger"
)

// WebSocketHandler streams answers. A "question" message gets its answer
// streamed word by word; a "batch" message gets one "answer" frame per
// question, in input order.
type WebSocketHandler struct {
	answerer Answerer
}

func NewWebSocketHandler(answerer Answerer) *WebSocketHandler {
	return &WebSocketHandler{answerer: answerer}
}

type wsRequest struct {
	Type      string   `json:"type"`
	Question  string   `json:"question"`
	Questions []string `json:"questions"`
	Context   string   `json:"context"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		var err error
		switch msg.Type {
		case "question":
			err = h.streamAnswer(c, msg)
		case "batch":
			err = h.streamBatch(c, msg)
		default:
			h.sendError(c, "unknown message type: "+msg.Type)
			continue
		}
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to generate answer")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, msg wsRequest) error {
	question := strings.TrimSpace(msg.Question)
	if question == "" {
		h.sendError(c, "question is required")
		return nil
	}

	if err := h.send(c, map[string]any{"type": "status", "content": "Generating answer..."}); err != nil {
		return err
	}

	result, err := h.answerer.GenerateAnswer(context.Background(), question, msg.Context, 0)
	if err != nil {
		return err
	}

	words := splitIntoWords(result.AnswerText)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.send(c, map[string]any{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	return h.send(c, map[string]any{
		"type":             "complete",
		"confidence_score": result.ConfidenceScore,
		"fuzzy_score":      result.LexicalScore,
		"sources":          result.Sources,
		"generated_at":     result.GeneratedAt,
	})
}

func (h *WebSocketHandler) streamBatch(c *websocket.Conn, msg wsRequest) error {
	if len(msg.Questions) == 0 {
		h.sendError(c, "questions must not be empty")
		return nil
	}
	for _, q := range msg.Questions {
		if strings.TrimSpace(q) == "" {
			h.sendError(c, "questions must not contain empty entries")
			return nil
		}
	}

	ctx := context.Background()
	for i, q := range msg.Questions {
		result, err := h.answerer.GenerateAnswer(ctx, strings.TrimSpace(q), msg.Context, 0)
		if err != nil {
			return err
		}
		if err := h.send(c, map[string]any{"type": "answer", "index": i, "result": result}); err != nil {
			return err
		}
	}

	return h.send(c, map[string]any{"type": "complete", "count": len(msg.Questions)})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]any) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	if err := c.WriteJSON(map[string]any{"type": "error", "error": errorMsg}); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoWords splits on spaces and keeps newlines as their own tokens.
func splitIntoWords(text string) []string {
	words := []string{}
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch r {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}
