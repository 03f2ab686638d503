package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/ingestion"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/storage/models"
	"github.com/reqanswer/backend/pkg/logger"
)

// FileProcessor ingests uploaded files.
type FileProcessor interface {
	ProcessFile(ctx context.Context, name string, content []byte) (ingestion.Result, error)
}

// IngestionLog lists recent ingestion runs.
type IngestionLog interface {
	ListIngestions(ctx context.Context, limit int) ([]models.IngestionRun, error)
}

type DocumentHandler struct {
	processor FileProcessor
	runs      IngestionLog
}

func NewDocumentHandler(processor FileProcessor, runs IngestionLog) *DocumentHandler {
	return &DocumentHandler{processor: processor, runs: runs}
}

// UploadDocuments ingests every file of the multipart field "files". The
// request is rejected before any processing if one of them has an
// unsupported extension.
func (h *DocumentHandler) UploadDocuments(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		logger.Error("Failed to parse multipart form", zap.Error(err))
		return badRequest(c, "Invalid multipart form")
	}

	files := form.File["files"]
	if len(files) == 0 {
		return badRequest(c, "no files uploaded")
	}
	for _, fh := range files {
		if !ingestion.Supported(fh.Filename) {
			return badRequest(c, fmt.Sprintf("%s: %s", qa.ErrUnsupportedFormat, fh.Filename))
		}
	}

	results := make([]ingestion.Result, 0, len(files))
	for _, fh := range files {
		content, err := readUpload(fh)
		if err != nil {
			results = append(results, ingestion.Result{FileName: fh.Filename, Status: "error: " + err.Error()})
			continue
		}

		result, err := h.processor.ProcessFile(c.Context(), fh.Filename, content)
		if err != nil {
			return respondError(c, "Failed to process file", err)
		}
		results = append(results, result)
	}

	return c.JSON(fiber.Map{"results": results})
}

func (h *DocumentHandler) ListIngestions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return badRequest(c, "limit must be between 1 and 500")
	}

	runs, err := h.runs.ListIngestions(c.Context(), limit)
	if err != nil {
		return respondError(c, "Failed to list ingestions", err)
	}

	out := make([]fiber.Map, len(runs))
	for i, r := range runs {
		out[i] = fiber.Map{
			"id":                 r.ID,
			"filename":           r.FileName,
			"status":             r.Status,
			"qa_pairs_extracted": r.PairsExtracted,
			"processing_time":    r.ProcessingTime.Seconds(),
			"created_at":         r.CreatedAt,
		}
	}
	return c.JSON(fiber.Map{"ingestions": out})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return content, nil
}
