package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/extraction"
	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/storage/models"
	"github.com/reqanswer/backend/pkg/logger"
)

const (
	StatusSuccess   = "success"
	StatusNoQAPairs = "no_qa_pairs_found"
	statusError     = "error"

	defaultMaxFileSize = 50 << 20
)

// Indexer receives extracted pairs.
type Indexer interface {
	Upsert(ctx context.Context, pairs []qa.QAPair) error
}

// GraphWriter records provenance for indexed pairs. Failures are logged,
// not reported, since the graph is optional.
type GraphWriter interface {
	MergePairs(ctx context.Context, pairs []qa.QAPair) error
}

// RunLog persists one entry per processed file.
type RunLog interface {
	RecordIngestion(ctx context.Context, run *models.IngestionRun) error
}

// Result is the outcome of processing one file.
type Result struct {
	FileName       string  `json:"filename"`
	PairsExtracted int     `json:"qa_pairs_extracted"`
	ProcessingTime float64 `json:"processing_time"`
	Status         string  `json:"status"`
}

type Processor struct {
	extractor   *extraction.Extractor
	indexer     Indexer
	graph       GraphWriter
	runs        RunLog
	maxFileSize int64
}

// NewProcessor builds a processor. graph and runs may be nil.
func NewProcessor(indexer Indexer, graph GraphWriter, runs RunLog, maxFileSize int64) *Processor {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &Processor{
		extractor:   extraction.NewExtractor(),
		indexer:     indexer,
		graph:       graph,
		runs:        runs,
		maxFileSize: maxFileSize,
	}
}

// ProcessFile reads, extracts and indexes one file. The only error returned
// is qa.ErrUnsupportedFormat; every other failure is reported in the status.
func (p *Processor) ProcessFile(ctx context.Context, name string, content []byte) (Result, error) {
	read, err := readerFor(name)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	logger.Info("Processing file", zap.String("file", name), zap.Int("bytes", len(content)))

	pairs, err := p.extract(read, name, content)
	if err == nil && len(pairs) > 0 {
		err = p.indexer.Upsert(ctx, pairs)
	}

	result := Result{FileName: name, ProcessingTime: time.Since(start).Seconds()}
	var extractErr *qa.ExtractionError
	switch {
	case errors.As(err, &extractErr):
		result.Status = StatusNoQAPairs
		logger.Info("No Q&A pairs found", zap.String("file", name), zap.String("reason", extractErr.Reason))
	case err != nil:
		result.Status = fmt.Sprintf("%s: %v", statusError, err)
		logger.Error("Failed to process file", zap.String("file", name), zap.Error(err))
	default:
		result.Status = StatusSuccess
		result.PairsExtracted = len(pairs)
		p.mergeGraph(ctx, name, pairs)
		logger.Info("File processed",
			zap.String("file", name),
			zap.Int("pairs", len(pairs)),
			zap.Float64("seconds", result.ProcessingTime),
		)
	}

	metrics.DocumentsProcessed.WithLabelValues(statusLabel(result.Status)).Inc()
	p.record(ctx, result)
	return result, nil
}

// ProcessDirectory processes every supported file below dir. Unreadable
// files are reported with an error status; the walk continues.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string) ([]Result, error) {
	var results []Result

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}

		content, err := p.readFile(path)
		if err != nil {
			result := Result{FileName: path, Status: fmt.Sprintf("%s: %v", statusError, err)}
			metrics.DocumentsProcessed.WithLabelValues(statusError).Inc()
			p.record(ctx, result)
			results = append(results, result)
			return nil
		}

		result, err := p.ProcessFile(ctx, path, content)
		if err != nil {
			return err
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return results, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	logger.Info("Directory processed", zap.String("dir", dir), zap.Int("files", len(results)))
	return results, nil
}

func (p *Processor) extract(read reader, name string, content []byte) ([]qa.QAPair, error) {
	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", p.maxFileSize)
	}

	doc, err := read(content)
	if err != nil {
		return nil, err
	}

	var tableErr error
	if doc.table != nil {
		pairs, err := p.extractor.FromRows(*doc.table, name)
		if err == nil {
			return pairs, nil
		}
		tableErr = err
	}
	if doc.text != "" {
		return p.extractor.FromText(doc.text, name)
	}
	if tableErr != nil {
		return nil, tableErr
	}
	return nil, &qa.ExtractionError{Source: name, Reason: "document is empty"}
}

func (p *Processor) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", p.maxFileSize)
	}
	return os.ReadFile(path)
}

func (p *Processor) mergeGraph(ctx context.Context, name string, pairs []qa.QAPair) {
	if p.graph == nil {
		return
	}
	if err := p.graph.MergePairs(ctx, pairs); err != nil {
		logger.Warn("Failed to record provenance", zap.String("file", name), zap.Error(err))
	}
}

func (p *Processor) record(ctx context.Context, result Result) {
	if p.runs == nil {
		return
	}
	run := &models.IngestionRun{
		FileName:       result.FileName,
		Status:         result.Status,
		PairsExtracted: result.PairsExtracted,
		ProcessingTime: time.Duration(result.ProcessingTime * float64(time.Second)),
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.runs.RecordIngestion(ctx, run); err != nil {
		logger.Warn("Failed to record ingestion run", zap.String("file", result.FileName), zap.Error(err))
	}
}

func statusLabel(status string) string {
	switch status {
	case StatusSuccess, StatusNoQAPairs:
		return status
	default:
		return statusError
	}
}
