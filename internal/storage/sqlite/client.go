package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/storage/models"
	"github.com/reqanswer/backend/pkg/logger"
)

type Client struct {
	db   *sql.DB
	path string
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, path: dbPath}, nil
}

func (c *Client) Path() string {
	return c.path
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// InitSchema creates the ingestion and evaluation log tables.
func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingestion_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_name TEXT NOT NULL,
		status TEXT NOT NULL,
		pairs_extracted INTEGER NOT NULL DEFAULT 0,
		processing_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ingestion_created ON ingestion_runs(created_at);

	CREATE TABLE IF NOT EXISTS evaluation_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		questions INTEGER NOT NULL,
		mean_similarity REAL NOT NULL,
		mean_lexical REAL NOT NULL,
		mean_confidence REAL NOT NULL,
		no_sources INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized", zap.String("path", c.path))
	return nil
}

func (c *Client) RecordIngestion(ctx context.Context, run *models.IngestionRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (file_name, status, pairs_extracted, processing_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.FileName,
		run.Status,
		run.PairsExtracted,
		run.ProcessingTime.Milliseconds(),
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion: %w", err)
	}

	run.ID, _ = res.LastInsertId()
	logger.Debug("Ingestion recorded",
		zap.String("file", run.FileName),
		zap.String("status", run.Status),
		zap.Int("pairs", run.PairsExtracted),
	)
	return nil
}

// ListIngestions returns the most recent runs first.
func (c *Client) ListIngestions(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, file_name, status, pairs_extracted, processing_ms, created_at
		FROM ingestion_runs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestions: %w", err)
	}
	defer rows.Close()

	runs := []models.IngestionRun{}
	for rows.Next() {
		var r models.IngestionRun
		var processingMS, createdAt int64
		if err := rows.Scan(&r.ID, &r.FileName, &r.Status, &r.PairsExtracted, &processingMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion row: %w", err)
		}
		r.ProcessingTime = time.Duration(processingMS) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdAt)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

func (c *Client) SaveEvaluation(ctx context.Context, run *models.EvaluationRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO evaluation_runs (dataset, questions, mean_similarity, mean_lexical, mean_confidence, no_sources, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Dataset,
		run.Questions,
		run.MeanSimilarity,
		run.MeanLexical,
		run.MeanConfidence,
		run.NoSourcesAnswers,
		run.FailedAnswers,
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}

	run.ID, _ = res.LastInsertId()
	logger.Info("Evaluation saved",
		zap.String("dataset", run.Dataset),
		zap.Int("questions", run.Questions),
		zap.Float64("mean_similarity", run.MeanSimilarity),
	)
	return nil
}

// LatestEvaluation returns the newest run, or nil when none exist.
func (c *Client) LatestEvaluation(ctx context.Context) (*models.EvaluationRun, error) {
	var r models.EvaluationRun
	var createdAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT id, dataset, questions, mean_similarity, mean_lexical, mean_confidence, no_sources, failed, created_at
		FROM evaluation_runs ORDER BY id DESC LIMIT 1`).Scan(
		&r.ID, &r.Dataset, &r.Questions, &r.MeanSimilarity, &r.MeanLexical,
		&r.MeanConfidence, &r.NoSourcesAnswers, &r.FailedAnswers, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest evaluation: %w", err)
	}

	r.CreatedAt = time.UnixMilli(createdAt)
	return &r, nil
}
