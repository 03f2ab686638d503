package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/vector"
	"github.com/reqanswer/backend/pkg/logger"
)

// VectorStore persists index records in a single table and searches them
// brute force. Rows keep their first insertion position so filter and scan
// order is stable across upserts.
type VectorStore struct {
	client *Client
}

func NewVectorStore(ctx context.Context, client *Client) (*VectorStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS qa_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		document TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL,
		embedding BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_qa_records_category ON qa_records(category);
	`
	if _, err := client.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}

	return &VectorStore{client: client}, nil
}

func (s *VectorStore) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO qa_records (id, document, category, metadata, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			category = excluded.category,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("failed to upsert record: empty id")
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Document, r.Metadata["category"], string(meta), encodeEmbedding(r.Embedding), now); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	logger.Debug("Records upserted", zap.Int("count", len(records)))
	return nil
}

func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM qa_records WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete record %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *VectorStore) Search(ctx context.Context, embedding []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return []vector.Match{}, nil
	}

	records, err := s.query(ctx, `SELECT id, document, metadata, embedding FROM qa_records ORDER BY seq`)
	if err != nil {
		return nil, err
	}

	matches := make([]vector.Match, 0, len(records))
	for _, r := range records {
		matches = append(matches, vector.Match{
			Record:   r,
			Distance: vector.CosineDistance(embedding, r.Embedding),
		})
	}
	return vector.TopK(matches, k), nil
}

func (s *VectorStore) Filter(ctx context.Context, field, value string, limit int) ([]vector.Record, error) {
	if limit <= 0 {
		limit = -1
	}

	if field == "category" {
		return s.query(ctx, `SELECT id, document, metadata, embedding FROM qa_records WHERE category = ? ORDER BY seq LIMIT ?`, value, limit)
	}

	path := fmt.Sprintf(`$."%s"`, field)
	return s.query(ctx, `SELECT id, document, metadata, embedding FROM qa_records WHERE json_extract(metadata, ?) = ? ORDER BY seq LIMIT ?`, path, value, limit)
}

func (s *VectorStore) Scan(ctx context.Context) ([]vector.Record, error) {
	return s.query(ctx, `SELECT id, document, metadata, embedding FROM qa_records ORDER BY seq`)
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.client.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (s *VectorStore) Reset(ctx context.Context) error {
	if _, err := s.client.db.ExecContext(ctx, `DELETE FROM qa_records`); err != nil {
		return fmt.Errorf("failed to reset records: %w", err)
	}
	logger.Info("Vector store reset", zap.String("path", s.client.path))
	return nil
}

// Close is a no-op; the owning Client closes the database.
func (s *VectorStore) Close() error {
	return nil
}

func (s *VectorStore) query(ctx context.Context, q string, args ...any) ([]vector.Record, error) {
	rows, err := s.client.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []vector.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (vector.Record, error) {
	var r vector.Record
	var meta string
	var blob []byte

	if err := rows.Scan(&r.ID, &r.Document, &meta, &blob); err != nil {
		return vector.Record{}, fmt.Errorf("failed to scan record: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return vector.Record{}, fmt.Errorf("failed to decode metadata for %s: %w", r.ID, err)
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	r.Embedding = decodeEmbedding(blob)
	return r, nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
