package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/vector"
	"github.com/reqanswer/backend/pkg/logger"
)

const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldDocument  = "document"
	fieldCategory  = "category"
	fieldMetadata  = "metadata"

	// scanLimit is the largest result window a single Milvus query returns.
	scanLimit = 16384
)

var outputFields = []string{fieldID, fieldDocument, fieldMetadata}

// Store keeps index records in a Milvus collection with a cosine HNSW index.
// Filter and Scan do not return embeddings.
type Store struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewStore(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Store, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	s := &Store{client: c, collectionName: collectionName, vectorDim: vectorDim}
	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("Milvus vector store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.Int("dim", vectorDim),
	)
	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return s.client.LoadCollection(ctx, s.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "historical question/answer pairs",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(s.vectorDim)},
			},
			{
				Name:       fieldDocument,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       fieldCategory,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     fieldMetadata,
				DataType: entity.FieldTypeJSON,
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber, client.WithConsistencyLevel(entity.ClStrong)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", s.collectionName))
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	documents := make([]string, len(records))
	categories := make([]string, len(records))
	metadata := make([][]byte, len(records))

	for i, r := range records {
		if len(r.Embedding) != s.vectorDim {
			return fmt.Errorf("embedding for %s has dim %d, collection expects %d", r.ID, len(r.Embedding), s.vectorDim)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		ids[i] = r.ID
		embeddings[i] = r.Embedding
		documents[i] = r.Document
		categories[i] = r.Metadata[fieldCategory]
		metadata[i] = meta
	}

	_, err := s.client.Upsert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, s.vectorDim, embeddings),
		entity.NewColumnVarChar(fieldDocument, documents),
		entity.NewColumnVarChar(fieldCategory, categories),
		entity.NewColumnJSONBytes(fieldMetadata, metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Records upserted into milvus", zap.Int("count", len(records)))
	return nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.Delete(ctx, s.collectionName, "", idInExpr(ids)); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return []vector.Match{}, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(max(64, k))
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		fieldEmbedding,
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := []vector.Match{}
	for _, sr := range results {
		records, err := decodeRecords(sr.ResultCount, sr.Fields.GetColumn(fieldID), sr.Fields.GetColumn(fieldDocument), sr.Fields.GetColumn(fieldMetadata))
		if err != nil {
			return nil, err
		}
		for i, r := range records {
			var score float32
			if i < len(sr.Scores) {
				score = sr.Scores[i]
			}
			// COSINE scores are similarities.
			matches = append(matches, vector.Match{Record: r, Distance: 1 - float64(score)})
		}
	}
	return vector.TopK(matches, k), nil
}

func (s *Store) Filter(ctx context.Context, field, value string, limit int) ([]vector.Record, error) {
	if limit <= 0 || limit > scanLimit {
		limit = scanLimit
	}
	return s.query(ctx, filterExpr(field, value), limit)
}

func (s *Store) Scan(ctx context.Context) ([]vector.Record, error) {
	return s.query(ctx, fmt.Sprintf(`%s != ""`, fieldID), scanLimit)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	rs, err := s.client.Query(ctx, s.collectionName, []string{}, "", []string{"count(*)"})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}

	col, ok := rs.GetColumn("count(*)").(*entity.ColumnInt64)
	if !ok || len(col.Data()) == 0 {
		return 0, fmt.Errorf("failed to count records: unexpected result")
	}
	return int(col.Data()[0]), nil
}

// Reset drops and recreates the collection so it is immediately writable.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.client.DropCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	logger.Info("Collection dropped", zap.String("collection", s.collectionName))
	return s.ensureCollection(ctx)
}

func (s *Store) query(ctx context.Context, expr string, limit int) ([]vector.Record, error) {
	rs, err := s.client.Query(ctx, s.collectionName, []string{}, expr, outputFields, client.WithLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	idCol := rs.GetColumn(fieldID)
	if idCol == nil {
		return []vector.Record{}, nil
	}
	return decodeRecords(idCol.Len(), idCol, rs.GetColumn(fieldDocument), rs.GetColumn(fieldMetadata))
}

func decodeRecords(n int, idCol, docCol, metaCol entity.Column) ([]vector.Record, error) {
	records := make([]vector.Record, 0, n)
	if n == 0 {
		return records, nil
	}

	ids, ok := idCol.(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("unexpected id column type %T", idCol)
	}
	docs, _ := docCol.(*entity.ColumnVarChar)
	metas, _ := metaCol.(*entity.ColumnJSONBytes)

	for i := 0; i < n && i < len(ids.Data()); i++ {
		r := vector.Record{ID: ids.Data()[i], Metadata: map[string]string{}}
		if docs != nil && i < len(docs.Data()) {
			r.Document = docs.Data()[i]
		}
		if metas != nil && i < len(metas.Data()) {
			if err := json.Unmarshal(metas.Data()[i], &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	return records, nil
}

func filterExpr(field, value string) string {
	if field == fieldCategory {
		return fmt.Sprintf(`%s == %s`, fieldCategory, quote(value))
	}
	return fmt.Sprintf(`%s[%s] == %s`, fieldMetadata, quote(field), quote(value))
}

func idInExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return fmt.Sprintf("%s in [%s]", fieldID, strings.Join(quoted, ", "))
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
