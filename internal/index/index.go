package index

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/vector"
	"github.com/reqanswer/backend/pkg/logger"
)

const (
	keyID          = "question_id"
	keyQuestion    = "question_text"
	keyAnswer      = "answer_text"
	keyCategory    = "category"
	keyClient      = "client"
	keyProjectType = "project_type"
	keyDate        = "date"
	customPrefix   = "meta_"
)

// Embedder turns text into a fixed-length vector. Identical input must give
// identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed many texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is a nearest-neighbour result. Distance is cosine distance.
type Hit struct {
	Pair     qa.QAPair
	Distance float64
}

type Index struct {
	store    vector.Store
	embedder Embedder
}

func New(store vector.Store, embedder Embedder) *Index {
	return &Index{store: store, embedder: embedder}
}

// EmbeddingText is the text embedded for a pair.
func EmbeddingText(p qa.QAPair) string {
	return "Question: " + p.QuestionText + "\nAnswer: " + p.AnswerText
}

// Upsert writes pairs with their embeddings. A pair whose id already exists
// replaces the stored one.
func (ix *Index) Upsert(ctx context.Context, pairs []qa.QAPair) error {
	if len(pairs) == 0 {
		return nil
	}

	texts := make([]string, len(pairs))
	for i, p := range pairs {
		if err := p.Validate(); err != nil {
			return err
		}
		texts[i] = EmbeddingText(p)
	}

	embeddings, err := ix.embedAll(ctx, texts)
	if err != nil {
		return &qa.IndexError{Op: "embed", Err: err}
	}

	records := make([]vector.Record, len(pairs))
	for i, p := range pairs {
		records[i] = vector.Record{
			ID:        p.ID,
			Embedding: embeddings[i],
			Document:  texts[i],
			Metadata:  flatten(p),
		}
	}

	if err := ix.store.Upsert(ctx, records); err != nil {
		return &qa.IndexError{Op: "upsert", Err: err}
	}

	metrics.PairsIndexed.Add(float64(len(pairs)))
	logger.Info("Pairs indexed", zap.Int("count", len(pairs)))
	return nil
}

// Update replaces a pair by deleting it first and then inserting it again.
func (ix *Index) Update(ctx context.Context, pair qa.QAPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	if err := ix.Delete(ctx, pair.ID); err != nil {
		return err
	}
	return ix.Upsert(ctx, []qa.QAPair{pair})
}

func (ix *Index) Delete(ctx context.Context, ids ...string) error {
	if err := ix.store.Delete(ctx, ids...); err != nil {
		return &qa.IndexError{Op: "delete", Err: err}
	}
	return nil
}

// Get looks up a single pair by id.
func (ix *Index) Get(ctx context.Context, id string) (qa.QAPair, bool, error) {
	records, err := ix.store.Filter(ctx, keyID, id, 1)
	if err != nil {
		return qa.QAPair{}, false, &qa.IndexError{Op: "get", Err: err}
	}
	if len(records) == 0 {
		return qa.QAPair{}, false, nil
	}
	return unflatten(records[0]), true, nil
}

// QueryByText returns up to k pairs nearest to query, nearest first.
func (ix *Index) QueryByText(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}

	n, err := ix.store.Count(ctx)
	if err != nil {
		return nil, &qa.IndexError{Op: "count", Err: err}
	}
	if n == 0 {
		return []Hit{}, nil
	}

	emb, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &qa.IndexError{Op: "embed", Err: err}
	}

	matches, err := ix.store.Search(ctx, emb, k)
	if err != nil {
		return nil, &qa.IndexError{Op: "search", Err: err}
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{Pair: unflatten(m.Record), Distance: m.Distance})
	}
	return hits, nil
}

// QueryByCategory returns up to limit pairs in category, in store order.
func (ix *Index) QueryByCategory(ctx context.Context, category string, limit int) ([]qa.QAPair, error) {
	records, err := ix.store.Filter(ctx, keyCategory, category, limit)
	if err != nil {
		return nil, &qa.IndexError{Op: "filter", Err: err}
	}

	pairs := make([]qa.QAPair, 0, len(records))
	for _, r := range records {
		pairs = append(pairs, unflatten(r))
	}
	return pairs, nil
}

// ListCategories returns the distinct categories present, sorted.
func (ix *Index) ListCategories(ctx context.Context) ([]string, error) {
	records, err := ix.store.Scan(ctx)
	if err != nil {
		return nil, &qa.IndexError{Op: "scan", Err: err}
	}

	seen := make(map[string]struct{})
	for _, r := range records {
		if c := r.Metadata[keyCategory]; c != "" {
			seen[c] = struct{}{}
		}
	}

	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

func (ix *Index) Count(ctx context.Context) (int, error) {
	n, err := ix.store.Count(ctx)
	if err != nil {
		return 0, &qa.IndexError{Op: "count", Err: err}
	}
	return n, nil
}

// Clear removes every pair. The index accepts writes immediately afterwards.
func (ix *Index) Clear(ctx context.Context) error {
	if err := ix.store.Reset(ctx); err != nil {
		return &qa.IndexError{Op: "clear", Err: err}
	}
	logger.Info("Index cleared")
	return nil
}

func (ix *Index) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if be, ok := ix.embedder.(BatchEmbedder); ok {
		embeddings, err := be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(texts) {
			return nil, errors.New("embedder returned wrong number of vectors")
		}
		return embeddings, nil
	}

	embeddings := make([][]float32, len(texts))
	for i, t := range texts {
		emb, err := ix.embedder.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

func flatten(p qa.QAPair) map[string]string {
	m := map[string]string{
		keyID:       p.ID,
		keyQuestion: p.QuestionText,
		keyAnswer:   p.AnswerText,
		keyCategory: p.Category,
	}
	if p.Client != "" {
		m[keyClient] = p.Client
	}
	if p.ProjectType != "" {
		m[keyProjectType] = p.ProjectType
	}
	if !p.CreatedAt.IsZero() {
		m[keyDate] = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range p.Metadata {
		m[customPrefix+k] = v
	}
	return m
}

func unflatten(r vector.Record) qa.QAPair {
	m := r.Metadata
	p := qa.QAPair{
		ID:           r.ID,
		QuestionText: m[keyQuestion],
		AnswerText:   m[keyAnswer],
		Category:     m[keyCategory],
		Client:       m[keyClient],
		ProjectType:  m[keyProjectType],
		Metadata:     map[string]string{},
	}
	if p.ID == "" {
		p.ID = m[keyID]
	}
	if t, err := time.Parse(time.RFC3339, m[keyDate]); err == nil {
		p.CreatedAt = t
	}
	for k, v := range m {
		if strings.HasPrefix(k, customPrefix) {
			p.Metadata[strings.TrimPrefix(k, customPrefix)] = v
		}
	}
	return p
}
