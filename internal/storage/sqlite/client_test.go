package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqanswer/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.InitSchema(context.Background()))
	return c
}

func TestIngestionLog(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.RecordIngestion(ctx, &models.IngestionRun{FileName: "a.xlsx", Status: "success", PairsExtracted: 4, ProcessingTime: 1500 * time.Millisecond}))
	require.NoError(t, c.RecordIngestion(ctx, &models.IngestionRun{FileName: "b.txt", Status: "no_qa_pairs_found"}))

	runs, err := c.ListIngestions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b.txt", runs[0].FileName)
	assert.Equal(t, "a.xlsx", runs[1].FileName)
	assert.Equal(t, 4, runs[1].PairsExtracted)
	assert.Equal(t, 1500*time.Millisecond, runs[1].ProcessingTime)
}

func TestEvaluationLog(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	latest, err := c.LatestEvaluation(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, c.SaveEvaluation(ctx, &models.EvaluationRun{Dataset: "golden.json", Questions: 3, MeanSimilarity: 0.8}))

	latest, err = c.LatestEvaluation(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "golden.json", latest.Dataset)
	assert.InDelta(t, 0.8, latest.MeanSimilarity, 1e-9)
}
