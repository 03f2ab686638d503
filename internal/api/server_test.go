package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqanswer/backend/internal/answer"
	"github.com/reqanswer/backend/internal/embedding"
	"github.com/reqanswer/backend/internal/index"
	"github.com/reqanswer/backend/internal/ingestion"
	"github.com/reqanswer/backend/internal/llm"
	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/storage/sqlite"
	"github.com/reqanswer/backend/internal/vector/memory"
)

type fakeCompleter struct{}

func (fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "Drafted from history."}, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "ingestion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))

	ix := index.New(memory.NewStore(), embedding.NewHashing(128))
	gen := answer.NewGenerator(ix, fakeCompleter{}, nil, answer.DefaultConfig())

	return NewApp(Deps{
		Answerer:   gen,
		Index:      ix,
		Processor:  ingestion.NewProcessor(ix, nil, db, 0),
		Ingestions: db,
	}, Options{Development: true})
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	code, body := doJSON(t, app, "GET", "/api/v1/health", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestAnswerWithEmptyIndex(t *testing.T) {
	app := newTestApp(t)

	code, body := doJSON(t, app, "POST", "/api/v1/answers", map[string]any{"question": "What is your SLA?"})
	assert.Equal(t, 200, code)
	assert.Contains(t, body["answer"], "I don't have enough historical data")
	assert.Equal(t, 0.0, body["confidence_score"])
	assert.Empty(t, body["sources"])
}

func TestPairLifecycle(t *testing.T) {
	app := newTestApp(t)

	code, created := doJSON(t, app, "POST", "/api/v1/qa-pairs", map[string]any{
		"question_text": "Welche Preismodelle bieten Sie an?",
		"answer_text":   "Festpreis und Time & Material.",
		"client":        "kunde_a",
	})
	require.Equal(t, 201, code)
	assert.Equal(t, "pricing", created["category"])
	id := created["question_id"].(string)

	code, stats := doJSON(t, app, "GET", "/api/v1/stats", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, 1.0, stats["total_qa_pairs"])
	assert.Equal(t, []any{"pricing"}, stats["categories"])

	code, search := doJSON(t, app, "GET", "/api/v1/search?query=Preismodelle&limit=3", nil)
	assert.Equal(t, 200, code)
	assert.Len(t, search["results"], 1)

	code, ans := doJSON(t, app, "POST", "/api/v1/answers", map[string]any{"question": "Welche Preismodelle bieten Sie an?"})
	assert.Equal(t, 200, code)
	assert.Equal(t, "Drafted from history.", ans["answer"])
	assert.Greater(t, ans["confidence_score"].(float64), 0.0)

	code, byCategory := doJSON(t, app, "GET", "/api/v1/qa-pairs/category/pricing", nil)
	assert.Equal(t, 200, code)
	assert.Len(t, byCategory["qa_pairs"], 1)

	code, updated := doJSON(t, app, "PUT", "/api/v1/qa-pairs/"+id, map[string]any{"answer_text": "Nur Festpreis."})
	assert.Equal(t, 200, code)
	assert.Equal(t, "Nur Festpreis.", updated["answer_text"])
	assert.Equal(t, id, updated["question_id"])

	code, _ = doJSON(t, app, "DELETE", "/api/v1/qa-pairs/"+id, nil)
	assert.Equal(t, 204, code)

	code, _ = doJSON(t, app, "DELETE", "/api/v1/qa-pairs/"+id, nil)
	assert.Equal(t, 404, code)
}

func TestCreatePairValidation(t *testing.T) {
	app := newTestApp(t)

	code, body := doJSON(t, app, "POST", "/api/v1/qa-pairs", map[string]any{"question_text": "Q?", "answer_text": "nan"})
	assert.Equal(t, 400, code)
	assert.Contains(t, body["error"], "answer_text")

}

func TestCreatePairIgnoresRequestedCategory(t *testing.T) {
	app := newTestApp(t)

	code, created := doJSON(t, app, "POST", "/api/v1/qa-pairs", map[string]any{
		"question_text": "What does the license cost per seat?",
		"answer_text":   "49 EUR per seat and month.",
		"category":      "legal",
	})
	require.Equal(t, 201, code)
	assert.Equal(t, "pricing", created["category"])
}

func TestUpdatePairRecategorizesQuestion(t *testing.T) {
	app := newTestApp(t)

	code, created := doJSON(t, app, "POST", "/api/v1/qa-pairs", map[string]any{
		"question_text": "What does the license cost per seat?",
		"answer_text":   "49 EUR per seat and month.",
	})
	require.Equal(t, 201, code)
	require.Equal(t, "pricing", created["category"])
	id := created["question_id"].(string)

	code, updated := doJSON(t, app, "PUT", "/api/v1/qa-pairs/"+id, map[string]any{
		"question_text": "Which database engine do you run?",
		"category":      "pricing",
	})
	require.Equal(t, 200, code)
	assert.Equal(t, "technical", updated["category"])
	assert.Equal(t, "49 EUR per seat and month.", updated["answer_text"])

	code, byCategory := doJSON(t, app, "GET", "/api/v1/qa-pairs/category/technical", nil)
	assert.Equal(t, 200, code)
	assert.Len(t, byCategory["qa_pairs"], 1)

	_, pricing := doJSON(t, app, "GET", "/api/v1/qa-pairs/category/pricing", nil)
	assert.Empty(t, pricing["qa_pairs"])

	code, answerOnly := doJSON(t, app, "PUT", "/api/v1/qa-pairs/"+id, map[string]any{"answer_text": "PostgreSQL 16."})
	require.Equal(t, 200, code)
	assert.Equal(t, "technical", answerOnly["category"])
}

func TestClearPairs(t *testing.T) {
	app := newTestApp(t)

	code, _ := doJSON(t, app, "POST", "/api/v1/qa-pairs", map[string]any{"question_text": "What is the delivery schedule?", "answer_text": "Six weeks."})
	require.Equal(t, 201, code)

	code, _ = doJSON(t, app, "DELETE", "/api/v1/qa-pairs", nil)
	assert.Equal(t, 200, code)

	_, stats := doJSON(t, app, "GET", "/api/v1/stats", nil)
	assert.Equal(t, 0.0, stats["total_qa_pairs"])
	assert.Equal(t, 0.0, stats["category_count"])
}

func TestAnswerRequestValidation(t *testing.T) {
	app := newTestApp(t)

	code, _ := doJSON(t, app, "POST", "/api/v1/answers", map[string]any{"question": ""})
	assert.Equal(t, 400, code)

	code, _ = doJSON(t, app, "POST", "/api/v1/answers/category", map[string]any{"question": "Q?", "category": "astrology"})
	assert.Equal(t, 400, code)

	code, _ = doJSON(t, app, "POST", "/api/v1/answers/batch", map[string]any{"questions": []string{}})
	assert.Equal(t, 400, code)

	req := httptest.NewRequest("POST", "/api/v1/answers", strings.NewReader("question"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestBatchAndImprovements(t *testing.T) {
	app := newTestApp(t)

	code, _ := doJSON(t, app, "POST", "/api/v1/qa-pairs", map[string]any{"question_text": "What is your SLA?", "answer_text": "99.9% uptime."})
	require.Equal(t, 201, code)

	code, batch := doJSON(t, app, "POST", "/api/v1/answers/batch", map[string]any{"questions": []string{"What is your SLA?", "Uptime?"}})
	assert.Equal(t, 200, code)
	assert.Len(t, batch["answers"], 2)

	code, sugg := doJSON(t, app, "POST", "/api/v1/answers/improvements", map[string]any{"question": "What is your SLA?", "current_answer": "Good."})
	assert.Equal(t, 200, code)
	assert.Equal(t, "Drafted from history.", sugg["suggestions"])
}

func TestCategoryClientsWithoutGraph(t *testing.T) {
	app := newTestApp(t)

	code, body := doJSON(t, app, "GET", "/api/v1/categories/pricing/clients", nil)
	assert.Equal(t, 200, code)
	assert.Equal(t, []any{}, body["clients"])
}

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadDocuments(t *testing.T) {
	app := newTestApp(t)

	req := uploadRequest(t, map[string]string{
		"answers.txt": "Q: What is your support model for production?\nA: We offer 24/7 support with a named engineer.\n",
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Results []ingestion.Result `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, ingestion.StatusSuccess, body.Results[0].Status)
	assert.Equal(t, 1, body.Results[0].PairsExtracted)

	code, runs := doJSON(t, app, "GET", "/api/v1/ingestions", nil)
	assert.Equal(t, 200, code)
	assert.Len(t, runs["ingestions"], 1)
}

func TestUploadUnsupported(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(uploadRequest(t, map[string]string{"scan.png": "x"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Init()
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
