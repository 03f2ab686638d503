package index

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqanswer/backend/internal/embedding"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/internal/scoring"
	"github.com/reqanswer/backend/internal/vector"
	"github.com/reqanswer/backend/internal/vector/memory"
)

// questionEmbedder embeds only the question part of an embedding text, so a
// query equal to a stored question lands on the same vector.
type questionEmbedder struct {
	calls int
}

func (e *questionEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if strings.HasPrefix(text, "Question: ") {
		text = strings.TrimPrefix(text, "Question: ")
		if i := strings.Index(text, "\nAnswer: "); i >= 0 {
			text = text[:i]
		}
	}

	v := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%32]++
	}
	return v, nil
}

type failingStore struct {
	vector.Store
}

func (failingStore) Upsert(context.Context, []vector.Record) error { return errors.New("disk full") }
func (failingStore) Count(context.Context) (int, error)            { return 0, errors.New("disk full") }

func mustPair(t *testing.T, q, a string) qa.QAPair {
	t.Helper()
	p, err := qa.NewPair(q, a)
	require.NoError(t, err)
	return p
}

func TestQueryByTextEmptyIndex(t *testing.T) {
	emb := &questionEmbedder{}
	ix := New(memory.NewStore(), emb)

	hits, err := ix.QueryByText(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Zero(t, emb.calls)
}

func TestExactQuestionScoresHigh(t *testing.T) {
	longAnswer := strings.Repeat("Wir betreiben die Plattform in zwei Rechenzentren mit täglicher Sicherung und georedundanter Replikation. ", 12)

	for _, dim := range []int{256, 1536} {
		t.Run(fmt.Sprintf("hashing-%d", dim), func(t *testing.T) {
			ctx := context.Background()
			ix := New(memory.NewStore(), embedding.NewHashing(dim))

			target := mustPair(t, "Which cloud regions do you host in?", longAnswer)
			require.NoError(t, ix.Upsert(ctx, []qa.QAPair{
				mustPair(t, "How do you bill overtime work?", "Hourly at the agreed rate."),
				target,
				mustPair(t, "Do you provide on-site training?", "Yes, two days included."),
			}))

			hits, err := ix.QueryByText(ctx, target.QuestionText, 3)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Equal(t, target.ID, hits[0].Pair.ID)
			assert.Greater(t, scoring.Semantic(hits[0].Distance), 0.9)
			for i := 1; i < len(hits); i++ {
				assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
			}
		})
	}
}

func TestUpsertRoundTripsPairFields(t *testing.T) {
	ctx := context.Background()
	ix := New(memory.NewStore(), &questionEmbedder{})

	p := mustPair(t, "What is the price per license?", "40 EUR per month.")
	p.Client = "acme"
	p.ProjectType = "crm"
	p.Metadata["source_file"] = "acme.xlsx"
	require.NoError(t, ix.Upsert(ctx, []qa.QAPair{p}))

	got, ok, err := ix.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.QuestionText, got.QuestionText)
	assert.Equal(t, p.AnswerText, got.AnswerText)
	assert.Equal(t, qa.CategoryPricing, got.Category)
	assert.Equal(t, "acme", got.Client)
	assert.Equal(t, "crm", got.ProjectType)
	assert.Equal(t, "acme.xlsx", got.Metadata["source_file"])
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, 1e9)
}

func TestUpsertSameIDReplaces(t *testing.T) {
	ctx := context.Background()
	ix := New(memory.NewStore(), &questionEmbedder{})

	p := mustPair(t, "What is the price per license?", "40 EUR per month.")
	require.NoError(t, ix.Upsert(ctx, []qa.QAPair{p}))
	p.AnswerText = "35 EUR per month."
	require.NoError(t, ix.Update(ctx, p))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _, err := ix.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "35 EUR per month.", got.AnswerText)
}

func TestUpsertRejectsInvalidPair(t *testing.T) {
	ix := New(memory.NewStore(), &questionEmbedder{})

	err := ix.Upsert(context.Background(), []qa.QAPair{{ID: "x", QuestionText: "q", AnswerText: ""}})
	var verr *qa.ValidationError
	assert.True(t, errors.As(err, &verr))

	n, _ := ix.Count(context.Background())
	assert.Zero(t, n)
}

func TestQueryByCategoryAndListCategories(t *testing.T) {
	ctx := context.Background()
	ix := New(memory.NewStore(), &questionEmbedder{})

	require.NoError(t, ix.Upsert(ctx, []qa.QAPair{
		mustPair(t, "What is the license cost?", "See price sheet."),
		mustPair(t, "Which database do you use?", "PostgreSQL."),
		mustPair(t, "Is there a budget discount?", "Ten percent for NGOs."),
		mustPair(t, "Tell us about your team", "Forty engineers."),
	}))

	pricing, err := ix.QueryByCategory(ctx, qa.CategoryPricing, 10)
	require.NoError(t, err)
	require.Len(t, pricing, 2)
	assert.Equal(t, "What is the license cost?", pricing[0].QuestionText)

	limited, err := ix.QueryByCategory(ctx, qa.CategoryPricing, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := ix.QueryByCategory(ctx, qa.CategoryLegal, 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	cats, err := ix.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"general", "pricing", "technical"}, cats)
}

func TestClearThenCount(t *testing.T) {
	ctx := context.Background()
	ix := New(memory.NewStore(), &questionEmbedder{})

	require.NoError(t, ix.Upsert(ctx, []qa.QAPair{mustPair(t, "First question here", "First answer here")}))
	require.NoError(t, ix.Clear(ctx))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	hits, err := ix.QueryByText(ctx, "First question here", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	pairs := []qa.QAPair{
		mustPair(t, "Question number one", "Answer number one"),
		mustPair(t, "Question number two", "Answer number two"),
		mustPair(t, "Question number three", "Answer number three"),
	}
	require.NoError(t, ix.Upsert(ctx, pairs))
	n, err = ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStoreErrorsBecomeIndexErrors(t *testing.T) {
	ix := New(failingStore{}, &questionEmbedder{})

	err := ix.Upsert(context.Background(), []qa.QAPair{mustPair(t, "Some question text", "Some answer text")})
	var idxErr *qa.IndexError
	require.True(t, errors.As(err, &idxErr))
	assert.Equal(t, "upsert", idxErr.Op)

	_, err = ix.Count(context.Background())
	assert.True(t, errors.As(err, &idxErr))
}

func TestFlattenPrefixesCustomMetadata(t *testing.T) {
	p := qa.QAPair{ID: "1", QuestionText: "q", AnswerText: "a", Category: "general", Metadata: map[string]string{"source_file": "x.txt"}}
	m := flatten(p)
	assert.Equal(t, "x.txt", m["meta_source_file"])
	assert.Equal(t, "1", m["question_id"])
	assert.NotContains(t, m, "client")
}
