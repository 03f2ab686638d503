package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterExpr(t *testing.T) {
	assert.Equal(t, `category == "pricing"`, filterExpr("category", "pricing"))
	assert.Equal(t, `metadata["client"] == "ACME \"EU\""`, filterExpr("client", `ACME "EU"`))
}

func TestIDInExpr(t *testing.T) {
	assert.Equal(t, `id in ["a", "b"]`, idInExpr([]string{"a", "b"}))
}

func TestDecodeRecords(t *testing.T) {
	ids := entity.NewColumnVarChar(fieldID, []string{"1", "2"})
	docs := entity.NewColumnVarChar(fieldDocument, []string{"Question: a", "Question: b"})
	metas := entity.NewColumnJSONBytes(fieldMetadata, [][]byte{
		[]byte(`{"category":"pricing"}`),
		[]byte(`{"category":"legal","client":"acme"}`),
	})

	records, err := decodeRecords(2, ids, docs, metas)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "pricing", records[0].Metadata["category"])
	assert.Equal(t, "acme", records[1].Metadata["client"])
	assert.Equal(t, "Question: b", records[1].Document)
}

func TestDecodeRecordsRejectsWrongIDColumn(t *testing.T) {
	_, err := decodeRecords(1, entity.NewColumnInt64(fieldID, []int64{1}), nil, nil)
	assert.Error(t, err)
}
