package vector

import (
	"context"
	"math"
	"sort"
)

// Record is the unit written to a Store. Metadata values are flat strings so
// every backend can filter on them.
type Record struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  map[string]string
}

// Match is a search hit. Distance is cosine distance, 1 - cos(a, b).
type Match struct {
	Record
	Distance float64
}

// Store is the storage capability behind the similarity index. A record
// write is atomic: readers see either the old record or the new one.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Delete(ctx context.Context, ids ...string) error
	Search(ctx context.Context, embedding []float32, k int) ([]Match, error)
	Filter(ctx context.Context, field, value string, limit int) ([]Record, error)
	Scan(ctx context.Context) ([]Record, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from
// everything.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// TopK sorts matches nearest first and truncates to k. Ties keep their
// input order.
func TopK(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
