package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/qa"
	"github.com/reqanswer/backend/pkg/circuitbreaker"
	"github.com/reqanswer/backend/pkg/logger"
	"github.com/reqanswer/backend/pkg/retry"
)

const (
	mergePairsQuery = `
		UNWIND $rows AS row
		MERGE (q:Question {id: row.id})
		SET q.text = row.question,
		    q.source_file = row.source_file,
		    q.updated_at = timestamp()
		MERGE (c:Category {name: row.category})
		MERGE (q)-[:IN_CATEGORY]->(c)
		WITH q, row
		WHERE row.client <> ''
		MERGE (cl:Client {name: row.client})
		MERGE (cl)-[:ASKED]->(q)
	`

	clientsForCategoryQuery = `
		MATCH (cl:Client)-[:ASKED]->(:Question)-[:IN_CATEGORY]->(:Category {name: $category})
		RETURN cl.name AS client, count(*) AS questions
		ORDER BY questions DESC, client ASC
	`

	deletePairQuery = `MATCH (q:Question {id: $id}) DETACH DELETE q`

	clearQuery = `MATCH (n) WHERE n:Question OR n:Client OR n:Category DETACH DELETE n`
)

// ClientCount is a client together with how many of its questions fall into
// a category.
type ClientCount struct {
	Client    string `json:"client"`
	Questions int64  `json:"questions"`
}

// Client writes the provenance graph
// (:Client)-[:ASKED]->(:Question)-[:IN_CATEGORY]->(:Category).
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	cb       *circuitbreaker.Breaker
	policy   retry.Policy
}

func NewClient(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Settings{
		HalfOpenRequests: 3,
		ResetInterval:    time.Minute,
		OpenTimeout:      20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	policy := retry.Policy{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{driver: driver, database: database, cb: cb, policy: policy}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(ctx context.Context, session neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(func() error {
		return retry.Do(ctx, c.policy, func(ctx context.Context) error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(ctx, session)
		})
	})
}

// MergePairs records provenance for pairs. Re-merging a pair is a no-op
// apart from refreshing its text.
func (c *Client) MergePairs(ctx context.Context, pairs []qa.QAPair) error {
	if len(pairs) == 0 {
		return nil
	}

	params := map[string]any{"rows": pairRows(pairs)}
	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, mergePairsQuery, params)
		if err != nil {
			return fmt.Errorf("failed to merge pairs: %w", err)
		}
		_, err = result.Consume(ctx)
		return err
	})
	if err != nil {
		metrics.GraphWrites.WithLabelValues("error").Inc()
		return err
	}

	metrics.GraphWrites.WithLabelValues("success").Inc()
	logger.Debug("Pairs merged into graph", zap.Int("count", len(pairs)))
	return nil
}

func (c *Client) DeletePair(ctx context.Context, id string) error {
	return c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, deletePairQuery, map[string]any{"id": id})
		if err != nil {
			return fmt.Errorf("failed to delete pair: %w", err)
		}
		_, err = result.Consume(ctx)
		return err
	})
}

// ClientsForCategory lists the clients that asked questions in category,
// most active first.
func (c *Client) ClientsForCategory(ctx context.Context, category string) ([]ClientCount, error) {
	var out []ClientCount

	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		out = out[:0]
		result, err := session.Run(ctx, clientsForCategoryQuery, map[string]any{"category": category})
		if err != nil {
			return fmt.Errorf("failed to query clients: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			name, _ := record.Get("client")
			questions, _ := record.Get("questions")
			out = append(out, toClientCount(name, questions))
		}
		if err := result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Clear removes every node this package created.
func (c *Client) Clear(ctx context.Context) error {
	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, clearQuery, nil)
		if err != nil {
			return fmt.Errorf("failed to clear graph: %w", err)
		}
		_, err = result.Consume(ctx)
		return err
	})
	if err != nil {
		return err
	}

	logger.Info("Provenance graph cleared")
	return nil
}

func pairRows(pairs []qa.QAPair) []map[string]any {
	rows := make([]map[string]any, len(pairs))
	for i, p := range pairs {
		category := p.Category
		if category == "" {
			category = qa.CategoryGeneral
		}
		rows[i] = map[string]any{
			"id":          p.ID,
			"question":    p.QuestionText,
			"category":    category,
			"client":      p.Client,
			"source_file": p.Metadata["source_file"],
		}
	}
	return rows
}

func toClientCount(name, questions any) ClientCount {
	cc := ClientCount{}
	if s, ok := name.(string); ok {
		cc.Client = s
	}
	if n, ok := questions.(int64); ok {
		cc.Questions = n
	}
	return cc
}
