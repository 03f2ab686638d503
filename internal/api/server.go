package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/reqanswer/backend/internal/api/handlers"
	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/middleware/ratelimit"
	"github.com/reqanswer/backend/internal/middleware/security"
	"github.com/reqanswer/backend/internal/middleware/validation"
	"github.com/reqanswer/backend/internal/scoring"
	"github.com/reqanswer/backend/pkg/logger"
)

// Deps are the components the HTTP server routes to. Graph and RateLimiter
// may be nil.
type Deps struct {
	Answerer    handlers.Answerer
	Index       handlers.PairIndex
	Graph       handlers.Graph
	Processor   handlers.FileProcessor
	Ingestions  handlers.IngestionLog
	RateLimiter *ratelimit.RateLimiter
}

type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
	AccessLog      bool
}

// NewApp builds the fiber application with middleware and every route.
func NewApp(deps Deps, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		BodyLimit:    opts.BodyLimit,
	})

	allowOrigins := "*"
	if len(opts.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(opts.AllowedOrigins, ", ")
	}

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Client-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: opts.AllowedOrigins,
		IsDevelopment:  opts.Development,
	}))
	if deps.RateLimiter != nil {
		app.Use(deps.RateLimiter.Middleware())
	}
	app.Use(validation.Middleware(validation.Config{Logger: logger.GetLogger()}))

	answers := handlers.NewAnswerHandler(deps.Answerer)
	pairs := handlers.NewQAHandler(deps.Index, scoring.NewScorer(), deps.Graph)
	documents := handlers.NewDocumentHandler(deps.Processor, deps.Ingestions)
	ws := handlers.NewWebSocketHandler(deps.Answerer)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/answers", websocket.New(ws.HandleConnection))

	v1 := app.Group("/api/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	v1.Post("/documents", documents.UploadDocuments)
	v1.Get("/ingestions", documents.ListIngestions)

	v1.Post("/answers", answers.GenerateAnswer)
	v1.Post("/answers/batch", answers.BatchGenerateAnswers)
	v1.Post("/answers/category", answers.GenerateAnswerByCategory)
	v1.Post("/answers/improvements", answers.SuggestImprovements)

	v1.Get("/categories", pairs.ListCategories)
	v1.Get("/categories/:category/clients", pairs.CategoryClients)
	v1.Get("/qa-pairs/category/:category", pairs.PairsByCategory)
	v1.Post("/qa-pairs", pairs.CreatePair)
	v1.Put("/qa-pairs/:id", pairs.UpdatePair)
	v1.Delete("/qa-pairs/:id", pairs.DeletePair)
	v1.Delete("/qa-pairs", pairs.ClearPairs)
	v1.Get("/search", pairs.Search)
	v1.Get("/stats", pairs.Stats)

	return app
}
