// Package api implements the REST API for rolling dice expressions and
// managing character sheets and property template libraries.
package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
	"github.com/lemonberrylabs/sheetroll/pkg/parser"
	"github.com/lemonberrylabs/sheetroll/pkg/random"
	"github.com/lemonberrylabs/sheetroll/pkg/roll"
	"github.com/lemonberrylabs/sheetroll/pkg/runtime"
	"github.com/lemonberrylabs/sheetroll/pkg/stdlib"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

// Server is the HTTP API server.
type Server struct {
	app   *fiber.App
	store store.Store
	funcs *stdlib.Registry
	log   zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a new API server backed by s.
func New(s store.Store, opts ...Option) *Server {
	srv := &Server{
		store: s,
		funcs: stdlib.NewRegistry(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             parser.MaxSourceSize * 2,
	})
	app.Use(srv.requestLogger)

	// Rolling
	app.Post("/v1/roll", srv.roll)

	// Sheets API
	app.Post("/v1/sheets", srv.createSheet)
	app.Get("/v1/sheets", srv.listSheets)
	app.Get("/v1/sheets/:sheet", srv.getSheet)
	app.Put("/v1/sheets/:sheet", srv.updateSheet)
	app.Delete("/v1/sheets/:sheet", srv.deleteSheet)
	app.Get("/v1/sheets/:sheet/context", srv.sheetContext)
	app.Post("/v1/sheets/:sheet/properties/:property\\:roll", srv.rollProperty)
	app.Post("/v1/sheets/:sheet/subsheets/:subsheet/actions/:action\\:roll", srv.rollAction)

	// Libraries API
	app.Put("/v1/libraries/:library", srv.putLibrary)
	app.Get("/v1/libraries", srv.listLibraries)
	app.Get("/v1/libraries/:library", srv.getLibrary)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// Store returns the store the server reads and writes.
func (s *Server) Store() store.Store {
	return s.store
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("request")
	return err
}

// engine returns an engine rolling from a source seeded with the requested
// seed, or a fresh one, along with the seed used.
func (s *Server) engine(requested *int64) (*runtime.Engine, int64, random.SeedSource, error) {
	seed, source, err := random.ResolveSeed(requested, random.NewSeed)
	if err != nil {
		return nil, 0, "", err
	}
	e := runtime.NewEngine(s.funcs,
		runtime.WithSource(expr.NewSource(seed)),
		runtime.WithLogger(s.log),
	)
	return e, seed, source, nil
}

// --- Rolling ---

type rollRequest struct {
	Expression string            `json:"expression"`
	Context    expr.Context      `json:"context"`
	Format     roll.FormatConfig `json:"format"`
	Seed       *int64            `json:"seed"`
}

func (s *Server) roll(c *fiber.Ctx) error {
	var req rollRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, 400, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Expression == "" {
		return errorResponse(c, 400, "expression is required")
	}

	e, seed, source, err := s.engine(req.Seed)
	if err != nil {
		return errorResponse(c, 500, err.Error())
	}
	out := e.Roll(req.Expression, req.Context, req.Format)
	return outcomeResponse(c, out, seed, source, nil)
}

// outcomeResponse writes a successful roll result, or the roll's errors as
// a 400 response.
func outcomeResponse(c *fiber.Ctx, out roll.Outcome, seed int64, source random.SeedSource, extra fiber.Map) error {
	if !out.OK() {
		if err := out.Err(); err != nil {
			return diagnosticResponse(c, 400, err)
		}
		return errorResponse(c, 400, "roll failed")
	}
	res := out.Result
	body := fiber.Map{
		"expression":      res.Expression,
		"value":           res.Value,
		"rolls":           res.Rolls,
		"rerolled":        res.Rerolled,
		"detailedRolls":   res.DetailedRolls,
		"formattedString": res.FormattedString,
		"seed":            seed,
		"seedSource":      source,
	}
	if res.Title != "" {
		body["title"] = res.Title
	}
	if res.Successes != nil {
		body["successes"] = *res.Successes
	}
	if html, err := roll.RenderHTML(res.FormattedString); err == nil {
		body["formattedHtml"] = html
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(body)
}

// --- Errors ---

var statusText = map[int]string{
	400: "INVALID_ARGUMENT",
	404: "NOT_FOUND",
	409: "ALREADY_EXISTS",
	500: "INTERNAL",
}

func errorResponse(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  statusText[code],
		},
	})
}

// diagnosticResponse writes err with one detail entry per diagnostic.
func diagnosticResponse(c *fiber.Ctx, code int, err error) error {
	var diag *types.DiagnosticError
	if !errors.As(err, &diag) {
		return errorResponse(c, code, err.Error())
	}
	causes := diag.Causes
	if len(causes) == 0 {
		causes = []*types.DiagnosticError{diag}
	}
	details := make([]fiber.Map, len(causes))
	for i, d := range causes {
		details[i] = fiber.Map{"message": d.Message, "tags": d.Tags}
	}
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": diag.Message,
			"status":  statusText[code],
			"details": details,
		},
	})
}

// storeError maps store and lookup errors to HTTP statuses.
func storeError(c *fiber.Ctx, err error) error {
	var diag *types.DiagnosticError
	var perr *parser.ParseError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorResponse(c, 404, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return errorResponse(c, 409, err.Error())
	case errors.As(err, &perr):
		return errorResponse(c, 400, err.Error())
	case errors.As(err, &diag) && diag.HasTag(types.TagNotFound):
		return diagnosticResponse(c, 404, err)
	default:
		return errorResponse(c, 500, err.Error())
	}
}
