// Package server assembles the echo application: middleware, error handling
// and the route groups.
package server

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/routes/batch"
	"github.com/Ramsey-B/clover/pkg/routes/cluster"
	"github.com/Ramsey-B/clover/pkg/routes/goldenrecord"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/record"
)

// Options configures the HTTP surface
type Options struct {
	ServiceName  string
	BodyLimit    string
	AllowOrigins []string
	AllowMethods []string
}

// New builds the echo app serving the review workflow
func New(workflow *review.Workflow, defaults models.ResolutionConfig, checker *health.Checker, logger ectologger.Logger, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	if opts.ServiceName != "" {
		e.Use(otelecho.Middleware(opts.ServiceName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if len(opts.AllowOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: opts.AllowMethods,
		}))
	}
	if opts.BodyLimit != "" {
		e.Use(echomw.BodyLimit(opts.BodyLimit))
	}

	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	batch.NewHandler(workflow, defaults, logger).Register(api.Group("/batches"))
	cluster.NewHandler(workflow, logger).Register(api.Group("/clusters"))
	record.NewHandler(workflow, logger).Register(api.Group("/records"))
	goldenrecord.NewHandler(workflow).Register(api.Group("/golden-records"))

	return e
}
