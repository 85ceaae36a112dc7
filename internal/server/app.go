// Package server assembles the Fiber application that fronts every Nexus
// surface: the CDN, the mirror passthrough, the WinGet registry, and the
// read-only status endpoint. Middleware ordering (recover, then a UUID
// request-ID stamp) and JSON error-body shape follow the same router
// idiom used throughout this tree, rebuilt against a path-based route
// table rather than virtual-host routing.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/cdn"
	"github.com/nexus-cdn/nexus/internal/mirror"
	"github.com/nexus-cdn/nexus/internal/winget"
)

const contextKeyRequestID = "_nexus_request_id"

// AppOptions controls how the assembled Fiber application behaves.
type AppOptions struct {
	Logger      *logrus.Logger
	CDN         *cdn.Handler
	WinGet      *winget.Index
	Mirror      *mirror.Handler
	MirrorTable map[string]string
	Ecosystems  []string
}

// NewApp builds the Fiber application, wiring every registered surface
// under its route prefix and mounting the shared middleware chain.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.CDN == nil {
		return nil, errors.New("cdn handler is required")
	}
	if opts.WinGet == nil {
		return nil, errors.New("winget index is required")
	}
	if opts.Mirror == nil {
		return nil, errors.New("mirror handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions},
	}))
	app.Use(requestIDMiddleware())

	opts.CDN.RegisterRoutes(app)
	opts.Mirror.RegisterRoutes(app)
	opts.WinGet.RegisterRoutes(app, "/registry/winget")
	registerStatusRoute(app, opts)

	return app, nil
}

// requestIDMiddleware stamps every request with a UUID, echoed back on
// the X-Request-ID response header.
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stamped by requestIDMiddleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
