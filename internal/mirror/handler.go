// Package mirror implements a raw passthrough proxy over a static
// table of registry-name -> upstream-base-URL entries.
package mirror

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/upstream"
)

const cacheControl = "public, max-age=600"

// Handler proxies /mirror/<registry>/<path> to the upstream base
// registered for <registry>, unchanged.
type Handler struct {
	client *http.Client
	table  map[string]string
	logger *logrus.Logger
}

// New builds a Handler from a registry-name -> upstream-base-URL table,
// the shape of config.Config.MirrorTable().
func New(client *http.Client, table map[string]string, logger *logrus.Logger) *Handler {
	return &Handler{client: client, table: table, logger: logger}
}

// RegisterRoutes mounts /mirror/<registry>/*.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/mirror/:registry/*", h.handle)
	app.Head("/mirror/:registry/*", h.handle)
}

func (h *Handler) handle(c fiber.Ctx) error {
	registry := c.Params("registry")
	base, ok := h.table[registry]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_registry", "registry": registry})
	}

	rest := c.Params("*")
	target := joinUpstreamPath(base, rest)
	if qs := string(c.Request().URI().QueryString()); qs != "" {
		target += "?" + qs
	}

	req, err := http.NewRequestWithContext(c.Context(), c.Method(), target, http.NoBody)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_request_build_failed"})
	}
	upstream.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	if parsed, err := url.Parse(target); err == nil {
		req.Host = parsed.Host
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WithError(err).WithField("registry", registry).Warn("mirror: upstream fetch failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_unavailable"})
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set(fiber.HeaderCacheControl, cacheControl)
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		return nil
	}
	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	if err != nil {
		h.logger.WithError(err).WithField("registry", registry).Warn("mirror: response stream failed")
	}
	return nil
}

// joinUpstreamPath does a naive concatenation of base and path: exactly
// one slash between them, no URL-escaping renormalization.
func joinUpstreamPath(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return base
	}
	return fmt.Sprintf("%s/%s", base, path)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if upstream.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
