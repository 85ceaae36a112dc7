package cdn

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/resolver"
)

// PackageCache is the subset of internal/pkgcache the handlers need. Its
// own GetFile already triggers and detaches background warmup on a miss
//, so the handler never needs to call HydrateAsync directly.
type PackageCache interface {
	FileFetcher
}

// Bundler runs the ESM bundle transform over a package's resolved
// entry file. Left as an interface here so internal/cdn compiles and is
// independently testable ahead of internal/esmbundle.
type Bundler interface {
	Bundle(ctx context.Context, key pkgkey.Key, entryPath string) ([]byte, error)
}

// Handler implements request branching for the /cdn/* surface.
type Handler struct {
	resolver *resolver.Resolver
	cache    PackageCache
	bundler  Bundler
	logger   *logrus.Logger
}

// New builds a Handler. bundler may be nil; a request that hits a "+esm"
// path with no bundler configured surfaces as BadRequest.
func New(res *resolver.Resolver, cache PackageCache, bundler Bundler, logger *logrus.Logger) *Handler {
	return &Handler{resolver: res, cache: cache, bundler: bundler, logger: logger}
}

// RegisterRoutes mounts the /cdn/* surface on app.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/cdn/npm/*", h.route("/cdn/npm/", pkgkey.EcosystemNPM, ParseNPM, h.resolveRegistry))
	app.Get("/cdn/jsr/*", h.route("/cdn/jsr/", pkgkey.EcosystemJSR, ParseNPM, h.resolveRegistry))
	app.Get("/cdn/gh/*", h.route("/cdn/gh/", pkgkey.EcosystemGH, ParseGitHub, h.resolveRegistry))
	app.Get("/cdn/cdnjs/*", h.route("/cdn/cdnjs/", pkgkey.EcosystemCDNJS, ParseCDNJS, h.resolveRegistry))
	app.Get("/cdn/wp/plugins/*", h.route("/cdn/wp/plugins/", pkgkey.EcosystemWP, wpPluginParser, h.resolveWordPress))
	app.Get("/cdn/wp/themes/*", h.route("/cdn/wp/themes/", pkgkey.EcosystemWP, wpThemeParser, h.resolveWordPress))
}

func wpPluginParser(raw string) (ParsedPath, error) {
	p, err := ParseWordPressPlugin(raw)
	if err != nil {
		return p, err
	}
	p.Name = "plugins/" + p.Name
	return p, nil
}

func wpThemeParser(raw string) (ParsedPath, error) {
	p, err := ParseWordPressTheme(raw)
	if err != nil {
		return p, err
	}
	p.Name = "themes/" + p.Name
	return p, nil
}

type parseFunc func(raw string) (ParsedPath, error)

// resolveFunc turns a ParsedPath into a concrete, resolved pkgkey.Key.
type resolveFunc func(ctx context.Context, eco pkgkey.Ecosystem, p ParsedPath) (pkgkey.Key, error)

func (h *Handler) resolveRegistry(ctx context.Context, eco pkgkey.Ecosystem, p ParsedPath) (pkgkey.Key, error) {
	result, err := h.resolver.Resolve(ctx, eco, p.Name, p.Spec)
	if err != nil {
		return pkgkey.Key{}, err
	}
	return pkgkey.Key{Ecosystem: eco, Name: result.Name, Version: result.Version, Immutable: result.Immutable}, nil
}

func (h *Handler) resolveWordPress(_ context.Context, eco pkgkey.Ecosystem, p ParsedPath) (pkgkey.Key, error) {
	result := resolver.ResolveWordPress(p.Name, p.WPForm)
	return pkgkey.Key{Ecosystem: eco, Name: result.Name, Version: result.Version, Immutable: result.Immutable}, nil
}

// route builds a fiber.Handler for one ecosystem mount point. rawURLPath
// is inspected directly (not the parsed/normalized path) so a trailing
// slash on the request URL survives to distinguish "list directory at
// root" from "serve root entry file".
func (h *Handler) route(prefix string, eco pkgkey.Ecosystem, parse parseFunc, resolve resolveFunc) fiber.Handler {
	return func(c fiber.Ctx) error {
		rawPath := string(c.Request().URI().Path())
		trailingSlash := strings.HasSuffix(rawPath, "/") && rawPath != prefix
		rest := strings.TrimPrefix(rawPath, prefix)

		parsed, err := parse(rest)
		if err != nil {
			return h.writeErr(c, err)
		}

		key, err := resolve(c.Context(), eco, parsed)
		if err != nil {
			return h.writeErr(c, err)
		}

		if parsed.SubPath == "" {
			return h.serveRoot(c, key, parsed, trailingSlash)
		}
		return h.serveSubPath(c, key, parsed)
	}
}

func (h *Handler) serveRoot(c fiber.Ctx, key pkgkey.Key, parsed ParsedPath, trailingSlash bool) error {
	if trailingSlash {
		return h.serveListing(c, key)
	}

	entry, err := EntryFile(c.Context(), h.resolver, h.cache, key)
	if err != nil {
		return h.writeErr(c, err)
	}

	if parsed.IsESM {
		return h.serveESM(c, key, entry)
	}
	return h.serveFile(c, key, entry)
}

func (h *Handler) serveSubPath(c fiber.Ctx, key pkgkey.Key, parsed ParsedPath) error {
	if parsed.IsESM {
		return h.serveESM(c, key, parsed.SubPath)
	}

	data, err := h.cache.GetFile(c.Context(), key, parsed.SubPath)
	if err == nil {
		return h.writeFile(c, key, parsed.SubPath, data)
	}
	if !nexuserr.Is(err, nexuserr.CodeFileNotFound) {
		return h.writeErr(c, err)
	}
	return h.serveListingFallback(c, key, parsed.SubPath)
}

func (h *Handler) serveFile(c fiber.Ctx, key pkgkey.Key, path string) error {
	data, err := h.cache.GetFile(c.Context(), key, path)
	if err != nil {
		return h.writeErr(c, err)
	}
	return h.writeFile(c, key, path, data)
}

func (h *Handler) serveESM(c fiber.Ctx, key pkgkey.Key, entryPath string) error {
	if h.bundler == nil {
		return h.writeErr(c, nexuserr.New(nexuserr.CodeBadRequest, "cdn: esm bundling not configured"))
	}
	data, err := h.bundler.Bundle(c.Context(), key, entryPath)
	if err != nil {
		return h.writeErr(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/javascript; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, pkgkey.CacheControl(key.Immutable))
	return c.Send(data)
}

func (h *Handler) serveListing(c fiber.Ctx, key pkgkey.Key) error {
	manifest, err := h.cache.List(c.Context(), key)
	if err != nil {
		return h.writeErr(c, err)
	}
	c.Set(fiber.HeaderCacheControl, pkgkey.CacheControl(key.Immutable))
	return c.JSON(listingResponse(key, "", manifest.Files))
}

// serveListingFallback implements error-to-listing fallback: on
// file-not-found for a non-root path, force hydration and return a
// prefix-filtered listing; an empty result is still a 404.
func (h *Handler) serveListingFallback(c fiber.Ctx, key pkgkey.Key, missingPath string) error {
	manifest, err := h.cache.List(c.Context(), key)
	if err != nil {
		return h.writeErr(c, err)
	}

	prefix := strings.TrimSuffix(missingPath, "/") + "/"
	filtered := make([]pkgkey.FileEntry, 0)
	for _, f := range manifest.Files {
		if strings.HasPrefix(f.Name, prefix) {
			filtered = append(filtered, f)
		}
	}
	if len(filtered) == 0 {
		return h.writeErr(c, nexuserr.New(nexuserr.CodeFileNotFound, "cdn: "+missingPath+" not found"))
	}
	c.Set(fiber.HeaderCacheControl, pkgkey.CacheControl(key.Immutable))
	return c.JSON(listingResponse(key, missingPath, filtered))
}

// listingResponse builds the directory-listing body: the package name,
// resolved version, the listed path prefix ("" at root), and the files
// under it.
func listingResponse(key pkgkey.Key, path string, files []pkgkey.FileEntry) fiber.Map {
	return fiber.Map{
		"name":    key.Name,
		"version": key.Version,
		"path":    path,
		"files":   files,
	}
}

func (h *Handler) writeFile(c fiber.Ctx, key pkgkey.Key, path string, data []byte) error {
	c.Set(fiber.HeaderContentType, ContentType(path))
	c.Set(fiber.HeaderCacheControl, pkgkey.CacheControl(key.Immutable))
	return c.Send(data)
}

func (h *Handler) writeErr(c fiber.Ctx, err error) error {
	code := nexuserr.CodeUpstreamUnavailable
	var e *nexuserr.Error
	if ok := asNexusErr(err, &e); ok {
		code = e.Code
	}
	status := nexuserr.HTTPStatus(code)
	if status >= 500 {
		h.logger.WithError(err).WithField("path", string(c.Request().URI().Path())).Warn("cdn: request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": string(code), "message": err.Error()})
}

func asNexusErr(err error, target **nexuserr.Error) bool {
	for err != nil {
		if e, ok := err.(*nexuserr.Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
