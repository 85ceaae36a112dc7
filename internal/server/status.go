package server

import (
	"sort"

	"github.com/gofiber/fiber/v3"
)

// registerStatusRoute mounts the read-only /_status diagnostics endpoint:
// a snapshot of what the running process is configured to serve, with no
// write surface and no effect on cache or resolve behavior.
func registerStatusRoute(app fiber.Router, opts AppOptions) {
	app.Get("/_status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"ecosystems": sortedEcosystems(opts.Ecosystems),
			"mirrors":    sortedMirrorNames(opts.MirrorTable),
		})
	})
}

func sortedEcosystems(ecosystems []string) []string {
	out := append([]string(nil), ecosystems...)
	sort.Strings(out)
	return out
}

func sortedMirrorNames(table map[string]string) []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
