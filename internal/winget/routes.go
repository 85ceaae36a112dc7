package winget

import (
	"context"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
)

const pageSize = 100

// RegisterRoutes mounts the /registry/winget/* surface on app under
// the given prefix.
func (idx *Index) RegisterRoutes(app fiber.Router, prefix string) {
	app.Get(prefix+"/packages", idx.handleListPackages)
	app.Get(prefix+"/packages/:id", idx.handlePackageSummary)
	app.Get(prefix+"/packages/:id/versions", idx.handleVersionList)
	app.Get(prefix+"/packages/:id/versions/:version", idx.handleVersionManifest)
	app.Get(prefix+"/packages/:id/versions/:version/locales", idx.handleLocaleList)
	app.Get(prefix+"/packages/:id/versions/:version/locales/:locale", idx.handleLocale)
	app.Get(prefix+"/packages/:id/versions/:version/installers", idx.handleInstallers)
	app.Get(prefix+"/packages/:id/versions/:version/installers/:installerID", idx.handleInstaller)
	app.Get(prefix+"/manifestSearch", idx.handleManifestSearchGET)
	app.Post(prefix+"/manifestSearch", idx.handleManifestSearchPOST)
}

func writeNexusErr(c fiber.Ctx, err error) error {
	code := nexuserr.CodeUpstreamUnavailable
	var e *nexuserr.Error
	if ok := errorsAsNexus(err, &e); ok {
		code = e.Code
	}
	return c.Status(nexuserr.HTTPStatus(code)).JSON(fiber.Map{"error": string(code), "message": err.Error()})
}

func errorsAsNexus(err error, target **nexuserr.Error) bool {
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

func (idx *Index) handleListPackages(c fiber.Ctx) error {
	versions, err := idx.PackageIndex(c.Context())
	if err != nil {
		return writeNexusErr(c, err)
	}

	ids := make([]string, 0, len(versions))
	for id := range versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	offset := decodeOffset(c.Query("cursor"))
	if offset > len(ids) {
		offset = len(ids)
	}
	end := offset + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	page := ids[offset:end]

	resp := fiber.Map{"Packages": page}
	if end < len(ids) {
		resp["Continuation"] = encodeOffset(end)
	}
	return c.JSON(resp)
}

func decodeOffset(cursor string) int {
	if cursor == "" {
		return 0
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func encodeOffset(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func (idx *Index) handlePackageSummary(c fiber.Ctx) error {
	id := c.Params("id")
	versions, err := idx.versionsFor(c.Context(), id)
	if err != nil {
		return writeNexusErr(c, err)
	}
	return c.JSON(fiber.Map{"PackageIdentifier": id, "Versions": versions})
}

func (idx *Index) handleVersionList(c fiber.Ctx) error {
	id := c.Params("id")
	versions, err := idx.versionsFor(c.Context(), id)
	if err != nil {
		return writeNexusErr(c, err)
	}
	return c.JSON(fiber.Map{"PackageIdentifier": id, "Versions": versions})
}

func (idx *Index) versionsFor(ctx context.Context, id string) ([]string, error) {
	all, err := idx.PackageIndex(ctx)
	if err != nil {
		return nil, err
	}
	versions, ok := all[id]
	if !ok {
		return nil, nexuserr.New(nexuserr.CodePackageNotFound, "winget: unknown package "+id)
	}
	return versions, nil
}

func (idx *Index) handleVersionManifest(c fiber.Ctx) error {
	id, version := c.Params("id"), c.Params("version")
	path, err := idx.primaryManifestPath(id, version)
	if err != nil {
		return writeNexusErr(c, err)
	}
	manifest, err := idx.LoadVersionManifest(c.Context(), path)
	if err != nil {
		return writeNexusErr(c, err)
	}
	return c.JSON(manifest)
}

// primaryManifestPath locates <PackageDir>/<id>.yaml, the version
// manifest, as opposed to locale or installer manifests which carry a
// ".locale.<tag>" or ".installer" suffix before the extension.
func (idx *Index) primaryManifestPath(id, version string) (string, error) {
	dir, err := VersionDir(id, version)
	if err != nil {
		return "", nexuserr.Wrap(nexuserr.CodeBadRequest, "winget: malformed package identifier", err)
	}
	return dir + "/" + id + ".yaml", nil
}

func (idx *Index) handleLocaleList(c fiber.Ctx) error {
	id, version := c.Params("id"), c.Params("version")
	dir, err := VersionDir(id, version)
	if err != nil {
		return writeNexusErr(c, nexuserr.Wrap(nexuserr.CodeBadRequest, "winget: malformed package identifier", err))
	}
	// Locale files live alongside the version manifest; list by probing
	// the cached per-letter path list rather than a second tree fetch.
	locales, err := idx.localeFiles(c.Context(), id, dir)
	if err != nil {
		return writeNexusErr(c, err)
	}
	return c.JSON(fiber.Map{"PackageIdentifier": id, "Locales": locales})
}

func (idx *Index) handleLocale(c fiber.Ctx) error {
	id, version, locale := c.Params("id"), c.Params("version"), c.Params("locale")
	dir, err := VersionDir(id, version)
	if err != nil {
		return writeNexusErr(c, nexuserr.Wrap(nexuserr.CodeBadRequest, "winget: malformed package identifier", err))
	}
	path := dir + "/" + id + ".locale." + locale + ".yaml"
	manifest, err := idx.LoadLocaleManifest(c.Context(), path)
	if err != nil {
		return writeNexusErr(c, err)
	}
	return c.JSON(manifest)
}

// localeFiles derives the set of available locale tags for a version by
// reading the letter's cached path list and filtering to this package's
// directory and the ".locale." filename marker.
func (idx *Index) localeFiles(ctx context.Context, id, dir string) ([]string, error) {
	letter := dir[len("manifests/"):][:1]
	sha, err := idx.letterSHAs(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := idx.letterPaths(ctx, letter, sha[letter])
	if err != nil {
		return nil, err
	}
	locales := make([]string, 0)
	prefix := dir + "/" + id + ".locale."
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) && strings.HasSuffix(p, ".yaml") {
			tag := strings.TrimSuffix(strings.TrimPrefix(p, prefix), ".yaml")
			locales = append(locales, tag)
		}
	}
	sort.Strings(locales)
	return locales, nil
}

func (idx *Index) handleInstallers(c fiber.Ctx) error {
	id, version := c.Params("id"), c.Params("version")
	dir, err := VersionDir(id, version)
	if err != nil {
		return writeNexusErr(c, nexuserr.Wrap(nexuserr.CodeBadRequest, "winget: malformed package identifier", err))
	}
	path := dir + "/" + id + ".installer.yaml"
	manifest, err := idx.LoadInstallerManifest(c.Context(), path)
	if err != nil {
		return writeNexusErr(c, err)
	}
	return c.JSON(fiber.Map{"PackageIdentifier": id, "Installers": manifest.Installers})
}

func (idx *Index) handleInstaller(c fiber.Ctx) error {
	id, version, installerID := c.Params("id"), c.Params("version"), c.Params("installerID")
	dir, err := VersionDir(id, version)
	if err != nil {
		return writeNexusErr(c, nexuserr.Wrap(nexuserr.CodeBadRequest, "winget: malformed package identifier", err))
	}
	path := dir + "/" + id + ".installer.yaml"
	manifest, err := idx.LoadInstallerManifest(c.Context(), path)
	if err != nil {
		return writeNexusErr(c, err)
	}
	n, err := strconv.Atoi(installerID)
	if err != nil || n < 0 || n >= len(manifest.Installers) {
		return writeNexusErr(c, nexuserr.New(nexuserr.CodeFileNotFound, "winget: unknown installer index "+installerID))
	}
	return c.JSON(manifest.Installers[n])
}

// searchQuery is the shared shape of both the GET query params and the
// POST body.
type searchQuery struct {
	Query struct {
		KeyWord   string `json:"KeyWord" query:"query"`
		MatchType string `json:"MatchType" query:"matchType"`
	} `json:"Query"`
	MaximumResults    int  `json:"MaximumResults" query:"maximumResults"`
	FetchAllManifests bool `json:"FetchAllManifests" query:"fetchAllManifests"`
}

func (idx *Index) handleManifestSearchGET(c fiber.Ctx) error {
	var q searchQuery
	q.Query.KeyWord = c.Query("query")
	q.Query.MatchType = c.Query("matchType")
	if q.Query.MatchType == "" {
		q.Query.MatchType = string(MatchCaseInsensitive)
	}
	if raw := c.Query("maximumResults"); raw != "" {
		q.MaximumResults, _ = strconv.Atoi(raw)
	}
	q.FetchAllManifests = c.Query("fetchAllManifests") == "true"
	return idx.runManifestSearch(c, q)
}

func (idx *Index) handleManifestSearchPOST(c fiber.Ctx) error {
	var q searchQuery
	if err := c.Bind().Body(&q); err != nil {
		return writeNexusErr(c, nexuserr.Wrap(nexuserr.CodeBadRequest, "winget: malformed manifestSearch body", err))
	}
	if q.Query.MatchType == "" {
		q.Query.MatchType = string(MatchCaseInsensitive)
	}
	return idx.runManifestSearch(c, q)
}

const maxVersionsPerSearchResult = 10

func (idx *Index) runManifestSearch(c fiber.Ctx, q searchQuery) error {
	all, err := idx.PackageIndex(c.Context())
	if err != nil {
		return writeNexusErr(c, err)
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type matchResult struct {
		PackageIdentifier string   `json:"PackageIdentifier"`
		Versions          []string `json:"Versions"`
	}
	matches := make([]matchResult, 0)
	for _, id := range ids {
		if !Match(MatchType(q.Query.MatchType), q.Query.KeyWord, id) {
			continue
		}
		versions := all[id]
		if len(versions) > maxVersionsPerSearchResult {
			versions = versions[:maxVersionsPerSearchResult]
		}
		matches = append(matches, matchResult{PackageIdentifier: id, Versions: versions})
		if q.MaximumResults > 0 && len(matches) >= q.MaximumResults {
			break
		}
	}

	return c.JSON(fiber.Map{
		"Data":                          matches,
		"RequiredPackageMatchFields":    []string{"PackageIdentifier"},
		"UnsupportedPackageMatchFields": []string{"Market", "NormalizedPackageNameAndPublisher"},
	})
}
