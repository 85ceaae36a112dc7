package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
)

const cdnjsLibraryBase = "https://api.cdnjs.com/libraries"

type cdnjsLibrary struct {
	Version  string   `json:"version"`
	Versions []string `json:"versions"`
	Filename string   `json:"filename"`
}

// fetchCDNJSVersions uses the cdnjs library API.
func (r *Resolver) fetchCDNJSVersions(ctx context.Context, lib string) ([]string, string, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=filename,version,versions", cdnjsLibraryBase, lib)

	body, err := r.getJSON(ctx, reqURL)
	if err != nil {
		return nil, "", err
	}

	var doc cdnjsLibrary
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", nexuserr.Wrap(nexuserr.CodeInvalidManifest, "resolver: malformed cdnjs library doc", err)
	}

	return doc.Versions, doc.Version, nil
}

// EntryFilename returns the cdnjs library's default filename, used by
// internal/cdn's entry-file selection for the cdnjs ecosystem.
func (r *Resolver) EntryFilename(ctx context.Context, lib string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=filename", cdnjsLibraryBase, lib)
	body, err := r.getJSON(ctx, reqURL)
	if err != nil {
		return "", err
	}
	var doc cdnjsLibrary
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", nexuserr.Wrap(nexuserr.CodeInvalidManifest, "resolver: malformed cdnjs library doc", err)
	}
	return doc.Filename, nil
}
