package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
)

const jsDelivrGitHubBase = "https://data.jsdelivr.com/v1/packages/gh"

type jsDelivrPackage struct {
	Tags     map[string]string `json:"tags"`
	Versions []string          `json:"versions"`
}

// fetchGitHubVersions uses jsDelivr's package metadata API as the
// metadata source for GitHub-hosted packages.
func (r *Resolver) fetchGitHubVersions(ctx context.Context, ownerRepo string) ([]string, string, error) {
	reqURL := fmt.Sprintf("%s/%s", jsDelivrGitHubBase, ownerRepo)

	body, err := r.getJSON(ctx, reqURL)
	if err != nil {
		return nil, "", err
	}

	var doc jsDelivrPackage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", nexuserr.Wrap(nexuserr.CodeInvalidManifest, "resolver: malformed jsDelivr package doc", err)
	}

	return doc.Versions, doc.Tags["default"], nil
}
