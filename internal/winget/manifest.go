package winget

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
)

// VersionManifest is the subset of a WinGet version manifest (the
// <name>.yaml file at a package version's root) the registry endpoints
// expose. Upstream YAML is schemaless beyond this; unknown fields are
// dropped rather than carried through as untyped bags.
type VersionManifest struct {
	PackageIdentifier string `yaml:"PackageIdentifier"`
	PackageVersion    string `yaml:"PackageVersion"`
	DefaultLocale     string `yaml:"DefaultLocale"`
	ManifestType      string `yaml:"ManifestType"`
	ManifestVersion   string `yaml:"ManifestVersion"`
}

// LocaleManifest is a <name>.locale.<tag>.yaml file.
type LocaleManifest struct {
	PackageIdentifier string `yaml:"PackageIdentifier"`
	PackageVersion    string `yaml:"PackageVersion"`
	PackageLocale     string `yaml:"PackageLocale"`
	Publisher         string `yaml:"Publisher"`
	PackageName       string `yaml:"PackageName"`
	ShortDescription  string `yaml:"ShortDescription"`
	ManifestType      string `yaml:"ManifestType"`
}

// Installer is a single entry in an installer manifest's Installers list.
type Installer struct {
	Architecture  string `yaml:"Architecture"`
	InstallerURL  string `yaml:"InstallerUrl"`
	InstallerSHA  string `yaml:"InstallerSha256"`
	InstallerType string `yaml:"InstallerType"`
}

// InstallerManifest is a <name>.installer.yaml file.
type InstallerManifest struct {
	PackageIdentifier string      `yaml:"PackageIdentifier"`
	PackageVersion    string      `yaml:"PackageVersion"`
	Channel           string      `yaml:"Channel,omitempty"`
	Installers        []Installer `yaml:"Installers"`
	ManifestType      string      `yaml:"ManifestType"`
}

// LoadVersionManifest fetches and parses a package version's primary
// manifest. This is a foreground parse: malformed YAML surfaces as
// InvalidManifest -> 500.
func (idx *Index) LoadVersionManifest(ctx context.Context, path string) (VersionManifest, error) {
	data, err := idx.ManifestBytes(ctx, path)
	if err != nil {
		return VersionManifest{}, err
	}
	var m VersionManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return VersionManifest{}, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "winget: malformed version manifest "+path, err)
	}
	return m, nil
}

// LoadLocaleManifest fetches and parses one locale manifest file.
func (idx *Index) LoadLocaleManifest(ctx context.Context, path string) (LocaleManifest, error) {
	data, err := idx.ManifestBytes(ctx, path)
	if err != nil {
		return LocaleManifest{}, err
	}
	var m LocaleManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return LocaleManifest{}, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "winget: malformed locale manifest "+path, err)
	}
	return m, nil
}

// LoadInstallerManifest fetches and parses the installer manifest file.
func (idx *Index) LoadInstallerManifest(ctx context.Context, path string) (InstallerManifest, error) {
	data, err := idx.ManifestBytes(ctx, path)
	if err != nil {
		return InstallerManifest{}, err
	}
	var m InstallerManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return InstallerManifest{}, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "winget: malformed installer manifest "+path, err)
	}
	return m, nil
}

// VersionDir builds the repo-absolute directory a version's manifest
// files live under, given a PackageIdentifier and version.
func VersionDir(id, version string) (string, error) {
	publisher, name, ok := splitIdentifier(id)
	if !ok {
		return "", fmt.Errorf("winget: malformed package identifier %q", id)
	}
	letter := letterOf(publisher)
	return fmt.Sprintf("manifests/%s/%s/%s/%s", letter, publisher, name, version), nil
}

// splitIdentifier splits a PackageIdentifier at its first dot: publisher
// names never contain a dot, but package names sometimes do (e.g.
// "JetBrains.IntelliJIDEA.Community").
func splitIdentifier(id string) (publisher, name string, ok bool) {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return id[:i], id[i+1:], true
		}
	}
	return "", "", false
}

func letterOf(publisher string) string {
	if publisher == "" {
		return "0"
	}
	c := publisher[0]
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	if letterPattern.MatchString(string(c)) {
		return string(c)
	}
	return "0"
}
