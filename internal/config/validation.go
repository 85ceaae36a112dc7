package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate performs semantic checks beyond what mapstructure decoding gives
// us, so a broken config fails fast at startup instead of misbehaving later.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "must be in 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "must not be empty")
	}
	switch g.StorageBackend {
	case StorageBackendMemory, StorageBackendFS:
	default:
		return newFieldError("Global.StorageBackend", "must be memory or fs")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "must not be negative")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "must be greater than 0")
	}
	if g.MetadataTimeout.DurationValue() <= 0 {
		return newFieldError("Global.MetadataTimeout", "must be greater than 0")
	}
	if g.TarballTimeout.DurationValue() <= 0 {
		return newFieldError("Global.TarballTimeout", "must be greater than 0")
	}

	seenMirrors := map[string]struct{}{}
	for _, m := range c.Mirror {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return newFieldError("Mirror[].Name", "must not be empty")
		}
		if _, exists := seenMirrors[name]; exists {
			return newFieldError(mirrorField(name, "Name"), "duplicate")
		}
		seenMirrors[name] = struct{}{}
		if err := validateUpstream(m.UpstreamBase); err != nil {
			return fmt.Errorf("%s: %w", mirrorField(name, "UpstreamBase"), err)
		}
	}

	if c.WinGet.Owner == "" || c.WinGet.Repo == "" {
		return newFieldError("WinGet.Owner/Repo", "must not be empty")
	}
	if c.WinGet.RefreshTTL.DurationValue() <= 0 {
		return newFieldError("WinGet.RefreshTTL", "must be greater than 0")
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("missing upstream address")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("upstream must be http/https: %s", raw)
	}
	return nil
}
