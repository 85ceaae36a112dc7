package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration provides flexible decoding: plain integer seconds or a Go
// duration string ("30s", "5m").
type Duration time.Duration

// UnmarshalText lets Viper decode "30s"/"5m" and plain integer seconds alike.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue returns the underlying time.Duration.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt supports decimal or 0x-prefixed hex strings.
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// StorageBackend selects the Storage KV implementation behind the cache.
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendFS     StorageBackend = "fs"
)

// GlobalConfig holds process-wide settings shared by every subsystem.
type GlobalConfig struct {
	ListenPort      int            `mapstructure:"ListenPort"`
	LogLevel        string         `mapstructure:"LogLevel"`
	LogFilePath     string         `mapstructure:"LogFilePath"`
	LogMaxSize      int            `mapstructure:"LogMaxSize"`
	LogMaxBackups   int            `mapstructure:"LogMaxBackups"`
	LogCompress     bool           `mapstructure:"LogCompress"`
	StorageBackend  StorageBackend `mapstructure:"StorageBackend"`
	StoragePath     string         `mapstructure:"StoragePath"`
	GitHubToken     string         `mapstructure:"GitHubToken"`
	MaxRetries      int            `mapstructure:"MaxRetries"`
	InitialBackoff  Duration       `mapstructure:"InitialBackoff"`
	MetadataTimeout Duration       `mapstructure:"MetadataTimeout"`
	TarballTimeout  Duration       `mapstructure:"TarballTimeout"`
}

// MirrorConfig describes one entry of the generic upstream mirror table
// consulted by the passthrough handler.
type MirrorConfig struct {
	Name         string `mapstructure:"Name"`
	UpstreamBase string `mapstructure:"UpstreamBase"`
}

// WinGetConfig points the index builder at the upstream Git host.
type WinGetConfig struct {
	Owner      string   `mapstructure:"Owner"`
	Repo       string   `mapstructure:"Repo"`
	Branch     string   `mapstructure:"Branch"`
	RefreshTTL Duration `mapstructure:"RefreshTTL"`
}

// Config is the fully decoded nexus.toml document.
type Config struct {
	Global GlobalConfig   `mapstructure:",squash"`
	Mirror []MirrorConfig `mapstructure:"Mirror"`
	WinGet WinGetConfig   `mapstructure:"WinGet"`
}

// MirrorTable returns the mirror registries as a name -> upstream-base map.
func (c *Config) MirrorTable() map[string]string {
	table := make(map[string]string, len(c.Mirror))
	for _, m := range c.Mirror {
		table[m.Name] = m.UpstreamBase
	}
	return table
}
