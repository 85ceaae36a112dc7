package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads and decodes the TOML configuration file, applying defaults and
// running semantic validation before returning.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "nexus.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyWinGetDefaults(&cfg.WinGet)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StorageBackend", "fs")
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("MetadataTimeout", "10s")
	v.SetDefault("TarballTimeout", "30s")

	v.SetDefault("WinGet.Owner", "microsoft")
	v.SetDefault("WinGet.Repo", "winget-pkgs")
	v.SetDefault("WinGet.Branch", "master")
	v.SetDefault("WinGet.RefreshTTL", "600s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.StorageBackend == "" {
		g.StorageBackend = StorageBackendFS
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.MetadataTimeout.DurationValue() == 0 {
		g.MetadataTimeout = Duration(10 * time.Second)
	}
	if g.TarballTimeout.DurationValue() == 0 {
		g.TarballTimeout = Duration(30 * time.Second)
	}
}

func applyWinGetDefaults(w *WinGetConfig) {
	if w.Owner == "" {
		w.Owner = "microsoft"
	}
	if w.Repo == "" {
		w.Repo = "winget-pkgs"
	}
	if w.Branch == "" {
		w.Branch = "master"
	}
	if w.RefreshTTL.DurationValue() == 0 {
		w.RefreshTTL = Duration(600 * time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("cannot parse Duration field: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported Duration type: %T", v)
		}
	}
}
