// Package config loads the optional TOML file that carries persistent flag
// defaults and HUD color overrides. Every field is a pointer so an absent
// key is distinguishable from an explicit zero.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the parsed configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig mirrors the command-line flags a user may want to pin.
type DefaultsConfig struct {
	Workers   *int    `toml:"workers"`
	Retry     *int    `toml:"retry"`
	RetryWait *string `toml:"retry_wait"`
	CopyFlags *string `toml:"copy"`
	BlockSize *string `toml:"block_size"`
	BWLimit   *string `toml:"bwlimit"`
	Compress  *bool   `toml:"compress"`
	Verify    *bool   `toml:"verify"`
	TUI       *bool   `toml:"tui"`
	NoDelta   *bool   `toml:"no_delta"`
}

// ThemeConfig overrides individual HUD palette colors, given as hex strings.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Blue   *string `toml:"blue"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Teal   *string `toml:"teal"`
	Mauve  *string `toml:"mauve"`
	Muted  *string `toml:"muted"`
	Dim    *string `toml:"dim"`
	Bright *string `toml:"bright"`
}

// Path returns where the config file lives, or "" when no user config
// directory can be resolved.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ditto", "config.toml")
}

// Load parses the config file if one exists. A missing file is not an
// error; every setting has a flag-level default.
func Load() (Config, error) {
	return loadFrom(Path())
}

func loadFrom(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
