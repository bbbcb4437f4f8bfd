// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/taskcrusher/internal/xdg"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: TASKCRUSHER_NOTIFY__WEBHOOK_URL sets
// notify.webhook_url.
const EnvPrefix = "TASKCRUSHER_"

// FlagKeys maps command-line flag names to the config keys they override.
var FlagKeys = map[string]string{
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"metrics-addr": "metrics.addr",
}

// Options controls Load.
type Options struct {
	// File is the YAML config path. Empty selects DefaultFile, which may be absent.
	File string
	// EnvFile is an optional dotenv file loaded into the process environment
	// before env overrides are read. Variables already set win.
	EnvFile string
	// Flags overrides keys through FlagKeys. Only flags the user set apply.
	Flags *pflag.FlagSet
}

// DefaultFile returns the config path used when none is given.
func DefaultFile() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// Load layers defaults, the config file, the environment, and flags, in that
// order, and validates the result.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("env_file", opts.EnvFile).Wrap(err)
		}
	}

	path, required := opts.File, true
	if path == "" {
		path, required = DefaultFile(), false
	}
	if err := loadFile(k, path, required); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}
	if !k.Exists("database.url") {
		if url := os.Getenv("DATABASE_URL"); url != "" {
			if err := k.Set("database.url", url); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "DATABASE_URL").Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, required bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return oops.Code("CONFIG_INVALID").With("file", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
	}
	return nil
}

func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
}

func flagKey(f *pflag.Flag) (string, any) {
	key, ok := FlagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	return key, f.Value.String()
}
