package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if LEADENGINE_CONFIG is set
//  3. env (prefix LEADENGINE_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("LEADENGINE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Env keys like LEADENGINE_RATE_LIMIT_MAX -> rate_limit_max,
	// preserving underscores to match the koanf tags on the struct.
	envProvider := env.Provider("LEADENGINE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "leadengine_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	switch {
	case cfg.Addr == "":
		return nil, errors.New("addr must not be empty")
	case cfg.DatabasePath == "":
		return nil, errors.New("database_path must not be empty")
	case cfg.FollowUpHour < 0 || cfg.FollowUpHour > 23:
		return nil, errors.New("followup_hour must be within 0-23")
	case cfg.RescoreWorkers < 1:
		return nil, errors.New("rescore_workers must be at least 1")
	}
	return &cfg, nil
}
