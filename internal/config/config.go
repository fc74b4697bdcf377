package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"github.com/tidwall/jsonc"
)

// Load reads and merges configuration from user-level and plan-level JSONC
// files. Resolution order: defaults → ~/.config/drover/drover.jsonc →
// <planRoot>/drover.jsonc → environment overrides.
func Load(planRoot string) (*Config, error) {
	cfg := DefaultConfig()

	userDir, err := os.UserConfigDir()
	if err == nil {
		userPath := filepath.Join(userDir, "drover", "drover.jsonc")
		if userMap, err := loadJSONC(userPath); err == nil {
			if err := mergeIntoConfig(&cfg, userMap); err != nil {
				return nil, fmt.Errorf("merging user config: %w", err)
			}
		}
	}

	if planRoot != "" {
		planPath := filepath.Join(planRoot, "drover.jsonc")
		if planMap, err := loadJSONC(planPath); err == nil {
			if err := mergeIntoConfig(&cfg, planMap); err != nil {
				return nil, fmt.Errorf("merging plan config: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// loadJSONC reads a JSONC file and returns it as a map.
func loadJSONC(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jsonData := jsonc.ToJSON(data)
	var m map[string]any
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// mergeIntoConfig marshals the config to a map, deep-merges the source map
// over it, then unmarshals back to the Config struct.
func mergeIntoConfig(cfg *Config, src map[string]any) error {
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var dst map[string]any
	if err := json.Unmarshal(cfgBytes, &dst); err != nil {
		return err
	}

	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return err
	}

	merged, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, cfg)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Agent.APIKey = key
	}
	if p := os.Getenv("DROVER_PARALLELISM"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			cfg.Run.Parallelism = n
		}
	}
	if ff := os.Getenv("DROVER_FAIL_FAST"); ff != "" {
		if b, err := strconv.ParseBool(ff); err == nil {
			cfg.Run.FailFast = b
		}
	}
}
