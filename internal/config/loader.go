package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultConfigFile is loaded from the working directory when no
	// explicit path is given.
	DefaultConfigFile = "kbchat.yaml"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (OPENAI_API_KEY, STORAGE_BUCKET, ...)
//  2. YAML config file (./kbchat.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables use underscore separator and are uppercased.
// The transformer maps them to config fields:
//
//	OPENAI_API_KEY      -> openai.api_key
//	STORAGE_BUCKET      -> storage.bucket
//	PATHS_VECTOR_ROOT   -> paths.vector_root
//	CHAT_RETRIEVAL_K    -> chat.retrieval_k
//
// A missing config file is not an error; env vars and defaults apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = DefaultConfigFile
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)",
				ErrInvalidConfig, info.Size(), maxConfigFileSize)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: parsing config file %s: %v", ErrInvalidConfig, configPath, err)
		}
	}

	// Override with environment variables.
	// Split on the first underscore only: SECTION_FIELD_NAME -> section.field_name.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling config: %v", ErrInvalidConfig, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
