package openapi

import "strings"

type generatorConfig struct {
	openAPIVersion string
	info           openapiInfo
	contentType    string
}

type openapiInfo struct {
	Title       string
	Version     string
	Description string
}

func defaultGeneratorConfig() generatorConfig {
	return generatorConfig{
		openAPIVersion: "3.1.0",
		info: openapiInfo{
			Title:   "Overlay Groups",
			Version: "1.0.0",
		},
		contentType: "application/json",
	}
}

// Option customises the generated document.
type Option func(*generatorConfig)

// WithOpenAPIVersion overrides the "openapi" field.
func WithOpenAPIVersion(version string) Option {
	return func(cfg *generatorConfig) {
		if trimmed := strings.TrimSpace(version); trimmed != "" {
			cfg.openAPIVersion = trimmed
		}
	}
}

// WithInfo sets the info block.
func WithInfo(title, version, description string) Option {
	return func(cfg *generatorConfig) {
		if trimmed := strings.TrimSpace(title); trimmed != "" {
			cfg.info.Title = trimmed
		}
		if trimmed := strings.TrimSpace(version); trimmed != "" {
			cfg.info.Version = trimmed
		}
		cfg.info.Description = strings.TrimSpace(description)
	}
}

func applyOptions(opts []Option) generatorConfig {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
