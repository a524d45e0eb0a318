package groundtruth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema constrains the shape of a config document before it is decoded
// into Config, so typos in field names or backends fail loudly at startup.
const configSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"geocoder": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"token": {"type": "string"},
				"base_url": {"type": "string"},
				"timeout": {"type": "string"}
			}
		},
		"provider": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"name": {"type": "string"},
				"timeout": {"type": "string"}
			}
		},
		"cache": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"backend": {"enum": ["memory", "sqlite", "postgres"]},
				"dsn": {"type": "string"},
				"ttl": {"type": "string"},
				"sweep_interval": {"type": "string"}
			}
		},
		"verifier": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"workers": {"type": "integer", "minimum": 1},
				"queue_size": {"type": "integer", "minimum": 1},
				"image_fetch_timeout": {"type": "string"}
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("config.schema.json", configSchema)

// LoadConfig reads, schema-checks, and parses a config file from the given
// path. Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var (
		doc any
		cfg Config
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		if err := validateSchema(doc); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
		if err := validateSchema(doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

func validateSchema(doc any) error {
	// The schema validator wants json-shaped values; a YAML document may
	// carry ints where JSON would carry float64, so round-trip through JSON.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalizing config document: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("normalizing config document: %w", err)
	}
	if err := compiledSchema.Validate(normalized); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}

// ValidateConfig validates a Config for correctness beyond what the schema
// can express.
func ValidateConfig(cfg Config) error {
	switch cfg.Cache.Backend {
	case "", BackendMemory, BackendSQLite:
	case BackendPostgres:
		if strings.TrimSpace(cfg.Cache.DSN) == "" {
			return fmt.Errorf("postgres cache backend requires a dsn")
		}
	default:
		return fmt.Errorf("unknown cache backend: %q", cfg.Cache.Backend)
	}

	if cfg.Geocoder.Timeout < 0 {
		return fmt.Errorf("geocoder timeout must not be negative")
	}
	if cfg.Provider.Timeout < 0 {
		return fmt.Errorf("provider timeout must not be negative")
	}
	if cfg.Verifier.Workers < 0 {
		return fmt.Errorf("verifier workers must not be negative")
	}
	if cfg.Verifier.QueueSize < 0 {
		return fmt.Errorf("verifier queue size must not be negative")
	}

	return nil
}
