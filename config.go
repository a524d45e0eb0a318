package groundtruth

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the groundtruth service.
type Config struct {
	// Geocoder configures the forward-geocoding client.
	Geocoder GeocoderConfig `json:"geocoder" yaml:"geocoder"`
	// Provider selects which registered model provider handles text and
	// vision calls.
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	// Cache configures the result cache (optional; defaults to memory).
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
	// Verifier configures the background verification queue.
	Verifier VerifierConfig `json:"verifier,omitempty" yaml:"verifier,omitempty"`
}

// GeocoderConfig configures the Mapbox forward-geocoding client.
type GeocoderConfig struct {
	// Token is the Mapbox access token. Left empty, it is read from the
	// MAPBOX_ACCESS_TOKEN environment variable at startup.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// BaseURL overrides the geocoding endpoint, mainly for tests.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Timeout bounds a single geocoding request.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ProviderConfig selects the model provider.
type ProviderConfig struct {
	// Name is the registered provider name, e.g. "gemini" or "openai".
	Name string `json:"name" yaml:"name"`
	// Timeout bounds a single model call.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// CacheBackend selects the cache storage backend.
type CacheBackend string

// Supported cache backends.
const (
	BackendMemory   CacheBackend = "memory"
	BackendSQLite   CacheBackend = "sqlite"
	BackendPostgres CacheBackend = "postgres"
)

// CacheConfig configures the result cache.
type CacheConfig struct {
	Backend CacheBackend `json:"backend,omitempty" yaml:"backend,omitempty"`
	// DSN is the database connection string for sqlite and postgres backends.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// TTL is how long cached results stay valid.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// SweepInterval is how often expired entries are purged. Zero disables
	// the sweeper; expired entries are then discarded lazily on read.
	SweepInterval Duration `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
}

// VerifierConfig configures the background verification queue.
type VerifierConfig struct {
	// Workers is the number of concurrent verification workers.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
	// QueueSize bounds the number of jobs waiting for a worker.
	QueueSize int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	// ImageFetchTimeout bounds downloading one image for analysis.
	ImageFetchTimeout Duration `json:"image_fetch_timeout,omitempty" yaml:"image_fetch_timeout,omitempty"`
}

// Defaults applied by normalize when a field is omitted.
const (
	DefaultCacheTTL          = time.Hour
	DefaultGeocoderTimeout   = 10 * time.Second
	DefaultProviderTimeout   = 30 * time.Second
	DefaultImageFetchTimeout = 20 * time.Second
	DefaultWorkers           = 2
	DefaultQueueSize         = 64
)

// normalize fills in defaults for omitted fields.
func (c *Config) normalize() {
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if c.Geocoder.Timeout <= 0 {
		c.Geocoder.Timeout = Duration(DefaultGeocoderTimeout)
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = Duration(DefaultProviderTimeout)
	}
	if c.Verifier.ImageFetchTimeout <= 0 {
		c.Verifier.ImageFetchTimeout = Duration(DefaultImageFetchTimeout)
	}
	if c.Verifier.Workers <= 0 {
		c.Verifier.Workers = DefaultWorkers
	}
	if c.Verifier.QueueSize <= 0 {
		c.Verifier.QueueSize = DefaultQueueSize
	}
}

// Duration is a time.Duration that unmarshals from strings like "30s" or "1h"
// in both YAML and JSON config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
