// Package groundtruth turns free-text disaster reports into verified,
// mappable facts: it geocodes location names, extracts locations from
// descriptions with a model, and scores report images for authenticity.
//
// The Service type is the main entry point: create one with New, register
// model providers with RegisterProvider, and call Geocode, ExtractLocation,
// or VerifyImage. Background verification of submitted reports runs through
// EnqueueVerification once StartVerifier has been called.
//
// All results are memoized in a TTL cache ([Config.Cache]) so repeated
// lookups of the same location or image never hit the upstream twice within
// the TTL. The cache is best effort; a broken cache degrades to slower
// responses, never to errors.
package groundtruth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/relief-labs/groundtruth/geocode"
	"github.com/relief-labs/groundtruth/internal/cache"
	"github.com/relief-labs/groundtruth/internal/logging"
	"github.com/relief-labs/groundtruth/internal/metrics"
	"github.com/relief-labs/groundtruth/internal/verifyqueue"
	"github.com/relief-labs/groundtruth/providers"
	"github.com/relief-labs/groundtruth/verdict"
)

// UnknownLocation is the sentinel the extraction model is instructed to
// return when a description names no location. ExtractLocation passes it
// through; callers decide whether that is an error for their flow.
const UnknownLocation = "Unknown location"

// Location is a successfully geocoded place.
type Location struct {
	LocationName string  `json:"location_name"`
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
	FullName     string  `json:"full_name"`
	// BoundingBox is [minLon, minLat, maxLon, maxLat], or nil when the
	// geocoder supplied none.
	BoundingBox []float64 `json:"bounding_box"`
}

// Verification is the outcome of an image authenticity check.
type Verification struct {
	Analysis string         `json:"analysis"`
	Score    int            `json:"score"`
	Verdict  verdict.Status `json:"verification"`
}

// Service is the main entry point. Zero value is not usable; construct with New.
type Service struct {
	cfg       Config
	store     cache.Store
	registry  *providers.Registry
	geocoder  *geocode.Client
	queue     *verifyqueue.Queue
	reports   verifyqueue.ReportStore
	imageHTTP *http.Client
}

// New creates a Service from cfg. The geocoder token falls back to the
// MAPBOX_ACCESS_TOKEN environment variable when cfg leaves it empty.
func New(cfg Config) (*Service, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	store, err := openStore(cfg.Cache)
	if err != nil {
		return nil, err
	}

	token := cfg.Geocoder.Token
	if token == "" {
		token = os.Getenv("MAPBOX_ACCESS_TOKEN")
	}

	s := &Service{
		cfg:       cfg,
		store:     store,
		registry:  providers.NewRegistry(),
		geocoder:  geocode.NewClient(token, cfg.Geocoder.BaseURL, cfg.Geocoder.Timeout.Std(), logging.Logger),
		imageHTTP: &http.Client{Timeout: cfg.Verifier.ImageFetchTimeout.Std()},
	}
	s.queue = verifyqueue.New(s.verifyForQueue, nil, cfg.Verifier.Workers, cfg.Verifier.QueueSize, logging.Logger)
	return s, nil
}

func openStore(cfg CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return cache.NewMemory(nil), nil
	case BackendSQLite:
		return cache.NewSQLiteStore(cfg.DSN, nil, logging.Logger)
	case BackendPostgres:
		return cache.NewPostgresStore(cfg.DSN, nil, logging.Logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}

// RegisterProvider registers a model provider with the service.
func (s *Service) RegisterProvider(p providers.Provider) {
	s.registry.Register(p)
}

// Providers returns the names of all registered model providers.
func (s *Service) Providers() []string {
	return s.registry.List()
}

// SetReportStore wires the embedding application's report persistence into
// background verification. Must be called before StartVerifier.
func (s *Service) SetReportStore(rs verifyqueue.ReportStore) {
	s.reports = rs
	s.queue = verifyqueue.New(s.verifyForQueue, rs, s.cfg.Verifier.Workers, s.cfg.Verifier.QueueSize, logging.Logger)
}

// AddHook registers a hook invoked after each background verification
// completes, e.g. to relay the verdict to connected clients.
func (s *Service) AddHook(h verifyqueue.Hook) {
	s.queue.AddHook(h)
}

// StartVerifier launches the background verification workers and, when
// configured, the cache sweeper. Workers stop when ctx is cancelled.
func (s *Service) StartVerifier(ctx context.Context) {
	s.queue.Start(ctx)
	if interval := s.cfg.Cache.SweepInterval.Std(); interval > 0 {
		type sweeper interface {
			StartSweep(ctx context.Context, interval time.Duration)
		}
		if sw, ok := s.store.(sweeper); ok {
			sw.StartSweep(ctx, interval)
		}
	}
}

// QueueDepth reports the number of verification jobs waiting for a worker.
func (s *Service) QueueDepth() int { return s.queue.Depth() }

// Close releases the cache store's resources.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) provider() (providers.Provider, error) {
	name := s.cfg.Provider.Name
	if name == "" {
		if names := s.registry.List(); len(names) == 1 {
			name = names[0]
		}
	}
	p, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("model provider %q not registered", name)
	}
	return p, nil
}

// Geocode resolves a place name to coordinates. Results are cached for the
// configured TTL keyed by the lowercased, trimmed name, so "Miami" and
// " miami " share an entry.
func (s *Service) Geocode(ctx context.Context, locationName string) (*Location, error) {
	log := logging.FromContext(ctx)
	trimmed := strings.TrimSpace(locationName)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: location name is required", ErrInvalidInput)
	}

	key := "geocode:" + strings.ToLower(trimmed)
	if raw, ok := s.store.Get(ctx, key); ok {
		var loc Location
		if err := json.Unmarshal(raw, &loc); err == nil {
			metrics.CacheLookups.WithLabelValues("geocode", "hit").Inc()
			log.Debug("geocode cache hit", "key", key)
			return &loc, nil
		}
	}
	metrics.CacheLookups.WithLabelValues("geocode", "miss").Inc()

	start := time.Now()
	res, err := s.geocoder.Forward(ctx, trimmed)
	metrics.ExternalCallDuration.WithLabelValues("geocoder").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExternalCallsTotal.WithLabelValues("geocoder", "error").Inc()
		return nil, mapGeocodeError(err)
	}
	metrics.ExternalCallsTotal.WithLabelValues("geocoder", "success").Inc()

	loc := &Location{
		LocationName: trimmed,
		Longitude:    res.Longitude,
		Latitude:     res.Latitude,
		FullName:     res.FullName,
		BoundingBox:  res.BoundingBox,
	}
	if raw, err := json.Marshal(loc); err == nil {
		s.store.Put(ctx, key, raw, s.cfg.Cache.TTL.Std())
	}
	log.Info("geocoded location",
		"location", trimmed, "longitude", loc.Longitude, "latitude", loc.Latitude)
	return loc, nil
}

func mapGeocodeError(err error) error {
	var gerr *geocode.Error
	if errors.As(err, &gerr) {
		switch gerr.Kind {
		case geocode.KindNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, gerr.Error())
		case geocode.KindInvalidResponse:
			return fmt.Errorf("%w: %s", ErrInvalidResponse, gerr.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrGeocodingFailed, err.Error())
}

// extractionPrompt instructs the model to answer with a bare location name
// or the UnknownLocation sentinel.
func extractionPrompt(text string) string {
	return fmt.Sprintf(`Extract the location names from the following text. Only return the location name, nothing else. If multiple locations are mentioned, return the most specific one. If no location is mentioned, return "Unknown location".

Text: %s`, text)
}

// ExtractLocation asks the model which place a free-text description refers
// to. It returns UnknownLocation when the text names none; that sentinel is
// cached like any other answer. Cache entries are keyed by the first 100
// characters of the text.
func (s *Service) ExtractLocation(ctx context.Context, text string) (string, error) {
	log := logging.FromContext(ctx)
	if text == "" {
		return "", fmt.Errorf("%w: text description is required", ErrInvalidInput)
	}

	key := "location_extract:" + truncate(text, 100)
	if raw, ok := s.store.Get(ctx, key); ok {
		var entry struct {
			Location string `json:"location"`
		}
		if err := json.Unmarshal(raw, &entry); err == nil && entry.Location != "" {
			metrics.CacheLookups.WithLabelValues("location_extract", "hit").Inc()
			log.Debug("location extraction cache hit", "key", key)
			return entry.Location, nil
		}
	}
	metrics.CacheLookups.WithLabelValues("location_extract", "miss").Inc()

	p, err := s.provider()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrExtractionFailed, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Provider.Timeout.Std())
	defer cancel()

	start := time.Now()
	answer, err := p.GenerateText(callCtx, providers.TextRequest{
		Prompt:      extractionPrompt(text),
		Temperature: 0.2,
		MaxTokens:   100,
	})
	metrics.ExternalCallDuration.WithLabelValues("model").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExternalCallsTotal.WithLabelValues("model", "error").Inc()
		return "", fmt.Errorf("%w: %s", ErrExtractionFailed, err.Error())
	}
	metrics.ExternalCallsTotal.WithLabelValues("model", "success").Inc()

	location := strings.TrimSpace(answer)
	if location == "" {
		location = UnknownLocation
	}

	if raw, err := json.Marshal(map[string]string{"location": location}); err == nil {
		s.store.Put(ctx, key, raw, s.cfg.Cache.TTL.Std())
	}
	log.Info("extracted location from text", "location", location)
	return location, nil
}

// visionPrompt asks for an authenticity analysis with an explicit 0-100
// score the verdict parser can find.
func visionPrompt(description string) string {
	return fmt.Sprintf(`Analyze this disaster image. Is it authentic or manipulated? Does it match the following description: %q? Provide a brief analysis and a verification score from 0-100 (0 being definitely fake, 100 being definitely authentic).`, description)
}

// VerifyImage downloads the image, asks the vision model whether it is
// authentic and matches the description, and derives a score and verdict
// from the analysis text. Results are cached per image URL, so the same
// image attached to several reports is analyzed once.
func (s *Service) VerifyImage(ctx context.Context, imageURL, description string) (*Verification, error) {
	log := logging.FromContext(ctx)
	if imageURL == "" {
		return nil, fmt.Errorf("%w: image URL is required", ErrInvalidInput)
	}

	key := "image_verify:" + imageURL
	if raw, ok := s.store.Get(ctx, key); ok {
		var v Verification
		if err := json.Unmarshal(raw, &v); err == nil && v.Verdict != "" {
			metrics.CacheLookups.WithLabelValues("image_verify", "hit").Inc()
			log.Debug("image verification cache hit", "key", key)
			return &v, nil
		}
	}
	metrics.CacheLookups.WithLabelValues("image_verify", "miss").Inc()

	p, err := s.provider()
	if err != nil {
		return nil, err
	}

	data, mimeType, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		metrics.ExternalCallsTotal.WithLabelValues("image_fetch", "error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrImageFetchFailed, err.Error())
	}
	metrics.ExternalCallsTotal.WithLabelValues("image_fetch", "success").Inc()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Provider.Timeout.Std())
	defer cancel()

	start := time.Now()
	analysis, err := p.AnalyzeImage(callCtx, providers.VisionRequest{
		Prompt:      visionPrompt(description),
		MIMEType:    mimeType,
		Data:        data,
		Temperature: 0.2,
		MaxTokens:   800,
	})
	metrics.ExternalCallDuration.WithLabelValues("model").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExternalCallsTotal.WithLabelValues("model", "error").Inc()
		return nil, err
	}
	metrics.ExternalCallsTotal.WithLabelValues("model", "success").Inc()

	if strings.TrimSpace(analysis) == "" {
		analysis = "Unable to analyze image"
	}
	score, _ := verdict.ParseScore(analysis)
	v := &Verification{
		Analysis: analysis,
		Score:    score,
		Verdict:  verdict.Classify(score),
	}

	if raw, err := json.Marshal(v); err == nil {
		s.store.Put(ctx, key, raw, s.cfg.Cache.TTL.Std())
	}
	log.Info("verified image", "image_url", imageURL, "score", v.Score, "verdict", v.Verdict)
	return v, nil
}

func (s *Service) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.imageHTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d fetching image", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}

// EnqueueVerification submits a report image for background verification.
// The report is marked pending immediately; the verdict arrives later via
// the report store and registered hooks. Returns false when the queue is
// full, which is logged but deliberately not an error for the submitter.
func (s *Service) EnqueueVerification(ctx context.Context, job verifyqueue.Job) bool {
	return s.queue.Enqueue(ctx, job)
}

func (s *Service) verifyForQueue(ctx context.Context, imageURL, description string) (verifyqueue.Outcome, error) {
	v, err := s.VerifyImage(ctx, imageURL, description)
	if err != nil {
		return verifyqueue.Outcome{}, err
	}
	return verifyqueue.Outcome{Status: v.Verdict, Score: v.Score}, nil
}

// truncate returns at most n characters of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
