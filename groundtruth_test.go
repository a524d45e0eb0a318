package groundtruth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/relief-labs/groundtruth/internal/verifyqueue"
	"github.com/relief-labs/groundtruth/providers"
	"github.com/relief-labs/groundtruth/verdict"
)

// fakeProvider is a scriptable model provider for facade tests.
type fakeProvider struct {
	textCalls   atomic.Int64
	visionCalls atomic.Int64
	textReply   string
	visionReply string
	err         error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GenerateText(_ context.Context, _ providers.TextRequest) (string, error) {
	f.textCalls.Add(1)
	return f.textReply, f.err
}

func (f *fakeProvider) AnalyzeImage(_ context.Context, _ providers.VisionRequest) (string, error) {
	f.visionCalls.Add(1)
	return f.visionReply, f.err
}

const miamiGeoJSON = `{
	"features": [{
		"center": [-80.19, 25.76],
		"place_name": "Miami, Florida, United States",
		"bbox": [-80.32, 25.70, -80.14, 25.86]
	}]
}`

func newTestService(t *testing.T, geoHandler http.HandlerFunc, p providers.Provider) *Service {
	t.Helper()
	geo := httptest.NewServer(geoHandler)
	t.Cleanup(geo.Close)

	cfg := Config{
		Geocoder: GeocoderConfig{Token: "test-token", BaseURL: geo.URL},
		Provider: ProviderConfig{Name: "fake"},
	}
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	if p != nil {
		svc.RegisterProvider(p)
	}
	return svc
}

func TestService_Geocode(t *testing.T) {
	var calls atomic.Int64
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(miamiGeoJSON))
	}, nil)

	loc, err := svc.Geocode(context.Background(), "Miami")
	if err != nil {
		t.Fatalf("Geocode() error: %v", err)
	}
	if loc.Longitude != -80.19 || loc.Latitude != 25.76 {
		t.Errorf("coordinates = %v,%v", loc.Longitude, loc.Latitude)
	}
	if loc.FullName != "Miami, Florida, United States" {
		t.Errorf("full name = %q", loc.FullName)
	}
	if len(loc.BoundingBox) != 4 {
		t.Errorf("bounding box = %v", loc.BoundingBox)
	}
	if loc.LocationName != "Miami" {
		t.Errorf("location name = %q", loc.LocationName)
	}
}

func TestService_Geocode_CacheNormalizesKey(t *testing.T) {
	var calls atomic.Int64
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(miamiGeoJSON))
	}, nil)
	ctx := context.Background()

	if _, err := svc.Geocode(ctx, "Miami"); err != nil {
		t.Fatalf("Geocode() error: %v", err)
	}
	if _, err := svc.Geocode(ctx, "  MIAMI  "); err != nil {
		t.Fatalf("Geocode() error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestService_Geocode_EmptyInput(t *testing.T) {
	var calls atomic.Int64
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, nil)

	_, err := svc.Geocode(context.Background(), "   ")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
	if calls.Load() != 0 {
		t.Error("empty input reached the geocoder")
	}
}

func TestService_Geocode_NotFound(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}, nil)

	_, err := svc.Geocode(context.Background(), "Nowhereville-xyz")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestService_Geocode_UpstreamDown(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	geo.Close()

	cfg := Config{Geocoder: GeocoderConfig{Token: "t", BaseURL: geo.URL}}
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer svc.Close()

	_, err = svc.Geocode(context.Background(), "Miami")
	if !errors.Is(err, ErrGeocodingFailed) {
		t.Fatalf("error = %v, want ErrGeocodingFailed", err)
	}
}

func TestService_ExtractLocation(t *testing.T) {
	p := &fakeProvider{textReply: "Miami, Florida"}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	got, err := svc.ExtractLocation(context.Background(), "Massive flooding reported in Miami, Florida after the hurricane")
	if err != nil {
		t.Fatalf("ExtractLocation() error: %v", err)
	}
	if got != "Miami, Florida" {
		t.Errorf("ExtractLocation() = %q", got)
	}
}

func TestService_ExtractLocation_Cached(t *testing.T) {
	p := &fakeProvider{textReply: "Miami, Florida"}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)
	ctx := context.Background()

	text := "Massive flooding reported in Miami, Florida"
	if _, err := svc.ExtractLocation(ctx, text); err != nil {
		t.Fatalf("ExtractLocation() error: %v", err)
	}
	if _, err := svc.ExtractLocation(ctx, text); err != nil {
		t.Fatalf("ExtractLocation() error: %v", err)
	}
	if got := p.textCalls.Load(); got != 1 {
		t.Errorf("model calls = %d, want 1", got)
	}
}

func TestService_ExtractLocation_CacheKeyUsesPrefix(t *testing.T) {
	p := &fakeProvider{textReply: "Miami"}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)
	ctx := context.Background()

	prefix := strings.Repeat("a", 100)
	if _, err := svc.ExtractLocation(ctx, prefix+" flooding in Miami"); err != nil {
		t.Fatalf("ExtractLocation() error: %v", err)
	}
	// Same first 100 characters, different tail: shares the cache entry.
	if _, err := svc.ExtractLocation(ctx, prefix+" wildfire near Boise"); err != nil {
		t.Fatalf("ExtractLocation() error: %v", err)
	}
	if got := p.textCalls.Load(); got != 1 {
		t.Errorf("model calls = %d, want 1", got)
	}
}

func TestService_ExtractLocation_Sentinel(t *testing.T) {
	p := &fakeProvider{textReply: ""}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	got, err := svc.ExtractLocation(context.Background(), "Something terrible happened")
	if err != nil {
		t.Fatalf("ExtractLocation() error: %v", err)
	}
	if got != UnknownLocation {
		t.Errorf("ExtractLocation() = %q, want %q", got, UnknownLocation)
	}
}

func TestService_ExtractLocation_EmptyInput(t *testing.T) {
	p := &fakeProvider{}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	_, err := svc.ExtractLocation(context.Background(), "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
	if p.textCalls.Load() != 0 {
		t.Error("empty input reached the model")
	}
}

func TestService_ExtractLocation_ModelFailure(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota exceeded")}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	_, err := svc.ExtractLocation(context.Background(), "flooding in Miami")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("error = %v, want ErrExtractionFailed", err)
	}
}

func TestService_VerifyImage(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake-png-bytes"))
	}))
	defer img.Close()

	p := &fakeProvider{visionReply: "The image shows real flood damage consistent with the description. Score: 85/100"}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	v, err := svc.VerifyImage(context.Background(), img.URL+"/flood.png", "Flooding downtown")
	if err != nil {
		t.Fatalf("VerifyImage() error: %v", err)
	}
	if v.Score != 85 {
		t.Errorf("score = %d, want 85", v.Score)
	}
	if v.Verdict != verdict.StatusVerified {
		t.Errorf("verdict = %q, want verified", v.Verdict)
	}
	if !strings.Contains(v.Analysis, "flood damage") {
		t.Errorf("analysis = %q", v.Analysis)
	}
}

func TestService_VerifyImage_CachedPerURL(t *testing.T) {
	var fetches atomic.Int64
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("bytes"))
	}))
	defer img.Close()

	p := &fakeProvider{visionReply: "Score: 20/100, clearly manipulated"}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)
	ctx := context.Background()

	url := img.URL + "/a.jpg"
	if _, err := svc.VerifyImage(ctx, url, "desc one"); err != nil {
		t.Fatalf("VerifyImage() error: %v", err)
	}
	// Different description, same URL: cache key is the URL alone.
	v, err := svc.VerifyImage(ctx, url, "desc two")
	if err != nil {
		t.Fatalf("VerifyImage() error: %v", err)
	}
	if p.visionCalls.Load() != 1 || fetches.Load() != 1 {
		t.Errorf("vision calls = %d, fetches = %d, want 1 each", p.visionCalls.Load(), fetches.Load())
	}
	if v.Verdict != verdict.StatusFake {
		t.Errorf("verdict = %q, want fake", v.Verdict)
	}
}

func TestService_VerifyImage_NoScoreDefaultsUncertain(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer img.Close()

	p := &fakeProvider{visionReply: "The image is too blurry to judge."}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	v, err := svc.VerifyImage(context.Background(), img.URL, "desc")
	if err != nil {
		t.Fatalf("VerifyImage() error: %v", err)
	}
	if v.Score != verdict.DefaultScore {
		t.Errorf("score = %d, want %d", v.Score, verdict.DefaultScore)
	}
	if v.Verdict != verdict.StatusUncertain {
		t.Errorf("verdict = %q, want uncertain", v.Verdict)
	}
}

func TestService_VerifyImage_EmptyAnalysis(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer img.Close()

	p := &fakeProvider{visionReply: "  "}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	v, err := svc.VerifyImage(context.Background(), img.URL, "desc")
	if err != nil {
		t.Fatalf("VerifyImage() error: %v", err)
	}
	if v.Analysis != "Unable to analyze image" {
		t.Errorf("analysis = %q", v.Analysis)
	}
}

func TestService_VerifyImage_FetchFailure(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer img.Close()

	p := &fakeProvider{visionReply: "Score: 90/100"}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	_, err := svc.VerifyImage(context.Background(), img.URL+"/missing.jpg", "desc")
	if !errors.Is(err, ErrImageFetchFailed) {
		t.Fatalf("error = %v, want ErrImageFetchFailed", err)
	}
	if p.visionCalls.Load() != 0 {
		t.Error("model was called despite failed image fetch")
	}
}

func TestService_VerifyImage_EmptyURL(t *testing.T) {
	p := &fakeProvider{}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	_, err := svc.VerifyImage(context.Background(), "", "desc")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestService_EnqueueVerification(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer img.Close()

	p := &fakeProvider{visionReply: "Authentic. 90/100"}
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) {}, p)

	events := make(chan verifyqueue.Event, 1)
	svc.AddHook(func(_ context.Context, e verifyqueue.Event) {
		events <- e
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartVerifier(ctx)

	ok := svc.EnqueueVerification(ctx, verifyqueue.Job{
		ReportID:    "r1",
		DisasterID:  "d1",
		ImageURL:    img.URL,
		Description: "flooding",
	})
	if !ok {
		t.Fatal("EnqueueVerification() = false")
	}
	e := <-events
	if e.VerificationStatus != "verified" || e.ReportID != "r1" || e.DisasterID != "d1" {
		t.Errorf("event = %+v", e)
	}
}
