package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewGemini(t *testing.T) {
	p, err := NewGemini("test-key", "")
	if err != nil {
		t.Fatalf("NewGemini() error: %v", err)
	}
	if p.Name() != "gemini" {
		t.Errorf("Name() = %q, want gemini", p.Name())
	}
}

func TestGeminiProvider_GenerateText(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Miami, FL"}]}}]}`))
	}))
	defer srv.Close()

	p, _ := NewGemini("test-key", srv.URL)
	got, err := p.GenerateText(context.Background(), TextRequest{
		Prompt:      "Extract the location",
		Temperature: 0.2,
		MaxTokens:   100,
	})
	if err != nil {
		t.Fatalf("GenerateText() error: %v", err)
	}
	if got != "Miami, FL" {
		t.Errorf("GenerateText() = %q, want %q", got, "Miami, FL")
	}
	cfg, ok := gotBody["generationConfig"].(map[string]any)
	if !ok {
		t.Fatal("request missing generationConfig")
	}
	if cfg["temperature"] != 0.2 {
		t.Errorf("temperature = %v, want 0.2", cfg["temperature"])
	}
}

func TestGeminiProvider_GenerateText_MultipleParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello"},{"text":" world"}]}}]}`))
	}))
	defer srv.Close()

	p, _ := NewGemini("test-key", srv.URL)
	got, err := p.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateText() error: %v", err)
	}
	if got != "Hello world" {
		t.Errorf("GenerateText() = %q, want %q", got, "Hello world")
	}
}

func TestGeminiProvider_GenerateText_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	p, _ := NewGemini("test-key", srv.URL)
	got, err := p.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateText() error: %v", err)
	}
	if got != "" {
		t.Errorf("GenerateText() = %q, want empty", got)
	}
}

func TestGeminiProvider_AnalyzeImage_InlineData(t *testing.T) {
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotRaw = string(raw)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Score: 85"}]}}]}`))
	}))
	defer srv.Close()

	p, _ := NewGemini("test-key", srv.URL)
	got, err := p.AnalyzeImage(context.Background(), VisionRequest{
		Prompt:   "Analyze this disaster image.",
		MIMEType: "image/png",
		Data:     []byte("fake-image-bytes"),
	})
	if err != nil {
		t.Fatalf("AnalyzeImage() error: %v", err)
	}
	if got != "Score: 85" {
		t.Errorf("AnalyzeImage() = %q, want %q", got, "Score: 85")
	}
	if !strings.Contains(gotRaw, `"inline_data"`) {
		t.Error("request body missing inline_data part")
	}
	if !strings.Contains(gotRaw, `"mime_type":"image/png"`) {
		t.Errorf("request body missing mime_type, got %s", gotRaw)
	}
}

func TestGeminiProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	p, _ := NewGemini("test-key", srv.URL)
	_, err := p.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error %q missing upstream message", err)
	}
}
