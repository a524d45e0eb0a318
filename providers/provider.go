// Package providers defines the Provider interface and the generative-model
// backends the service can call for text extraction and image analysis.
//
// Providers are deliberately narrow: the service needs exactly two one-shot
// capabilities, a text completion for a prompt and a completion for a prompt
// plus inline image bytes. Both return the model's first answer as plain text.
package providers

import "context"

// TextRequest is a single text-generation call.
type TextRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// VisionRequest is a single image-analysis call. Data holds the raw image
// bytes; each provider handles its own transport encoding.
type VisionRequest struct {
	Prompt      string
	MIMEType    string
	Data        []byte
	Temperature float64
	MaxTokens   int
}

// Provider is a generative-model backend.
type Provider interface {
	Name() string
	// GenerateText returns the model's first candidate answer for the prompt.
	// An empty string with a nil error means the model produced no usable text.
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	// AnalyzeImage returns the model's free-text judgment of the image.
	AnalyzeImage(ctx context.Context, req VisionRequest) (string, error)
}
