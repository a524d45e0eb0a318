package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default OpenAI models for the two capabilities the service uses.
const (
	defaultOpenAITextModel   = "gpt-4o-mini"
	defaultOpenAIVisionModel = "gpt-4o"
)

// OpenAIProvider implements Provider on the openai-go SDK. Image bytes travel
// as a base64 data URI in a multimodal content part.
type OpenAIProvider struct {
	client      openai.Client
	textModel   string
	visionModel string
	name        string
}

// NewOpenAI creates an OpenAI provider. The optional baseURL parameter
// allows overriding the API endpoint (pass "" for the default).
func NewOpenAI(apiKey string, baseURL string) (*OpenAIProvider, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		textModel:   defaultOpenAITextModel,
		visionModel: defaultOpenAIVisionModel,
		name:        "openai",
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return p.name }

// GenerateText sends a single text prompt and returns the first choice.
func (p *OpenAIProvider) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.textModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return p.complete(ctx, params)
}

// AnalyzeImage sends the prompt plus the image as a data URI and returns the
// first choice.
func (p *OpenAIProvider) AnalyzeImage(ctx context.Context, req VisionRequest) (string, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.Data))
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI}),
	}
	params := openai.ChatCompletionNewParams{
		Model: p.visionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return p.complete(ctx, params)
}

func (p *OpenAIProvider) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}
