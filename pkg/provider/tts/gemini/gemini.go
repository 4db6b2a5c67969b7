// Package gemini implements the tts.Provider interface on the Gemini
// generateContent API with the audio response modality, using the official
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/eimkon/eimkon/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// DefaultModels is the ordered list of TTS model variants tried by narration.
var DefaultModels = []string{
	"gemini-2.5-flash-preview-tts",
	"gemini-2.5-pro-preview-tts",
	"gemini-2.5-flash-lite-preview-tts",
}

// DefaultVoice is the prebuilt narration voice.
const DefaultVoice = "Zephyr"

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL overrides the API endpoint. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements tts.Provider with a genai client.
type Provider struct {
	client *genai.Client
}

// New creates a Provider authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini tts: missing API key")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: new client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Synthesize implements tts.Provider. It returns the first inline audio part
// of the first candidate.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Text), cfg)
	if err != nil {
		if isQuota(err) {
			return nil, fmt.Errorf("gemini tts: %s: %w: %w", req.Model, tts.ErrQuotaExhausted, err)
		}
		return nil, fmt.Errorf("gemini tts: %s: %w", req.Model, err)
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, nil
}

// isQuota reports whether err is a resource-exhaustion signal from the API.
func isQuota(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "quota")
}
