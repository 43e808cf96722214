// Package gemini serves Google Gemini models through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/harora-WM/chaos-engineering-api/internal/llm"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
	"google.golang.org/genai"
)

const ProviderName = "gemini"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

// ContentAPI is the subset of genai.Models the model calls.
type ContentAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Model implements models.TextModel on the Gemini API.
type Model struct {
	api   ContentAPI
	model string
}

// New creates a Gemini client for cfg.
func New(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini: model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return NewWithAPI(client.Models, cfg.Model), nil
}

// NewWithAPI builds a Model on an existing ContentAPI.
func NewWithAPI(api ContentAPI, model string) *Model {
	return &Model{api: api, model: model}
}

func (m *Model) Name() string    { return ProviderName }
func (m *Model) ModelID() string { return m.model }

func (m *Model) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	resp, err := m.api.GenerateContent(ctx, m.model, genai.Text(req.Prompt), contentConfig(req))
	if err != nil {
		return "", classifyError(err)
	}
	return resp.Text(), nil
}

func (m *Model) Stream(ctx context.Context, req models.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range m.api.GenerateContentStream(ctx, m.model, genai.Text(req.Prompt), contentConfig(req)) {
			if err != nil {
				yield("", classifyError(err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func contentConfig(req models.GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	return cfg
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return llm.NewTransportError(err)
		}
		apiErr = *ptr
	}

	code := apiErr.Status
	if code == "" {
		code = http.StatusText(apiErr.Code)
	}
	pe := &llm.ProviderError{Code: code, Message: apiErr.Message}
	switch apiErr.Code {
	case http.StatusNotFound:
		pe.Kind = llm.ErrModelNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		pe.Kind = llm.ErrAccessDenied
	}
	return pe
}

// Compile-time check that Model implements TextModel.
var _ models.TextModel = (*Model)(nil)
