// Package bedrock serves Anthropic models through AWS Bedrock Runtime.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/harora-WM/chaos-engineering-api/internal/llm"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

const (
	ProviderName     = "bedrock"
	anthropicVersion = "bedrock-2023-05-31"
	contentTypeJSON  = "application/json"
	eventTextDelta   = "content_block_delta"
)

// Config selects the model and where to reach it.
type Config struct {
	Region   string
	ModelID  string
	Endpoint string // optional override, e.g. a VPC endpoint or a local stub
}

// EventStream is the receiving side of InvokeModelWithResponseStream.
type EventStream interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

// API is the subset of Bedrock Runtime the model calls.
type API interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	OpenStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput) (EventStream, error)
}

// sdkAPI adapts the SDK client to API.
type sdkAPI struct {
	*bedrockruntime.Client
}

func (a sdkAPI) OpenStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput) (EventStream, error) {
	out, err := a.InvokeModelWithResponseStream(ctx, params)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// Model implements models.TextModel on Bedrock.
type Model struct {
	api     API
	modelID string
}

// New loads ambient AWS credentials for cfg.Region and returns a Model.
// SDK-level retries are disabled; the invoker owns the retry policy.
func New(ctx context.Context, cfg Config, optFns ...func(*awsconfig.LoadOptions) error) (*Model, error) {
	if cfg.ModelID == "" {
		return nil, errors.New("bedrock: model id is required")
	}

	opts := append([]func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	}, optFns...)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithAPI(sdkAPI{client}, cfg.ModelID), nil
}

// NewWithAPI builds a Model on an existing API implementation.
func NewWithAPI(api API, modelID string) *Model {
	return &Model{api: api, modelID: modelID}
}

func (m *Model) Name() string    { return ProviderName }
func (m *Model) ModelID() string { return m.modelID }

// Generate returns the first text block of the model's reply.
func (m *Model) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return "", llm.NewTransportError(err)
	}

	out, err := m.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(m.modelID),
		Body:        body,
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
	})
	if err != nil {
		return "", classifyError(err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", llm.NewTransportError(fmt.Errorf("decoding model response: %w", err))
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}

// Stream yields the text of each content_block_delta event. The response
// stream is closed when the sequence ends or the consumer stops early.
func (m *Model) Stream(ctx context.Context, req models.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := encodeRequest(req)
		if err != nil {
			yield("", llm.NewTransportError(err))
			return
		}

		stream, err := m.api.OpenStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(m.modelID),
			Body:        body,
			ContentType: aws.String(contentTypeJSON),
			Accept:      aws.String(contentTypeJSON),
		})
		if err != nil {
			yield("", classifyError(err))
			return
		}
		defer stream.Close()

		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}

			var ev streamEvent
			if err := json.Unmarshal(chunk.Value.Bytes, &ev); err != nil {
				yield("", llm.NewTransportError(fmt.Errorf("decoding stream chunk: %w", err)))
				return
			}
			if ev.Type != eventTextDelta || ev.Delta.Text == "" {
				continue
			}
			if !yield(ev.Delta.Text, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield("", classifyError(err))
		}
	}
}

func encodeRequest(req models.GenerateRequest) ([]byte, error) {
	return json.Marshal(messagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: req.Prompt}},
		}},
	})
}

// classifyError separates service rejections from transport failures.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe := &llm.ProviderError{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException":
			pe.Kind = llm.ErrModelNotFound
		case "AccessDeniedException":
			pe.Kind = llm.ErrAccessDenied
		}
		return pe
	}
	return llm.NewTransportError(err)
}

// --- Anthropic messages wire types ---

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      *float64  `json:"temperature,omitempty"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// Compile-time check that Model implements TextModel.
var _ models.TextModel = (*Model)(nil)
