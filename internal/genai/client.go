// Package genai talks to an OpenAI-compatible chat completion API and turns its answers into
// shop replies, interpretations of short customer answers, and problem analyses.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default models. The fast model answers short, latency-sensitive prompts.
const (
	DefaultModel     = string(openai.ChatModelGPT4o)
	DefaultFastModel = string(openai.ChatModelGPT4oMini)
)

var (
	// ErrNoAPIKey is returned by NewClient when no key is configured.
	ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")
	// ErrNoChoicesReturned is returned when the API answers without a choice.
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completions struct {
	svc openai.ChatCompletionService
}

func (c completions) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey    string
	BaseURL   string
	Model     string
	FastModel string
	DebugMode bool
	StateDir  string
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the API key. OPENAI_API_KEY is used when empty.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithModel sets the model used for full answers.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithFastModel sets the model used for short answers.
func WithFastModel(model string) Option {
	return func(o *Opts) { o.FastModel = model }
}

// WithDebugMode writes every request and response under <state dir>/debug.
func WithDebugMode(on bool) Option {
	return func(o *Opts) { o.DebugMode = on }
}

// WithStateDir sets where debug logs go.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// Client wraps the chat completion service.
type Client struct {
	chat      chatService
	model     string
	fastModel string
	debugMode bool
	stateDir  string
}

// NewClient returns a client, or ErrNoAPIKey when no key is configured.
func NewClient(opts ...Option) (*Client, error) {
	o := Opts{Model: DefaultModel, FastModel: DefaultFastModel}
	for _, opt := range opts {
		opt(&o)
	}
	if o.APIKey == "" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if o.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(o.APIKey), option.WithMaxRetries(0)}
	if o.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	return &Client{
		chat:      completions{svc: cli.Chat.Completions},
		model:     o.Model,
		fastModel: o.FastModel,
		debugMode: o.DebugMode,
		stateDir:  o.StateDir,
	}, nil
}

// request is one completion call.
type request struct {
	method      string
	fast        bool
	messages    []openai.ChatCompletionMessageParamUnion
	maxTokens   int64
	temperature float64
	topP        float64
}

// complete runs req and returns the first choice's content.
func (c *Client) complete(ctx context.Context, req request) (string, error) {
	model := c.model
	if req.fast {
		model = c.fastModel
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: req.messages,
	}
	if req.maxTokens > 0 {
		params.MaxTokens = openai.Int(req.maxTokens)
	}
	if req.temperature > 0 {
		params.Temperature = openai.Float(req.temperature)
	}
	if req.topP > 0 {
		params.TopP = openai.Float(req.topP)
	}

	resp, err := c.chat.Create(ctx, params)
	if c.debugMode {
		c.writeDebug(req.method, model, params, resp, err)
	}
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

type debugEntry struct {
	Timestamp time.Time                      `json:"timestamp"`
	Method    string                         `json:"method"`
	Model     string                         `json:"model"`
	Params    openai.ChatCompletionNewParams `json:"params"`
	Response  any                            `json:"response"`
	Error     string                         `json:"error,omitempty"`
}

// writeDebug records one call under <state dir>/debug. Failures are only logged.
func (c *Client) writeDebug(method, model string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion, callErr error) {
	entry := debugEntry{Timestamp: time.Now().UTC(), Method: method, Model: model, Params: params, Response: resp}
	if callErr != nil {
		entry.Error = callErr.Error()
		entry.Response = nil
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("Client.writeDebug: mkdir failed", "dir", dir, "error", err)
		return
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Client.writeDebug: marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", entry.Timestamp.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("Client.writeDebug: write failed", "error", err)
	}
}
