package coder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/majorcontext/qwencoder/config"
	"github.com/majorcontext/qwencoder/credential"
	"github.com/majorcontext/qwencoder/internal/log"
	"github.com/majorcontext/qwencoder/internal/telemetry"
)

const (
	tokenPath    = "/auth/token"
	analyzePath  = "/code/analyze"
	generatePath = "/code/generate"
	refactorPath = "/code/refactor"

	// defaultLanguage is used by GenerateCode when no language is given.
	defaultLanguage = "typescript"

	// maxResponseBytes limits the size of operation responses.
	maxResponseBytes = 1 << 20 // 1 MB
)

// Client calls the Qwen3-Coder API. It is safe for concurrent use; all
// calls share one credential gate and therefore one cached token.
type Client struct {
	cfg    config.Config
	http   *http.Client
	gate   *credential.Gate
	tracer trace.Tracer
}

type options struct {
	httpClient     *http.Client
	now            func() time.Time
	tracerProvider trace.TracerProvider
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for token exchanges and
// operations. If its Timeout is zero, the configured timeout is applied to a
// copy.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock replaces time.Now for token expiry decisions (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTracerProvider sets the provider for client spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// NewClient validates cfg (after filling defaults) and returns a client with
// an empty token cache. No network call is made.
func NewClient(cfg config.Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if o.httpClient != nil {
		c := *o.httpClient
		if c.Timeout == 0 {
			c.Timeout = cfg.Timeout
		}
		httpClient = &c
	}

	gateOpts := []credential.GateOption{
		credential.WithTokenURL(cfg.Endpoint(tokenPath)),
		credential.WithHTTPClient(httpClient),
		credential.WithRefreshMargin(cfg.RefreshMargin),
		credential.WithTracerProvider(o.tracerProvider),
	}
	if o.now != nil {
		gateOpts = append(gateOpts, credential.WithClock(o.now))
	}
	gate, err := credential.NewGate(cfg.APIKey, gateOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		gate:   gate,
		tracer: telemetry.Tracer(o.tracerProvider),
	}, nil
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Gate returns the client's credential gate.
func (c *Client) Gate() *credential.Gate {
	return c.gate
}

// AnalyzeCode asks the service to analyze req.Code for req.Task.
func (c *Client) AnalyzeCode(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	body := analyzeBody{
		Code:     req.Code,
		Language: req.Language,
		Task:     req.Task,
		Model:    c.cfg.Model,
	}
	var out AnalysisResponse
	if err := c.post(ctx, "analyze", analyzePath, body, &out); err != nil {
		return nil, &AnalysisError{Err: err}
	}
	return &out, nil
}

// GenerateCode generates code for prompt. An empty language means
// "typescript".
func (c *Client) GenerateCode(ctx context.Context, prompt, language string) (string, error) {
	if language == "" {
		language = defaultLanguage
	}
	body := generateBody{
		Prompt:   prompt,
		Language: language,
		Model:    c.cfg.Model,
	}
	var out generateResponse
	if err := c.post(ctx, "generate", generatePath, body, &out); err != nil {
		return "", &GenerationError{Err: err}
	}
	return out.Code, nil
}

// RefactorCode rewrites code toward objective.
func (c *Client) RefactorCode(ctx context.Context, code, objective string) (string, error) {
	body := refactorBody{
		Code:      code,
		Objective: objective,
		Model:     c.cfg.Model,
	}
	var out refactorResponse
	if err := c.post(ctx, "refactor", refactorPath, body, &out); err != nil {
		return "", &RefactorError{Err: err}
	}
	return out.RefactoredCode, nil
}

// post obtains a token, sends body as JSON to path and decodes a 2xx
// response into out.
func (c *Client) post(ctx context.Context, op, path string, body, out any) (err error) {
	ctx, span := telemetry.Start(ctx, c.tracer, "coder."+op,
		attribute.String("qwen.operation", op),
		attribute.String("qwen.model", c.cfg.Model),
	)
	defer func() { telemetry.End(span, err) }()

	start := time.Now()
	defer func() {
		if err != nil {
			log.WarnContext(ctx, "qwen request failed", "operation", op, "error", err, "duration", time.Since(start))
		}
	}()

	tok, err := c.gate.Token(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()
	telemetry.StatusCode(span, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	log.DebugContext(ctx, "qwen request completed", "operation", op, "status", resp.StatusCode, "duration", time.Since(start))
	return nil
}
