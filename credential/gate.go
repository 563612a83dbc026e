package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/majorcontext/qwencoder/internal/log"
	"github.com/majorcontext/qwencoder/internal/telemetry"
)

const (
	// DefaultTokenURL is the token endpoint under the default base URL.
	DefaultTokenURL = "https://api.qwen.ai/v1/auth/token"

	// DefaultRefreshMargin is subtracted from the declared token lifetime so
	// tokens are renewed before the server expires them.
	DefaultRefreshMargin = 5 * time.Minute

	// DefaultTimeout bounds each exchange when no HTTP client is supplied.
	DefaultTimeout = 30 * time.Second

	// maxTokenResponseBytes limits the size of token endpoint responses.
	maxTokenResponseBytes = 1 << 20 // 1 MB

	exchangeKey = "exchange"
)

// Ensure Gate can back oauth2-aware HTTP clients.
var _ oauth2.TokenSource = (*boundSource)(nil)

// Gate exchanges an API key for bearer tokens and caches the result.
// A Gate is safe for concurrent use.
type Gate struct {
	apiKey   string
	tokenURL string
	client   *http.Client
	margin   time.Duration
	now      func() time.Time
	tracer   trace.Tracer

	cached atomic.Pointer[oauth2.Token]
	flight singleflight.Group
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(u string) GateOption {
	return func(g *Gate) { g.tokenURL = u }
}

// WithHTTPClient sets the client used for exchanges. Its Timeout is the
// overall bound for one exchange.
func WithHTTPClient(c *http.Client) GateOption {
	return func(g *Gate) { g.client = c }
}

// WithRefreshMargin sets how long before the declared expiry a token is
// considered stale.
func WithRefreshMargin(d time.Duration) GateOption {
	return func(g *Gate) { g.margin = d }
}

// WithClock replaces time.Now (for testing).
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithTracerProvider sets the provider for exchange spans.
func WithTracerProvider(tp trace.TracerProvider) GateOption {
	return func(g *Gate) { g.tracer = telemetry.Tracer(tp) }
}

// NewGate returns a gate for apiKey with an empty cache.
func NewGate(apiKey string, opts ...GateOption) (*Gate, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	g := &Gate{
		apiKey:   apiKey,
		tokenURL: DefaultTokenURL,
		margin:   DefaultRefreshMargin,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.margin < 0 {
		return nil, fmt.Errorf("refresh margin %v must not be negative", g.margin)
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: DefaultTimeout}
	}
	if g.tracer == nil {
		g.tracer = telemetry.Tracer(nil)
	}
	return g, nil
}

// Token returns a bearer token that is valid at the time of the call,
// exchanging the API key when the cache is empty or stale.
func (g *Gate) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := g.valid(); tok != nil {
		return tok, nil
	}

	// The exchange outlives any single caller; each caller waits on its own ctx.
	exchangeCtx := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(exchangeKey, func() (any, error) {
		if tok := g.valid(); tok != nil {
			return tok, nil
		}
		return g.exchange(exchangeCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, &AuthenticationError{Err: ctx.Err()}
	}
}

// TokenSource adapts the gate to oauth2.TokenSource, using ctx for exchanges.
func (g *Gate) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &boundSource{gate: g, ctx: ctx}
}

// Cached returns the cached token, which may be stale, or nil.
func (g *Gate) Cached() *oauth2.Token {
	return g.cached.Load()
}

// Invalidate drops the cached token; the next Token call exchanges again.
func (g *Gate) Invalidate() {
	g.cached.Store(nil)
}

// valid returns the cached token if it has not reached its expiry.
func (g *Gate) valid() *oauth2.Token {
	tok := g.cached.Load()
	if tok == nil || !g.now().Before(tok.Expiry) {
		return nil
	}
	return tok
}

// tokenResponse is the token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (g *Gate) exchange(ctx context.Context) (tok *oauth2.Token, err error) {
	ctx, span := telemetry.Start(ctx, g.tracer, "credential.exchange",
		attribute.String("url.full", g.tokenURL))
	defer func() { telemetry.End(span, err) }()

	log.DebugContext(ctx, "exchanging api key for access token", "url", g.tokenURL)

	resp, err := g.requestToken(ctx, span)
	if err != nil {
		log.WarnContext(ctx, "token exchange failed", "error", err)
		return nil, &AuthenticationError{Err: err}
	}

	issuedAt := g.now()
	lifetime := time.Duration(resp.ExpiresIn) * time.Second
	tok = &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: resp.RefreshToken,
		Expiry:       issuedAt.Add(lifetime - g.margin),
	}
	g.cached.Store(tok)

	log.DebugContext(ctx, "access token cached", "expires_at", tok.Expiry, "declared_lifetime", lifetime)
	return tok, nil
}

func (g *Gate) requestToken(ctx context.Context, span trace.Span) (*tokenResponse, error) {
	body, err := json.Marshal(map[string]string{"api_key": g.apiKey})
	if err != nil {
		return nil, fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()
	telemetry.StatusCode(span, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("no access token in token response")
	}
	return &tr, nil
}

// boundSource is a Gate bound to a context.
type boundSource struct {
	gate *Gate
	ctx  context.Context
}

func (s *boundSource) Token() (*oauth2.Token, error) {
	return s.gate.Token(s.ctx)
}
