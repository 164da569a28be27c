// Package credential fetches the single-use access token for one live session.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrCredentialUnavailable reports a broker failure with no permitted fallback.
var ErrCredentialUnavailable = errors.New("credential unavailable")

// Token is an opaque, expiring credential for the streaming endpoint.
type Token struct {
	Value     string
	Static    bool
	FetchedAt time.Time
}

// String redacts the token value.
func (t Token) String() string {
	if t.Value == "" {
		return "<empty>"
	}
	if t.Static {
		return "<static credential>"
	}
	return "<broker token>"
}

// TokenPath is the broker route that mints session tokens.
const TokenPath = "/v1/token"

// TokenURL resolves a broker base URL to its token endpoint. A base that
// already carries a path is used as is.
func TokenURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	parsed, err := url.Parse(base)
	if err != nil || strings.Trim(parsed.Path, "/") != "" {
		return base
	}
	parsed.Path = TokenPath
	return parsed.String()
}

// Options configure one broker client.
type Options struct {
	BrokerURL     string
	IdentityToken string
	Timeout       time.Duration
	HTTPClient    *http.Client
	UserAgent     string

	AllowStaticFallback bool
	StaticKey           string

	Logger *slog.Logger
	Now    func() time.Time
}

// Client requests tokens from the credential broker.
type Client struct {
	opts Options
}

// NewClient applies defaults to opts.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{opts: opts}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Acquire performs exactly one broker request. There is no caching or refresh.
func (c *Client) Acquire(ctx context.Context) (Token, error) {
	token, err := c.fetch(ctx)
	if err == nil {
		return token, nil
	}

	if !c.opts.AllowStaticFallback {
		return Token{}, err
	}
	key := strings.TrimSpace(c.opts.StaticKey)
	if key == "" {
		return Token{}, fmt.Errorf("%w; static fallback enabled but no static key configured", err)
	}

	c.opts.Logger.Warn("broker unavailable; using static credential", "error", err.Error())
	return Token{Value: key, Static: true, FetchedAt: c.opts.Now()}, nil
}

func (c *Client) fetch(ctx context.Context) (Token, error) {
	brokerURL := strings.TrimSpace(c.opts.BrokerURL)
	if brokerURL == "" {
		return Token{}, fmt.Errorf("%w: broker url is not configured", ErrCredentialUnavailable)
	}
	identity := strings.TrimSpace(c.opts.IdentityToken)
	if identity == "" {
		return Token{}, fmt.Errorf("%w: identity token is not set", ErrCredentialUnavailable)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, brokerURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Token{}, fmt.Errorf("%w: build broker request: %w", ErrCredentialUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+identity)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: broker request: %w", ErrCredentialUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Token{}, fmt.Errorf("%w: broker returned %d: %s", ErrCredentialUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Token{}, fmt.Errorf("%w: decode broker response: %w", ErrCredentialUnavailable, err)
	}
	if strings.TrimSpace(decoded.Token) == "" {
		return Token{}, fmt.Errorf("%w: broker returned an empty token", ErrCredentialUnavailable)
	}

	return Token{Value: decoded.Token, FetchedAt: c.opts.Now()}, nil
}

// IsUnavailable reports whether err stems from credential acquisition.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCredentialUnavailable)
}
