package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultTokenTTL        = 30 * time.Minute
	defaultSessionStartTTL = time.Minute
)

// Minted is one issued streaming credential.
type Minted struct {
	Token     string
	ExpiresAt time.Time
}

// Minter issues a credential on behalf of subject.
type Minter interface {
	Mint(ctx context.Context, subject string) (Minted, error)
}

// MinterFunc adapts a function to Minter.
type MinterFunc func(context.Context, string) (Minted, error)

func (f MinterFunc) Mint(ctx context.Context, subject string) (Minted, error) {
	return f(ctx, subject)
}

// tokenCreator is the AuthTokens surface of the genai client.
type tokenCreator interface {
	Create(ctx context.Context, config *genai.CreateAuthTokenConfig) (*genai.AuthToken, error)
}

// GenaiMinterConfig configures ephemeral token minting.
type GenaiMinterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// TokenTTL bounds how long an opened session may use the token.
	TokenTTL time.Duration
	// SessionStartTTL bounds how long the token may be used to start a session.
	SessionStartTTL time.Duration
}

// GenaiMinter mints single-use ephemeral tokens locked to one live model.
type GenaiMinter struct {
	tokens tokenCreator
	cfg    GenaiMinterConfig
	now    func() time.Time
}

// NewGenaiMinter builds a Gemini API client for token minting.
func NewGenaiMinter(ctx context.Context, cfg GenaiMinterConfig) (*GenaiMinter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("genai minter: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("genai minter: model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: "v1alpha",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("genai minter: %w", err)
	}
	return newGenaiMinter(client.AuthTokens, cfg), nil
}

func newGenaiMinter(tokens tokenCreator, cfg GenaiMinterConfig) *GenaiMinter {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.SessionStartTTL <= 0 {
		cfg.SessionStartTTL = defaultSessionStartTTL
	}
	return &GenaiMinter{tokens: tokens, cfg: cfg, now: time.Now}
}

// Mint creates a token usable for exactly one session start.
func (m *GenaiMinter) Mint(ctx context.Context, _ string) (Minted, error) {
	now := m.now()
	expires := now.Add(m.cfg.TokenTTL)

	token, err := m.tokens.Create(ctx, &genai.CreateAuthTokenConfig{
		ExpireTime:           expires,
		NewSessionExpireTime: now.Add(m.cfg.SessionStartTTL),
		Uses:                 genai.Ptr[int32](1),
		LiveConnectConstraints: &genai.LiveConnectConstraints{
			Model: m.cfg.Model,
		},
	})
	if err != nil {
		return Minted{}, fmt.Errorf("create auth token: %w", err)
	}
	if token == nil || strings.TrimSpace(token.Name) == "" {
		return Minted{}, errors.New("create auth token: empty token name")
	}
	return Minted{Token: token.Name, ExpiresAt: expires}, nil
}
