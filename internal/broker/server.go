package broker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const claimsKey = "identity_claims"

// Options configure the broker HTTP server.
type Options struct {
	Secret []byte
	Minter Minter
	Logger *slog.Logger
}

// Server exposes /health and /v1/token.
type Server struct {
	echo   *echo.Echo
	secret []byte
	minter Minter
	logger *slog.Logger
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewServer wires routes and middleware.
func NewServer(opts Options) (*Server, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("broker: jwt secret is required")
	}
	if opts.Minter == nil {
		return nil, errors.New("broker: minter is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, secret: opts.Secret, minter: opts.Minter, logger: opts.Logger}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{"method", v.Method, "uri", v.URI, "status", v.Status}
			if v.Error != nil {
				fields = append(fields, "error", v.Error.Error())
			}
			s.logger.Info("broker request", fields...)
			return nil
		},
	}))

	e.GET("/health", s.health)
	v1 := e.Group("/v1")
	v1.POST("/token", s.issueToken, s.requireIdentity)

	return s, nil
}

// Handler returns the HTTP handler for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "viva-broker",
	})
}

func (s *Server) requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := ValidateIdentityToken(s.secret, bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)))
		if err != nil {
			s.logger.Warn("identity rejected", "error", err.Error())
			return c.JSON(http.StatusUnauthorized, errorResponse{
				Error:   "unauthorized",
				Message: "valid bearer identity token required",
			})
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

func (s *Server) issueToken(c echo.Context) error {
	claims, _ := c.Get(claimsKey).(*Claims)
	subject := ""
	if claims != nil {
		subject = claims.Subject
	}

	minted, err := s.minter.Mint(c.Request().Context(), subject)
	if err != nil {
		s.logger.Error("mint credential failed", "subject", subject, "error", err.Error())
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error:   "mint_failed",
			Message: "unable to mint streaming credential",
		})
	}

	s.logger.Info("credential issued", "subject", subject, "expires_at", minted.ExpiresAt)
	return c.JSON(http.StatusOK, tokenResponse{Token: minted.Token, ExpiresAt: minted.ExpiresAt})
}
