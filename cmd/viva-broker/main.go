// Package main runs the credential broker that mints single-use live tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/viva/internal/broker"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/logging"
	"github.com/rbright/viva/internal/version"
)

const (
	defaultAddr        = "127.0.0.1:8787"
	defaultIdentityTTL = 24 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches "serve" (default) and "issue".
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		return serve(ctx, args, stdout, stderr)
	case "issue":
		return issue(args, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String("viva-broker"))
		return 0
	default:
		fmt.Fprintf(stderr, "error: unknown command: %s\n%s", command, usage)
		return 2
	}
}

const usage = `Usage:
  viva-broker [serve] [--addr HOST:PORT] [--model MODEL] [--env-file PATH]
  viva-broker issue --subject NAME [--ttl DURATION] [--env-file PATH]
  viva-broker version
`

func serve(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", defaultAddr, "listen address")
	model := fs.String("model", config.DefaultModel, "live model tokens are locked to")
	baseURL := fs.String("base-url", "", "Gemini API base URL override")
	envFile := fs.String("env-file", ".env", "optional .env file with secrets")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logRuntime, err := logging.New(logging.Options{Name: "broker", Writer: stdout})
	if err != nil {
		fmt.Fprintf(stderr, "error: setup logging: %v\n", err)
		return 1
	}
	logger := logRuntime.Logger

	secrets, err := config.LoadSecrets(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if secrets.BrokerJWTSecret == "" {
		fmt.Fprintf(stderr, "error: %s is not set\n", config.EnvBrokerJWTSecret)
		return 1
	}

	minter, err := broker.NewGenaiMinter(ctx, broker.GenaiMinterConfig{
		APIKey:  secrets.GeminiAPIKey,
		BaseURL: *baseURL,
		Model:   *model,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	server, err := broker.NewServer(broker.Options{
		Secret: []byte(secrets.BrokerJWTSecret),
		Minter: minter,
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	logger.Info("broker listening", "addr", *addr, "model", *model, "version", version.Version)
	if err := server.Run(ctx, *addr); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("broker stopped", "error", err.Error())
		return 1
	}
	logger.Info("broker stopped")
	return 0
}

// issue prints an identity token for VIVA_IDENTITY_TOKEN.
func issue(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "candidate identity")
	ttl := fs.Duration("ttl", defaultIdentityTTL, "token lifetime")
	envFile := fs.String("env-file", ".env", "optional .env file with secrets")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*subject) == "" {
		fmt.Fprintln(stderr, "error: --subject is required")
		return 2
	}

	secrets, err := config.LoadSecrets(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if secrets.BrokerJWTSecret == "" {
		fmt.Fprintf(stderr, "error: %s is not set\n", config.EnvBrokerJWTSecret)
		return 1
	}

	token, err := broker.IssueIdentityToken([]byte(secrets.BrokerJWTSecret), *subject, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
