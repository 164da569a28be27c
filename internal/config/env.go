package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables holding secrets. Secrets never live in config.jsonc.
const (
	EnvIdentityToken   = "VIVA_IDENTITY_TOKEN"
	EnvStaticAPIKey    = "VIVA_STATIC_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvBrokerJWTSecret = "VIVA_BROKER_JWT_SECRET"
)

// Secrets are the credentials viva and viva-broker read from the environment.
type Secrets struct {
	IdentityToken   string
	StaticAPIKey    string
	GeminiAPIKey    string
	BrokerJWTSecret string
	// Sources lists the env files that were read.
	Sources []string
}

// EnvPath returns the .env file that sits beside the config file.
func EnvPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".env")
}

// LoadSecrets reads the process environment over any of the given .env files.
// Missing files are skipped; process variables always win.
func LoadSecrets(envFiles ...string) (Secrets, error) {
	fileValues := map[string]string{}
	var sources []string
	for _, path := range envFiles {
		if strings.TrimSpace(path) == "" {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Secrets{}, fmt.Errorf("read env file %q: %w", path, err)
		}
		for key, value := range values {
			if _, seen := fileValues[key]; !seen {
				fileValues[key] = value
			}
		}
		sources = append(sources, path)
	}

	lookup := func(key string) string {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(fileValues[key])
	}

	return Secrets{
		IdentityToken:   lookup(EnvIdentityToken),
		StaticAPIKey:    lookup(EnvStaticAPIKey),
		GeminiAPIKey:    lookup(EnvGeminiAPIKey),
		BrokerJWTSecret: lookup(EnvBrokerJWTSecret),
		Sources:         sources,
	}, nil
}
