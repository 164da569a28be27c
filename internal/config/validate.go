package config

import (
	"fmt"
	"net/url"
	"strings"
)

const maxFrameSamples = 16384

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Interview.ExperienceYears < 0 {
		return nil, fmt.Errorf("interview.experience_years must be >= 0")
	}
	if cfg.Interview.DurationMinutes <= 0 {
		return nil, fmt.Errorf("interview.duration_minutes must be > 0")
	}
	if strings.TrimSpace(cfg.Interview.Language) == "" {
		return nil, fmt.Errorf("interview.language must not be empty")
	}

	if strings.TrimSpace(cfg.Live.Model) == "" {
		return nil, fmt.Errorf("live.model must not be empty")
	}
	if cfg.Live.OpenTimeoutMS <= 0 {
		return nil, fmt.Errorf("live.open_timeout_ms must be > 0")
	}
	if cfg.Live.MaxReconnects < 0 {
		return nil, fmt.Errorf("live.max_reconnects must be >= 0")
	}
	if base := strings.TrimSpace(cfg.Live.BaseURL); base != "" {
		if err := validateURL(base, "live.base_url", "http", "https", "ws", "wss"); err != nil {
			return nil, err
		}
	}

	if cfg.Credential.TimeoutMS <= 0 {
		return nil, fmt.Errorf("credential.timeout_ms must be > 0")
	}
	if broker := strings.TrimSpace(cfg.Credential.BrokerURL); broker != "" {
		if err := validateURL(broker, "credential.broker_url", "http", "https"); err != nil {
			return nil, err
		}
	} else if !cfg.Credential.AllowStaticFallback {
		warnings = append(warnings, Warning{Message: "credential.broker_url is empty and static fallback is disabled; interviews cannot start"})
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	if backend != "pulse" && backend != "portaudio" {
		return nil, fmt.Errorf("audio.backend must be one of: pulse, portaudio")
	}
	if cfg.Audio.FrameSamples <= 0 || cfg.Audio.FrameSamples > maxFrameSamples {
		return nil, fmt.Errorf("audio.frame_samples must be in 1..%d", maxFrameSamples)
	}
	if backend == "portaudio" && (cfg.Audio.Input != "default" || cfg.Audio.Fallback != "default") {
		warnings = append(warnings, Warning{Message: "audio.input and audio.fallback are ignored by the portaudio backend"})
	}

	if cfg.Report.Command.Raw != "" && !strings.HasPrefix(strings.TrimSpace(cfg.Report.Command.Raw), "#") && len(cfg.Report.Command.Argv) == 0 {
		return nil, fmt.Errorf("report.command is configured but empty")
	}

	indicatorBackend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if indicatorBackend != "terminal" && indicatorBackend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: terminal, desktop")
	}
	if indicatorBackend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	return warnings, nil
}

func validateURL(raw string, key string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of: %s", key, strings.Join(schemes, ", "))
}
