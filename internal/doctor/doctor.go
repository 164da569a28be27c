// Package doctor runs readiness diagnostics for config, credentials, broker, audio, and reports.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/pipeline"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the environment-facing checks, swappable in tests.
type Probes struct {
	HTTPClient   *http.Client
	SelectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error)
}

func (p Probes) withDefaults() Probes {
	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{Timeout: 2 * time.Second}
	}
	if p.SelectDevice == nil {
		p.SelectDevice = audio.SelectDevice
	}
	return p
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, secrets config.Secrets, probes Probes) Report {
	probes = probes.withDefaults()
	checks := []Check{}

	checks = append(checks, checkConfig(cfg))
	checks = append(checks, checkInterview(cfg.Config))
	checks = append(checks, checkCredential(cfg.Config, secrets))
	if strings.TrimSpace(cfg.Config.Credential.BrokerURL) != "" {
		checks = append(checks, checkBrokerHealth(ctx, probes.HTTPClient, cfg.Config.Credential.BrokerURL))
	}
	checks = append(checks, checkAudio(ctx, cfg.Config, probes.SelectDevice))
	checks = append(checks, checkReportDir(cfg.Config))
	if len(cfg.Config.Report.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Report.Command.Argv, "report.command"))
	}
	if cfg.Config.Indicator.Enable && strings.EqualFold(cfg.Config.Indicator.Backend, "desktop") {
		checks = append(checks, checkBinary("busctl", "desktop notifications require busctl"))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("using defaults (%q not found)", cfg.Path)}
	}
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if n := len(cfg.Warnings); n > 0 {
		message = fmt.Sprintf("%s with %d warning(s)", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkInterview resolves the resume and validates the interview parameters.
func checkInterview(cfg config.Config) Check {
	iv, err := cfg.InterviewConfig()
	if err != nil {
		return Check{Name: "interview", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("%s, %d years, %d minutes, %s", iv.Technology, iv.ExperienceYears, iv.DurationMinutes, iv.Language)
	if iv.Resume != "" {
		message += ", resume attached"
	}
	return Check{Name: "interview", Pass: true, Message: message}
}

// checkCredential verifies that at least one credential path is configured.
func checkCredential(cfg config.Config, secrets config.Secrets) Check {
	broker := strings.TrimSpace(cfg.Credential.BrokerURL) != ""
	switch {
	case broker && secrets.IdentityToken != "":
		return Check{Name: "credential", Pass: true, Message: "broker identity token present"}
	case broker && cfg.Credential.AllowStaticFallback && secrets.StaticAPIKey != "":
		return Check{Name: "credential", Pass: true, Message: config.EnvIdentityToken + " missing; static fallback will be used"}
	case broker:
		return Check{Name: "credential", Pass: false, Message: config.EnvIdentityToken + " is not set"}
	case cfg.Credential.AllowStaticFallback && secrets.StaticAPIKey != "":
		return Check{Name: "credential", Pass: true, Message: "static credential only (no broker configured)"}
	default:
		return Check{Name: "credential", Pass: false, Message: "no broker_url configured and static fallback unavailable"}
	}
}

// checkBrokerHealth probes the broker's health route.
func checkBrokerHealth(ctx context.Context, client *http.Client, brokerURL string) Check {
	target, err := healthURL(brokerURL)
	if err != nil {
		return Check{Name: "broker.health", Pass: false, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Check{Name: "broker.health", Pass: false, Message: err.Error()}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "broker.health", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "broker.health", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, target)}
	}
	return Check{Name: "broker.health", Pass: true, Message: fmt.Sprintf("ready at %s", target)}
}

func healthURL(brokerURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(brokerURL))
	if err != nil {
		return "", fmt.Errorf("invalid broker url: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid broker url %q", brokerURL)
	}
	parsed.Path = "/health"
	parsed.RawQuery = ""
	return parsed.String(), nil
}

// checkAudio runs live device selection on pulse, or confirms the portaudio build.
func checkAudio(ctx context.Context, cfg config.Config, selectDevice func(context.Context, string, string) (audio.Selection, error)) Check {
	if strings.EqualFold(cfg.Audio.Backend, pipeline.BackendPortAudio) {
		if !pipeline.PortAudioAvailable {
			return Check{Name: "audio.device", Pass: false, Message: pipeline.ErrBackendNotBuilt.Error()}
		}
		return Check{Name: "audio.device", Pass: true, Message: "portaudio default devices"}
	}

	selection, err := selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkReportDir confirms finished interviews can be written.
func checkReportDir(cfg config.Config) Check {
	dir, err := config.ResolveReportDir(cfg)
	if err != nil {
		return Check{Name: "report.dir", Pass: false, Message: err.Error()}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: "report.dir", Pass: false, Message: err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: "report.dir", Pass: false, Message: fmt.Sprintf("not writable: %v", err)}
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return Check{Name: "report.dir", Pass: true, Message: dir}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
