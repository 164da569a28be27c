// Package app wires configuration, transport, audio, and IPC into viva's commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/cli"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/credential"
	"github.com/rbright/viva/internal/doctor"
	"github.com/rbright/viva/internal/indicator"
	"github.com/rbright/viva/internal/ipc"
	"github.com/rbright/viva/internal/live"
	"github.com/rbright/viva/internal/logging"
	"github.com/rbright/viva/internal/output"
	"github.com/rbright/viva/internal/pipeline"
	"github.com/rbright/viva/internal/session"
	"github.com/rbright/viva/internal/version"
)

const binaryName = "viva"

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	Probes doctor.Probes
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String(binaryName))
		return 0
	}

	logRuntime, err := logging.New(logging.Options{Name: "log"})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
	applyOverrides(&cfgLoaded.Config, parsed)

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		return r.commandDoctor(ctx, cfgLoaded, logger)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandStart:
		return r.commandStart(ctx, cfgLoaded, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func applyOverrides(cfg *config.Config, parsed cli.Parsed) {
	if parsed.Technology != "" {
		cfg.Interview.Technology = parsed.Technology
	}
	if parsed.DurationMinutes > 0 {
		cfg.Interview.DurationMinutes = parsed.DurationMinutes
	}
}

func (r Runner) commandDoctor(ctx context.Context, cfgLoaded config.Loaded, logger *slog.Logger) int {
	secrets, err := config.LoadSecrets(config.EnvPath(cfgLoaded.Path))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	report := doctor.Run(ctx, cfgLoaded, secrets, r.Probes)
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return 0
	}
	logger.Warn("doctor found problems")
	return 1
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, formatStatus(resp))
	return 0
}

func formatStatus(resp ipc.Response) string {
	if resp.State == "" {
		return "idle"
	}
	if resp.SessionID == "" {
		return resp.State
	}
	return fmt.Sprintf("%s session=%s connected=%t microphone=%t speaker=%s",
		resp.State, resp.SessionID, resp.Connected, resp.MicrophoneLive, resp.Speaker())
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active viva interview\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandStart(ctx context.Context, cfgLoaded config.Loaded, logger *slog.Logger) int {
	cfg := cfgLoaded.Config
	iv, err := cfg.InterviewConfig()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	deps, err := r.buildSession(ctx, cfgLoaded, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("build interview runtime failed", "error", err.Error())
		return 1
	}
	controller := session.NewController(deps.options)

	var result session.Result
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	g.Go(func() error {
		defer stopServing()
		result = controller.Run(gctx, iv)
		return nil
	})
	g.Go(func() error {
		return ipc.Serve(serveCtx, listener, controller)
	})
	if err := g.Wait(); err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}

	logSessionResult(logger, result)

	if path := deps.reports.LastPath(); path != "" && result.Report != nil {
		fmt.Fprintf(r.Stdout, "report: %s\n", path)
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	if result.StopReason != "" {
		fmt.Fprintf(r.Stdout, "interview ended (%s)\n", result.StopReason)
	}
	return 0
}

type sessionDeps struct {
	options session.Options
	reports *output.Deliverer
}

// buildSession constructs every collaborator the controller needs. Nothing is global.
func (r Runner) buildSession(_ context.Context, cfgLoaded config.Loaded, logger *slog.Logger) (sessionDeps, error) {
	cfg := cfgLoaded.Config

	secrets, err := config.LoadSecrets(config.EnvPath(cfgLoaded.Path))
	if err != nil {
		return sessionDeps{}, err
	}
	if len(secrets.Sources) > 0 {
		logger.Debug("secrets loaded", "sources", secrets.Sources)
	}

	credentials := credential.NewClient(credential.Options{
		BrokerURL:           credential.TokenURL(cfg.Credential.BrokerURL),
		IdentityToken:       secrets.IdentityToken,
		Timeout:             time.Duration(cfg.Credential.TimeoutMS) * time.Millisecond,
		UserAgent:           version.UserAgent(),
		AllowStaticFallback: cfg.Credential.AllowStaticFallback,
		StaticKey:           secrets.StaticAPIKey,
		Logger:              logger,
	})

	dialer := live.NewDialer(live.Config{
		Model:       cfg.Live.Model,
		APIVersion:  cfg.Live.APIVersion,
		BaseURL:     cfg.Live.BaseURL,
		OpenTimeout: time.Duration(cfg.Live.OpenTimeoutMS) * time.Millisecond,
		Logger:      logger,
	})
	supervisor := live.NewSupervisor(live.SupervisorConfig{
		MaxReconnects: cfg.Live.MaxReconnects,
		Logger:        logger,
	})

	audioSystem, err := pipeline.NewAudioSystem(cfg.Audio.Backend, pipeline.AudioOptions{
		Input:        cfg.Audio.Input,
		Fallback:     cfg.Audio.Fallback,
		FrameSamples: cfg.Audio.FrameSamples,
		DebugDump:    cfg.Debug.EnableAudioDump,
		Logger:       logger,
	})
	if err != nil {
		return sessionDeps{}, err
	}

	reportDir, err := config.ResolveReportDir(cfg)
	if err != nil {
		return sessionDeps{}, err
	}
	reports := output.NewDeliverer(output.Options{
		Dir:     reportDir,
		Command: cfg.Report.Command.Argv,
		Logger:  logger,
	})

	return sessionDeps{
		options: session.Options{
			Logger:      logger,
			Credentials: credentials,
			Audio:       audioSystem,
			Transport:   pipeline.NewLiveTransport(dialer),
			Reports:     reports,
			Indicator:   indicator.New(cfg.Indicator, r.Stderr, logger),
			Supervisor:  supervisor,
			Kickoff:     cfg.Live.KickoffText,
		},
		reports: reports,
	}, nil
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	messages := 0
	if result.Report != nil {
		messages = len(result.Report.Messages)
	}
	fields := []any{
		"session_id", result.SessionID,
		"state", result.State,
		"stop_reason", result.StopReason,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"frames_sent", result.FramesSent,
		"send_failures", result.SendFailures,
		"reconnects", result.Reconnects,
		"messages", messages,
	}

	if result.Err != nil {
		logger.Error("interview failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("interview complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsUnreachable(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
