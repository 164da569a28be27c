// Package output delivers finished interview reports (file and scoring command).
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/viva/internal/report"
	"github.com/rbright/viva/internal/transcript"
)

const defaultCommandTimeout = 30 * time.Second

// ReportPathEnv tells the report command where the JSON file was written.
const ReportPathEnv = "VIVA_REPORT_PATH"

// Options configure report delivery.
type Options struct {
	Dir            string
	Command        []string
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

// Deliverer writes each report to Dir and then pipes it to Command.
type Deliverer struct {
	opts Options

	mu       sync.Mutex
	lastPath string
}

// NewDeliverer constructs a report deliverer.
func NewDeliverer(opts Options) *Deliverer {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Deliverer{opts: opts}
}

// Deliver persists r as JSON plus a plain-text transcript, then runs the report command.
// A command failure is returned after the files are safely on disk.
func (d *Deliverer) Deliver(ctx context.Context, r report.Report) error {
	encoded, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	encoded = append(encoded, '\n')

	path, err := d.write(r, encoded)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.lastPath = path
	d.mu.Unlock()
	d.opts.Logger.Info("interview report written", "path", path, "messages", len(r.Messages))

	if len(d.opts.Command) == 0 {
		return nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, d.opts.CommandTimeout)
	defer cancel()
	if err := runCommandWithInput(cmdCtx, d.opts.Command, encoded, ReportPathEnv+"="+path); err != nil {
		return fmt.Errorf("report command (report kept at %s): %w", path, err)
	}
	return nil
}

// LastPath returns the most recently written report file.
func (d *Deliverer) LastPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPath
}

func (d *Deliverer) write(r report.Report, encoded []byte) (string, error) {
	if strings.TrimSpace(d.opts.Dir) == "" {
		return "", fmt.Errorf("report dir is not configured")
	}
	if err := os.MkdirAll(d.opts.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	base := filepath.Join(d.opts.Dir, reportBaseName(r))
	jsonPath := base + ".json"
	if err := writeFileAtomic(jsonPath, encoded); err != nil {
		return "", err
	}

	rendered := transcript.Render(r.Messages)
	if rendered != "" {
		if err := writeFileAtomic(base+".txt", []byte(rendered+"\n")); err != nil {
			d.opts.Logger.Warn("unable to write transcript text", "error", err.Error())
		}
	}
	return jsonPath, nil
}

func reportBaseName(r report.Report) string {
	stamp := r.StartedAt
	if stamp.IsZero() {
		stamp = r.FinishedAt
	}
	id := r.SessionID
	if id == "" {
		id = "interview"
	}
	return stamp.UTC().Format("20060102-150405") + "-" + id
}

// writeFileAtomic writes through a temp file so readers never see a partial report.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("publish report %q: %w", path, err)
	}
	return nil
}

// runCommandWithInput executes argv with input on stdin and extra env entries appended.
func runCommandWithInput(ctx context.Context, argv []string, input []byte, env ...string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if len(input) > 0 {
		if _, err := stdin.Write(input); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("wait for %s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
