package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rbright/viva/internal/interview"
)

const maxResumeBytes = 64 << 10

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			warnings, verr := Validate(base)
			if verr != nil {
				return Loaded{}, verr
			}
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: append([]Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}}, warnings...),
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// InterviewConfig materializes the interview parameters, reading the resume file if set.
func (c Config) InterviewConfig() (interview.Config, error) {
	out := interview.Config{
		Technology:      c.Interview.Technology,
		SecondarySkills: c.Interview.SecondarySkills,
		ExperienceYears: c.Interview.ExperienceYears,
		DurationMinutes: c.Interview.DurationMinutes,
		Language:        c.Interview.Language,
	}

	if path := strings.TrimSpace(c.Interview.ResumeFile); path != "" {
		resume, err := readResume(path)
		if err != nil {
			return interview.Config{}, err
		}
		out.Resume = resume
	}

	if err := out.Validate(); err != nil {
		return interview.Config{}, fmt.Errorf("invalid interview: %w", err)
	}
	return out, nil
}

func readResume(path string) (string, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("read interview.resume_file: %w", err)
	}
	if info.Size() > maxResumeBytes {
		return "", fmt.Errorf("interview.resume_file %q exceeds %d bytes", resolved, maxResumeBytes)
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read interview.resume_file: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}
