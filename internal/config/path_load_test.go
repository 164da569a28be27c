package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "viva", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "viva", "config.jsonc"), resolved)
}

func TestResolveReportDir(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	dir, err := ResolveReportDir(Default())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "viva", "reports"), dir)

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := Default()
	cfg.Report.Dir = "~/interviews"
	dir, err = ResolveReportDir(cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "interviews"), dir)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingJSONCParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  // interview defaults for practice runs
  "interview": {
    "technology": "Angular",
    "experience_years": 2,
    "duration_minutes": 1,
  },
  "credential": {
    "broker_url": "https://broker.example.com",
  },
  "audio": {
    "input": "default",
    "fallback": "default"
  }
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, "Angular", loaded.Config.Interview.Technology)
	require.Equal(t, 1, loaded.Config.Interview.DurationMinutes)
	require.Equal(t, "https://broker.example.com", loaded.Config.Credential.BrokerURL)
	require.Empty(t, loaded.Warnings)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestInterviewConfigReadsResumeFile(t *testing.T) {
	resume := filepath.Join(t.TempDir(), "resume.md")
	require.NoError(t, os.WriteFile(resume, []byte("\n  Five years of Go services.  \n"), 0o600))

	cfg := Default()
	cfg.Interview.Technology = "Go"
	cfg.Interview.ResumeFile = resume

	out, err := cfg.InterviewConfig()
	require.NoError(t, err)
	require.Equal(t, "Go", out.Technology)
	require.Equal(t, "Five years of Go services.", out.Resume)
	require.Equal(t, 15, out.DurationMinutes)
}

func TestInterviewConfigRejectsMissingTechnologyAndResume(t *testing.T) {
	_, err := Default().InterviewConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "technology must be set")

	cfg := Default()
	cfg.Interview.Technology = "Go"
	cfg.Interview.ResumeFile = filepath.Join(t.TempDir(), "missing.md")
	_, err = cfg.InterviewConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "resume_file")
}

func TestInterviewConfigRejectsOversizedResume(t *testing.T) {
	resume := filepath.Join(t.TempDir(), "resume.txt")
	require.NoError(t, os.WriteFile(resume, make([]byte, maxResumeBytes+1), 0o600))

	cfg := Default()
	cfg.Interview.Technology = "Go"
	cfg.Interview.ResumeFile = resume
	_, err := cfg.InterviewConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds")
}
