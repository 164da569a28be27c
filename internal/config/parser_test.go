package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFullJSONC(t *testing.T) {
	input := `
{
  /* everything viva reads */
  "interview": {
    "technology": "Go",
    "secondary_skills": ["Kubernetes", " gRPC ", ""],
    "experience_years": 5,
    "duration_minutes": 30,
    "language": "German",
  },
  "live": {
    "model": "gemini-live-test",
    "base_url": "wss://example.test",
    "open_timeout_ms": 4000,
    "max_reconnects": 2,
    "kickoff_text": "Hi there",
  },
  "credential": {
    "broker_url": "http://127.0.0.1:8787",
    "timeout_ms": 2500,
  },
  "audio": { "backend": "pulse", "input": "Elgato", "frame_samples": 1024 },
  "report": { "dir": "/tmp/reports", "command": "score-interview --format 'json lines'" },
  "indicator": { "backend": "desktop", "sound_enable": false, "captions": false },
  "debug": { "audio_dump": true }, // trailing comma below
}
`
	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "Kubernetes, gRPC", cfg.Interview.SecondarySkills)
	require.Equal(t, 5, cfg.Interview.ExperienceYears)
	require.Equal(t, "German", cfg.Interview.Language)
	require.Equal(t, "gemini-live-test", cfg.Live.Model)
	require.Equal(t, "v1alpha", cfg.Live.APIVersion)
	require.Equal(t, 2, cfg.Live.MaxReconnects)
	require.Equal(t, "Hi there", cfg.Live.KickoffText)
	require.Equal(t, 2500, cfg.Credential.TimeoutMS)
	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.Equal(t, 1024, cfg.Audio.FrameSamples)
	require.Equal(t, []string{"score-interview", "--format", "json lines"}, cfg.Report.Command.Argv)
	require.Equal(t, "desktop", cfg.Indicator.Backend)
	require.False(t, cfg.Indicator.SoundEnable)
	require.False(t, cfg.Indicator.Captions)
	require.True(t, cfg.Debug.EnableAudioDump)
}

func TestParseCommaDelimitedSkills(t *testing.T) {
	cfg, _, err := Parse(`{"interview": {"secondary_skills": "SQL,  Redis"}}`, Default())
	require.NoError(t, err)
	require.Equal(t, "SQL, Redis", cfg.Interview.SecondarySkills)
}

func TestParseEmptyContentUsesBase(t *testing.T) {
	cfg, _, err := Parse("   \n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse(`{"server": {"listen": "127.0.0.1:8080"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseLineNumberOnTypeError(t *testing.T) {
	_, _, err := Parse("{\n  // comment\n  \"interview\": {\"duration_minutes\": \"ten\"}\n}", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 3")
}

func TestParseRejectsMultipleValues(t *testing.T) {
	_, _, err := Parse(`{} {}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestParseStaticFallbackWarns(t *testing.T) {
	cfg, warnings, err := Parse(`{"credential": {"allow_static_fallback": true}}`, Default())
	require.NoError(t, err)
	require.True(t, cfg.Credential.AllowStaticFallback)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "allow_static_fallback")
}

func TestParseInvalidReportCommand(t *testing.T) {
	_, _, err := Parse(`{"report": {"command": "score \"unterminated"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid report.command")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "ab\ncd\nef"
	line, col := offsetToLineCol(content, 5)
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 0)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)
}
