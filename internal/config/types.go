// Package config resolves, parses, validates, and defaults viva configuration.
package config

// Config is the fully materialized runtime configuration used by viva.
type Config struct {
	Interview  InterviewConfig
	Live       LiveConfig
	Credential CredentialConfig
	Audio      AudioConfig
	Report     ReportConfig
	Indicator  IndicatorConfig
	Debug      DebugConfig
}

// InterviewConfig holds the candidate-facing interview parameters.
type InterviewConfig struct {
	Technology      string
	SecondarySkills string
	ExperienceYears int
	DurationMinutes int
	ResumeFile      string
	Language        string
}

// LiveConfig describes the streaming model endpoint.
type LiveConfig struct {
	Model         string
	APIVersion    string
	BaseURL       string
	OpenTimeoutMS int
	MaxReconnects int
	KickoffText   string
}

// CredentialConfig controls how the session credential is obtained.
type CredentialConfig struct {
	BrokerURL           string
	TimeoutMS           int
	AllowStaticFallback bool
}

// AudioConfig controls backend choice and preferred/fallback input-source selection.
type AudioConfig struct {
	Backend      string
	Input        string
	Fallback     string
	FrameSamples int
}

// ReportConfig controls where finished interviews are delivered.
type ReportConfig struct {
	Dir     string
	Command CommandConfig
}

// IndicatorConfig controls status output and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	Captions       bool
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
