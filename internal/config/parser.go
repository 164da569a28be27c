package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/jsonc"
)

type jsoncConfig struct {
	Interview  *jsoncInterview  `json:"interview"`
	Live       *jsoncLive       `json:"live"`
	Credential *jsoncCredential `json:"credential"`
	Audio      *jsoncAudio      `json:"audio"`
	Report     *jsoncReport     `json:"report"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Debug      *jsoncDebug      `json:"debug"`
}

type jsoncInterview struct {
	Technology      *string          `json:"technology"`
	SecondarySkills *jsoncStringList `json:"secondary_skills"`
	ExperienceYears *int             `json:"experience_years"`
	DurationMinutes *int             `json:"duration_minutes"`
	ResumeFile      *string          `json:"resume_file"`
	Language        *string          `json:"language"`
}

type jsoncLive struct {
	Model         *string `json:"model"`
	APIVersion    *string `json:"api_version"`
	BaseURL       *string `json:"base_url"`
	OpenTimeoutMS *int    `json:"open_timeout_ms"`
	MaxReconnects *int    `json:"max_reconnects"`
	KickoffText   *string `json:"kickoff_text"`
}

type jsoncCredential struct {
	BrokerURL           *string `json:"broker_url"`
	TimeoutMS           *int    `json:"timeout_ms"`
	AllowStaticFallback *bool   `json:"allow_static_fallback"`
}

type jsoncAudio struct {
	Backend      *string `json:"backend"`
	Input        *string `json:"input"`
	Fallback     *string `json:"fallback"`
	FrameSamples *int    `json:"frame_samples"`
}

type jsoncReport struct {
	Dir     *string `json:"dir"`
	Command *string `json:"command"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	Captions       *bool   `json:"captions"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

// jsoncStringList accepts either a string array or a comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = strings.Split(single, ",")
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func (l jsoncStringList) joined() string {
	out := make([]string, 0, len(l))
	for _, item := range l {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return strings.Join(out, ", ")
}

// Parse reads JSONC configuration content over base and validates the result.
// Comments and trailing commas are accepted; unknown keys are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	// ToJSON blanks comments in place, so decoder offsets still map to the source.
	normalized := string(jsonc.ToJSON([]byte(content)))

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if in := payload.Interview; in != nil {
		setString(&cfg.Interview.Technology, in.Technology)
		if in.SecondarySkills != nil {
			cfg.Interview.SecondarySkills = in.SecondarySkills.joined()
		}
		setInt(&cfg.Interview.ExperienceYears, in.ExperienceYears)
		setInt(&cfg.Interview.DurationMinutes, in.DurationMinutes)
		setString(&cfg.Interview.ResumeFile, in.ResumeFile)
		setString(&cfg.Interview.Language, in.Language)
	}

	if lv := payload.Live; lv != nil {
		setString(&cfg.Live.Model, lv.Model)
		setString(&cfg.Live.APIVersion, lv.APIVersion)
		setString(&cfg.Live.BaseURL, lv.BaseURL)
		setInt(&cfg.Live.OpenTimeoutMS, lv.OpenTimeoutMS)
		setInt(&cfg.Live.MaxReconnects, lv.MaxReconnects)
		setString(&cfg.Live.KickoffText, lv.KickoffText)
	}

	if cr := payload.Credential; cr != nil {
		setString(&cfg.Credential.BrokerURL, cr.BrokerURL)
		setInt(&cfg.Credential.TimeoutMS, cr.TimeoutMS)
		if cr.AllowStaticFallback != nil {
			cfg.Credential.AllowStaticFallback = *cr.AllowStaticFallback
			if *cr.AllowStaticFallback {
				warnings = append(warnings, Warning{Message: "credential.allow_static_fallback is enabled; a long-lived key may reach the live endpoint"})
			}
		}
	}

	if au := payload.Audio; au != nil {
		setString(&cfg.Audio.Backend, au.Backend)
		setString(&cfg.Audio.Input, au.Input)
		setString(&cfg.Audio.Fallback, au.Fallback)
		setInt(&cfg.Audio.FrameSamples, au.FrameSamples)
	}

	if rp := payload.Report; rp != nil {
		setString(&cfg.Report.Dir, rp.Dir)
		if rp.Command != nil {
			raw := *rp.Command
			argv, err := parseArgv(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid report.command: %w", err)
			}
			cfg.Report.Command = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if ind := payload.Indicator; ind != nil {
		if ind.Enable != nil {
			cfg.Indicator.Enable = *ind.Enable
		}
		setString(&cfg.Indicator.Backend, ind.Backend)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		if ind.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *ind.SoundEnable
		}
		if ind.Captions != nil {
			cfg.Indicator.Captions = *ind.Captions
		}
		setInt(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
	}

	if payload.Debug != nil && payload.Debug.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
	}

	return warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
