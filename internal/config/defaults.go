package config

// DefaultModel is the native-audio live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Interview: InterviewConfig{
			ExperienceYears: 2,
			DurationMinutes: 15,
			Language:        "English",
		},
		Live: LiveConfig{
			Model:         DefaultModel,
			APIVersion:    "v1alpha",
			OpenTimeoutMS: 10000,
		},
		Credential: CredentialConfig{
			TimeoutMS: 5000,
		},
		Audio: AudioConfig{
			Backend:      "pulse",
			Input:        "default",
			Fallback:     "default",
			FrameSamples: 2048,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "terminal",
			DesktopAppName: "viva",
			SoundEnable:    true,
			Captions:       true,
			ErrorTimeoutMS: 1600,
		},
	}
}
