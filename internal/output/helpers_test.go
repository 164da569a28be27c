package output

import "github.com/rbright/viva/internal/interview"

func interviewConfig() interview.Config {
	return interview.Config{Technology: "Go", ExperienceYears: 3, DurationMinutes: 20, Language: "English"}
}
