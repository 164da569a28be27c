// Package report defines the finished-interview record handed to the scoring process.
package report

import (
	"time"

	"github.com/rbright/viva/internal/interview"
	"github.com/rbright/viva/internal/transcript"
)

// Report is produced exactly once per completed interview.
type Report struct {
	SessionID       string               `json:"session_id"`
	Technology      string               `json:"technology"`
	SecondarySkills string               `json:"secondary_skills,omitempty"`
	ExperienceYears int                  `json:"experience_years"`
	DurationMinutes int                  `json:"duration_minutes"`
	Language        string               `json:"language"`
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      time.Time            `json:"finished_at"`
	StopReason      string               `json:"stop_reason"`
	Reconnects      int                  `json:"reconnects,omitempty"`
	Messages        []transcript.Message `json:"messages"`
	Captions        []transcript.Caption `json:"captions,omitempty"`
}

// New assembles a report from the interview parameters and the finalized history.
func New(sessionID string, cfg interview.Config, messages []transcript.Message) Report {
	if messages == nil {
		messages = []transcript.Message{}
	}
	return Report{
		SessionID:       sessionID,
		Technology:      cfg.Technology,
		SecondarySkills: cfg.SecondarySkills,
		ExperienceYears: cfg.ExperienceYears,
		DurationMinutes: cfg.DurationMinutes,
		Language:        cfg.Language,
		Messages:        messages,
	}
}

// Elapsed returns the wall time the interview ran.
func (r Report) Elapsed() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
