// Package interview holds interview parameters and the interviewer instruction.
package interview

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultKickoff is the synthetic first user turn that prompts the interviewer to speak.
const DefaultKickoff = "Hello, I'm ready to begin the interview."

// Config is immutable once a session starts.
type Config struct {
	Technology      string
	SecondarySkills string
	ExperienceYears int
	DurationMinutes int
	Resume          string
	Language        string
}

// Duration returns the configured interview length.
func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// Validate checks the parameters a session needs before it can start.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Technology) == "" {
		errs = append(errs, errors.New("technology must be set"))
	}
	if c.ExperienceYears < 0 {
		errs = append(errs, fmt.Errorf("experience years must be >= 0, got %d", c.ExperienceYears))
	}
	if c.DurationMinutes <= 0 {
		errs = append(errs, fmt.Errorf("duration must be > 0 minutes, got %d", c.DurationMinutes))
	}
	if strings.TrimSpace(c.Language) == "" {
		errs = append(errs, errors.New("language must be set"))
	}
	return errors.Join(errs...)
}

// Instruction renders the system instruction for one interview.
func Instruction(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an experienced technical interviewer conducting a spoken mock interview for a %s role", strings.TrimSpace(cfg.Technology))
	if skills := strings.TrimSpace(cfg.SecondarySkills); skills != "" {
		fmt.Fprintf(&b, " that also involves %s", skills)
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "The candidate has %s of experience. The interview lasts about %d minutes.\n", describeExperience(cfg.ExperienceYears), cfg.DurationMinutes)

	if resume := strings.TrimSpace(cfg.Resume); resume != "" {
		b.WriteString("\nCandidate resume:\n")
		b.WriteString(resume)
		b.WriteString("\n")
	}

	b.WriteString("\nRules:\n")
	for _, rule := range rules(cfg) {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	return b.String()
}

func rules(cfg Config) []string {
	return []string{
		"Ask exactly one question at a time and wait for the candidate to answer before continuing.",
		"After each answer give brief spoken feedback in one or two sentences before the next question.",
		"Vary the question types: conceptual, practical, debugging, system design, and behavioral.",
		fmt.Sprintf("Adapt the difficulty to %s of experience and adjust it as the answers show more or less depth.", describeExperience(cfg.ExperienceYears)),
		fmt.Sprintf("Speak only in %s, even if the candidate switches language.", strings.TrimSpace(cfg.Language)),
		"Never say your internal reasoning, notes, plans, or scoring out loud; speak only what an interviewer would say to the candidate.",
		"Open with a short greeting and your first question.",
	}
}

func describeExperience(years int) string {
	switch {
	case years <= 0:
		return "less than one year"
	case years == 1:
		return "1 year"
	default:
		return fmt.Sprintf("%d years", years)
	}
}
