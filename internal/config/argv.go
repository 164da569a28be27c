package config

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// parseArgv splits a command string with shell quoting rules; a leading # disables it.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	parser := shellwords.NewParser()
	parser.ParseEnv = true
	argv, err := parser.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", input, err)
	}
	if len(argv) == 0 {
		return nil, nil
	}
	return argv, nil
}
