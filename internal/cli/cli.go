// Package cli parses viva's command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandStart:   {},
	CommandStop:    {},
	CommandStatus:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	// Technology and DurationMinutes override the interview section of the config for start.
	Technology      string
	DurationMinutes int
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--technology":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return Parsed{}, errors.New("--technology requires a value")
			}
			parsed.Technology = strings.TrimSpace(args[i])
		case "--duration":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--duration requires minutes")
			}
			minutes, err := strconv.Atoi(args[i])
			if err != nil || minutes <= 0 {
				return Parsed{}, fmt.Errorf("--duration must be a positive number of minutes, got %q", args[i])
			}
			parsed.DurationMinutes = minutes
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	if (parsed.Technology != "" || parsed.DurationMinutes != 0) && parsed.Command != CommandStart && parsed.Command != CommandDoctor {
		return Parsed{}, fmt.Errorf("--technology and --duration only apply to start and doctor")
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--technology NAME] [--duration MINUTES] <command>

Commands:
  start     Run a spoken mock interview until stopped or the duration elapses
  stop      End the running interview and write its report
  status    Print interview state and turn flags
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH        Config file path (default: $XDG_CONFIG_HOME/viva/config.jsonc)
  --technology NAME    Override interview.technology
  --duration MINUTES   Override interview.duration_minutes
  -h, --help           Show help
  --version            Show version
`, binaryName)
}
