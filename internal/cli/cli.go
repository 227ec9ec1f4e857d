package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandStart     Command = "start"
	CommandStop      Command = "stop"
	CommandStatus    Command = "status"
	CommandSupported Command = "supported"
	CommandDoctor    Command = "doctor"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandStart:     {},
	CommandStop:      {},
	CommandStatus:    {},
	CommandSupported: {},
	CommandDoctor:    {},
	CommandVersion:   {},
	CommandHelp:      {},
}

type Parsed struct {
	Command      Command
	ConfigPath   string
	DurationSecs uint32
	ShowHelp     bool
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
		case "--duration":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--duration requires a value in seconds")
			}
			secs, err := strconv.ParseUint(args[i], 10, 32)
			if err != nil {
				return Parsed{}, fmt.Errorf("invalid --duration %q: expected whole seconds", args[i])
			}
			if secs == 0 {
				return Parsed{}, errors.New("--duration must be greater than zero")
			}
			parsed.DurationSecs = uint32(secs)
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

	if parsed.DurationSecs != 0 && parsed.Command != CommandStart {
		return Parsed{}, errors.New("--duration only applies to the start command")
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--duration SECONDS] <command>

Commands:
  start      Start a capture session bounded by --duration
  stop       Stop the active capture session and print the artifact path
  status     Print current session state
  supported  Report whether this platform can capture audio
  doctor     Run configuration and environment checks
  version    Print version information
  help       Show this help

Flags:
  --config PATH        Config file path (default: $XDG_CONFIG_HOME/micgrab/config.conf)
  --duration SECONDS   Max capture duration for start (default from config)
  -h, --help           Show help
  --version            Show version
`, binaryName)
}
