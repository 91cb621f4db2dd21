package ports

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is for detailed debugging information.
	// Used for stage-level internal processing logs.
	LevelDebug LogLevel = iota
	// LevelInfo is for informational messages.
	// Used for capture lifecycle transitions.
	LevelInfo
	// LevelWarn is for warning messages.
	// Used for absorbed failures that don't stop the capture.
	LevelWarn
	// LevelError is for error messages.
	// Used for failures that end the capture job.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a string into a LogLevel.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "quiet":
		return LevelQuiet
	default:
		return LevelInfo
	}
}

// LogFormat selects the log output encoding.
type LogFormat string

const (
	// FormatConsole writes human readable, optionally colored lines.
	FormatConsole LogFormat = "console"
	// FormatJSON writes one structured JSON object per line.
	FormatJSON LogFormat = "json"
)

// ParseLogFormat parses a string into a LogFormat, defaulting to console.
func ParseLogFormat(s string) LogFormat {
	if s == string(FormatJSON) {
		return FormatJSON
	}
	return FormatConsole
}

// Logger abstracts logging operations with multi-language support.
type Logger interface {
	// Debug logs a debug message with optional format arguments.
	// The msg parameter is the message key that can be translated.
	Debug(msg string, args ...interface{})

	// Info logs an informational message with optional format arguments.
	Info(msg string, args ...interface{})

	// Warn logs a warning message with optional format arguments.
	Warn(msg string, args ...interface{})

	// Error logs an error message with optional format arguments.
	Error(msg string, args ...interface{})

	// WithComponent returns a new Logger that prefixes messages with the component name.
	WithComponent(component string) Logger
}
