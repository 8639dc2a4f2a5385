package logger

// Logger is the structured logging surface used across evauthz. Arguments after the
// message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// New picks an adapter by format name: "slog", "json" or "null"; anything else
// selects the phuslu-style console logger.
func New(format string) Logger {
	switch format {
	case "slog":
		return NewSLogLogger(nil)
	case "json":
		return NewJSONLogger()
	case "null", "none":
		return NewNullLogger()
	default:
		return NewPhusluLogger()
	}
}
