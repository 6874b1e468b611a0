// Package logging configures the gateway transport's structured logger and
// standardizes its field vocabulary: every entry that concerns a queue, a
// caller, or an in-flight request names it the same way, so log streams from
// the client and server side of a round trip can be correlated.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the logger's verbosity, wire format, and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout, stderr, or a file path
}

// Logger is a thin veneer over slog. The slog *Context methods are promoted
// unchanged; what this type adds is the transport's field vocabulary.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from cfg. An unrecognized level or format degrades to
// info/json rather than failing, so a half-written logging stanza never
// keeps the transport from starting; only an unwritable output file is an
// error.
func New(cfg Config) (*Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &Logger{Logger: slog.New(handler)}, nil
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

// Default returns an info-level JSON logger on stdout.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// Component returns a logger whose entries carry the transport component
// they originate from: "backend", "client", "server", or "chunking".
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// WithQueue returns a logger carrying the queue being operated on.
func (l *Logger) WithQueue(queue string) *Logger {
	return &Logger{Logger: l.Logger.With("queue", queue)}
}

// WithCaller returns a logger carrying a caller's identity: the client id
// shared by a whole client process and the thread id its reply queue is
// named by.
func (l *Logger) WithCaller(clientID, threadID string) *Logger {
	return &Logger{Logger: l.Logger.With("client_id", clientID, "thread_id", threadID)}
}

// WithRequest returns a logger carrying the id of the request in flight.
func (l *Logger) WithRequest(requestID int64) *Logger {
	return &Logger{Logger: l.Logger.With("request_id", requestID)}
}

// Err is the standard attribute for attaching a failure to a log entry.
// A nil err yields a zero Attr, which handlers ignore.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
