// Package log provides leveled, structured logging for the feeder. Each
// component gets a prefixed logger; entries can carry key=value fields and
// are written as text (optionally colorized) or JSON.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name; unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Format selects the output encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Fields is a set of structured key/value pairs attached to a message.
type Fields map[string]interface{}

var levelColors = map[Level]string{
	DEBUG: "\x1b[36m",
	INFO:  "\x1b[32m",
	WARN:  "\x1b[33m",
	ERROR: "\x1b[31m",
}

const colorReset = "\x1b[0m"

// Logger writes leveled messages with a component prefix.
type Logger struct {
	mu       sync.Mutex
	prefix   string
	writer   io.Writer
	level    Level
	format   Format
	colorize bool
}

// New returns a logger for the named component, writing to stderr at INFO.
func New(prefix string) *Logger {
	return &Logger{
		prefix:   prefix,
		writer:   os.Stderr,
		level:    INFO,
		colorize: os.Getenv("NO_COLOR") == "",
	}
}

// SetLevel sets the minimum level that will be written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetWriter redirects output, e.g. to a file or a test buffer.
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
}

// SetFormat selects text or JSON output.
func (l *Logger) SetFormat(f Format) {
	l.mu.Lock()
	l.format = f
	l.mu.Unlock()
}

// SetColorize enables or disables ANSI colors in text output.
func (l *Logger) SetColorize(enable bool) {
	l.mu.Lock()
	l.colorize = enable
	l.mu.Unlock()
}

// WithPrefix returns a child logger sharing settings with a new prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		prefix:   prefix,
		writer:   l.writer,
		level:    l.level,
		format:   l.format,
		colorize: l.colorize,
	}
}

// WithField returns an Entry carrying one field.
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry carrying the given fields.
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// WithError returns an Entry with the error field set.
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(DEBUG, nil, msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(INFO, nil, msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(WARN, nil, msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(ERROR, nil, msg, args...) }

func (l *Logger) log(level Level, fields Fields, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	var out string
	if l.format == FormatJSON {
		out = l.formatJSON(level, msg, fields)
	} else {
		out = l.formatText(level, msg, fields)
	}
	io.WriteString(l.writer, out)
}

func (l *Logger) formatText(level Level, msg string, fields Fields) string {
	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(fmt.Sprintf(" [%-5s] ", level.String()))
	if l.colorize {
		sb.WriteString(levelColors[level])
	}
	sb.WriteString(l.prefix)
	if l.colorize {
		sb.WriteString(colorReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return sb.String()
}

type jsonEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) formatJSON(level Level, msg string, fields Fields) string {
	e := jsonEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level.String(),
		Logger:    l.prefix,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

// Entry is a message under construction with attached fields.
type Entry struct {
	logger *Logger
	fields Fields
}

// WithField adds one field to the entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	merged := make(Fields, len(e.fields)+1)
	for k, v := range e.fields {
		merged[k] = v
	}
	merged[key] = value
	return &Entry{logger: e.logger, fields: merged}
}

// WithError adds the error field to the entry.
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", err.Error())
}

func (e *Entry) Debug(msg string, args ...interface{}) { e.logger.log(DEBUG, e.fields, msg, args...) }
func (e *Entry) Info(msg string, args ...interface{})  { e.logger.log(INFO, e.fields, msg, args...) }
func (e *Entry) Warn(msg string, args ...interface{})  { e.logger.log(WARN, e.fields, msg, args...) }
func (e *Entry) Error(msg string, args ...interface{}) { e.logger.log(ERROR, e.fields, msg, args...) }

// ConfigureFromEnv applies FEEDER_LOG_LEVEL and FEEDER_LOG_FORMAT.
func ConfigureFromEnv(l *Logger) {
	if v := os.Getenv("FEEDER_LOG_LEVEL"); v != "" {
		l.SetLevel(ParseLevel(v))
	}
	if strings.EqualFold(os.Getenv("FEEDER_LOG_FORMAT"), "json") {
		l.SetFormat(FormatJSON)
	}
}
