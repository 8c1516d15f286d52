package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the structured logging collaborator handed to every component.
type Logger interface {
	Debug(message string, fields map[string]interface{})
	Info(message string, fields map[string]interface{})
	Warn(message string, fields map[string]interface{})
	Error(message string, fields map[string]interface{})
}

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps debug|info|warn|error to a Level. Unknown values are info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

type jsonLogger struct {
	serviceName string
	min         Level
	mu          sync.Mutex
	logger      *log.Logger
	now         func() time.Time
}

// New returns a JSON-lines logger writing to stdout.
func New(serviceName string, min Level) Logger {
	return NewWriter(os.Stdout, serviceName, min)
}

// NewWriter returns a JSON-lines logger writing to w.
func NewWriter(w io.Writer, serviceName string, min Level) Logger {
	return &jsonLogger{
		serviceName: serviceName,
		min:         min,
		logger:      log.New(w, "", 0),
		now:         time.Now,
	}
}

func (l *jsonLogger) log(level Level, message string, fields map[string]interface{}) {
	if level < l.min {
		return
	}
	entry := map[string]interface{}{
		"timestamp": l.now().UTC().Format(time.RFC3339),
		"level":     level.String(),
		"service":   l.serviceName,
		"message":   message,
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(`{"level":"error","message":"log entry not serialisable"}`)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(string(data))
}

func (l *jsonLogger) Debug(message string, fields map[string]interface{}) {
	l.log(LevelDebug, message, fields)
}

func (l *jsonLogger) Info(message string, fields map[string]interface{}) {
	l.log(LevelInfo, message, fields)
}

func (l *jsonLogger) Warn(message string, fields map[string]interface{}) {
	l.log(LevelWarn, message, fields)
}

func (l *jsonLogger) Error(message string, fields map[string]interface{}) {
	l.log(LevelError, message, fields)
}

func NewNop() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (l *nopLogger) Debug(message string, fields map[string]interface{}) {}
func (l *nopLogger) Info(message string, fields map[string]interface{})  {}
func (l *nopLogger) Warn(message string, fields map[string]interface{})  {}
func (l *nopLogger) Error(message string, fields map[string]interface{}) {}
