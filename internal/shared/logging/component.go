package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	logDirEnvVar     = "MARCO_LOG_DIR"
	serverModeEnvVar = "MARCO_SERVER_MODE"
)

// Level represents the severity of a log message
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type Category string

const (
	CategoryService  Category = "service"
	CategoryLLM      Category = "llm"
	CategoryDispatch Category = "dispatch"
)

var (
	categoryMu      sync.Mutex
	categorySinks   = make(map[Category]*sink)
	defaultMinLevel = LevelDebug
)

// sink is the shared writer behind every component logger of one category.
type sink struct {
	mu     sync.Mutex
	out    *log.Logger
	stdout bool
	level  Level
}

// ComponentLogger writes formatted lines tagged with category and component.
type ComponentLogger struct {
	sink      *sink
	component string
	category  Category
	logID     string
}

// NewCategorizedLogger creates a logger for a specific category and component.
func NewCategorizedLogger(category Category, component string) *ComponentLogger {
	return &ComponentLogger{
		sink:      sinkFor(category),
		component: component,
		category:  category,
	}
}

// NewWriterLogger builds a component logger that writes to w. Intended for
// CLI output and tests.
func NewWriterLogger(w io.Writer, component string, level Level) *ComponentLogger {
	return &ComponentLogger{
		sink:      &sink{out: log.New(w, "", 0), level: level},
		component: component,
		category:  CategoryService,
	}
}

// SetDefaultLevel sets the minimum level for sinks created afterwards and
// for all existing sinks.
func SetDefaultLevel(level Level) {
	categoryMu.Lock()
	defer categoryMu.Unlock()
	defaultMinLevel = level
	for _, s := range categorySinks {
		s.mu.Lock()
		s.level = level
		s.mu.Unlock()
	}
}

func sinkFor(category Category) *sink {
	categoryMu.Lock()
	defer categoryMu.Unlock()

	if s, ok := categorySinks[category]; ok {
		return s
	}
	s := &sink{
		level:  defaultMinLevel,
		stdout: os.Getenv(serverModeEnvVar) == "deploy",
	}
	if file, err := OpenLogFile(category); err != nil {
		log.Printf("Failed to open log file: %v", err)
	} else {
		s.out = log.New(file, "", 0)
	}
	categorySinks[category] = s
	return s
}

func resolveLogDirectory() (string, error) {
	if override := strings.TrimSpace(os.Getenv(logDirEnvVar)); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".marco", "logs"), nil
}

func logFileName(category Category) string {
	switch category {
	case CategoryLLM:
		return "marco-llm.log"
	case CategoryDispatch:
		return "marco-dispatch.log"
	default:
		return "marco-service.log"
	}
}

// OpenLogFile opens (or creates) the log file for the given category.
func OpenLogFile(category Category) (*os.File, error) {
	logDir, err := resolveLogDirectory()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	logPath := filepath.Join(logDir, logFileName(category))
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// WithLogID returns a shallow copy of the logger that tags log lines with a log id.
func (l *ComponentLogger) WithLogID(logID string) Logger {
	if l == nil {
		return Nop()
	}
	if strings.TrimSpace(logID) == "" {
		return l
	}
	clone := *l
	clone.logID = logID
	return &clone
}

func (l *ComponentLogger) log(level Level, format string, args ...any) {
	if l == nil || l.sink == nil {
		return
	}
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level || (s.out == nil && !s.stdout) {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2025-09-30 12:34:56 [INFO] [SERVICE] [Component] file.go:123 - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	component := l.component
	if component == "" {
		component = "MARCO"
	}
	category := strings.ToUpper(string(l.category))
	if category == "" {
		category = "SERVICE"
	}
	message := fmt.Sprintf(format, args...)

	var logLine string
	if logID := strings.TrimSpace(l.logID); logID != "" {
		logLine = fmt.Sprintf("%s [%s] [%s] [%s] [log_id=%s] %s:%d - %s\n",
			timestamp, level, category, component, logID, file, line, message)
	} else {
		logLine = fmt.Sprintf("%s [%s] [%s] [%s] %s:%d - %s\n",
			timestamp, level, category, component, file, line, message)
	}

	if s.out != nil {
		s.out.Print(logLine)
	}
	if s.stdout {
		fmt.Print(logLine)
	}
}

// Debug logs a debug message
func (l *ComponentLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *ComponentLogger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *ComponentLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *ComponentLogger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}
