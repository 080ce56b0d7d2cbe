// Package logging provides category-based file logging for the
// verification pipeline. Logs are written to .polistep/logs/ with one
// file per category per day. Logging is gated by debug mode: when
// disabled, every call is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category names one pipeline subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup, config loading
	CategoryAPI       Category = "api"       // LLM provider calls, retries
	CategoryBrowser   Category = "browser"   // agent runs, rod sessions
	CategoryVerify    Category = "verify"    // orchestrator state machine
	CategoryArtifacts Category = "artifacts" // file/OCR extraction
	CategoryGuidance  Category = "guidance"  // final guidance generation
	CategoryProgress  Category = "progress"  // live progress channel
	CategoryStore     Category = "store"     // record persistence
)

// Logger writes to one category's log file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	debugMode bool
	stateMu   sync.RWMutex
)

// Initialize sets up the logging directory. Called once at startup with
// the workspace path. When debug is false this is a no-op and all loggers
// stay silent.
func Initialize(workspace string, debug bool) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	stateMu.Lock()
	debugMode = debug
	logsDir = filepath.Join(workspace, ".polistep", "logs")
	dir := logsDir
	stateMu.Unlock()

	if !debug {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Get(CategoryBoot).Info("logging initialized, dir=%s", dir)
	return nil
}

// IsDebugMode reports whether file logging is active.
func IsDebugMode() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return debugMode
}

// Get returns (or creates) the logger for a category. Returns a no-op
// logger when debug mode is off or the file cannot be opened.
func Get(category Category) *Logger {
	stateMu.RLock()
	enabled := debugMode && logsDir != ""
	dir := logsDir
	stateMu.RUnlock()

	if !enabled {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Close flushes and closes all open log files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// Package-level helpers, one set per category.

func Boot(format string, args ...interface{})    { Get(CategoryBoot).Info(format, args...) }
func API(format string, args ...interface{})     { Get(CategoryAPI).Info(format, args...) }
func APIWarn(format string, args ...interface{}) { Get(CategoryAPI).Warn(format, args...) }

func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }
func BrowserWarn(format string, args ...interface{})  { Get(CategoryBrowser).Warn(format, args...) }
func BrowserError(format string, args ...interface{}) { Get(CategoryBrowser).Error(format, args...) }

func Verify(format string, args ...interface{})      { Get(CategoryVerify).Info(format, args...) }
func VerifyWarn(format string, args ...interface{})  { Get(CategoryVerify).Warn(format, args...) }
func VerifyError(format string, args ...interface{}) { Get(CategoryVerify).Error(format, args...) }

func Artifacts(format string, args ...interface{})     { Get(CategoryArtifacts).Info(format, args...) }
func ArtifactsWarn(format string, args ...interface{}) { Get(CategoryArtifacts).Warn(format, args...) }

func Guidance(format string, args ...interface{})     { Get(CategoryGuidance).Info(format, args...) }
func GuidanceWarn(format string, args ...interface{}) { Get(CategoryGuidance).Warn(format, args...) }

func Progress(format string, args ...interface{}) { Get(CategoryProgress).Info(format, args...) }
func Store(format string, args ...interface{})    { Get(CategoryStore).Info(format, args...) }
