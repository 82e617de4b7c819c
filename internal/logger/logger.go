package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Logger provides leveled logging (info/warning/error) to per-level files and the console.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	console    *slog.Logger
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &Logger{
		logDir: logDir,
		console: slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.TimeOnly,
		})),
	}

	if err := logger.setupLoggers(); err != nil {
		return nil, err
	}
	return logger, nil
}

// Discard returns a Logger that drops everything. Used by tests and tools.
func Discard() *Logger {
	return &Logger{
		infoLog:    log.New(io.Discard, "", 0),
		warningLog: log.New(io.Discard, "", 0),
		errorLog:   log.New(io.Discard, "", 0),
		console:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// setupLoggers initializes the per-level file loggers.
func (l *Logger) setupLoggers() error {
	infoFile, err := l.openLogFile(filepath.Join(l.logDir, "info.log"))
	if err != nil {
		return err
	}
	warningFile, err := l.openLogFile(filepath.Join(l.logDir, "warning.log"))
	if err != nil {
		return err
	}
	errorFile, err := l.openLogFile(filepath.Join(l.logDir, "error.log"))
	if err != nil {
		return err
	}

	l.infoLog = log.New(infoFile, "INFO    ", log.Ldate|log.Ltime)
	l.warningLog = log.New(warningFile, "WARNING ", log.Ldate|log.Ltime)
	l.errorLog = log.New(errorFile, "ERROR   ", log.Ldate|log.Ltime)
	return nil
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	return file, nil
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(slog.LevelInfo, l.infoLog, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.write(slog.LevelWarn, l.warningLog, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(slog.LevelError, l.errorLog, format, v...)
}

func (l *Logger) write(level slog.Level, file *log.Logger, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)

	l.mu.Lock()
	defer l.mu.Unlock()
	file.Print(msg)
	l.console.Log(context.Background(), level, msg)
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) {
	filePath := filepath.Join(l.logDir, fileName)
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return
	}
	defer file.Close()

	l.Info("File %s has been cleared.", fileName)
}

// Dir returns the directory holding the level files.
func (l *Logger) Dir() string {
	return l.logDir
}
