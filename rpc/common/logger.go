package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zeroLogger implements the dragonboat ILogger interface on top of zerolog.
// The dragonboat level filters the messages, zerolog only formats them.
type zeroLogger struct {
	mu    sync.RWMutex
	level logger.LogLevel
	log   zerolog.Logger
}

func (l *zeroLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *zeroLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *zeroLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log.Debug().Msgf(format, args...)
	}
}

func (l *zeroLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log.Info().Msgf(format, args...)
	}
}

func (l *zeroLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log.Warn().Msgf(format, args...)
	}
}

func (l *zeroLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log.Error().Msgf(format, args...)
	}
}

// Panicf always panics, dragonboat relies on it.
func (l *zeroLogger) Panicf(format string, args ...interface{}) {
	l.log.Panic().Msgf(format, args...)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	outputMu sync.Mutex
	output   io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
)

// SetLogOutput changes the writer used by loggers created afterwards and returns the previous one.
func SetLogOutput(w io.Writer) io.Writer {
	outputMu.Lock()
	defer outputMu.Unlock()
	prev := output
	output = w
	return prev
}

// CreateLogger creates a logger for the given package. It implements dragonboats logger.Factory.
func CreateLogger(pkgName string) logger.ILogger {
	outputMu.Lock()
	w := output
	outputMu.Unlock()

	return &zeroLogger{
		level: logger.INFO,
		log:   zerolog.New(w).With().Timestamp().Str("pkg", pkgName).Logger(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	case "critical":
		return logger.CRITICAL, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error, critical", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggerNames are all loggers used by wbKV and dragonboat
var loggerNames = []string{
	// dragonboat
	"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb",
	// wbKV
	"writebehind", "queue", "store", "rpc", "transport/rpc",
}

// InitLoggers installs the zerolog backed logger factory and sets the level of all known loggers.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
