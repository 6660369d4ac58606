package logger

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	logDir  = "logs"
	discard bool
	// one rotating writer per log file, shared by every logger using it
	lumberjacks = make(map[string]*lumberjack.Logger)
)

func Init(file string) {
	log.Logger = zerolog.New(NewWriter(file)).With().Timestamp().Caller().Logger()
	SetDebug(false)
}

// New returns a component logger writing to the console and logs/<file>.
func New(file string) zerolog.Logger {
	return zerolog.New(NewWriter(file)).With().Timestamp().Caller().Logger()
}

func NewWriter(file string) io.Writer {
	mu.RLock()
	off := discard
	mu.RUnlock()
	if off {
		return io.Discard
	}

	writers := io.MultiWriter(
		NewConsoleWriter(),
		NewLumberjack(file),
	)

	return writers
}

func NewConsoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// NewLumberjack returns the rotating writer of file, creating it on first
// use.
func NewLumberjack(file string) io.Writer {
	mu.Lock()
	defer mu.Unlock()

	dir := logDir
	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(".")
		if err != nil {
			panic(err)
		}
		dir = path.Join(abs, dir)
	}

	filename := path.Join(dir, file)
	if w, ok := lumberjacks[filename]; ok {
		return w
	}

	w := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}
	lumberjacks[filename] = w
	return w
}

// SetDir changes the directory rotated log files are written to.
func SetDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	if dir != "" {
		logDir = dir
	}
}

// SetDebug toggles debug output for every logger in the process.
func SetDebug(enabled bool) {
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func IsDebug() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

// SetTestLoggerNop silences every logger created afterwards.
func SetTestLoggerNop() {
	mu.Lock()
	defer mu.Unlock()
	discard = true
	log.Logger = zerolog.Nop()
}
