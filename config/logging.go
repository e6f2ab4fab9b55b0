package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

const defaultLogFile = "logs/review-api.log"

// LogWriter receives application, access and SQL logs.
var LogWriter io.Writer = os.Stdout

// LogFilePath is LOG_FILE when set, otherwise logs/review-api.log.
func LogFilePath() string {
	if p := os.Getenv("LOG_FILE"); p != "" {
		return filepath.Clean(p)
	}
	return filepath.FromSlash(defaultLogFile)
}

// InitLogging tees the standard logger to stdout and the log file. When the file
// cannot be opened logging continues on stdout only and the returned file is nil.
func InitLogging() (*os.File, io.Writer) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	path := LogFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("[logging] cannot create %s: %v", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("[logging] cannot open %s, using stdout only: %v", path, err)
		LogWriter = os.Stdout
	} else {
		LogWriter = io.MultiWriter(os.Stdout, f)
	}
	log.SetOutput(LogWriter)
	return f, LogWriter
}
