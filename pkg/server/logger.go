package server

import (
	"io"
	"log"
	"os"
)

// Package-level loggers. Tests swap these for io.Discard writers.
var (
	errorLog = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugLog = log.New(io.Discard, "", log.Ldate|log.Ltime|log.Lmicroseconds)
)

// EnableDebugLogging turns on verbose per-frame logging.
func EnableDebugLogging() {
	debugLog.SetOutput(os.Stderr)
}
