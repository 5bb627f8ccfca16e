package broker

import (
	"io"
	"log"
	"os"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// SetLoggers replaces the package loggers. The server binary points these at
// its own sinks; tests discard them.
func SetLoggers(errLog, dbgLog *log.Logger) {
	if errLog != nil {
		errorLog = errLog
	}
	if dbgLog != nil {
		debugLog = dbgLog
	}
}
