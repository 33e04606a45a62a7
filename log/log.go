package log

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Log absolutely nothing
	LOGLEVEL_NONE int = iota
	// Log situations that are not expected to happen and
	// are difficult to handle (e.g. a broken transport)
	LOGLEVEL_ERRORS
	// Log non-critical situations that might happen, but shouldn't (e.g. dropping an unexpected response)
	LOGLEVEL_WARNINGS
	// Log situations that are expected, but important for the operation
	LOGLEVEL_INFO
	// Log everything
	LOGLEVEL_DEBUG
)

var loglevel_strings = []string{"NONE", "ERRORS", "WARNINGS", "INFO", "DEBUG"}

var (
	lock     sync.Mutex
	logger   zerolog.Logger
	loglevel int = LOGLEVEL_ERRORS
	tokens   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func init() {
	SetOutput(os.Stderr, false)
}

// Redirect log output to w. If json is false, a human-readable console format is used.
func SetOutput(w io.Writer, json bool) {
	lock.Lock()
	defer lock.Unlock()

	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000000"}
	}
	logger = zerolog.New(w).With().Timestamp().Str("component", "cmb").Logger()
}

// Set the global log level
func SetLoglevel(ll int) {
	lock.Lock()
	defer lock.Unlock()

	loglevel = ll
}

func GetLoglevel() int {
	lock.Lock()
	defer lock.Unlock()

	return loglevel
}

// Returns the name of a level, e.g. "WARNINGS".
func LoglevelString(ll int) string {
	if ll < 0 || ll >= len(loglevel_strings) {
		return "UNKNOWN"
	}
	return loglevel_strings[ll]
}

// Performance-enhancer: Prevent unnecessary log calls
func IsLoggingEnabled(ll int) bool {
	return GetLoglevel() >= ll
}

func Log(ll int, what ...interface{}) {
	if !IsLoggingEnabled(ll) || ll == LOGLEVEL_NONE {
		return
	}
	emit(ll, strings.TrimSuffix(fmt.Sprintln(what...), "\n"))
}

func Logf(ll int, format string, args ...interface{}) {
	if !IsLoggingEnabled(ll) || ll == LOGLEVEL_NONE {
		return
	}
	emit(ll, fmt.Sprintf(format, args...))
}

func emit(ll int, msg string) {
	lock.Lock()
	l := logger
	lock.Unlock()

	var ev *zerolog.Event
	switch ll {
	case LOGLEVEL_ERRORS:
		ev = l.Error()
	case LOGLEVEL_WARNINGS:
		ev = l.Warn()
	case LOGLEVEL_INFO:
		ev = l.Info()
	default:
		ev = l.Debug()
	}
	ev.Msg(msg)
}

func mapToChar(i int) byte {
	i = i % (10 + 26 + 26)
	if i < 10 {
		return byte('0' + i)
	} else if i < 10+26 {
		return byte('A' + i - 10)
	} else if i < 10+26+26 {
		return byte('a' + i - 10 - 26)
	}
	return byte('_')
}

// Returns a short random alphanumeric string.
// This is used to assign special tokens to RPCs in order to track them across log lines.
func GetLogToken() string {
	lock.Lock()
	defer lock.Unlock()

	str := make([]byte, 6)
	for i := range str {
		str[i] = mapToChar(tokens.Int())
	}
	return string(str)
}
