// Package trigger adapts the external trigger subsystem that turns a
// forwarded sideband argument into a local action.
//
// The subsystem has two entry points: a one-time initialization call (About)
// and a call that takes a single text argument and returns an integer status
// (Fire). Three adapters are provided:
//
//   - Library calls GoAbout/GoTrigger exported by sideband_inputs_trigger.dll
//     (Windows only).
//   - Command runs a configured program with the argument appended to its
//     arguments and reports its exit code as the status.
//   - Log only logs the argument.
//
// Recorder is an in-memory adapter for tests.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Trigger is the external trigger subsystem.
type Trigger interface {
	// About performs the one-time initialization call.
	About() error

	// Fire executes the action for arg and returns the subsystem's status.
	Fire(arg string) (int, error)
}

// ErrEmbeddedNUL is returned for arguments that cannot cross a C string boundary.
var ErrEmbeddedNUL = errors.New("argument contains a NUL byte")

// CString returns arg as a NUL-terminated byte string: the exact bytes of
// arg followed by a single terminating zero.
func CString(arg string) ([]byte, error) {
	if strings.IndexByte(arg, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmbeddedNUL, arg)
	}
	b := make([]byte, len(arg)+1)
	copy(b, arg)
	return b, nil
}

// Log is a Trigger that only logs.
type Log struct {
	log *slog.Logger
}

// NewLog creates a logging Trigger.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) About() error {
	l.log.Info("log trigger ready")
	return nil
}

func (l *Log) Fire(arg string) (int, error) {
	l.log.Info("trigger", "arg", arg)
	return 0, nil
}

// Recorder is a Trigger that records calls. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	abouts int
	args   []string
	fired  chan string

	// Status is returned from every Fire call.
	Status int
	// AboutErr is returned from About.
	AboutErr error
}

// NewRecorder creates a Recorder. Each Fire also publishes its argument on
// the channel returned by Fired, which buffers up to 1024 arguments.
func NewRecorder() *Recorder {
	return &Recorder{fired: make(chan string, 1024)}
}

func (r *Recorder) About() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abouts++
	return r.AboutErr
}

func (r *Recorder) Fire(arg string) (int, error) {
	r.mu.Lock()
	r.args = append(r.args, arg)
	status := r.Status
	r.mu.Unlock()

	select {
	case r.fired <- arg:
	default:
	}
	return status, nil
}

// Fired returns a channel that receives each fired argument.
func (r *Recorder) Fired() <-chan string {
	return r.fired
}

// Abouts returns how many times About was called.
func (r *Recorder) Abouts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abouts
}

// Args returns the fired arguments in call order.
func (r *Recorder) Args() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.args...)
}
