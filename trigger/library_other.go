//go:build !windows

package trigger

import (
	"errors"
	"log/slog"
)

// DefaultLibrary is the trigger library shipped next to the receiver.
const DefaultLibrary = "sideband_inputs_trigger.dll"

// ErrLibraryUnsupported is returned where the trigger library cannot be loaded.
var ErrLibraryUnsupported = errors.New("trigger library is only available on windows")

// Library is unavailable on this platform.
type Library struct{}

// OpenLibrary always fails on this platform.
func OpenLibrary(path string, log *slog.Logger) (*Library, error) {
	return nil, ErrLibraryUnsupported
}

func (l *Library) About() error { return ErrLibraryUnsupported }

func (l *Library) Fire(arg string) (int, error) { return -1, ErrLibraryUnsupported }
