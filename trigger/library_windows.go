//go:build windows

package trigger

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"
)

// DefaultLibrary is the trigger library shipped next to the receiver.
const DefaultLibrary = "sideband_inputs_trigger.dll"

// Library calls the trigger entry points exported by a DLL:
//
//	void    GoAbout(void);
//	GoInt   GoTrigger(char *arg);
type Library struct {
	dll       *windows.LazyDLL
	goAbout   *windows.LazyProc
	goTrigger *windows.LazyProc
	log       *slog.Logger
}

// OpenLibrary resolves the trigger entry points in path.
func OpenLibrary(path string, log *slog.Logger) (*Library, error) {
	if path == "" {
		path = DefaultLibrary
	}
	dll := windows.NewLazyDLL(path)
	l := &Library{
		dll:       dll,
		goAbout:   dll.NewProc("GoAbout"),
		goTrigger: dll.NewProc("GoTrigger"),
		log:       log,
	}
	for _, p := range []*windows.LazyProc{l.goAbout, l.goTrigger} {
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("load trigger library %s: %w", path, err)
		}
	}
	return l, nil
}

func (l *Library) About() error {
	l.goAbout.Call()
	return nil
}

func (l *Library) Fire(arg string) (int, error) {
	cstr, err := CString(arg)
	if err != nil {
		return -1, err
	}
	r, _, _ := l.goTrigger.Call(uintptr(unsafe.Pointer(&cstr[0])))
	return int(int64(r)), nil
}
