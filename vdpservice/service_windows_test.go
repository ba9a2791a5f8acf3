//go:build windows && amd64

package vdpservice

import (
	"sync"
	"testing"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Each fresh goroutine starts on a minimal stack, so the first calls into
// call grow it. Out-parameters on the caller's stack must still be written.
func TestCall_StackOutParamSurvivesStackGrowth(t *testing.T) {
	proc := windows.NewLazySystemDLL("kernel32.dll").NewProc("GetSystemTimeAsFileTime")
	if err := proc.Find(); err != nil {
		t.Skipf("GetSystemTimeAsFileTime: %v", err)
	}
	fn := proc.Addr()

	var wg sync.WaitGroup
	failures := make(chan int, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ft windows.Filetime
			call(fn, uintptr(unsafe.Pointer(&ft)))
			if ft.HighDateTime == 0 && ft.LowDateTime == 0 {
				failures <- i
			}
		}(i)
	}
	wg.Wait()
	close(failures)

	for i := range failures {
		t.Errorf("goroutine %d: out-parameter was not written", i)
	}
}

func TestCall_DeepStack(t *testing.T) {
	proc := windows.NewLazySystemDLL("kernel32.dll").NewProc("GetSystemTimeAsFileTime")
	if err := proc.Find(); err != nil {
		t.Skipf("GetSystemTimeAsFileTime: %v", err)
	}

	var recurse func(depth int) windows.Filetime
	recurse = func(depth int) windows.Filetime {
		var pad [256]byte
		if depth > 0 {
			ft := recurse(depth - 1)
			ft.LowDateTime += uint32(pad[depth%len(pad)])
			return ft
		}
		var ft windows.Filetime
		call(proc.Addr(), uintptr(unsafe.Pointer(&ft)))
		return ft
	}

	done := make(chan windows.Filetime)
	go func() { done <- recurse(32) }()
	if ft := <-done; ft.HighDateTime == 0 && ft.LowDateTime == 0 {
		t.Error("out-parameter was not written after a deep stack")
	}
}
