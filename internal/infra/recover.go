package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f in its own goroutine and restarts it after a panic.
// A negative maxPanics never gives up; otherwise the process exits once the
// budget is spent.
func GoRecoverable(maxPanics int, id string, f func()) {
	go func() {
		for {
			err := Recover(id, func() error {
				f()
				return nil
			})
			if err == nil {
				return
			}
			entry := log.WithField("job", id)
			if maxPanics == 0 {
				entry.Fatal("panics limit exceeded, exiting")
			}
			if maxPanics > 0 {
				maxPanics--
			}
			entry.WithField("panics_left", maxPanics).Debug("restarting job")
		}
	}()
}

// Recover calls f and converts a panic into an error naming the site.
func Recover(id string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			site := identifyPanic()
			log.WithField("job", id).WithField("site", site).Errorf("panic: %v", r)
			err = fmt.Errorf("job %q panicked at %s: %v", id, site, r)
		}
	}()
	return f()
}

func identifyPanic() string {
	var pc [16]uintptr
	n := runtime.Callers(4, pc[:])
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.Function, frame.Line)
		}
		if !more {
			break
		}
	}
	return "unknown"
}
