// Package monitoring reports errors from degraded paths to an external
// error tracker.
package monitoring

import (
	"sync"
	"time"

	"github.com/kilianp07/fieldalloc/core/apperr"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Degraded reports an error that was absorbed by substituting a neutral
// value. The error kind and component are attached as tags.
func Degraded(component, op string, err error) {
	if err == nil {
		return
	}
	CaptureException(err, map[string]string{
		"component": component,
		"op":        op,
		"kind":      string(apperr.KindOf(err)),
		"degraded":  "true",
	})
}

// Recover captures panics in goroutines.
func Recover() { get().Recover() }

// Flush flushes buffered events.
func Flush(d time.Duration) { get().Flush(d) }
