// Package safego starts the service's long-lived background loops so that a
// panic in one of them is logged and counted instead of taking the process down.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/IBM/taxinomitis-sub001/internal/telemetry"
)

// Go runs fn in a new goroutine under the given job name. A recovered panic
// ends that goroutine; the job is not restarted.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				telemetry.BackgroundPanicsTotal.WithLabelValues(name).Inc()
				slog.Error("background job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
