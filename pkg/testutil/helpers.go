package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/ajiang-xyz/zekaengine/pkg/events"
	"github.com/ajiang-xyz/zekaengine/pkg/opv"
)

// SetEvent builds a SET event for a path and value.
// Exported for use in external test packages.
func SetEvent(path, value string) events.Event {
	return events.Event{OPV: opv.New(opv.SET, path, []byte(value))}
}

// DeleteEvent builds a DELETE event for a path.
// Exported for use in external test packages.
func DeleteEvent(path string) events.Event {
	return events.Event{OPV: opv.New(opv.DELETE, path, nil)}
}

// WaitForFile polls until path exists or the deadline passes.
func WaitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}
