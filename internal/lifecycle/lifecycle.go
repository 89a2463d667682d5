package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown sets the process-wide drain flag. The signal handler sets
// it before stopping the controller loop; the admin health endpoint reports
// 503 shutting-down while it is set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the logger is draining and should not be
// handed new work.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
