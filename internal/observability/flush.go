package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry drains buffered telemetry at the end of the shutdown
// sequence, once the controller loop is stopped and in-flight requests have
// completed. Prometheus is pull-based so there is nothing to push; the work
// here is syncing the logger so the final shutdown entries reach disk.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger != nil {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}
