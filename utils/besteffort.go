package utils

import (
	"context"

	"github.com/Roland735/cribmatch-website-sub000/logger"
)

// BestEffort runs a side effect whose failure must not fail the caller.
// Failures are logged at warn level with the operation name.
func BestEffort(ctx context.Context, log *logger.Logger, op string, fn func(ctx context.Context) error) bool {
	if err := fn(ctx); err != nil {
		if log != nil {
			log.WithError(err).Warn("best-effort operation failed", "operation", op)
		}
		return false
	}
	return true
}
