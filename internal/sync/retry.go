package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/gl-apps/glsync/internal/ledger"
	"github.com/gl-apps/glsync/internal/models"
)

// ErrRetryNotAllowed indicates the mapping's last run did not fail, so there
// is nothing to retry.
var ErrRetryNotAllowed = errors.New("sync: mapping is not in a retryable state")

// RetryCoordinator gates retry attempts on a mapping's last run outcome.
type RetryCoordinator struct {
	ledger *ledger.Ledger
}

// NewRetryCoordinator constructs a RetryCoordinator.
func NewRetryCoordinator(led *ledger.Ledger) *RetryCoordinator {
	return &RetryCoordinator{ledger: led}
}

// RetryFailedSync validates that the mapping's previous run ended in failure
// or partial failure, then opens a fresh log row marking the retry attempt.
// It returns the new log id; the caller follows up with a normal SyncData
// invocation. A retry is always a full re-run: upsert idempotency makes
// re-processing already-synced rows safe.
func (r *RetryCoordinator) RetryFailedSync(ctx context.Context, mappingID string) (string, error) {
	if r == nil || r.ledger == nil {
		return "", fmt.Errorf("sync: retry coordinator not initialized")
	}

	last, errLast := r.ledger.LastLog(ctx, mappingID)
	if errors.Is(errLast, ledger.ErrNotFound) {
		return "", fmt.Errorf("%w: mapping has never run", ErrRetryNotAllowed)
	}
	if errLast != nil {
		return "", errLast
	}

	switch last.Status {
	case models.SyncStatusFailed, models.SyncStatusCompletedWithErrors:
	default:
		return "", fmt.Errorf("%w: last run status is %s", ErrRetryNotAllowed, last.Status)
	}

	logID, errCreate := r.ledger.CreateLog(ctx, mappingID, "Retrying previous failed sync")
	if errCreate != nil {
		return "", errCreate
	}
	return logID, nil
}
