package deploy

import (
	"context"
	"log"
	"strings"
	"time"

	apperrors "github.com/erdflow/backend/pkg/errors"
)

// withRetry runs op, retrying transient failures with bounded backoff up to
// the attempt ceiling. Permanent failures return immediately; the caller
// classifies them as skip-with-warning.
func (o *Orchestrator) withRetry(ctx context.Context, operation string, op func() error) error {
	var err error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !apperrors.IsTransient(err) {
			return err
		}
		if attempt == o.maxAttempts {
			break
		}

		delay := o.backoff * time.Duration(1<<(attempt-1))
		log.Printf("⚠️  Transient failure during %s (attempt %d/%d), retrying in %v: %v", operation, attempt, o.maxAttempts, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
	return err
}

func lowerKey(name string) string {
	return strings.ToLower(name)
}
