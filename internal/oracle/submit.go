package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/ledger"
)

// RetryPolicy bounds the submit retry loop. Both true and false verdicts
// are submitted; a decided-but-unwritten verdict is never dropped
// silently, so exhausting retries halts the run.
type RetryPolicy struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries uint64

	// InitialInterval seeds the exponential backoff.
	InitialInterval time.Duration

	// MaxInterval caps the backoff between attempts.
	MaxInterval time.Duration
}

// DefaultRetryPolicy retries four times over roughly three seconds.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      4,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// submit writes the decision attestation for a fulfillment, retrying
// transient failures with bounded exponential backoff. Returns the UID of
// the committed decision record.
func (o *Oracle) submit(ctx context.Context, fulfillment attest.UID, verdict bool) (attest.UID, error) {
	// A verdict reached before cancellation still commits: the run stops
	// between requests, never between deciding and recording.
	ctx = context.WithoutCancel(ctx)

	payload, err := EncodeDecisionPayload(verdict)
	if err != nil {
		return attest.ZeroUID, fmt.Errorf("encode decision: %w", err)
	}

	draft := ledger.Draft{
		Schema:   attest.SchemaDecision,
		RefUID:   fulfillment,
		Attester: o.address,
		Data:     payload,
		// A fresh salt per submission keeps a re-arbitrated decision
		// distinct from the earlier record; the retry loop below reuses
		// the same draft, so retries of one submission stay idempotent.
		Salt: attest.NewSalt(),
	}

	var committed attest.Attestation
	operation := func() error {
		var attErr error
		committed, attErr = o.ledger.Attest(ctx, draft)
		if attErr != nil {
			o.log.Warn("decision submit attempt failed",
				"oracle", o.address.String(),
				"fulfillment", fulfillment.String(),
				"error", attErr,
			)
		}
		return attErr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.retry.InitialInterval
	bo.MaxInterval = o.retry.MaxInterval

	err = backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), o.retry.MaxRetries))
	if err != nil {
		return attest.ZeroUID, fmt.Errorf("submit decision for %s: %w", fulfillment, err)
	}

	return committed.UID, nil
}
