package oracle

import (
	"context"
	"fmt"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/ledger"
)

// stateTracker answers "has this fulfillment already been decided by this
// oracle" by querying the ledger's decision schema.
//
// It is a stateless wrapper over the ledger except for a run-local cache
// of POSITIVE answers: a uid decided before the run, or submitted by the
// run itself, stays decided. Negative answers are never cached, so the
// tracker cannot serve a stale "not arbitrated" after this run submits.
type stateTracker struct {
	source  ledger.Source
	oracle  attest.Address
	decided map[attest.UID]bool
}

func newStateTracker(source ledger.Source, oracle attest.Address) *stateTracker {
	return &stateTracker{
		source:  source,
		oracle:  oracle,
		decided: make(map[attest.UID]bool),
	}
}

// hasArbitrated reports whether a decision attestation by this oracle
// already exists for the fulfillment.
func (t *stateTracker) hasArbitrated(ctx context.Context, fulfillment attest.UID) (bool, error) {
	if t.decided[fulfillment] {
		return true, nil
	}

	decisions, err := t.source.Query(ctx, attest.SchemaDecision, ledger.Filter{
		RefUID:   fulfillment,
		Attester: t.oracle,
	})
	if err != nil {
		return false, fmt.Errorf("query decisions for %s: %w", fulfillment, err)
	}

	if len(decisions) > 0 {
		t.decided[fulfillment] = true
		return true, nil
	}
	return false, nil
}

// markArbitrated records a submission made by this run.
func (t *stateTracker) markArbitrated(fulfillment attest.UID) {
	t.decided[fulfillment] = true
}
