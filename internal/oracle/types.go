package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oracular/verdict/internal/attest"
)

// DecisionFunc is the caller-supplied trust logic. It receives the
// fulfillment attestation and returns the verdict. It may perform further
// ledger reads and may block; the engine fully awaits one invocation
// before starting the next. An error (or panic) folds to decision=false.
type DecisionFunc func(ctx context.Context, fulfillment attest.Attestation) (bool, error)

// CallbackFunc observes decisions made while listening. It is invoked
// synchronously, exactly once per live decision and never for historical
// ones. A callback error is logged and does not stop the run.
type CallbackFunc func(ctx context.Context, d Decision) error

// ArbitrateOptions configures a run. The zero value processes every
// historical request and re-decides already-arbitrated fulfillments.
type ArbitrateOptions struct {
	// SkipArbitrated excludes fulfillments this oracle has already
	// decided, silently: no decision recorded, no callback.
	SkipArbitrated bool

	// OnlyNew excludes requests whose sequence position predates the
	// run's start marker, even if they were never decided.
	OnlyNew bool
}

// Decision is one verdict: the fulfillment it judges, the boolean
// outcome, and the UID of the committed decision attestation.
type Decision struct {
	Attestation attest.Attestation `json:"attestation"`
	Decision    bool               `json:"decision"`
	Ref         attest.UID         `json:"ref"`
}

// ListenResult aggregates one run's output in discovery order.
// Historical decisions always precede live ones.
type ListenResult struct {
	Decisions      []Decision `json:"decisions"`
	SubscriptionID attest.UID `json:"subscription_id"`
}

// decisionPayload is the decision attestation's Data.
type decisionPayload struct {
	Decision bool `json:"decision"`
}

// EncodeDecisionPayload serializes a verdict for the ledger.
func EncodeDecisionPayload(decision bool) ([]byte, error) {
	return attest.MarshalCanonical(decisionPayload{Decision: decision})
}

// DecodeDecisionPayload parses a decision attestation's Data.
func DecodeDecisionPayload(data []byte) (bool, error) {
	var p decisionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("decode decision payload: %w", err)
	}
	return p.Decision, nil
}

// request is the indexer's view of an arbitration-request attestation:
// who asked which fulfillment to be judged, and where on the ledger.
type request struct {
	fulfillment attest.UID
	requester   attest.Address
	seq         int64
}

func requestFromAttestation(a attest.Attestation) request {
	return request{
		fulfillment: a.RefUID,
		requester:   a.Attester,
		seq:         a.Seq,
	}
}
