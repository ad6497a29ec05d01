package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/ledger"
)

// Oracle is an arbitration engine bound to one oracle identity.
//
// Thread-safety model:
//   - One ArbitratePast/ListenAndArbitrate call is one run, executing
//     entirely in the caller's goroutine.
//   - Distinct Oracle values (or distinct runs of one value) targeting the
//     same address are NOT serialized; overlapping runs can both observe
//     "not yet arbitrated" and both submit. Single-writer use per oracle
//     identity is the caller's responsibility.
type Oracle struct {
	ledger  ledger.Ledger
	address attest.Address
	log     *slog.Logger
	retry   RetryPolicy
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Oracle) {
		o.log = log
	}
}

// WithRetryPolicy replaces the submit retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Oracle) {
		o.retry = p
	}
}

// New creates an arbitration engine for the given oracle address.
func New(l ledger.Ledger, address attest.Address, opts ...Option) *Oracle {
	o := &Oracle{
		ledger:  l,
		address: address,
		log:     slog.Default(),
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Address returns the oracle identity this engine arbitrates for.
func (o *Oracle) Address() attest.Address {
	return o.address
}

// run carries the per-run state threaded through both phases.
type run struct {
	tracker *stateTracker
	seen    map[attest.UID]bool // fulfillments already in this run's output
	opts    ArbitrateOptions
	fn      DecisionFunc
	result  ListenResult
}

// ArbitratePast processes every arbitration request recorded before the
// call, in ascending sequence order, and returns the accumulated
// decisions. It opens no subscription and terminates once the historical
// drain completes.
//
// Cancellation between requests returns the partial result with a nil
// error; an in-flight evaluate/submit always completes first.
func (o *Oracle) ArbitratePast(ctx context.Context, fn DecisionFunc, opts ArbitrateOptions) (ListenResult, error) {
	r := &run{
		tracker: newStateTracker(o.ledger, o.address),
		seen:    make(map[attest.UID]bool),
		opts:    opts,
		fn:      fn,
		result:  ListenResult{Decisions: []Decision{}},
	}

	marker, err := o.ledger.Head(ctx)
	if err != nil {
		return r.result, newRunError(ErrCodeIndexFailed, "capture start marker", o.address, attest.ZeroUID, err)
	}

	return r.result, o.drainPast(ctx, r, marker)
}

// ListenAndArbitrate drains historical requests, then listens for new
// ones until the timeout elapses (measured from entry into listening, so
// drain time does not count) or ctx is cancelled. A timeout <= 0 listens
// until cancellation.
//
// The callback is invoked synchronously, exactly once per decision made
// while listening and never for historical decisions.
func (o *Oracle) ListenAndArbitrate(ctx context.Context, fn DecisionFunc, cb CallbackFunc, opts ArbitrateOptions, timeout time.Duration) (ListenResult, error) {
	r := &run{
		tracker: newStateTracker(o.ledger, o.address),
		seen:    make(map[attest.UID]bool),
		opts:    opts,
		fn:      fn,
		result:  ListenResult{Decisions: []Decision{}},
	}

	marker, err := o.ledger.Head(ctx)
	if err != nil {
		return r.result, newRunError(ErrCodeIndexFailed, "capture start marker", o.address, attest.ZeroUID, err)
	}

	if err := o.drainPast(ctx, r, marker); err != nil {
		return r.result, err
	}
	if ctx.Err() != nil {
		return r.result, nil
	}

	// Subscribe past the drain boundary, so a request is never delivered
	// by both phases.
	sub, err := o.ledger.Subscribe(ctx, attest.SchemaArbitrationRequest, ledger.Filter{Recipient: o.address}, marker)
	if err != nil {
		return r.result, newRunError(ErrCodeSubscribeFailed, "open request subscription", o.address, attest.ZeroUID, err)
	}
	defer sub.Close()
	r.result.SubscriptionID = sub.ID()

	o.log.Debug("listening for arbitration requests",
		"oracle", o.address.String(),
		"subscription", sub.ID().String(),
		"after_seq", marker,
		"timeout", timeout,
	)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return r.result, nil

		case <-timeoutCh:
			return r.result, nil

		case a, ok := <-sub.C():
			if !ok {
				return r.result, nil
			}
			d, skipped, err := o.processRequest(ctx, r, requestFromAttestation(a))
			if err != nil {
				return r.result, err
			}
			if skipped {
				continue
			}
			r.result.Decisions = append(r.result.Decisions, d)
			o.invokeCallback(ctx, cb, d)
		}
	}
}

// drainPast runs the historical phase: process every request with
// seq <= marker in ascending order. The subsequent subscription picks up
// at the marker, so the phases partition the sequence space.
//
// With OnlyNew, requests at or before the start marker are excluded even
// if unprocessed; without it, every historical request is eligible.
func (o *Oracle) drainPast(ctx context.Context, r *run, marker int64) error {
	after := int64(0)
	if r.opts.OnlyNew {
		after = marker
	}

	// UpToSeq pins the historical phase at the start marker: a request
	// committing mid-drain belongs to the listening phase, where the
	// subscription delivers it.
	past, err := o.ledger.Query(ctx, attest.SchemaArbitrationRequest, ledger.Filter{
		Recipient: o.address,
		AfterSeq:  after,
		UpToSeq:   marker,
	})
	if err != nil {
		return newRunError(ErrCodeIndexFailed, "query past requests", o.address, attest.ZeroUID, err)
	}

	o.log.Debug("draining past arbitration requests",
		"oracle", o.address.String(),
		"requests", len(past),
		"marker", marker,
		"only_new", r.opts.OnlyNew,
	)

	for _, a := range past {
		// Cancellation is observed between requests only; a request in
		// flight always completes and is recorded.
		if ctx.Err() != nil {
			return nil
		}

		d, skipped, err := o.processRequest(ctx, r, requestFromAttestation(a))
		if err != nil {
			return err
		}
		if !skipped {
			// Historical decisions are recorded but never delivered to
			// the callback; that is reserved for the listening phase.
			r.result.Decisions = append(r.result.Decisions, d)
		}
	}

	return nil
}

// processRequest applies the idempotency checks, evaluates the decision
// function once, and submits the verdict. skipped=true means the request
// produced no output and no callback traffic.
func (o *Oracle) processRequest(ctx context.Context, r *run, req request) (Decision, bool, error) {
	// A fulfillment appears in a run's output at most once, however many
	// requests reference it.
	if r.seen[req.fulfillment] {
		return Decision{}, true, nil
	}

	if r.opts.SkipArbitrated {
		done, err := r.tracker.hasArbitrated(ctx, req.fulfillment)
		if err != nil {
			return Decision{}, false, newRunError(ErrCodeIndexFailed, "check arbitration state", o.address, req.fulfillment, err)
		}
		if done {
			o.log.Debug("skipping already-arbitrated fulfillment",
				"oracle", o.address.String(),
				"fulfillment", req.fulfillment.String(),
			)
			return Decision{}, true, nil
		}
	}

	fulfillment, err := o.ledger.Get(ctx, req.fulfillment)
	verdict := false
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		// A dangling request is judged against nothing: the verdict is a
		// recorded rejection, not a run failure.
		o.log.Warn("fulfillment attestation missing",
			"oracle", o.address.String(),
			"fulfillment", req.fulfillment.String(),
			"requester", req.requester.String(),
		)
		fulfillment = attest.Attestation{UID: req.fulfillment}
	case err != nil:
		o.log.Error("fulfillment fetch failed",
			"oracle", o.address.String(),
			"fulfillment", req.fulfillment.String(),
			"error", err,
		)
		fulfillment = attest.Attestation{UID: req.fulfillment}
	default:
		verdict = o.evaluate(ctx, r.fn, fulfillment)
	}

	ref, err := o.submit(ctx, req.fulfillment, verdict)
	if err != nil {
		return Decision{}, false, newRunError(ErrCodeSubmitFailed, "submit decision", o.address, req.fulfillment, err)
	}

	r.seen[req.fulfillment] = true
	r.tracker.markArbitrated(req.fulfillment)

	o.log.Info("arbitrated",
		"oracle", o.address.String(),
		"fulfillment", req.fulfillment.String(),
		"decision", verdict,
		"ref", ref.String(),
	)

	return Decision{Attestation: fulfillment, Decision: verdict, Ref: ref}, false, nil
}

// evaluate invokes the decision function exactly once, folding errors and
// panics into a rejection so one bad evaluation cannot abort the run.
func (o *Oracle) evaluate(ctx context.Context, fn DecisionFunc, fulfillment attest.Attestation) (verdict bool) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("decision function panicked",
				"oracle", o.address.String(),
				"fulfillment", fulfillment.UID.String(),
				"panic", rec,
			)
			verdict = false
		}
	}()

	verdict, err := fn(ctx, fulfillment)
	if err != nil {
		o.log.Error("decision function failed",
			"oracle", o.address.String(),
			"fulfillment", fulfillment.UID.String(),
			"error", err,
		)
		return false
	}
	return verdict
}

// invokeCallback delivers a live decision, absorbing errors and panics;
// callback failures are logged and never stop the loop.
func (o *Oracle) invokeCallback(ctx context.Context, cb CallbackFunc, d Decision) {
	if cb == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("decision callback panicked",
				"oracle", o.address.String(),
				"fulfillment", d.Attestation.UID.String(),
				"panic", rec,
			)
		}
	}()

	if err := cb(ctx, d); err != nil {
		o.log.Error("decision callback failed",
			"oracle", o.address.String(),
			"fulfillment", d.Attestation.UID.String(),
			"error", err,
		)
	}
}
