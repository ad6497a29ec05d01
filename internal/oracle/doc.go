// Package oracle implements the arbitration engine: discovery of pending
// arbitration requests for one oracle identity, exactly-once-per-run
// application of a caller-supplied decision function, and submission of
// the resulting decisions back onto the attestation ledger.
//
// ARCHITECTURE:
//
// Single-Writer Run:
// One call to ArbitratePast or ListenAndArbitrate is one run. A run
// processes requests strictly sequentially in one goroutine: each request
// is fully evaluated, submitted, and (while listening) delivered to the
// callback before the next is considered. This ensures:
//   - Deterministic decision ordering (ascending ledger seq)
//   - State-tracker reads are never raced by a concurrent evaluation
//   - Callback traffic mirrors the decision log exactly
//
// Run Flow:
//  1. STARTING: capture the start marker from the ledger's monotonic head
//  2. DRAINING_PAST: query and process requests recorded before the run
//  3. LISTENING (listen mode only): subscribe past the drained boundary
//     and process live requests until timeout or cancellation
//  4. DONE/CANCELLED: return accumulated decisions; partial results on
//     cancellation are valid, not an error
//
// Historical decisions are never delivered to the callback; callback
// delivery is reserved for decisions made while listening. This asymmetry
// is contractual.
//
// Error policy: a failing or panicking decision function folds to
// decision=false and the run continues ("log and continue"); a write-path
// failure after retries halts the run and surfaces a *RunError alongside
// the partial results. Concurrent runs for the same oracle identity are
// not serialized; single-writer use per identity is assumed.
package oracle
