// Package ledger provides read, write, and subscribe access to an
// append-only attestation log.
//
// The arbitration engine consumes the ledger exclusively through the
// Source, Writer, and Subscriber interfaces; it never assumes a concrete
// backend. Two implementations live here:
//
//   - SQLite: a durable embedded ledger (WAL mode, idempotent appends,
//     monotonic seq head) backing the CLI and scenario tests.
//   - Memory: a lock-guarded slice ledger for unit tests.
//
// Both serialize appends, subscription registration, and backfill under one
// lock, so a subscription opened after seq N observes every record with
// seq > N exactly once. That property is what lets the engine split
// "catch up on the past" from "react to the future" without missing or
// double-delivering a request at the boundary.
package ledger
