// Package attest defines the attestation data model shared by the ledger
// and the arbitration engine.
//
// An attestation is an immutable, ledger-recorded fact (an escrow, a
// fulfillment, an arbitration request, a decision) identified by a 32-byte
// UID and referencing other attestations through RefUID. The engine never
// interprets attestation payload bytes; payload codecs live with the
// workflows that own them (escrow demands, string obligations, decisions).
//
// UIDs are content-addressed: SHA-256 over the RFC 8785 canonical JSON of
// the attestation body plus a per-draft salt. The salt keeps two otherwise
// identical records (e.g. a re-arbitrated decision) distinct while keeping
// derivation deterministic for a fixed salt.
package attest
