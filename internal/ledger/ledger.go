package ledger

import (
	"context"
	"errors"

	"github.com/oracular/verdict/internal/attest"
)

// ErrNotFound is returned when a referenced attestation does not exist.
var ErrNotFound = errors.New("attestation not found")

// ErrClosed is returned by writes and subscriptions against a closed ledger.
var ErrClosed = errors.New("ledger closed")

// Filter narrows a query or subscription. Zero-valued fields are wildcards.
// AfterSeq/UpToSeq bound the sequence range: only records with
// AfterSeq < seq (and seq <= UpToSeq when UpToSeq > 0) match.
type Filter struct {
	Recipient attest.Address
	Attester  attest.Address
	RefUID    attest.UID
	AfterSeq  int64
	UpToSeq   int64
}

// Matches reports whether an attestation satisfies the filter.
// Schema matching is handled by the caller; filters only constrain fields.
func (f Filter) Matches(a attest.Attestation) bool {
	if !f.Recipient.IsZero() && a.Recipient != f.Recipient {
		return false
	}
	if !f.Attester.IsZero() && a.Attester != f.Attester {
		return false
	}
	if !f.RefUID.IsZero() && a.RefUID != f.RefUID {
		return false
	}
	if a.Seq <= f.AfterSeq {
		return false
	}
	if f.UpToSeq > 0 && a.Seq > f.UpToSeq {
		return false
	}
	return true
}

// Draft is an attestation awaiting commit. The ledger derives the UID from
// the draft body (content-addressed, salted) and assigns Seq at commit.
type Draft struct {
	Schema         attest.Schema
	RefUID         attest.UID
	Recipient      attest.Address
	Attester       attest.Address
	Revocable      bool
	Data           []byte
	Time           int64  // unix seconds; 0 means "ledger clock now"
	ExpirationTime int64
	Salt           string // "" means a fresh random salt
}

// Source is read access to the ledger. All calls are potentially
// network-bound in a remote implementation and honor ctx cancellation.
type Source interface {
	// Get fetches one attestation by UID. Returns ErrNotFound if absent.
	Get(ctx context.Context, uid attest.UID) (attest.Attestation, error)

	// Query returns all attestations of a schema matching the filter,
	// ascending by Seq.
	Query(ctx context.Context, schema attest.Schema, f Filter) ([]attest.Attestation, error)

	// ResolveEscrow follows a fulfillment's RefUID to its escrow
	// attestation. Returns ErrNotFound if the reference is absent or
	// dangling.
	ResolveEscrow(ctx context.Context, fulfillment attest.Attestation) (attest.Attestation, error)
}

// Writer is write access to the ledger.
type Writer interface {
	// Attest commits a draft and returns the committed record with its
	// assigned Seq. Committing an identical draft twice (same salt) is
	// idempotent: the original record is returned.
	Attest(ctx context.Context, d Draft) (attest.Attestation, error)
}

// Subscriber is live access to the ledger.
type Subscriber interface {
	// Head returns the ledger's current monotonic sequence position.
	Head(ctx context.Context) (int64, error)

	// Subscribe opens a live feed of attestations of a schema matching the
	// filter, delivering every record with seq > afterSeq exactly once in
	// ascending order: first a backfill of records already committed, then
	// records as they commit. The feed ends when the subscription is
	// closed or ctx is cancelled.
	Subscribe(ctx context.Context, schema attest.Schema, f Filter, afterSeq int64) (*Subscription, error)
}

// Ledger is the full read/write/subscribe capability.
type Ledger interface {
	Source
	Writer
	Subscriber
}

// Subscription is a live feed of attestations. Close is idempotent and
// safe to call concurrently with receives.
type Subscription struct {
	ch     chan attest.Attestation
	id     attest.UID
	cancel func()
}

// C is the receive channel. It closes when the subscription ends.
func (s *Subscription) C() <-chan attest.Attestation {
	return s.ch
}

// ID identifies the subscription for logging and results.
func (s *Subscription) ID() attest.UID {
	return s.id
}

// Close tears the subscription down. Buffered records may still be
// received after Close; the channel closes once drained.
func (s *Subscription) Close() {
	s.cancel()
}
