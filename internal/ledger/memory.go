package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oracular/verdict/internal/attest"
)

// Memory is an in-process ledger backed by a slice. It honors the same
// append/subscribe serialization contract as the SQLite ledger and exists
// for unit tests and ephemeral runs.
type Memory struct {
	mu      sync.Mutex
	records []attest.Attestation
	byUID   map[attest.UID]int
	subs    map[*feed]memorySub
	closed  bool
	now     func() int64
}

type memorySub struct {
	schema attest.Schema
	filter Filter
}

// MemoryOption configures a Memory ledger.
type MemoryOption func(*Memory)

// WithMemoryClock substitutes the time source used for drafts with Time=0.
func WithMemoryClock(now func() int64) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		byUID: make(map[attest.UID]int),
		subs:  make(map[*feed]memorySub),
		now:   func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attest commits a draft, assigning the next sequence position.
// Re-committing an identical draft (same salt) returns the original record.
func (m *Memory) Attest(ctx context.Context, d Draft) (attest.Attestation, error) {
	if err := ctx.Err(); err != nil {
		return attest.Attestation{}, err
	}

	if d.Time == 0 {
		d.Time = m.now()
	}
	if d.Salt == "" {
		d.Salt = attest.NewSalt()
	}
	uid, err := attest.DeriveUID(d.Schema, d.RefUID, d.Attester, d.Recipient, d.Time, d.Data, d.Salt)
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("attest: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return attest.Attestation{}, ErrClosed
	}
	if idx, ok := m.byUID[uid]; ok {
		return m.records[idx], nil
	}

	rec := attest.Attestation{
		UID:            uid,
		Schema:         d.Schema,
		RefUID:         d.RefUID,
		Time:           d.Time,
		ExpirationTime: d.ExpirationTime,
		Recipient:      d.Recipient,
		Attester:       d.Attester,
		Revocable:      d.Revocable,
		Data:           append([]byte(nil), d.Data...),
		Seq:            int64(len(m.records)) + 1,
	}
	m.byUID[uid] = len(m.records)
	m.records = append(m.records, rec)

	// Fan out under the same lock that serialized the append, so every
	// subscription sees records in commit order with no gaps.
	for f, spec := range m.subs {
		if rec.Schema == spec.schema && spec.filter.Matches(rec) {
			f.push(rec)
		}
	}

	return rec, nil
}

// Get fetches one attestation by UID.
func (m *Memory) Get(ctx context.Context, uid attest.UID) (attest.Attestation, error) {
	if err := ctx.Err(); err != nil {
		return attest.Attestation{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byUID[uid]
	if !ok {
		return attest.Attestation{}, fmt.Errorf("get %s: %w", uid, ErrNotFound)
	}
	return m.records[idx], nil
}

// Query returns matching attestations ascending by Seq.
func (m *Memory) Query(ctx context.Context, schema attest.Schema, f Filter) ([]attest.Attestation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := []attest.Attestation{}
	for _, rec := range m.records {
		if rec.Schema == schema && f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ResolveEscrow follows a fulfillment's RefUID to its escrow attestation.
func (m *Memory) ResolveEscrow(ctx context.Context, fulfillment attest.Attestation) (attest.Attestation, error) {
	if fulfillment.RefUID.IsZero() {
		return attest.Attestation{}, fmt.Errorf("resolve escrow for %s: no reference: %w", fulfillment.UID, ErrNotFound)
	}
	return m.Get(ctx, fulfillment.RefUID)
}

// Head returns the current monotonic sequence position.
func (m *Memory) Head(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

// Subscribe opens a live feed delivering every matching record with
// seq > afterSeq exactly once, backfill first.
func (m *Memory) Subscribe(ctx context.Context, schema attest.Schema, f Filter, afterSeq int64) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if afterSeq > f.AfterSeq {
		f.AfterSeq = afterSeq
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	fd := newFeed()
	for _, rec := range m.records {
		if rec.Schema == schema && f.Matches(rec) {
			fd.push(rec)
		}
	}
	m.subs[fd] = memorySub{schema: schema, filter: f}
	m.mu.Unlock()

	sub := &Subscription{
		ch: make(chan attest.Attestation),
		id: attest.NewUID(),
		cancel: func() {
			m.mu.Lock()
			delete(m.subs, fd)
			m.mu.Unlock()
			fd.close()
		},
	}
	go fd.pump(ctx, sub.ch)

	return sub, nil
}

// Close tears down the ledger and all open subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for f := range m.subs {
		f.close()
	}
	m.subs = map[*feed]memorySub{}
	return nil
}

var _ Ledger = (*Memory)(nil)
