package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oracular/verdict/internal/attest"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (attestations table + discovery indexes)
const currentSchemaVersion = 1

// SQLite is a durable embedded attestation ledger.
//
// The write lock serializes appends, subscription registration, and
// backfill, which is what guarantees gap-free subscription delivery at the
// afterSeq boundary. SQLite itself only ever sees one writer.
type SQLite struct {
	db  *sql.DB
	now func() int64

	mu     sync.Mutex
	subs   map[*feed]memorySub
	closed bool
}

// SQLiteOption configures a SQLite ledger.
type SQLiteOption func(*SQLite)

// WithSQLiteClock substitutes the time source used for drafts with Time=0.
func WithSQLiteClock(now func() int64) SQLiteOption {
	return func(l *SQLite) {
		l.now = now
	}
}

// OpenSQLite creates or opens a ledger database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect ledger: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY under concurrent readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	l := &SQLite{
		db:   db,
		now:  func() int64 { return time.Now().Unix() },
		subs: make(map[*feed]memorySub),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the database and ends all open subscriptions.
func (l *SQLite) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		for f := range l.subs {
			f.close()
		}
		l.subs = map[*feed]memorySub{}
	}
	l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Attest commits a draft. Re-committing an identical draft (same salt) is
// idempotent via ON CONFLICT(uid) DO NOTHING: the original record returns.
func (l *SQLite) Attest(ctx context.Context, d Draft) (attest.Attestation, error) {
	if d.Time == 0 {
		d.Time = l.now()
	}
	if d.Salt == "" {
		d.Salt = attest.NewSalt()
	}
	uid, err := attest.DeriveUID(d.Schema, d.RefUID, d.Attester, d.Recipient, d.Time, d.Data, d.Salt)
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("attest: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return attest.Attestation{}, ErrClosed
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO attestations
		(uid, schema, ref_uid, time, expiration_time, revocation_time, recipient, attester, revocable, data)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT(uid) DO NOTHING
	`,
		uid.String(),
		string(d.Schema),
		d.RefUID.String(),
		d.Time,
		d.ExpirationTime,
		d.Recipient.String(),
		d.Attester.String(),
		boolToInt(d.Revocable),
		d.Data,
	)
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("attest: insert: %w", err)
	}

	rec, err := l.getRow(ctx, uid)
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("attest: read back: %w", err)
	}

	// Only a fresh insert is fanned out; an idempotent replay was already
	// delivered when it first committed.
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		for f, spec := range l.subs {
			if rec.Schema == spec.schema && spec.filter.Matches(rec) {
				f.push(rec)
			}
		}
	}

	return rec, nil
}

// Get fetches one attestation by UID.
func (l *SQLite) Get(ctx context.Context, uid attest.UID) (attest.Attestation, error) {
	return l.getRow(ctx, uid)
}

func (l *SQLite) getRow(ctx context.Context, uid attest.UID) (attest.Attestation, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT seq, uid, schema, ref_uid, time, expiration_time, revocation_time, recipient, attester, revocable, data
		FROM attestations
		WHERE uid = ?
	`, uid.String())

	rec, err := scanAttestation(row)
	if err == sql.ErrNoRows {
		return attest.Attestation{}, fmt.Errorf("get %s: %w", uid, ErrNotFound)
	}
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("get %s: %w", uid, err)
	}
	return rec, nil
}

// Query returns matching attestations ascending by Seq.
func (l *SQLite) Query(ctx context.Context, schema attest.Schema, f Filter) ([]attest.Attestation, error) {
	query := `
		SELECT seq, uid, schema, ref_uid, time, expiration_time, revocation_time, recipient, attester, revocable, data
		FROM attestations
		WHERE schema = ? AND seq > ?
	`
	args := []any{string(schema), f.AfterSeq}

	if !f.Recipient.IsZero() {
		query += " AND recipient = ?"
		args = append(args, f.Recipient.String())
	}
	if !f.Attester.IsZero() {
		query += " AND attester = ?"
		args = append(args, f.Attester.String())
	}
	if !f.RefUID.IsZero() {
		query += " AND ref_uid = ?"
		args = append(args, f.RefUID.String())
	}
	if f.UpToSeq > 0 {
		query += " AND seq <= ?"
		args = append(args, f.UpToSeq)
	}
	query += " ORDER BY seq ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", schema, err)
	}
	defer rows.Close()

	out := []attest.Attestation{}
	for rows.Next() {
		rec, err := scanAttestation(rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", schema, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: iterate: %w", schema, err)
	}
	return out, nil
}

// ResolveEscrow follows a fulfillment's RefUID to its escrow attestation.
func (l *SQLite) ResolveEscrow(ctx context.Context, fulfillment attest.Attestation) (attest.Attestation, error) {
	if fulfillment.RefUID.IsZero() {
		return attest.Attestation{}, fmt.Errorf("resolve escrow for %s: no reference: %w", fulfillment.UID, ErrNotFound)
	}
	return l.Get(ctx, fulfillment.RefUID)
}

// Head returns the ledger's current monotonic sequence position.
func (l *SQLite) Head(ctx context.Context) (int64, error) {
	var head int64
	if err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM attestations`).Scan(&head); err != nil {
		return 0, fmt.Errorf("head: %w", err)
	}
	return head, nil
}

// Subscribe opens a live feed delivering every matching record with
// seq > afterSeq exactly once, backfill first. Registration and backfill
// run under the write lock, so a record committing concurrently is either
// in the backfill or fanned out live, never both or neither.
func (l *SQLite) Subscribe(ctx context.Context, schema attest.Schema, f Filter, afterSeq int64) (*Subscription, error) {
	if afterSeq > f.AfterSeq {
		f.AfterSeq = afterSeq
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}

	backfill, err := l.Query(ctx, schema, f)
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("subscribe: backfill: %w", err)
	}

	fd := newFeed()
	for _, rec := range backfill {
		fd.push(rec)
	}
	l.subs[fd] = memorySub{schema: schema, filter: f}
	l.mu.Unlock()

	sub := &Subscription{
		ch: make(chan attest.Attestation),
		id: attest.NewUID(),
		cancel: func() {
			l.mu.Lock()
			delete(l.subs, fd)
			l.mu.Unlock()
			fd.close()
		},
	}
	go fd.pump(ctx, sub.ch)

	return sub, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttestation(s scanner) (attest.Attestation, error) {
	var (
		rec       attest.Attestation
		uid       string
		schema    string
		refUID    string
		recipient string
		attester  string
		revocable int
	)
	err := s.Scan(
		&rec.Seq, &uid, &schema, &refUID,
		&rec.Time, &rec.ExpirationTime, &rec.RevocationTime,
		&recipient, &attester, &revocable, &rec.Data,
	)
	if err != nil {
		return attest.Attestation{}, err
	}

	if rec.UID, err = attest.ParseUID(uid); err != nil {
		return attest.Attestation{}, err
	}
	if rec.RefUID, err = attest.ParseUID(refUID); err != nil {
		return attest.Attestation{}, err
	}
	if rec.Recipient, err = attest.ParseAddress(recipient); err != nil {
		return attest.Attestation{}, err
	}
	if rec.Attester, err = attest.ParseAddress(attester); err != nil {
		return attest.Attestation{}, err
	}
	rec.Schema = attest.Schema(schema)
	rec.Revocable = revocable != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Ledger = (*SQLite)(nil)
