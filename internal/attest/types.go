package attest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Schema identifies the kind of fact an attestation records.
type Schema string

// Well-known schemas. The engine only ever queries SchemaArbitrationRequest
// and SchemaDecision; the others belong to the escrow workflow.
const (
	SchemaEscrow             Schema = "verdict.escrow.v1"
	SchemaFulfillment        Schema = "verdict.fulfillment.v1"
	SchemaArbitrationRequest Schema = "verdict.arbitration-request.v1"
	SchemaDecision           Schema = "verdict.decision.v1"
)

// UID is a 32-byte ledger-unique attestation identifier.
// Rendered as 0x-prefixed lowercase hex in JSON and logs.
type UID [32]byte

// ZeroUID is the absent reference (RefUID of a root attestation).
var ZeroUID UID

// ParseUID parses a 0x-prefixed (or bare) 64-digit hex string.
func ParseUID(s string) (UID, error) {
	var u UID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return u, fmt.Errorf("parse uid %q: %w", s, err)
	}
	if len(raw) != len(u) {
		return u, fmt.Errorf("parse uid %q: want %d bytes, got %d", s, len(u), len(raw))
	}
	copy(u[:], raw)
	return u, nil
}

// String renders the UID as 0x-prefixed hex.
func (u UID) String() string {
	return "0x" + hex.EncodeToString(u[:])
}

// IsZero reports whether the UID is the absent reference.
func (u UID) IsZero() bool {
	return u == ZeroUID
}

// MarshalJSON implements json.Marshaler.
func (u UID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseUID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Address is a 20-byte participant identity (oracle, requester, attester).
type Address [20]byte

// ZeroAddress is the absent identity.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed (or bare) 40-digit hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("parse address %q: want %d bytes, got %d", s, len(a), len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// String renders the address as 0x-prefixed hex.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the absent identity.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalJSON implements json.Marshaler.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Attestation is an immutable ledger record.
//
// Seq is the ledger sequence position assigned at commit time. It is the
// only field the ledger owns; everything else is fixed by the attester.
// Records are ordered by Seq ascending everywhere in this module.
type Attestation struct {
	UID            UID     `json:"uid"`
	Schema         Schema  `json:"schema"`
	RefUID         UID     `json:"ref_uid"`
	Time           int64   `json:"time"` // unix seconds, attester-supplied
	ExpirationTime int64   `json:"expiration_time"`
	RevocationTime int64   `json:"revocation_time"`
	Recipient      Address `json:"recipient"`
	Attester       Address `json:"attester"`
	Revocable      bool    `json:"revocable"`
	Data           []byte  `json:"data"`
	Seq            int64   `json:"seq"`
}

// Equal reports whether two attestations are the same record.
// UID equality is sufficient once committed; Seq is included so that an
// uncommitted draft never compares equal to a committed record.
func (a Attestation) Equal(b Attestation) bool {
	return a.UID == b.UID && a.Seq == b.Seq && bytes.Equal(a.Data, b.Data)
}
