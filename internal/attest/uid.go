package attest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// NewSalt returns a random per-draft salt.
// Tests substitute fixed salts to get reproducible UIDs.
func NewSalt() string {
	return uuid.NewString()
}

// DeriveUID computes the content-addressed UID for an attestation body.
//
// The body is serialized as RFC 8785 canonical JSON so that derivation is
// stable across processes and field orderings, then hashed with SHA-256.
// Seq is excluded: it does not exist until the ledger commits the record.
func DeriveUID(schema Schema, refUID UID, attester, recipient Address, time int64, data []byte, salt string) (UID, error) {
	body := map[string]any{
		"schema":    string(schema),
		"ref_uid":   refUID.String(),
		"attester":  attester.String(),
		"recipient": recipient.String(),
		"time":      time,
		"data":      hex.EncodeToString(data),
		"salt":      salt,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return ZeroUID, fmt.Errorf("derive uid: marshal body: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return ZeroUID, fmt.Errorf("derive uid: canonicalize body: %w", err)
	}

	return UID(sha256.Sum256(canonical)), nil
}

// NewUID returns a random (non-content-addressed) UID, used for opaque
// identifiers such as subscription ids.
func NewUID() UID {
	id := uuid.New()
	return UID(sha256.Sum256(id[:]))
}

// MarshalCanonical serializes v as RFC 8785 canonical JSON.
// Used wherever payload bytes feed identity derivation or golden comparison.
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical transform: %w", err)
	}
	return canonical, nil
}
