package attest

import (
	"encoding/json"
	"fmt"
)

// Demand is the arbiter-specific condition attached to an escrow:
// the arbiter address plus opaque bytes only that arbiter's decision
// logic knows how to read. The engine never decodes Payload.
type Demand struct {
	Arbiter Address `json:"arbiter"`
	Payload []byte  `json:"payload"`
}

// EncodeDemand serializes a demand as canonical JSON for embedding in an
// escrow attestation's Data.
func EncodeDemand(d Demand) ([]byte, error) {
	raw, err := MarshalCanonical(d)
	if err != nil {
		return nil, fmt.Errorf("encode demand: %w", err)
	}
	return raw, nil
}

// DecodeDemand parses an escrow attestation's Data back into a Demand.
func DecodeDemand(data []byte) (Demand, error) {
	var d Demand
	if err := json.Unmarshal(data, &d); err != nil {
		return Demand{}, fmt.Errorf("decode demand: %w", err)
	}
	return d, nil
}
