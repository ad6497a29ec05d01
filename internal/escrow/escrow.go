// Package escrow implements the participant side of the arbitration
// workflow: recording escrows, fulfillments, and arbitration requests on
// the ledger, and checking whether an escrow has become collectable.
//
// The arbitration engine never writes these schemas; it only observes
// their effects. The engine's single trigger, the arbitration request, is
// produced here by a requester.
package escrow

import (
	"context"
	"fmt"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/ledger"
	"github.com/oracular/verdict/internal/oracle"
)

// Obligation is the string-obligation fulfillment payload.
type Obligation struct {
	Item string `json:"item"`
}

// EncodeObligation serializes an obligation payload as canonical JSON.
func EncodeObligation(o Obligation) ([]byte, error) {
	return attest.MarshalCanonical(o)
}

// Client performs ledger writes on behalf of one participant identity.
type Client struct {
	ledger  ledger.Ledger
	address attest.Address
}

// NewClient creates a workflow client acting as the given address.
func NewClient(l ledger.Ledger, address attest.Address) *Client {
	return &Client{ledger: l, address: address}
}

// CreateEscrow records a demand-bearing escrow attestation. The demand's
// payload stays opaque; only the named arbiter's decision logic reads it.
func (c *Client) CreateEscrow(ctx context.Context, demand attest.Demand, expiration int64) (attest.Attestation, error) {
	data, err := attest.EncodeDemand(demand)
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("create escrow: %w", err)
	}

	rec, err := c.ledger.Attest(ctx, ledger.Draft{
		Schema:         attest.SchemaEscrow,
		Recipient:      demand.Arbiter,
		Attester:       c.address,
		Data:           data,
		ExpirationTime: expiration,
	})
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("create escrow: %w", err)
	}
	return rec, nil
}

// Fulfill records a string-obligation fulfillment referencing an escrow.
func (c *Client) Fulfill(ctx context.Context, escrowUID attest.UID, item string) (attest.Attestation, error) {
	esc, err := c.ledger.Get(ctx, escrowUID)
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("fulfill escrow %s: %w", escrowUID, err)
	}

	data, err := EncodeObligation(Obligation{Item: item})
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("fulfill escrow %s: %w", escrowUID, err)
	}

	rec, err := c.ledger.Attest(ctx, ledger.Draft{
		Schema:    attest.SchemaFulfillment,
		RefUID:    escrowUID,
		Recipient: esc.Attester,
		Attester:  c.address,
		Data:      data,
	})
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("fulfill escrow %s: %w", escrowUID, err)
	}
	return rec, nil
}

// RequestArbitration asks an oracle to judge a fulfillment. This is the
// trigger the arbitration engine discovers through its indexer.
func (c *Client) RequestArbitration(ctx context.Context, fulfillmentUID attest.UID, oracleAddr attest.Address) (attest.Attestation, error) {
	if _, err := c.ledger.Get(ctx, fulfillmentUID); err != nil {
		return attest.Attestation{}, fmt.Errorf("request arbitration for %s: %w", fulfillmentUID, err)
	}

	rec, err := c.ledger.Attest(ctx, ledger.Draft{
		Schema:    attest.SchemaArbitrationRequest,
		RefUID:    fulfillmentUID,
		Recipient: oracleAddr,
		Attester:  c.address,
	})
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("request arbitration for %s: %w", fulfillmentUID, err)
	}
	return rec, nil
}

// CanCollect reports whether the escrow is releasable: the fulfillment
// references the escrow and carries an approving decision by the oracle.
// A later rejecting decision does not revoke an earlier approval; the
// ledger keeps every verdict and collection honors any approval.
func (c *Client) CanCollect(ctx context.Context, escrowUID, fulfillmentUID attest.UID, oracleAddr attest.Address) (bool, error) {
	fulfillment, err := c.ledger.Get(ctx, fulfillmentUID)
	if err != nil {
		return false, fmt.Errorf("collect check for %s: %w", fulfillmentUID, err)
	}
	if fulfillment.RefUID != escrowUID {
		return false, fmt.Errorf("collect check for %s: fulfillment does not reference escrow %s", fulfillmentUID, escrowUID)
	}

	decisions, err := c.ledger.Query(ctx, attest.SchemaDecision, ledger.Filter{
		RefUID:   fulfillmentUID,
		Attester: oracleAddr,
	})
	if err != nil {
		return false, fmt.Errorf("collect check for %s: %w", fulfillmentUID, err)
	}

	for _, d := range decisions {
		approved, err := oracle.DecodeDecisionPayload(d.Data)
		if err != nil {
			continue
		}
		if approved {
			return true, nil
		}
	}
	return false, nil
}
