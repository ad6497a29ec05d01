// Package testutil provides deterministic helpers shared by tests:
// a logical clock, fixed identities, and ledger seeding for the
// escrow/fulfillment/request chains the arbitration tests revolve around.
package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/ledger"
)

// Addr returns a deterministic address with every byte set to b.
func Addr(b byte) attest.Address {
	var a attest.Address
	for i := range a {
		a[i] = b
	}
	return a
}

// Chain is one seeded escrow/fulfillment/arbitration-request lineage.
type Chain struct {
	Escrow      attest.Attestation
	Fulfillment attest.Attestation
	Request     attest.Attestation
}

// SeedChain records a full escrow -> fulfillment -> arbitration-request
// lineage on the ledger. Salts derive from tag, so the same tag on the
// same ledger state reproduces the same UIDs.
func SeedChain(t *testing.T, ctx context.Context, l ledger.Writer, buyer, seller, oracleAddr attest.Address, tag, item string) Chain {
	t.Helper()

	esc := SeedEscrow(t, ctx, l, buyer, oracleAddr, tag)
	ful := SeedFulfillment(t, ctx, l, seller, esc, tag, item)
	req := SeedRequest(t, ctx, l, seller, oracleAddr, ful.UID, tag)
	return Chain{Escrow: esc, Fulfillment: ful, Request: req}
}

// SeedEscrow records a demand-bearing escrow naming oracleAddr as arbiter.
func SeedEscrow(t *testing.T, ctx context.Context, l ledger.Writer, buyer, oracleAddr attest.Address, tag string) attest.Attestation {
	t.Helper()

	demand, err := attest.EncodeDemand(attest.Demand{
		Arbiter: oracleAddr,
		Payload: json.RawMessage(`{"mode":"exact"}`),
	})
	require.NoError(t, err)

	esc, err := l.Attest(ctx, ledger.Draft{
		Schema:    attest.SchemaEscrow,
		Recipient: oracleAddr,
		Attester:  buyer,
		Data:      demand,
		Salt:      "escrow-" + tag,
	})
	require.NoError(t, err)
	return esc
}

// SeedFulfillment records a string-obligation fulfillment of esc.
func SeedFulfillment(t *testing.T, ctx context.Context, l ledger.Writer, seller attest.Address, esc attest.Attestation, tag, item string) attest.Attestation {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"item": item})
	require.NoError(t, err)

	ful, err := l.Attest(ctx, ledger.Draft{
		Schema:    attest.SchemaFulfillment,
		RefUID:    esc.UID,
		Recipient: esc.Attester,
		Attester:  seller,
		Data:      payload,
		Salt:      "fulfillment-" + tag,
	})
	require.NoError(t, err)
	return ful
}

// SeedRequest records an arbitration request for a fulfillment UID. The
// UID is taken raw rather than as a record so tests can point requests at
// fulfillments that do not exist.
func SeedRequest(t *testing.T, ctx context.Context, l ledger.Writer, requester, oracleAddr attest.Address, fulfillment attest.UID, tag string) attest.Attestation {
	t.Helper()

	req, err := l.Attest(ctx, ledger.Draft{
		Schema:    attest.SchemaArbitrationRequest,
		RefUID:    fulfillment,
		Recipient: oracleAddr,
		Attester:  requester,
		Salt:      "request-" + tag,
	})
	require.NoError(t, err)
	return req
}
