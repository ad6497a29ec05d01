package escrow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/ledger"
	"github.com/oracular/verdict/internal/oracle"
	"github.com/oracular/verdict/internal/policy"
	"github.com/oracular/verdict/internal/testutil"
)

var (
	buyer      = testutil.Addr(0x01)
	seller     = testutil.Addr(0x02)
	oracleAddr = testutil.Addr(0x0a)
)

func newTestLedger(t *testing.T) *ledger.Memory {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	l := ledger.NewMemory(ledger.WithMemoryClock(clock.Next))
	t.Cleanup(func() { l.Close() })
	return l
}

func TestWorkflowChain(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	buyerClient := NewClient(l, buyer)
	sellerClient := NewClient(l, seller)

	esc, err := buyerClient.CreateEscrow(ctx, attest.Demand{
		Arbiter: oracleAddr,
		Payload: []byte(`{"mode":"exact"}`),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, attest.SchemaEscrow, esc.Schema)
	assert.Equal(t, buyer, esc.Attester)
	assert.Equal(t, oracleAddr, esc.Recipient)

	// The demand survives the ledger round trip intact.
	demand, err := attest.DecodeDemand(esc.Data)
	require.NoError(t, err)
	assert.Equal(t, oracleAddr, demand.Arbiter)

	ful, err := sellerClient.Fulfill(ctx, esc.UID, "good")
	require.NoError(t, err)
	assert.Equal(t, esc.UID, ful.RefUID)
	assert.Equal(t, buyer, ful.Recipient, "the fulfillment addresses the escrow's attester")

	req, err := sellerClient.RequestArbitration(ctx, ful.UID, oracleAddr)
	require.NoError(t, err)
	assert.Equal(t, ful.UID, req.RefUID)
	assert.Equal(t, oracleAddr, req.Recipient)

	// The chain resolves back to its escrow.
	resolved, err := l.ResolveEscrow(ctx, ful)
	require.NoError(t, err)
	assert.Equal(t, esc.UID, resolved.UID)
}

func TestFulfillUnknownEscrow(t *testing.T) {
	l := newTestLedger(t)

	_, err := NewClient(l, seller).Fulfill(context.Background(), attest.UID{0xff}, "good")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRequestArbitrationUnknownFulfillment(t *testing.T) {
	l := newTestLedger(t)

	_, err := NewClient(l, seller).RequestArbitration(context.Background(), attest.UID{0xff}, oracleAddr)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCanCollectGatedOnApproval(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	buyerClient := NewClient(l, buyer)
	sellerClient := NewClient(l, seller)

	esc, err := buyerClient.CreateEscrow(ctx, attest.Demand{Arbiter: oracleAddr}, 0)
	require.NoError(t, err)
	ful, err := sellerClient.Fulfill(ctx, esc.UID, "good")
	require.NoError(t, err)
	_, err = sellerClient.RequestArbitration(ctx, ful.UID, oracleAddr)
	require.NoError(t, err)

	// No decision yet.
	ok, err := sellerClient.CanCollect(ctx, esc.UID, ful.UID, oracleAddr)
	require.NoError(t, err)
	assert.False(t, ok)

	// The oracle approves via the arbitration engine.
	ev, err := policy.NewEvaluator()
	require.NoError(t, err)
	fn, err := ev.Compile(`obligation.item == "good"`)
	require.NoError(t, err)

	eng := oracle.New(l, oracleAddr)
	result, err := eng.ArbitratePast(ctx, fn, oracle.ArbitrateOptions{})
	require.NoError(t, err)
	require.Len(t, result.Decisions, 1)
	require.True(t, result.Decisions[0].Decision)

	ok, err = sellerClient.CanCollect(ctx, esc.UID, ful.UID, oracleAddr)
	require.NoError(t, err)
	assert.True(t, ok)

	// A decision by some other oracle does not release the escrow.
	ok, err = sellerClient.CanCollect(ctx, esc.UID, ful.UID, testutil.Addr(0x0b))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanCollectRejectedFulfillment(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	buyerClient := NewClient(l, buyer)
	sellerClient := NewClient(l, seller)

	esc, err := buyerClient.CreateEscrow(ctx, attest.Demand{Arbiter: oracleAddr}, 0)
	require.NoError(t, err)
	ful, err := sellerClient.Fulfill(ctx, esc.UID, "bad")
	require.NoError(t, err)
	_, err = sellerClient.RequestArbitration(ctx, ful.UID, oracleAddr)
	require.NoError(t, err)

	ev, err := policy.NewEvaluator()
	require.NoError(t, err)
	fn, err := ev.Compile(`obligation.item == "good"`)
	require.NoError(t, err)

	eng := oracle.New(l, oracleAddr)
	_, err = eng.ArbitratePast(ctx, fn, oracle.ArbitrateOptions{})
	require.NoError(t, err)

	ok, err := sellerClient.CanCollect(ctx, esc.UID, ful.UID, oracleAddr)
	require.NoError(t, err)
	assert.False(t, ok, "a rejecting decision does not release the escrow")
}

func TestCanCollectUnrelatedFulfillment(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	buyerClient := NewClient(l, buyer)
	sellerClient := NewClient(l, seller)

	escA, err := buyerClient.CreateEscrow(ctx, attest.Demand{Arbiter: oracleAddr}, 0)
	require.NoError(t, err)
	escB, err := buyerClient.CreateEscrow(ctx, attest.Demand{Arbiter: oracleAddr}, 10)
	require.NoError(t, err)
	ful, err := sellerClient.Fulfill(ctx, escA.UID, "good")
	require.NoError(t, err)

	_, err = sellerClient.CanCollect(ctx, escB.UID, ful.UID, oracleAddr)
	assert.Error(t, err, "the fulfillment must reference the escrow being collected")
}
