package cli

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/oracular/verdict/internal/attest"
)

func fixedUID(b byte) attest.UID {
	return attest.UID{b}
}

func fixedAddr(b byte) attest.Address {
	var a attest.Address
	for i := range a {
		a[i] = b
	}
	return a
}

// TestRenderLogGolden pins the text dump format. Records use fixed UIDs
// rather than derived ones so the fixture stays hand-checkable.
//
// To regenerate:
//
//	go test ./internal/cli -run TestRenderLogGolden -update
func TestRenderLogGolden(t *testing.T) {
	records := []attest.Attestation{
		{
			Seq:       1,
			Schema:    attest.SchemaEscrow,
			UID:       fixedUID(0x11),
			Attester:  fixedAddr(0x01),
			Recipient: fixedAddr(0x0a),
			Time:      1,
			Data:      []byte(`{"mode":"exact"}`),
		},
		{
			Seq:       2,
			Schema:    attest.SchemaFulfillment,
			UID:       fixedUID(0x22),
			RefUID:    fixedUID(0x11),
			Attester:  fixedAddr(0x02),
			Recipient: fixedAddr(0x01),
			Time:      2,
			Data:      []byte(`{"item":"good"}`),
		},
		{
			Seq:       3,
			Schema:    attest.SchemaArbitrationRequest,
			UID:       fixedUID(0x33),
			RefUID:    fixedUID(0x22),
			Attester:  fixedAddr(0x02),
			Recipient: fixedAddr(0x0a),
			Time:      3,
		},
		{
			Seq:      4,
			Schema:   attest.SchemaDecision,
			UID:      fixedUID(0x44),
			RefUID:   fixedUID(0x22),
			Attester: fixedAddr(0x0a),
			Time:     4,
			Data:     []byte(`{"decision":true}`),
		},
	}

	g := goldie.New(t)
	g.Assert(t, "ledger_dump", []byte(RenderLog(records)))
}

func TestRenderLogEmpty(t *testing.T) {
	if got := RenderLog(nil); got != "empty ledger" {
		t.Fatalf("unexpected empty rendering: %q", got)
	}
}
