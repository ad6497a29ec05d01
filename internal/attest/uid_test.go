package attest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveUIDDeterministic(t *testing.T) {
	attester := Address{0x01}
	recipient := Address{0x02}

	a, err := DeriveUID(SchemaEscrow, ZeroUID, attester, recipient, 100, []byte(`{"x":1}`), "salt-1")
	require.NoError(t, err)
	b, err := DeriveUID(SchemaEscrow, ZeroUID, attester, recipient, 100, []byte(`{"x":1}`), "salt-1")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical bodies must derive identical UIDs")
	assert.False(t, a.IsZero())
}

func TestDeriveUIDSensitivity(t *testing.T) {
	attester := Address{0x01}
	recipient := Address{0x02}
	base, err := DeriveUID(SchemaEscrow, ZeroUID, attester, recipient, 100, []byte(`{"x":1}`), "salt-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		derive func() (UID, error)
	}{
		{"schema", func() (UID, error) {
			return DeriveUID(SchemaFulfillment, ZeroUID, attester, recipient, 100, []byte(`{"x":1}`), "salt-1")
		}},
		{"ref", func() (UID, error) {
			return DeriveUID(SchemaEscrow, UID{0xff}, attester, recipient, 100, []byte(`{"x":1}`), "salt-1")
		}},
		{"time", func() (UID, error) {
			return DeriveUID(SchemaEscrow, ZeroUID, attester, recipient, 101, []byte(`{"x":1}`), "salt-1")
		}},
		{"data", func() (UID, error) {
			return DeriveUID(SchemaEscrow, ZeroUID, attester, recipient, 100, []byte(`{"x":2}`), "salt-1")
		}},
		{"salt", func() (UID, error) {
			return DeriveUID(SchemaEscrow, ZeroUID, attester, recipient, 100, []byte(`{"x":1}`), "salt-2")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.derive()
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestParseUIDRoundTrip(t *testing.T) {
	u, err := DeriveUID(SchemaDecision, ZeroUID, Address{0xaa}, ZeroAddress, 7, nil, "s")
	require.NoError(t, err)

	parsed, err := ParseUID(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, parsed)

	// Bare hex without the 0x prefix parses too.
	parsed, err = ParseUID(u.String()[2:])
	require.NoError(t, err)
	assert.Equal(t, u, parsed)
}

func TestParseUIDRejectsMalformed(t *testing.T) {
	_, err := ParseUID("0x1234")
	assert.Error(t, err, "short input")

	_, err = ParseUID("0x" + strings.Repeat("zz", 32))
	assert.Error(t, err, "non-hex input")
}

func TestParseAddressRoundTrip(t *testing.T) {
	a := Address{0xde, 0xad, 0xbe, 0xef}
	parsed, err := ParseAddress(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseAddress("0xdeadbeef")
	assert.Error(t, err, "wrong length")
}

func TestNewUIDUnique(t *testing.T) {
	a := NewUID()
	b := NewUID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
}

func TestDemandRoundTrip(t *testing.T) {
	d := Demand{
		Arbiter: Address{0x11},
		Payload: []byte(`{"mode":"exact"}`),
	}

	raw, err := EncodeDemand(d)
	require.NoError(t, err)

	got, err := DecodeDemand(raw)
	require.NoError(t, err)
	assert.Equal(t, d.Arbiter, got.Arbiter)
	assert.Equal(t, d.Payload, got.Payload)
}

func TestMarshalCanonicalOrdersKeys(t *testing.T) {
	a, err := MarshalCanonical(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(a))
}
