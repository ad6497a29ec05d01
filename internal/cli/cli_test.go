package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/oracle"
)

// cliFixture is a temp config plus ledger shared by one test's commands.
type cliFixture struct {
	configPath string
	oracle     attest.Address
	identity   attest.Address
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()

	f := &cliFixture{
		configPath: filepath.Join(dir, "verdict.yaml"),
		oracle:     fixedAddr(0x0a),
		identity:   fixedAddr(0x01),
	}
	content := "ledger_path: " + filepath.Join(dir, "verdict.db") + "\n" +
		"oracle: \"" + f.oracle.String() + "\"\n" +
		"identity: \"" + f.identity.String() + "\"\n"
	require.NoError(t, os.WriteFile(f.configPath, []byte(content), 0o644))
	return f
}

// run executes one CLI invocation and returns stdout.
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", f.configPath, "--format", "json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decodeAttestation(t *testing.T, out string) attest.Attestation {
	t.Helper()
	var resp struct {
		Status string             `json:"status"`
		Data   attest.Attestation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestWorkflowCommands(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "attest", "escrow",
		"--arbiter", f.oracle.String(),
		"--demand", `{"mode":"exact"}`)
	require.NoError(t, err, out)
	esc := decodeAttestation(t, out)
	assert.Equal(t, attest.SchemaEscrow, esc.Schema)

	out, err = f.run(t, "attest", "fulfill", esc.UID.String(), "--item", "good")
	require.NoError(t, err, out)
	ful := decodeAttestation(t, out)
	assert.Equal(t, esc.UID, ful.RefUID)

	out, err = f.run(t, "request", ful.UID.String())
	require.NoError(t, err, out)
	req := decodeAttestation(t, out)
	assert.Equal(t, ful.UID, req.RefUID)
	assert.Equal(t, f.oracle, req.Recipient)

	out, err = f.run(t, "arbitrate", "--policy", `obligation.item == "good"`)
	require.NoError(t, err, out)
	var arbResp struct {
		Status string              `json:"status"`
		Data   oracle.ListenResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &arbResp))
	require.Len(t, arbResp.Data.Decisions, 1)
	assert.True(t, arbResp.Data.Decisions[0].Decision)
	assert.Equal(t, ful.UID, arbResp.Data.Decisions[0].Attestation.UID)

	// The approving decision makes the escrow collectable.
	out, err = f.run(t, "collect", esc.UID.String(), ful.UID.String())
	require.NoError(t, err, out)
	var collectResp struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &collectResp))
	assert.True(t, collectResp.Data["collectable"])

	// A second skip-arbitrated run decides nothing.
	out, err = f.run(t, "arbitrate", "--policy", `obligation.item == "good"`, "--skip-arbitrated")
	require.NoError(t, err, out)
	arbResp.Data.Decisions = nil
	require.NoError(t, json.Unmarshal([]byte(out), &arbResp))
	assert.Empty(t, arbResp.Data.Decisions)
}

func TestCollectNotCollectableExitsNonzero(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "attest", "escrow", "--arbiter", f.oracle.String())
	require.NoError(t, err, out)
	esc := decodeAttestation(t, out)

	out, err = f.run(t, "attest", "fulfill", esc.UID.String(), "--item", "bad")
	require.NoError(t, err, out)
	ful := decodeAttestation(t, out)

	_, err = f.run(t, "collect", esc.UID.String(), ful.UID.String())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestInvalidPolicyIsCommandError(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, "arbitrate", "--policy", `obligation.item ==`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--format", "xml", "log"})
	assert.Error(t, cmd.Execute())
}

func TestFulfillUnknownEscrowFails(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, "attest", "fulfill", attest.UID{0xff}.String(), "--item", "good")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
