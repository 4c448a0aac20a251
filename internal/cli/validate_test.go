package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harpitest "github.com/roach88/harpi/internal/testutil"
)

func runValidateCmd(t *testing.T, opts *RootOptions, dir string) (*bytes.Buffer, *bytes.Buffer, error) {
	t.Helper()
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewValidateCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs([]string{dir})
	return out, diag, cmd.Execute()
}

func TestValidate_Valid(t *testing.T) {
	dir := t.TempDir()
	harpitest.WriteConfig(t, dir, "config.csv", harpitest.LivingRoom...)

	out, _, err := runValidateCmd(t, &RootOptions{Format: "text"}, dir)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "✓ Configuration valid: 1 source(s), 1 state machine(s)")
	assert.Contains(t, out.String(), "config.csv")
	assert.Regexp(t, `event_set\s+2`, out.String())
}

func TestValidate_ValidJSON(t *testing.T) {
	dir := t.TempDir()
	harpitest.WriteConfig(t, dir, "a.csv", harpitest.LivingRoom...)
	harpitest.WriteConfig(t, dir, "b.csv", "State Machines and Events,0,1")

	out, _, err := runValidateCmd(t, &RootOptions{Format: "json"}, dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Sources, 2)
	assert.Equal(t, uint32(1), resp.Data.Sources[1].Offsets.StateMachine)
	assert.Equal(t, 3, resp.Data.Counts["event_binding"])
	assert.Equal(t, 2, resp.Data.Machines)
}

func TestValidate_VerboseShowsOffsets(t *testing.T) {
	dir := t.TempDir()
	harpitest.WriteConfig(t, dir, "config.csv", harpitest.LivingRoom...)

	_, diag, err := runValidateCmd(t, &RootOptions{Format: "json", Verbose: true}, dir)
	require.NoError(t, err)
	assert.Contains(t, diag.String(), "config.csv: offsets machine=0 action=0 event=0")
}

func TestValidate_ParseError(t *testing.T) {
	dir := t.TempDir()
	harpitest.WriteConfig(t, dir, "config.csv",
		"State Machines and Loads,0,Relay,0A,01,1",
		"Event Sets,1,e,q,e,e,x,x,e,e,x,x,x,x,30,10,20,01,0,0,01,FF,0,0,0,0",
	)

	out, _, err := runValidateCmd(t, &RootOptions{Format: "json"}, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParse, resp.Error.Code)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "config.csv", details["source"])
	assert.Equal(t, 2.0, details["line"])
	assert.Equal(t, "Event Sets", details["section"])
	assert.Equal(t, 3.0, details["field"])
}

func TestValidate_MissingDirectory(t *testing.T) {
	out, _, err := runValidateCmd(t, &RootOptions{Format: "text"}, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [E001]")
}

func TestValidate_EmptyDirectory(t *testing.T) {
	out, _, err := runValidateCmd(t, &RootOptions{Format: "text"}, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "no *.csv files")
}
