package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidSchema(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "blog.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Equal(t, "✓ Schema valid (3 types)\n", buf.String())
}

func TestValidateValidSchemaJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "blog.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 3, resp.Data.Types)
}

func TestValidateSchemaFlag(t *testing.T) {
	out, _, err := runCLI(t, "--schema", filepath.Join("testdata", "blog.yaml"), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema valid")
}

func TestValidateCUESchema(t *testing.T) {
	out, _, err := runCLI(t, "validate", filepath.Join("..", "schema", "testdata", "blog.cue"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid (4 types)")
}

func TestValidateInvalidSchema(t *testing.T) {
	out, _, err := runCLI(t, "validate", filepath.Join("testdata", "invalid.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "line 6\n  E102: types[1].name: type \"Author\" declared twice")
	assert.Contains(t, out, "line 5\n  E107: types[0].attributes[1]:")
}

func TestValidateInvalidSchemaJSON(t *testing.T) {
	out, _, err := runCLI(t, "--format", "json", "validate", filepath.Join("testdata", "invalid.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E102", resp.Error.Code)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, 6, resp.Data.Errors[0].Line)
	assert.Equal(t, "E107", resp.Data.Errors[1].Code)
}

func TestValidateNonExistentPath(t *testing.T) {
	out, _, err := runCLI(t, "validate", "/nonexistent/schema.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E002")
	assert.Contains(t, out, "schema not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, _, err := runCLI(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E003")
}

func TestValidateMissingSchema(t *testing.T) {
	out, _, err := runCLI(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeMissingFlag)
	assert.Contains(t, out, "no schema given")
}
