package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"service-queue/config"
	"service-queue/internal/status"
	"service-queue/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreDriver:       "memory",
		AverageWindowSize: 20,
		ResetTimeout:      0,
		JoinBaseURL:       "https://queue.example.com/join",
	}
}

func runCmd(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResetCmd_PrintsResult(t *testing.T) {
	cfg := testConfig()
	cfg.ResetTimeout = 1 << 30

	out, err := runCmd(t, cfg, "reset")
	require.NoError(t, err)

	var result models.ResetResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Zero(t, result.ResetCount)
}

func TestJoinTokenCmd_RequiresSecret(t *testing.T) {
	_, err := runCmd(t, testConfig(), "join-token", "5d0a3f0e-2c4b-4c8e-9a51-6b0f0c1d2e3f")
	assert.EqualError(t, err, "JOIN_TOKEN_SECRET is not set")
}

func TestJoinTokenCmd_UnknownLocation(t *testing.T) {
	cfg := testConfig()
	cfg.JoinTokenSecret = "secret"

	_, err := runCmd(t, cfg, "join-token", "5d0a3f0e-2c4b-4c8e-9a51-6b0f0c1d2e3f")
	assert.ErrorIs(t, err, status.ErrLocationNotFound)
}

func TestLocationShowCmd_InvalidID(t *testing.T) {
	_, err := runCmd(t, testConfig(), "location", "show", "not-a-valid-id")

	var vErr *status.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "location_id")
}

func TestLocationAddCmd(t *testing.T) {
	out, err := runCmd(t, testConfig(), "location", "add", "5D0A3F0E-2C4B-4C8E-9A51-6B0F0C1D2E3F", "--name", "Main", "--capacity", "5")
	require.NoError(t, err)

	var loc models.Location
	require.NoError(t, json.Unmarshal([]byte(out), &loc))
	assert.Equal(t, "5d0a3f0e-2c4b-4c8e-9a51-6b0f0c1d2e3f", loc.ID)
	assert.Equal(t, "Main", loc.Name)
	assert.Equal(t, 5, loc.MaxCapacity)
	assert.True(t, loc.QueueEnabled)
}

func TestNewApp_UnknownStore(t *testing.T) {
	cfg := testConfig()
	_, err := runCmd(t, cfg, "--store", "cassandra", "reset")
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestLocationAddCmd_RejectsNonUUID(t *testing.T) {
	_, err := runCmd(t, testConfig(), "location", "add", "loc-1")

	var vErr *status.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "must be a valid UUID", vErr.FieldErrors["location_id"])
}
