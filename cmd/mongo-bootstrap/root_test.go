package main

import (
	"context"
	"io"
	"testing"

	"github.com/agrirouter-middleware/agrirouter-middleware/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests mutate the environment and package globals; no t.Parallel().

func TestProvision_MissingUserFailsBeforeConnecting(t *testing.T) {
	t.Setenv("MONGO_DATABASE", "ar")
	t.Setenv("MONGO_USER", "")
	t.Setenv("MONGO_PASSWORD", "secret")
	// Nothing listens here; reaching it would surface a connection error instead.
	t.Setenv("MONGO_URI", "mongodb://127.0.0.1:1")

	app = nil
	rootCmd.SetArgs([]string{"provision"})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, config.ErrMissing)
	assert.Contains(t, err.Error(), "MONGO_USER")
	assert.NotContains(t, err.Error(), "MONGO_DATABASE")
	assert.Nil(t, app, "no dependencies may be built without a complete config")
}

func TestBuildAppContext_WiresRequest(t *testing.T) {
	t.Setenv("MONGO_DATABASE", "ar")
	t.Setenv("MONGO_USER", "svc")
	t.Setenv("MONGO_PASSWORD", "secret")

	loaded, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())

	built, err := buildAppContext(context.Background(), loaded)
	require.NoError(t, err)

	assert.Equal(t, "ar", built.request.DatabaseName)
	assert.Equal(t, "svc", built.request.Username)
	assert.Equal(t, "dbOwner", built.request.Role)
	assert.Nil(t, built.otelProvider)
	assert.NotNil(t, built.router)
	assert.False(t, built.provisioner.IsReady())
}
