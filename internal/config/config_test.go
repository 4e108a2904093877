package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables; t.Setenv would
// race with any concurrent reader.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "mongo-bootstrap", cfg.Telemetry.ServiceName)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "admin", cfg.Mongo.AuthSource)
	assert.Equal(t, 30*time.Second, cfg.Mongo.ServerSelectionTimeout)
	assert.Zero(t, cfg.Provision.Timeout)
}

func TestLoad_MongoEnv(t *testing.T) {
	t.Setenv("MONGO_DATABASE", "ar")
	t.Setenv("MONGO_USER", "svc")
	t.Setenv("MONGO_PASSWORD", "secret")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("MONGO_INITDB_ROOT_USERNAME", "root")
	t.Setenv("MONGO_INITDB_ROOT_PASSWORD", "example")
	t.Setenv("MONGO_SERVER_SELECTION_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ar", cfg.Provision.Database)
	assert.Equal(t, "svc", cfg.Provision.User)
	assert.Equal(t, "secret", cfg.Provision.Password)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, "root", cfg.Mongo.AdminUser)
	assert.Equal(t, "example", cfg.Mongo.AdminPassword)
	assert.Equal(t, 5*time.Second, cfg.Mongo.ServerSelectionTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedEnvOverride(t *testing.T) {
	t.Setenv("BOOTSTRAP_SERVER_PORT", "9090")
	t.Setenv("BOOTSTRAP_PROVISION_TIMEOUT", "1m")
	t.Setenv("BOOTSTRAP_TELEMETRY_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Provision.Timeout)
	assert.Equal(t, "debug", cfg.Telemetry.LogLevel)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mongo:
  uri: mongodb://file-host:27017
provision:
  database: fromfile
  user: svc
  password: secret
`), 0o600))

	// Environment wins over the file.
	t.Setenv("MONGO_DATABASE", "fromenv")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://file-host:27017", cfg.Mongo.URI)
	assert.Equal(t, "fromenv", cfg.Provision.Database)
	assert.Equal(t, "svc", cfg.Provision.User)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		provision   ProvisionConfig
		wantMissing []string
	}{
		{
			name:      "all present",
			provision: ProvisionConfig{Database: "ar", User: "svc", Password: "secret"},
		},
		{
			name:        "user missing",
			provision:   ProvisionConfig{Database: "ar", Password: "secret"},
			wantMissing: []string{"MONGO_USER"},
		},
		{
			name:        "all missing",
			wantMissing: []string{"MONGO_DATABASE", "MONGO_USER", "MONGO_PASSWORD"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Provision: tc.provision}
			err := cfg.Validate()
			if len(tc.wantMissing) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrMissing)
			for _, name := range tc.wantMissing {
				assert.Contains(t, err.Error(), name)
			}
		})
	}
}

func TestLoad_EnvIsolation(t *testing.T) {
	require.Empty(t, os.Getenv("MONGO_USER"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(), ErrMissing)
}
