package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/agrirouter-middleware/agrirouter-middleware/internal/api"
	"github.com/agrirouter-middleware/agrirouter-middleware/internal/clients"
	"github.com/agrirouter-middleware/agrirouter-middleware/internal/config"
	"github.com/agrirouter-middleware/agrirouter-middleware/internal/provisioner"
	"github.com/agrirouter-middleware/agrirouter-middleware/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	mongo        *clients.MongoClient
	provisioner  *provisioner.Provisioner
	request      provisioner.UserProvisioningRequest
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates the Mongo admin session client (not yet connected)
//  3. Creates the provisioner, writing banners to stdout
//  4. Creates the HTTP router
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// A missing collector must never block the bootstrap. An empty endpoint
	// disables telemetry entirely.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(
			ctx,
			cfg.Telemetry.OTLPEndpoint,
			cfg.Telemetry.ServiceName,
			cfg.Telemetry.OTLPInsecure,
		)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
			slog.SetDefault(slog.New(telemetry.NewTeeHandler(
				slog.Default().Handler(),
				tp.LogHandler,
			)))
		}
	}

	app.mongo = clients.NewMongoClient(cfg.Mongo, clients.NewCircuitBreaker("mongo", 0))
	app.provisioner = provisioner.New(app.mongo, os.Stdout)
	app.request = provisioner.NewRequest(cfg.Provision.Database, cfg.Provision.User, cfg.Provision.Password)
	app.router = api.NewRouter(app.provisioner, app.request, cfg.Telemetry.ServiceName)

	return app, nil
}

// close disconnects the admin session and flushes telemetry.
func (a *AppContext) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.mongo.Close(ctx); err != nil {
		slog.Warn("mongo disconnect error", "err", err)
	}
	if a.otelProvider != nil {
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
	}
}
