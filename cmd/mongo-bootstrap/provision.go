package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/agrirouter-middleware/agrirouter-middleware/internal/provisioner"

	"github.com/spf13/cobra"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the database user and exit",
	Long: `Provision connects to the administrative session and creates
MONGO_USER with the dbOwner role on MONGO_DATABASE.

Progress banners go to stdout. The command exits 0 once the user exists and
non-zero on any failure, including a user that already exists.`,
	RunE: runProvision,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the database user exists with only the dbOwner role",
	Long: `Verify reads MONGO_USER back from MONGO_DATABASE and checks that it has
exactly one role binding: dbOwner on MONGO_DATABASE. It prints a JSON result
to stdout and exits non-zero on mismatch.`,
	RunE: runVerify,
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	defer app.close()

	if err := app.mongo.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to admin session: %w", err)
	}

	if _, err := app.provisioner.Provision(ctx, app.request); err != nil {
		return fmt.Errorf("provisioning failed: %w", err)
	}

	slog.Info("provisioning completed", "request", app.request)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	defer app.close()

	if err := app.mongo.Connect(ctx); err != nil {
		printResult(&provisioner.Result{
			Status:   provisioner.StatusError,
			Database: app.request.DatabaseName,
			Username: app.request.Username,
			Error:    err.Error(),
		})
		return fmt.Errorf("connecting to admin session: %w", err)
	}

	result, err := app.provisioner.Verify(ctx, app.request)
	printResult(result)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	return nil
}

// commandContext applies provision.timeout when set; otherwise the driver's
// own timeouts are the only bound.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if cfg.Provision.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Provision.Timeout)
	}
	return context.WithCancel(ctx)
}

func printResult(result *provisioner.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}
