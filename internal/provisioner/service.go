package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "mongo-bootstrap"

var bannerRule = strings.Repeat("#", 110)

// Provisioner runs the create-user procedure against an administrative
// session and remembers the outcome of the last run.
type Provisioner struct {
	session Session
	out     io.Writer

	attempts metric.Int64Counter

	inProgress atomic.Bool
	lastResult *Result
	resultMu   sync.RWMutex
}

// New constructs a Provisioner. Progress banners are written to out.
func New(session Session, out io.Writer) *Provisioner {
	if out == nil {
		out = io.Discard
	}

	attempts, err := otel.Meter(instrumentationName).Int64Counter(
		"bootstrap.provision.attempts",
		metric.WithDescription("Create-user attempts by outcome."),
	)
	if err != nil {
		slog.Warn("provision attempts counter unavailable", "err", err)
	}

	return &Provisioner{
		session:  session,
		out:      out,
		attempts: attempts,
	}
}

// Provision creates req.Username on req.DatabaseName with the request's single
// role binding. It is not idempotent: running it twice with the same request
// fails the second time with ErrUserExists.
//
// Errors are ErrInvalidRequest (nothing was sent), ErrConnection, or
// ErrProvisioning. ErrProvisionInProgress is returned if another run is active.
func (p *Provisioner) Provision(ctx context.Context, req UserProvisioningRequest) (*Result, error) {
	if !p.inProgress.CompareAndSwap(false, true) {
		return nil, ErrProvisionInProgress
	}
	defer p.inProgress.Store(false)

	result := &Result{
		Status:   StatusInProgress,
		Database: req.DatabaseName,
		Username: req.Username,
		Roles:    req.Roles(),
	}

	err := p.provision(ctx, req)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
	} else {
		result.Status = StatusOK
	}
	p.recordAttempt(ctx, result.Status)

	p.resultMu.Lock()
	p.lastResult = result
	p.resultMu.Unlock()

	return result, err
}

func (p *Provisioner) provision(ctx context.Context, req UserProvisioningRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "mongo.provision_user")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.name", req.DatabaseName),
		attribute.String("db.user", req.Username),
		attribute.String("db.role", req.Role),
	)

	p.banner("Creating user for database")
	slog.InfoContext(ctx, "creating database user", "request", req)

	db := p.session.Database(req.DatabaseName)
	if err := db.CreateUser(ctx, req.Username, req.Password, req.Roles()); err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create user failed")
		slog.ErrorContext(ctx, "creating database user failed", "request", req, "err", err)
		return fmt.Errorf("creating user %q on %q: %w", req.Username, req.DatabaseName, err)
	}

	span.SetStatus(codes.Ok, "")
	slog.InfoContext(ctx, "database user created", "request", req)
	p.banner("User for database has been created.")
	return nil
}

// Verify reads the user back and checks that it holds exactly the request's
// role binding and nothing else.
func (p *Provisioner) Verify(ctx context.Context, req UserProvisioningRequest) (*Result, error) {
	result := &Result{
		Database: req.DatabaseName,
		Username: req.Username,
	}

	err := p.verify(ctx, req, result)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result, err
	}
	result.Status = StatusOK
	return result, nil
}

func (p *Provisioner) verify(ctx context.Context, req UserProvisioningRequest, result *Result) error {
	if err := req.Validate(); err != nil {
		return err
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "mongo.verify_user")
	defer span.End()

	roles, err := p.session.Database(req.DatabaseName).UserRoles(ctx, req.Username)
	if err != nil {
		span.SetStatus(codes.Error, "users info failed")
		return fmt.Errorf("reading user %q on %q: %w", req.Username, req.DatabaseName, err)
	}
	result.Roles = roles

	want := req.Roles()
	if len(roles) != len(want) || roles[0] != want[0] {
		span.SetStatus(codes.Error, "role mismatch")
		return fmt.Errorf("%w: user %q has %v, want %v", ErrRoleMismatch, req.Username, roles, want)
	}

	slog.InfoContext(ctx, "database user verified", "request", req)
	return nil
}

// RunDeepHealth probes the administrative session.
func (p *Provisioner) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	return map[string]ProbeResult{
		"mongo": p.session.Probe(ctx),
	}
}

// IsProvisionInProgress returns true while a provisioning run is active.
func (p *Provisioner) IsProvisionInProgress() bool {
	return p.inProgress.Load()
}

// IsReady returns true if the last provisioning run completed with StatusOK.
func (p *Provisioner) IsReady() bool {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	return p.lastResult != nil && p.lastResult.Status == StatusOK
}

// LastResult returns the outcome of the most recent provisioning run, or nil.
func (p *Provisioner) LastResult() *Result {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	return p.lastResult
}

func (p *Provisioner) banner(msg string) {
	fmt.Fprintf(p.out, "%s\n# %s\n%s\n", bannerRule, msg, bannerRule)
}

func (p *Provisioner) recordAttempt(ctx context.Context, status string) {
	if p.attempts == nil {
		return
	}
	p.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// classify wraps anything that is not a connection failure as a provisioning
// failure. Sessions already mark connection failures with ErrConnection.
func classify(err error) error {
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrProvisioning) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProvisioning, err)
}
