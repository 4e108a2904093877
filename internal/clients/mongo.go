package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"github.com/agrirouter-middleware/agrirouter-middleware/internal/config"
	"github.com/agrirouter-middleware/agrirouter-middleware/internal/provisioner"
)

const mongoProbeName = "mongo"

// Server error codes the bootstrap distinguishes.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
	codeRoleNotFound         = 31
	codeUserExists           = 51003
)

// adminRunner abstracts the *mongo.Client calls made on the administrative
// session so tests can inject a fake without a running server.
type adminRunner interface {
	RunCommand(ctx context.Context, db string, cmd bson.D) (bson.Raw, error)
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

type driverRunner struct {
	client *mongo.Client
}

func (r *driverRunner) RunCommand(ctx context.Context, db string, cmd bson.D) (bson.Raw, error) {
	return r.client.Database(db).RunCommand(ctx, cmd).Raw()
}

func (r *driverRunner) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *driverRunner) Disconnect(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// MongoClient is the administrative session used to create users. It
// satisfies provisioner.Session.
type MongoClient struct {
	cfg     config.MongoConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.MongoConfig) (adminRunner, error)

	mu     sync.Mutex
	runner adminRunner
}

// NewMongoClient creates a MongoClient. No connection is made at construction
// time; call Connect, or let the first command connect lazily. The circuit
// breaker only guards Probe.
func NewMongoClient(cfg config.MongoConfig, cb *gobreaker.CircuitBreaker) *MongoClient {
	return &MongoClient{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

// Connect establishes the administrative session and pings the primary.
// Failures are reported as provisioner.ErrConnection.
func (c *MongoClient) Connect(ctx context.Context) error {
	_, err := c.session(ctx)
	return err
}

// Close disconnects the session if one was opened.
func (c *MongoClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runner == nil {
		return nil
	}
	err := c.runner.Disconnect(ctx)
	c.runner = nil
	return err
}

// Database selects a database by name. Selecting does not touch the server.
func (c *MongoClient) Database(name string) provisioner.Database {
	return &mongoDatabase{client: c, name: name}
}

// Probe pings the primary. It wraps the check in the circuit breaker so that
// persistent failures trip the breaker after three consecutive errors.
func (c *MongoClient) Probe(ctx context.Context) provisioner.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		runner, err := c.session(ctx)
		if err != nil {
			return nil, err
		}
		if err := runner.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return provisioner.ProbeResult{
			Name:      mongoProbeName,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return provisioner.ProbeResult{
		Name:      mongoProbeName,
		OK:        true,
		LatencyMs: latency,
	}
}

func (c *MongoClient) session(ctx context.Context) (adminRunner, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runner != nil {
		return c.runner, nil
	}
	runner, err := c.connect(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provisioner.ErrConnection, err)
	}
	c.runner = runner
	return runner, nil
}

type mongoDatabase struct {
	client *MongoClient
	name   string
}

func (d *mongoDatabase) Name() string { return d.name }

// CreateUser runs the createUser command on this database.
func (d *mongoDatabase) CreateUser(ctx context.Context, username, password string, roles []provisioner.Role) error {
	runner, err := d.client.session(ctx)
	if err != nil {
		return err
	}

	bindings := make(bson.A, 0, len(roles))
	for _, r := range roles {
		bindings = append(bindings, bson.D{{Key: "role", Value: r.Role}, {Key: "db", Value: r.DB}})
	}

	cmd := bson.D{
		{Key: "createUser", Value: username},
		{Key: "pwd", Value: password},
		{Key: "roles", Value: bindings},
	}
	if _, err := runner.RunCommand(ctx, d.name, cmd); err != nil {
		return classifyError(err)
	}
	return nil
}

type usersInfoReply struct {
	Users []struct {
		User  string             `bson:"user"`
		DB    string             `bson:"db"`
		Roles []provisioner.Role `bson:"roles"`
	} `bson:"users"`
}

// UserRoles runs usersInfo for username and returns its role bindings.
func (d *mongoDatabase) UserRoles(ctx context.Context, username string) ([]provisioner.Role, error) {
	runner, err := d.client.session(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := runner.RunCommand(ctx, d.name, bson.D{{Key: "usersInfo", Value: username}})
	if err != nil {
		return nil, classifyError(err)
	}

	var reply usersInfoReply
	if err := bson.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decoding usersInfo reply: %w", err)
	}
	for _, u := range reply.Users {
		if u.User == username && u.DB == d.name {
			return u.Roles, nil
		}
	}
	return nil, fmt.Errorf("%w: %s@%s", provisioner.ErrUserNotFound, username, d.name)
}

// classifyError tags driver errors with the provisioner error classes.
// Unrecognised command errors are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var selErr topology.ServerSelectionError
	var connErr topology.ConnectionError
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.As(err, &selErr) || errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", provisioner.ErrConnection, err)
	}

	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) {
		return err
	}
	switch cmdErr.Code {
	case codeAuthenticationFailed:
		return fmt.Errorf("%w: %w", provisioner.ErrConnection, err)
	case codeUserExists:
		return fmt.Errorf("%w: %w", provisioner.ErrUserExists, err)
	case codeRoleNotFound:
		return fmt.Errorf("%w: %w", provisioner.ErrRoleNotFound, err)
	case codeUnauthorized:
		return fmt.Errorf("%w: %w", provisioner.ErrUnauthorized, err)
	}
	return err
}

// realConnect opens a mongo.Client for the administrative session and checks
// that the primary answers.
func realConnect(ctx context.Context, cfg config.MongoConfig) (adminRunner, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMonitor(otelmongo.NewMonitor(otelmongo.WithCommandAttributeDisabled(true)))
	if cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	}
	if cfg.AdminUser != "" {
		opts.SetAuth(options.Credential{
			AuthSource: cfg.AuthSource,
			Username:   cfg.AdminUser,
			Password:   cfg.AdminPassword,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening mongo client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx) //nolint:errcheck
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &driverRunner{client: client}, nil
}
