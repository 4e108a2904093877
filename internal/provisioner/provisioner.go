// Package provisioner creates the application's MongoDB user: one principal
// authorised as dbOwner on exactly one database.
//
// The administrative session is an explicit dependency (Session) so the
// procedure runs the same against the real driver and against test fakes.
package provisioner

import (
	"context"
	"errors"
)

// Error classes returned by Provision and Verify. Callers match them with
// errors.Is; the underlying driver error stays wrapped.
var (
	ErrInvalidRequest      = errors.New("invalid provisioning request")
	ErrConnection          = errors.New("database connection failed")
	ErrProvisioning        = errors.New("user provisioning failed")
	ErrUserExists          = errors.New("user already exists")
	ErrRoleNotFound        = errors.New("role not found")
	ErrUnauthorized        = errors.New("not authorized to create users")
	ErrUserNotFound        = errors.New("user not found")
	ErrRoleMismatch        = errors.New("unexpected role bindings")
	ErrProvisionInProgress = errors.New("provisioning already in progress")
)

// Session is an already-authenticated administrative session.
// *clients.MongoClient satisfies it.
type Session interface {
	Database(name string) Database
	Probe(ctx context.Context) ProbeResult
}

// Database is a database selected by name on a Session.
type Database interface {
	Name() string
	CreateUser(ctx context.Context, username, password string, roles []Role) error
	UserRoles(ctx context.Context, username string) ([]Role, error)
}
