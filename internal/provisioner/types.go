package provisioner

import (
	"fmt"
	"log/slog"
	"strings"
)

// OwnerRole grants full read/write/administrative control over one database.
const OwnerRole = "dbOwner"

// Status values used in Result.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
)

// Role is a role binding as MongoDB stores it on a user document.
type Role struct {
	Role string `json:"role" bson:"role"`
	DB   string `json:"db" bson:"db"`
}

// UserProvisioningRequest describes the user to create. It is built once from
// configuration and never mutated.
type UserProvisioningRequest struct {
	DatabaseName string
	Username     string
	Password     string
	Role         string
}

// NewRequest returns a request for an owner of database.
func NewRequest(database, username, password string) UserProvisioningRequest {
	return UserProvisioningRequest{
		DatabaseName: database,
		Username:     username,
		Password:     password,
		Role:         OwnerRole,
	}
}

// Validate reports every empty field at once.
func (r UserProvisioningRequest) Validate() error {
	var missing []string
	if r.DatabaseName == "" {
		missing = append(missing, "database name")
	}
	if r.Username == "" {
		missing = append(missing, "username")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if r.Role == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Roles returns the single binding the user is created with, scoped to the
// request's database.
func (r UserProvisioningRequest) Roles() []Role {
	return []Role{{Role: r.Role, DB: r.DatabaseName}}
}

// LogValue keeps the password out of logs.
func (r UserProvisioningRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("database", r.DatabaseName),
		slog.String("username", r.Username),
		slog.String("role", r.Role),
	)
}

// Result is the outcome of a provisioning or verification run.
type Result struct {
	Status   string `json:"status"` // "ok", "error", "in-progress"
	Database string `json:"database"`
	Username string `json:"username"`
	Roles    []Role `json:"roles"`
	Error    string `json:"error,omitempty"`
}

// ProbeResult is returned by RunDeepHealth for the admin session.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
