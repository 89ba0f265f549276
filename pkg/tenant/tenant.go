package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Record is one row of the home registry (admin.home). Each record maps a
// community name to the database principal and schema it was provisioned
// with, plus the seed administrator that can sign in before any residents
// exist. The seed password is stored exactly as submitted and never
// serialized back out.
type Record struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	DatabaseName      string    `db:"database_name" json:"database_name"`
	DatabaseType      string    `db:"database_type" json:"database_type"`
	DatabaseSchema    string    `db:"database_schema" json:"database_schema"`
	AdminUserEmail    string    `db:"admin_user_email" json:"admin_user_email"`
	AdminUserPassword string    `db:"admin_user_password" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

var (
	// ErrNotFound is returned when no home with the given name or id exists.
	ErrNotFound = errors.New("home not found")

	// ErrNameTaken is returned when a home with the requested name already
	// exists in the registry.
	ErrNameTaken = errors.New("home name already taken")

	// ErrInvalidName is returned when a requested home name fails
	// validation. The wrapped message says which rule was violated.
	ErrInvalidName = errors.New("invalid home name")

	// ErrUnsupportedEngine is returned when a create request names a
	// database type this deployment does not run on.
	ErrUnsupportedEngine = errors.New("unsupported database type")

	// ErrTeardownIncomplete is returned when a delete run finished but
	// left residual artifacts behind. Re-running the delete is safe.
	ErrTeardownIncomplete = errors.New("home teardown incomplete")
)

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// reservedNames are path segments the router claims for itself. A home with
// one of these names could never be addressed, so create rejects them.
var reservedNames = map[string]struct{}{
	"home":    {},
	"admin":   {},
	"api":     {},
	"web":     {},
	"login":   {},
	"health":  {},
	"static":  {},
	"debug":   {},
	"metrics": {},
	"media":   {},
}

// ValidateName checks that name is usable as a home name: 1-50 characters
// from [A-Za-z0-9_-], and not a reserved routing word. The same string
// becomes the schema name and the database principal, so the character set
// is deliberately narrow.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w: must be 1-50 characters of letters, digits, underscore, or hyphen", ErrInvalidName)
	}
	if _, reserved := reservedNames[strings.ToLower(name)]; reserved {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

// TableBootstrapper creates the domain tables inside a freshly provisioned
// schema. The statements run on the admin connection, which owns DDL rights
// over every home schema. Implementations must be idempotent; a retried
// provisioning run calls CreateTables again over whatever the failed run
// left behind.
type TableBootstrapper interface {
	CreateTables(ctx context.Context, db *sqlx.DB, schema string) error
}
