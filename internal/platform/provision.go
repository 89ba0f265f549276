package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Provisioner owns the DDL that creates and removes a home's database
// principal and schema. All statements are idempotent through explicit
// existence probes so a failed run can be retried.
//
// SQL Server homes get a login, a database user, and a schema owned by that
// user. Oracle homes get a user, which is the schema.
type Provisioner struct {
	engine Engine
}

// NewProvisioner returns the DDL provisioner for the engine.
func NewProvisioner(engine Engine) *Provisioner {
	return &Provisioner{engine: engine}
}

// PrincipalExists reports whether the named principal already exists.
func (p *Provisioner) PrincipalExists(ctx context.Context, db *sqlx.DB, name string) (bool, error) {
	var query string
	switch p.engine {
	case EngineOracle:
		query = `SELECT COUNT(*) FROM ALL_USERS WHERE USERNAME = :1`
	default:
		query = `SELECT COUNT(*) FROM sys.database_principals WHERE name = @p1`
	}

	var n int
	if err := db.GetContext(ctx, &n, query, name); err != nil {
		return false, fmt.Errorf("checking principal %s: %w", name, err)
	}
	return n > 0, nil
}

// EnsurePrincipal creates the principal and schema for a home if they do not
// already exist, and grants the privileges the home needs to own its tables.
func (p *Provisioner) EnsurePrincipal(ctx context.Context, db *sqlx.DB, name, password string) error {
	switch p.engine {
	case EngineOracle:
		return p.ensureOracleUser(ctx, db, name, password)
	default:
		return p.ensureSQLServerPrincipal(ctx, db, name, password)
	}
}

func (p *Provisioner) ensureOracleUser(ctx context.Context, db *sqlx.DB, name, password string) error {
	exists, err := p.PrincipalExists(ctx, db, name)
	if err != nil {
		return err
	}

	quoted := p.engine.QuoteIdent(name)
	if !exists {
		stmt := fmt.Sprintf(`CREATE USER %s IDENTIFIED BY "%s"`, quoted, strings.ReplaceAll(password, `"`, `""`))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating user %s: %w", name, err)
		}
	}

	grants := []string{
		fmt.Sprintf(`GRANT CREATE SESSION, CREATE TABLE, CREATE VIEW, CREATE SEQUENCE, CREATE TRIGGER, CREATE PROCEDURE, CREATE TYPE TO %s`, quoted),
		fmt.Sprintf(`ALTER USER %s QUOTA UNLIMITED ON USERS`, quoted),
	}
	for _, stmt := range grants {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("granting privileges to %s: %w", name, err)
		}
	}
	return nil
}

func (p *Provisioner) ensureSQLServerPrincipal(ctx context.Context, db *sqlx.DB, name, password string) error {
	quoted := p.engine.QuoteIdent(name)

	var logins int
	if err := db.GetContext(ctx, &logins, `SELECT COUNT(*) FROM sys.server_principals WHERE name = @p1`, name); err != nil {
		return fmt.Errorf("checking login %s: %w", name, err)
	}
	if logins == 0 {
		stmt := fmt.Sprintf(`CREATE LOGIN %s WITH PASSWORD = N'%s'`, quoted, strings.ReplaceAll(password, `'`, `''`))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating login %s: %w", name, err)
		}
	}

	var users int
	if err := db.GetContext(ctx, &users, `SELECT COUNT(*) FROM sys.database_principals WHERE name = @p1`, name); err != nil {
		return fmt.Errorf("checking user %s: %w", name, err)
	}
	if users == 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE USER %s FOR LOGIN %s`, quoted, quoted)); err != nil {
			return fmt.Errorf("creating user %s: %w", name, err)
		}
	}

	var schemas int
	if err := db.GetContext(ctx, &schemas, `SELECT COUNT(*) FROM sys.schemas WHERE name = @p1`, name); err != nil {
		return fmt.Errorf("checking schema %s: %w", name, err)
	}
	if schemas == 0 {
		// CREATE SCHEMA must be the only statement in its batch.
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA %s AUTHORIZATION %s`, quoted, quoted)); err != nil {
			return fmt.Errorf("creating schema %s: %w", name, err)
		}
	}

	grants := []string{
		fmt.Sprintf(`GRANT CREATE TABLE, CREATE VIEW, CREATE PROCEDURE, CREATE FUNCTION, CREATE TYPE TO %s`, quoted),
		fmt.Sprintf(`GRANT CONTROL ON SCHEMA::%s TO %s`, quoted, quoted),
	}
	for _, stmt := range grants {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("granting privileges to %s: %w", name, err)
		}
	}
	return nil
}

// DropObjects drops every table owned by the schema. Missing schemas and
// already-dropped tables are not errors; teardown re-runs must pass.
func (p *Provisioner) DropObjects(ctx context.Context, db *sqlx.DB, name string) error {
	var listQuery, dropVerb string
	switch p.engine {
	case EngineOracle:
		listQuery = `SELECT TABLE_NAME FROM ALL_TABLES WHERE OWNER = :1`
		dropVerb = "DROP TABLE %s CASCADE CONSTRAINTS"
	default:
		listQuery = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'`
		dropVerb = "DROP TABLE %s"
	}

	var tables []string
	if err := db.SelectContext(ctx, &tables, listQuery, name); err != nil {
		return fmt.Errorf("listing tables for %s: %w", name, err)
	}

	for _, table := range tables {
		stmt := fmt.Sprintf(dropVerb, p.engine.QualifyTable(name, table))
		if _, err := db.ExecContext(ctx, stmt); err != nil && !IsMissingObject(err) {
			return fmt.Errorf("dropping table %s.%s: %w", name, table, err)
		}
	}
	return nil
}

// DropPrincipal removes the home's principal (and schema/login on SQL
// Server). A principal that is already gone is treated as success.
func (p *Provisioner) DropPrincipal(ctx context.Context, db *sqlx.DB, name string) error {
	quoted := p.engine.QuoteIdent(name)

	switch p.engine {
	case EngineOracle:
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP USER %s CASCADE`, quoted)); err != nil && !IsMissingPrincipal(err) {
			return fmt.Errorf("dropping user %s: %w", name, err)
		}
		return nil
	default:
		steps := []string{
			fmt.Sprintf(`DROP SCHEMA %s`, quoted),
			fmt.Sprintf(`DROP USER %s`, quoted),
			fmt.Sprintf(`DROP LOGIN %s`, quoted),
		}
		for _, stmt := range steps {
			if _, err := db.ExecContext(ctx, stmt); err != nil && !IsMissingPrincipal(err) && !IsMissingObject(err) {
				return fmt.Errorf("dropping principal %s: %w", name, err)
			}
		}
		return nil
	}
}

// ObjectCount returns how many objects remain in the schema. Teardown treats
// a non-zero count after dropping as an incomplete removal.
func (p *Provisioner) ObjectCount(ctx context.Context, db *sqlx.DB, name string) (int, error) {
	var query string
	switch p.engine {
	case EngineOracle:
		query = `SELECT COUNT(*) FROM ALL_OBJECTS WHERE OWNER = :1`
	default:
		query = `SELECT COUNT(*) FROM sys.objects o JOIN sys.schemas s ON o.schema_id = s.schema_id WHERE s.name = @p1`
	}

	var n int
	if err := db.GetContext(ctx, &n, query, name); err != nil {
		return 0, fmt.Errorf("counting objects in %s: %w", name, err)
	}
	return n, nil
}
