package platform

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// System schema names. The admin schema holds the home registry and the
// audit log; the index schema holds the phone-to-home lookup table and is
// reachable through its own low-privilege principal.
const (
	AdminSchema = "admin"
	IndexSchema = "home_index"
)

// BootstrapConfig carries the credentials bootstrap needs to create the
// system principals when they are missing.
type BootstrapConfig struct {
	AdminPassword string
	IndexPassword string
}

type bootstrapTable struct {
	schema string
	name   string
	ddl    map[Engine]string
}

var bootstrapTables = []bootstrapTable{
	{
		schema: AdminSchema,
		name:   "home",
		ddl: map[Engine]string{
			EngineSQLServer: `CREATE TABLE [admin].[home] (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				name NVARCHAR(50) NOT NULL CONSTRAINT uq_home_name UNIQUE,
				database_name NVARCHAR(128) NOT NULL,
				database_type NVARCHAR(20) NOT NULL,
				database_schema NVARCHAR(128) NOT NULL,
				admin_user_email NVARCHAR(255) NOT NULL,
				admin_user_password NVARCHAR(255) NOT NULL,
				created_at DATETIME2 NOT NULL,
				updated_at DATETIME2 NOT NULL
			)`,
			EngineOracle: `CREATE TABLE "admin"."home" (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				name VARCHAR2(50) NOT NULL CONSTRAINT uq_home_name UNIQUE,
				database_name VARCHAR2(128) NOT NULL,
				database_type VARCHAR2(20) NOT NULL,
				database_schema VARCHAR2(128) NOT NULL,
				admin_user_email VARCHAR2(255) NOT NULL,
				admin_user_password VARCHAR2(255) NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		schema: AdminSchema,
		name:   "audit_log",
		ddl: map[Engine]string{
			EngineSQLServer: `CREATE TABLE [admin].[audit_log] (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				actor NVARCHAR(255) NOT NULL,
				action NVARCHAR(100) NOT NULL,
				home_name NVARCHAR(50) NOT NULL,
				detail NVARCHAR(2000) NULL,
				created_at DATETIME2 NOT NULL
			)`,
			EngineOracle: `CREATE TABLE "admin"."audit_log" (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				actor VARCHAR2(255) NOT NULL,
				action VARCHAR2(100) NOT NULL,
				home_name VARCHAR2(50) NOT NULL,
				detail VARCHAR2(2000) NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		schema: IndexSchema,
		name:   "home_index",
		ddl: map[Engine]string{
			EngineSQLServer: `CREATE TABLE [home_index].[home_index] (
				phone_number NVARCHAR(32) NOT NULL PRIMARY KEY,
				home_id BIGINT NOT NULL,
				home_name NVARCHAR(50) NOT NULL,
				created_at DATETIME2 NOT NULL,
				updated_at DATETIME2 NOT NULL
			)`,
			EngineOracle: `CREATE TABLE "home_index"."home_index" (
				phone_number VARCHAR2(32) NOT NULL PRIMARY KEY,
				home_id NUMBER(19) NOT NULL,
				home_name VARCHAR2(50) NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
}

// Bootstrap creates the system schemas and tables if they are missing. It
// runs on every startup against the admin connection and is safe to re-run;
// every step probes before creating.
func Bootstrap(ctx context.Context, db *sqlx.DB, engine Engine, cfg BootstrapConfig) error {
	prov := NewProvisioner(engine)

	if err := ensureSystemSchema(ctx, db, engine, prov, AdminSchema, cfg.AdminPassword); err != nil {
		return err
	}
	if err := ensureSystemSchema(ctx, db, engine, prov, IndexSchema, cfg.IndexPassword); err != nil {
		return err
	}

	for _, t := range bootstrapTables {
		exists, err := tableExists(ctx, db, engine, t.schema, t.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, t.ddl[engine]); err != nil {
			return fmt.Errorf("creating %s.%s: %w", t.schema, t.name, err)
		}
	}
	return nil
}

// ensureSystemSchema creates a system schema when absent. On Oracle both
// system schemas are users; on SQL Server the admin schema piggybacks on the
// connecting login and only the index schema gets its own principal.
func ensureSystemSchema(ctx context.Context, db *sqlx.DB, engine Engine, prov *Provisioner, schema, password string) error {
	if engine == EngineSQLServer && schema == AdminSchema {
		var n int
		if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM sys.schemas WHERE name = @p1`, schema); err != nil {
			return fmt.Errorf("checking schema %s: %w", schema, err)
		}
		if n == 0 {
			if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA %s`, engine.QuoteIdent(schema))); err != nil {
				return fmt.Errorf("creating schema %s: %w", schema, err)
			}
		}
		return nil
	}

	exists, err := prov.PrincipalExists(ctx, db, schema)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return prov.EnsurePrincipal(ctx, db, schema, password)
}

func tableExists(ctx context.Context, db *sqlx.DB, engine Engine, schema, table string) (bool, error) {
	var query string
	switch engine {
	case EngineOracle:
		query = `SELECT COUNT(*) FROM ALL_TABLES WHERE OWNER = :1 AND TABLE_NAME = :2`
	default:
		query = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`
	}

	var n int
	if err := db.GetContext(ctx, &n, query, schema, table); err != nil {
		return false, fmt.Errorf("checking table %s.%s: %w", schema, table, err)
	}
	return n > 0, nil
}
