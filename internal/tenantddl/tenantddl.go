// Package tenantddl owns the DDL for the domain tables inside a home
// schema. Provisioning invokes it through the tenant.TableBootstrapper
// contract; everything else discovers the resulting shapes at runtime
// through the catalog reflector.
package tenantddl

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/platform"
)

type table struct {
	name string
	// ddl has one %s: the engine-qualified table name.
	ddl map[platform.Engine]string
}

var tables = []table{
	{
		name: "users",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				phone_number NVARCHAR(32) NOT NULL CONSTRAINT uq_users_phone UNIQUE,
				email NVARCHAR(255) NULL,
				full_name NVARCHAR(255) NOT NULL,
				password_hash NVARCHAR(255) NULL,
				role NVARCHAR(20) NOT NULL DEFAULT 'resident',
				apartment NVARCHAR(50) NULL,
				photo_url NVARCHAR(1000) NULL,
				push_token NVARCHAR(512) NULL,
				created_at DATETIME2 NOT NULL,
				updated_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				phone_number VARCHAR2(32) NOT NULL CONSTRAINT uq_users_phone UNIQUE,
				email VARCHAR2(255) NULL,
				full_name VARCHAR2(255) NOT NULL,
				password_hash VARCHAR2(255) NULL,
				role VARCHAR2(20) DEFAULT 'resident' NOT NULL,
				apartment VARCHAR2(50) NULL,
				photo_url VARCHAR2(1000) NULL,
				push_token VARCHAR2(512) NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "events",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				name NVARCHAR(255) NOT NULL,
				description NVARCHAR(2000) NULL,
				event_type NVARCHAR(50) NULL,
				location NVARCHAR(255) NULL,
				start_time DATETIME2 NOT NULL,
				end_time DATETIME2 NULL,
				max_participants INT NOT NULL DEFAULT 0,
				current_participants INT NOT NULL DEFAULT 0,
				instructor_id BIGINT NULL,
				image_url NVARCHAR(1000) NULL,
				created_at DATETIME2 NOT NULL,
				updated_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				name VARCHAR2(255) NOT NULL,
				description VARCHAR2(2000) NULL,
				event_type VARCHAR2(50) NULL,
				location VARCHAR2(255) NULL,
				start_time TIMESTAMP NOT NULL,
				end_time TIMESTAMP NULL,
				max_participants NUMBER(10) DEFAULT 0 NOT NULL,
				current_participants NUMBER(10) DEFAULT 0 NOT NULL,
				instructor_id NUMBER(19) NULL,
				image_url VARCHAR2(1000) NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "events_registration",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				event_id BIGINT NOT NULL,
				user_id BIGINT NOT NULL,
				created_at DATETIME2 NOT NULL,
				CONSTRAINT uq_event_user UNIQUE (event_id, user_id)
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				event_id NUMBER(19) NOT NULL,
				user_id NUMBER(19) NOT NULL,
				created_at TIMESTAMP NOT NULL,
				CONSTRAINT uq_event_user UNIQUE (event_id, user_id)
			)`,
		},
	},
	{
		name: "event_instructor",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				full_name NVARCHAR(255) NOT NULL,
				description NVARCHAR(2000) NULL,
				photo_url NVARCHAR(1000) NULL,
				created_at DATETIME2 NOT NULL,
				updated_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				full_name VARCHAR2(255) NOT NULL,
				description VARCHAR2(2000) NULL,
				photo_url VARCHAR2(1000) NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "event_gallery",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				event_id BIGINT NOT NULL,
				image_url NVARCHAR(1000) NOT NULL,
				created_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				event_id NUMBER(19) NOT NULL,
				image_url VARCHAR2(1000) NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "rooms",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				name NVARCHAR(255) NOT NULL,
				description NVARCHAR(2000) NULL,
				location NVARCHAR(255) NULL,
				capacity INT NOT NULL DEFAULT 0,
				created_at DATETIME2 NOT NULL,
				updated_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				name VARCHAR2(255) NOT NULL,
				description VARCHAR2(2000) NULL,
				location VARCHAR2(255) NULL,
				capacity NUMBER(10) DEFAULT 0 NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "service_provider_types",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				name NVARCHAR(255) NOT NULL,
				description NVARCHAR(2000) NULL,
				created_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				name VARCHAR2(255) NOT NULL,
				description VARCHAR2(2000) NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "requests",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				user_id BIGINT NOT NULL,
				provider_type_id BIGINT NULL,
				subject NVARCHAR(500) NOT NULL,
				status NVARCHAR(20) NOT NULL DEFAULT 'open',
				created_at DATETIME2 NOT NULL,
				updated_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				user_id NUMBER(19) NOT NULL,
				provider_type_id NUMBER(19) NULL,
				subject VARCHAR2(500) NOT NULL,
				status VARCHAR2(20) DEFAULT 'open' NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "request_messages",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				request_id BIGINT NOT NULL,
				sender_id BIGINT NOT NULL,
				body NVARCHAR(4000) NULL,
				media_url NVARCHAR(1000) NULL,
				created_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				request_id NUMBER(19) NOT NULL,
				sender_id NUMBER(19) NOT NULL,
				body VARCHAR2(4000) NULL,
				media_url VARCHAR2(1000) NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "user_notification",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				user_id BIGINT NOT NULL,
				title NVARCHAR(255) NOT NULL,
				body NVARCHAR(2000) NOT NULL,
				sender_id BIGINT NULL,
				is_read BIT NOT NULL DEFAULT 0,
				created_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				user_id NUMBER(19) NOT NULL,
				title VARCHAR2(255) NOT NULL,
				body VARCHAR2(2000) NOT NULL,
				sender_id NUMBER(19) NULL,
				is_read NUMBER(1) DEFAULT 0 NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		name: "home_notification",
		ddl: map[platform.Engine]string{
			platform.EngineSQLServer: `CREATE TABLE %s (
				id BIGINT IDENTITY(1,1) PRIMARY KEY,
				title NVARCHAR(255) NOT NULL,
				body NVARCHAR(2000) NOT NULL,
				sender_id BIGINT NULL,
				created_at DATETIME2 NOT NULL
			)`,
			platform.EngineOracle: `CREATE TABLE %s (
				id NUMBER(19) GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				title VARCHAR2(255) NOT NULL,
				body VARCHAR2(2000) NOT NULL,
				sender_id NUMBER(19) NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
}

// Names returns the domain table names in creation order.
func Names() []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.name
	}
	return names
}

// Bootstrapper creates the domain tables for a freshly provisioned home. It
// satisfies tenant.TableBootstrapper.
type Bootstrapper struct {
	engine platform.Engine
}

// New creates a Bootstrapper for the engine.
func New(engine platform.Engine) *Bootstrapper {
	return &Bootstrapper{engine: engine}
}

// CreateTables creates every domain table missing from the schema. Each
// table is probed first, so a retried provisioning run passes over whatever
// a failed run already built.
func (b *Bootstrapper) CreateTables(ctx context.Context, db *sqlx.DB, schema string) error {
	for _, t := range tables {
		exists, err := b.tableExists(ctx, db, schema, t.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf(t.ddl[b.engine], b.engine.QualifyTable(schema, t.name))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating %s.%s: %w", schema, t.name, err)
		}
	}
	return nil
}

func (b *Bootstrapper) tableExists(ctx context.Context, db *sqlx.DB, schema, name string) (bool, error) {
	var query string
	switch b.engine {
	case platform.EngineOracle:
		query = `SELECT COUNT(*) FROM ALL_TABLES WHERE OWNER = :1 AND TABLE_NAME = :2`
	default:
		query = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`
	}

	var n int
	if err := db.GetContext(ctx, &n, query, schema, name); err != nil {
		return false, fmt.Errorf("checking table %s.%s: %w", schema, name, err)
	}
	return n > 0, nil
}
