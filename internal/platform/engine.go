package platform

import (
	"fmt"
	"net/url"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"
)

// Engine identifies the SQL engine a home database runs on. The set is
// closed: tenant records carry one of these values and every piece of
// engine-specific SQL in the codebase switches on it.
type Engine string

const (
	EngineSQLServer Engine = "sqlserver"
	EngineOracle    Engine = "oracle"
)

// ParseEngine validates an engine name from configuration or a tenant record.
// Unrecognized names are a hard error; callers at startup treat it as fatal.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case EngineSQLServer:
		return EngineSQLServer, nil
	case EngineOracle:
		return EngineOracle, nil
	default:
		return "", fmt.Errorf("unsupported database engine %q (expected sqlserver or oracle)", s)
	}
}

// DriverName returns the database/sql driver name registered for the engine.
func (e Engine) DriverName() string {
	switch e {
	case EngineOracle:
		return "oracle"
	default:
		return "sqlserver"
	}
}

// DSN builds a connection string for the engine. The user determines which
// schema the session can act on; connections for tenant work always use the
// tenant's own principal.
func (e Engine) DSN(host string, port int, user, password, database string) string {
	switch e {
	case EngineOracle:
		return go_ora.BuildUrl(host, port, database, user, password, nil)
	default:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(user, password),
			Host:     fmt.Sprintf("%s:%d", host, port),
			RawQuery: url.Values{"database": []string{database}}.Encode(),
		}
		return u.String()
	}
}

// QuoteIdent quotes a single identifier (schema, table, or column name) for
// the engine. Oracle identifiers are quoted to preserve case and to allow
// hyphens in home names; SQL Server uses bracket quoting.
func (e Engine) QuoteIdent(name string) string {
	switch e {
	case EngineOracle:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	default:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
}

// QualifyTable returns a fully quoted schema.table reference.
func (e Engine) QualifyTable(schema, table string) string {
	return e.QuoteIdent(schema) + "." + e.QuoteIdent(table)
}
