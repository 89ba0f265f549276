package platform

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// InsertReturningID inserts a row and returns the generated identity value.
// The two engines disagree on how an insert yields its key: SQL Server uses
// an OUTPUT clause, Oracle a RETURNING ... INTO bind.
func InsertReturningID(ctx context.Context, db sqlx.ExtContext, engine Engine, table string, columns []string, args ...any) (int64, error) {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}

	switch engine {
	case EngineOracle:
		query := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING id INTO :%d",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), len(columns)+1,
		)
		var id int64
		execArgs := append(append([]any{}, args...), sql.Out{Dest: &id})
		if _, err := db.ExecContext(ctx, Rebind(engine, query), execArgs...); err != nil {
			return 0, err
		}
		return id, nil

	default:
		query := fmt.Sprintf(
			"INSERT INTO %s (%s) OUTPUT INSERTED.id VALUES (%s)",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
		)
		var id int64
		if err := sqlx.GetContext(ctx, db, &id, Rebind(engine, query), args...); err != nil {
			return 0, err
		}
		return id, nil
	}
}
