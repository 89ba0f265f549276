// Package catalog reflects table shapes out of the engine's data dictionary.
// Handlers consult the reflector before touching a home's tables; a missing
// table means the home was provisioned incompletely and surfaces as a server
// error rather than a driver panic deep inside a query.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/internal/telemetry"
)

// ErrTableMissing is returned when a table is absent from the schema.
var ErrTableMissing = errors.New("table missing from schema")

// PoolSource hands out the pool for a schema. *dbpool.Registry satisfies it.
type PoolSource interface {
	Get(ctx context.Context, schema string) (*dbpool.Pool, error)
}

// Column describes one column of a reflected table.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Position int
}

// Index describes one index of a reflected table.
type Index struct {
	Name    string
	Unique  bool
	Columns []string
}

// Table is the reflected shape of one schema-qualified table.
type Table struct {
	Schema     string
	Name       string
	Columns    []Column
	PrimaryKey []string
	Indexes    []Index
}

// Column returns the named column, if present.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

type tableKey struct {
	schema string
	table  string
}

// Reflector introspects tables through each schema's own pool and caches the
// shapes for the life of the process. Tables are contracts with the
// provisioning side: once present, their shape does not change underneath a
// running instance, so the cache is insert-only.
type Reflector struct {
	pools PoolSource
	sfg   singleflight.Group

	mu    sync.RWMutex
	cache map[tableKey]*Table
}

// NewReflector creates an empty reflector over the given pools.
func NewReflector(pools PoolSource) *Reflector {
	return &Reflector{
		pools: pools,
		cache: make(map[tableKey]*Table),
	}
}

// Table returns the reflected shape of schema.table. The first call per pair
// performs dictionary queries; later calls are served from the cache.
// Concurrent first calls are collapsed. Missing tables are not cached, so a
// later provisioning run can still make the table visible.
func (r *Reflector) Table(ctx context.Context, schema, table string) (*Table, error) {
	k := tableKey{schema: schema, table: table}

	r.mu.RLock()
	t, ok := r.cache[k]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := r.sfg.Do(schema+"\x00"+table, func() (any, error) {
		r.mu.RLock()
		t, ok := r.cache[k]
		r.mu.RUnlock()
		if ok {
			return t, nil
		}

		pool, err := r.pools.Get(ctx, schema)
		if err != nil {
			return nil, err
		}

		t, err = reflect(ctx, pool, schema, table)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[k] = t
		r.mu.Unlock()
		telemetry.CatalogTables.Inc()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Size reports how many table shapes are cached.
func (r *Reflector) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func reflect(ctx context.Context, pool *dbpool.Pool, schema, table string) (*Table, error) {
	qctx, cancel := pool.QueryCtx(ctx)
	defer cancel()

	var (
		t   *Table
		err error
	)
	switch pool.Engine() {
	case platform.EngineOracle:
		t, err = reflectOracle(qctx, pool, schema, table)
	default:
		t, err = reflectSQLServer(qctx, pool, schema, table)
	}
	if err != nil {
		return nil, err
	}

	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", schema, table, ErrTableMissing)
	}
	return t, nil
}

func reflectSQLServer(ctx context.Context, pool *dbpool.Pool, schema, table string) (*Table, error) {
	db := pool.DB()
	t := &Table{Schema: schema, Name: table}

	type columnRow struct {
		Name     string `db:"COLUMN_NAME"`
		DataType string `db:"DATA_TYPE"`
		Nullable string `db:"IS_NULLABLE"`
		Position int    `db:"ORDINAL_POSITION"`
	}
	var cols []columnRow
	err := db.SelectContext(ctx, &cols, pool.Rebind(`
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`), schema, table)
	if err != nil {
		return nil, fmt.Errorf("reflecting columns of %s.%s: %w", schema, table, err)
	}
	for _, c := range cols {
		t.Columns = append(t.Columns, Column{
			Name:     c.Name,
			DataType: c.DataType,
			Nullable: c.Nullable == "YES",
			Position: c.Position,
		})
	}
	if len(t.Columns) == 0 {
		return t, nil
	}

	err = db.SelectContext(ctx, &t.PrimaryKey, pool.Rebind(`
		SELECT kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		  ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
		WHERE tc.TABLE_SCHEMA = ? AND tc.TABLE_NAME = ? AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		ORDER BY kcu.ORDINAL_POSITION`), schema, table)
	if err != nil {
		return nil, fmt.Errorf("reflecting primary key of %s.%s: %w", schema, table, err)
	}

	type indexRow struct {
		Name   string `db:"index_name"`
		Unique bool   `db:"is_unique"`
		Column string `db:"column_name"`
	}
	var idxRows []indexRow
	err = db.SelectContext(ctx, &idxRows, pool.Rebind(`
		SELECT i.name AS index_name, i.is_unique, c.name AS column_name
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		JOIN sys.tables tb ON tb.object_id = i.object_id
		JOIN sys.schemas s ON s.schema_id = tb.schema_id
		WHERE s.name = ? AND tb.name = ? AND i.name IS NOT NULL
		ORDER BY i.name, ic.key_ordinal`), schema, table)
	if err != nil {
		return nil, fmt.Errorf("reflecting indexes of %s.%s: %w", schema, table, err)
	}
	for _, row := range idxRows {
		appendIndexColumn(t, row.Name, row.Unique, row.Column)
	}

	return t, nil
}

func reflectOracle(ctx context.Context, pool *dbpool.Pool, schema, table string) (*Table, error) {
	db := pool.DB()
	t := &Table{Schema: schema, Name: table}

	type columnRow struct {
		Name     string `db:"COLUMN_NAME"`
		DataType string `db:"DATA_TYPE"`
		Nullable string `db:"NULLABLE"`
		Position int    `db:"COLUMN_ID"`
	}
	var cols []columnRow
	err := db.SelectContext(ctx, &cols, pool.Rebind(`
		SELECT COLUMN_NAME, DATA_TYPE, NULLABLE, COLUMN_ID
		FROM ALL_TAB_COLUMNS
		WHERE OWNER = ? AND TABLE_NAME = ?
		ORDER BY COLUMN_ID`), schema, table)
	if err != nil {
		return nil, fmt.Errorf("reflecting columns of %s.%s: %w", schema, table, err)
	}
	for _, c := range cols {
		t.Columns = append(t.Columns, Column{
			Name:     c.Name,
			DataType: c.DataType,
			Nullable: c.Nullable == "Y",
			Position: c.Position,
		})
	}
	if len(t.Columns) == 0 {
		return t, nil
	}

	err = db.SelectContext(ctx, &t.PrimaryKey, pool.Rebind(`
		SELECT acc.COLUMN_NAME
		FROM ALL_CONSTRAINTS ac
		JOIN ALL_CONS_COLUMNS acc ON acc.OWNER = ac.OWNER AND acc.CONSTRAINT_NAME = ac.CONSTRAINT_NAME
		WHERE ac.OWNER = ? AND ac.TABLE_NAME = ? AND ac.CONSTRAINT_TYPE = 'P'
		ORDER BY acc.POSITION`), schema, table)
	if err != nil {
		return nil, fmt.Errorf("reflecting primary key of %s.%s: %w", schema, table, err)
	}

	type indexRow struct {
		Name       string `db:"INDEX_NAME"`
		Uniqueness string `db:"UNIQUENESS"`
		Column     string `db:"COLUMN_NAME"`
	}
	var idxRows []indexRow
	err = db.SelectContext(ctx, &idxRows, pool.Rebind(`
		SELECT ai.INDEX_NAME, ai.UNIQUENESS, aic.COLUMN_NAME
		FROM ALL_INDEXES ai
		JOIN ALL_IND_COLUMNS aic ON aic.INDEX_OWNER = ai.OWNER AND aic.INDEX_NAME = ai.INDEX_NAME
		WHERE ai.TABLE_OWNER = ? AND ai.TABLE_NAME = ?
		ORDER BY ai.INDEX_NAME, aic.COLUMN_POSITION`), schema, table)
	if err != nil {
		return nil, fmt.Errorf("reflecting indexes of %s.%s: %w", schema, table, err)
	}
	for _, row := range idxRows {
		appendIndexColumn(t, row.Name, row.Uniqueness == "UNIQUE", row.Column)
	}

	return t, nil
}

func appendIndexColumn(t *Table, name string, unique bool, column string) {
	for i := range t.Indexes {
		if t.Indexes[i].Name == name {
			t.Indexes[i].Columns = append(t.Indexes[i].Columns, column)
			return
		}
	}
	t.Indexes = append(t.Indexes, Index{Name: name, Unique: unique, Columns: []string{column}})
}
