package platform

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Bool is a cross-engine boolean column. SQL Server BIT scans as a Go bool,
// Oracle NUMBER(1) as an integer; Bool accepts both and binds as 0/1, which
// both engines take. JSON encoding is the plain true/false of the underlying
// bool.
type Bool bool

// Scan implements sql.Scanner.
func (b *Bool) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = false
	case bool:
		*b = Bool(v)
	case int64:
		*b = v != 0
	case float64:
		*b = v != 0
	case []byte:
		parsed, err := strconv.ParseBool(string(v))
		if err != nil {
			return fmt.Errorf("scanning %q into Bool: %w", v, err)
		}
		*b = Bool(parsed)
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("scanning %q into Bool: %w", v, err)
		}
		*b = Bool(parsed)
	default:
		return fmt.Errorf("cannot scan %T into Bool", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (b Bool) Value() (driver.Value, error) {
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}
