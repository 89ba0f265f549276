package platform

import "strings"

// Driver errors are classified by message text rather than by concrete error
// types so that stores stay free of driver imports and tests can exercise the
// classification with plain errors.

// IsUniqueViolation reports whether err is a unique constraint violation on
// either engine (SQL Server 2601/2627, Oracle ORA-00001).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ORA-00001") ||
		strings.Contains(msg, "Cannot insert duplicate key") ||
		strings.Contains(msg, "Violation of UNIQUE KEY constraint") ||
		strings.Contains(msg, "Violation of PRIMARY KEY constraint")
}

// IsMissingObject reports whether err indicates a referenced table or view
// does not exist (SQL Server 208, Oracle ORA-00942).
func IsMissingObject(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ORA-00942") ||
		strings.Contains(msg, "Invalid object name")
}

// IsMissingPrincipal reports whether err indicates a user, login, or schema
// does not exist; teardown uses this to treat already-dropped objects as
// success (SQL Server 15151/15025 variants, Oracle ORA-01918).
func IsMissingPrincipal(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ORA-01918") ||
		strings.Contains(msg, "does not exist or you do not have permission") ||
		strings.Contains(msg, "Cannot drop the") && strings.Contains(msg, "because it does not exist")
}
