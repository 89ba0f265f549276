package tenant

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"beresheet",
		"Home-42",
		"a",
		"north_side",
		strings.Repeat("x", 50),
	}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		" ",
		"bad name",
		"shalom!",
		"a/b",
		"héllo",
		"home;DROP TABLE users",
		strings.Repeat("x", 51),
	}
	for _, name := range invalid {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestValidateName_Reserved(t *testing.T) {
	reserved := []string{"home", "admin", "api", "web", "login", "health", "static", "debug"}
	for _, name := range reserved {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}

	// Reservation is case-insensitive; the router lowercases nothing, but a
	// home named "Admin" is equally unroutable in practice.
	for _, name := range []string{"Admin", "LOGIN", "Web"} {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}
