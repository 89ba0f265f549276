// Package homeindex maintains the global phone-number-to-home directory the
// mobile app queries before it knows which home a resident belongs to. The
// directory lives in its own schema behind a low-privilege principal so the
// unauthenticated discovery endpoint never touches tenant data.
package homeindex

import (
	"errors"
	"strings"
	"time"
)

// Entry maps one phone number to the home that owns it. The phone number is
// stored in normalized form and is the primary key.
type Entry struct {
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	HomeID      int64     `db:"home_id" json:"home_id"`
	HomeName    string    `db:"home_name" json:"home_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ErrNotFound is returned when a phone number has no index entry.
var ErrNotFound = errors.New("phone number not indexed")

// Normalize strips every leading zero from a locally formatted phone number
// ("0541111666" becomes "541111666"). Numbers already in international form
// (a "+" prefix) pass through untouched. Normalize is idempotent, so reads
// and writes agree on the key no matter how many times a number has been
// through it.
func Normalize(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return strings.TrimLeft(phone, "0")
}
