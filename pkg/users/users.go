// Package users manages a home's residents. Phone numbers are stored
// normalized and kept in sync with the cross-home phone directory, which is
// how the mobile app finds a resident's home before its first login.
package users

import (
	"errors"
	"time"
)

// User is one resident row. The password hash and push token never leave the
// process in API responses.
type User struct {
	ID           int64     `db:"id" json:"id"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	Email        *string   `db:"email" json:"email,omitempty"`
	FullName     string    `db:"full_name" json:"full_name"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Apartment    *string   `db:"apartment" json:"apartment,omitempty"`
	PhotoURL     *string   `db:"photo_url" json:"photo_url,omitempty"`
	PushToken    *string   `db:"push_token" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

var (
	// ErrNotFound means no such user in this home.
	ErrNotFound = errors.New("user not found")

	// ErrPhoneTaken means another user in this home already has the phone
	// number.
	ErrPhoneTaken = errors.New("phone number already in use")
)
