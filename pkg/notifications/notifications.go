// Package notifications stores and delivers resident notifications. Rows are
// written to the tenant schema first and then fanned out through the push
// sender; a delivery failure never rolls back the stored notification. The
// sender is stored by id only and resolved to a name on read.
package notifications

import (
	"errors"
	"time"

	"github.com/hearthhq/hearth/internal/platform"
)

// UserNotification targets one resident.
type UserNotification struct {
	ID         int64         `db:"id" json:"id"`
	UserID     int64         `db:"user_id" json:"user_id"`
	Title      string        `db:"title" json:"title"`
	Body       string        `db:"body" json:"body"`
	SenderID   *int64        `db:"sender_id" json:"sender_id,omitempty"`
	SenderName *string       `db:"sender_name" json:"sender_name,omitempty"`
	IsRead     platform.Bool `db:"is_read" json:"is_read"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// HomeNotification goes to every resident of the home.
type HomeNotification struct {
	ID         int64     `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Body       string    `db:"body" json:"body"`
	SenderID   *int64    `db:"sender_id" json:"sender_id,omitempty"`
	SenderName *string   `db:"sender_name" json:"sender_name,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ErrNotFound is returned when a notification id does not exist.
var ErrNotFound = errors.New("notification not found")

// ErrUserNotFound is returned when a notification targets a user id with no
// row in the home.
var ErrUserNotFound = errors.New("user not found")
