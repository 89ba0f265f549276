// Package requests manages service requests and their chat threads. A
// request tracks one resident's issue; messages hang off it, optionally
// carrying uploaded media. Message senders are stored by id and resolved to
// names on read.
package requests

import (
	"errors"
	"time"
)

// Request states. A request opens, may be picked up, and eventually closes;
// closed requests keep their thread readable.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Request is one resident's service request.
type Request struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	ProviderTypeID *int64    `db:"provider_type_id" json:"provider_type_id,omitempty"`
	Subject        string    `db:"subject" json:"subject"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Message is one chat entry on a request. Body is empty for media-only
// messages.
type Message struct {
	ID         int64     `db:"id" json:"id"`
	RequestID  int64     `db:"request_id" json:"request_id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	SenderName *string   `db:"sender_name" json:"sender_name,omitempty"`
	Body       *string   `db:"body" json:"body,omitempty"`
	MediaURL   *string   `db:"media_url" json:"media_url,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ErrNotFound is returned when a request or message id does not exist.
var ErrNotFound = errors.New("request not found")
