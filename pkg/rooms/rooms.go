// Package rooms manages a home's shared spaces and the lookup table of
// service provider types that service requests categorize themselves by.
package rooms

import (
	"errors"
	"time"
)

// Room is one bookable or shared space in the home.
type Room struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Location    *string   `db:"location" json:"location,omitempty"`
	Capacity    int       `db:"capacity" json:"capacity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProviderType categorizes service requests (plumber, electrician, ...).
type ProviderType struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ErrNotFound is returned when a room or provider type id does not exist.
var ErrNotFound = errors.New("room not found")
