// Package events manages a home's shared activity calendar: the events
// themselves, registration with capacity control, instructors, and the photo
// gallery.
package events

import (
	"errors"
	"time"
)

// Event is one calendar entry. current_participants is maintained by the
// store under the capacity check and is never written directly by handlers.
type Event struct {
	ID                  int64      `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Description         *string    `db:"description" json:"description,omitempty"`
	EventType           *string    `db:"event_type" json:"event_type,omitempty"`
	Location            *string    `db:"location" json:"location,omitempty"`
	StartTime           time.Time  `db:"start_time" json:"start_time"`
	EndTime             *time.Time `db:"end_time" json:"end_time,omitempty"`
	MaxParticipants     int        `db:"max_participants" json:"max_participants"`
	CurrentParticipants int        `db:"current_participants" json:"current_participants"`
	InstructorID        *int64     `db:"instructor_id" json:"instructor_id,omitempty"`
	ImageURL            *string    `db:"image_url" json:"image_url,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Registration links a user to an event. One row per user per event.
type Registration struct {
	ID        int64     `db:"id" json:"id"`
	EventID   int64     `db:"event_id" json:"event_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Instructor leads events. Stored per home; events reference instructors by id.
type Instructor struct {
	ID          int64     `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	Description *string   `db:"description" json:"description,omitempty"`
	PhotoURL    *string   `db:"photo_url" json:"photo_url,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GalleryImage is one photo attached to an event.
type GalleryImage struct {
	ID        int64     `db:"id" json:"id"`
	EventID   int64     `db:"event_id" json:"event_id"`
	ImageURL  string    `db:"image_url" json:"image_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var (
	// ErrNotFound means the event, instructor, or gallery image does not exist.
	ErrNotFound = errors.New("event not found")

	// ErrFull means the event is at max_participants.
	ErrFull = errors.New("event is full")

	// ErrRegistered means the user already holds a registration.
	ErrRegistered = errors.New("user already registered")

	// ErrNotRegistered means there was no registration to remove.
	ErrNotRegistered = errors.New("user is not registered")
)
