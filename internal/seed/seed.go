// Package seed provisions the demo community used for local development and
// evaluation. It runs instead of the server when HEARTH_MODE=seed.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
	"github.com/hearthhq/hearth/pkg/events"
	"github.com/hearthhq/hearth/pkg/homeindex"
	"github.com/hearthhq/hearth/pkg/rooms"
	"github.com/hearthhq/hearth/pkg/tenant"
	"github.com/hearthhq/hearth/pkg/users"
)

// Demo credentials created by seed mode. They exist for development and
// evaluation and should never be used in production.
const (
	HomeName      = "beresheet"
	AdminEmail    = "admin@beresheet.example"
	AdminPassword = "hearth-seed-admin"

	// ResidentPassword is the login password of every seeded resident.
	ResidentPassword = "hearth-demo"
)

// Options wires a seed run.
type Options struct {
	Tenants *tenant.Service
	Pools   *dbpool.Registry
	Logger  *slog.Logger

	// Now is the clock date expressions evaluate against. Nil means
	// time.Now.
	Now func() time.Time
}

// Run provisions the demo community and fills it with sample residents,
// rooms, and upcoming events. It is idempotent: when the community already
// exists it tops up missing residents and home-index entries and leaves
// everything else alone.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	rec, err := opts.Tenants.LookupByName(ctx, HomeName)
	switch {
	case err == nil:
		logger.Info("seed: home already provisioned, ensuring residents", "home", HomeName, "home_id", rec.ID)
		return ensureResidents(ctx, opts, rec, logger)
	case errors.Is(err, tenant.ErrNotFound):
	default:
		return fmt.Errorf("looking up seed home: %w", err)
	}

	rec, err = opts.Tenants.Create(ctx, tenant.CreateParams{
		Name:          HomeName,
		AdminEmail:    AdminEmail,
		AdminPassword: AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("provisioning seed home: %w", err)
	}
	logger.Info("seed: provisioned home", "home", rec.Name, "home_id", rec.ID)

	if err := ensureResidents(ctx, opts, rec, logger); err != nil {
		return err
	}
	if err := seedRooms(ctx, opts, rec, logger); err != nil {
		return err
	}
	if err := seedEvents(ctx, opts, rec, logger, now()); err != nil {
		return err
	}

	logger.Info("seed: completed", "home", rec.Name, "home_id", rec.ID,
		"residents", len(demoResidents), "rooms", len(demoRooms), "events", len(demoEvents))
	return nil
}

type residentSpec struct {
	phone, email, name, role, apartment string
}

var demoResidents = []residentSpec{
	{"0541111666", "noa@beresheet.example", "Noa Levi", "admin", "1A"},
	{"0542222333", "avi@beresheet.example", "Avi Cohen", "resident", "2B"},
	{"0543333444", "tamar@beresheet.example", "Tamar Mizrahi", "resident", "3C"},
	{"0544444555", "david@beresheet.example", "David Peretz", "resident", "4D"},
}

// ensureResidents creates any missing demo residents and refreshes their
// home-index entries. Existing residents are detected by their phone number
// and left untouched.
func ensureResidents(ctx context.Context, opts Options, rec *tenant.Record, logger *slog.Logger) error {
	pool, err := opts.Pools.Get(ctx, rec.DatabaseSchema)
	if err != nil {
		return fmt.Errorf("acquiring home pool: %w", err)
	}
	indexPool, err := opts.Pools.Get(ctx, platform.IndexSchema)
	if err != nil {
		return fmt.Errorf("acquiring index pool: %w", err)
	}
	userStore := users.NewStore(pool, rec.DatabaseSchema)
	indexStore := homeindex.NewStore(indexPool)

	hash, err := bcrypt.GenerateFromPassword([]byte(ResidentPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing resident password: %w", err)
	}
	passwordHash := string(hash)

	created := 0
	for _, r := range demoResidents {
		email, apartment := r.email, r.apartment
		_, err := userStore.Create(ctx, users.Params{
			PhoneNumber:  r.phone,
			Email:        &email,
			FullName:     r.name,
			PasswordHash: &passwordHash,
			Role:         r.role,
			Apartment:    &apartment,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, users.ErrPhoneTaken):
		default:
			return fmt.Errorf("creating resident %s: %w", r.name, err)
		}
		if _, err := indexStore.Upsert(ctx, r.phone, rec.ID, rec.Name); err != nil {
			return fmt.Errorf("indexing resident %s: %w", r.name, err)
		}
	}
	logger.Info("seed: residents ensured", "created", created, "total", len(demoResidents))
	return nil
}

type roomSpec struct {
	name, description, location string
	capacity                    int
}

var demoRooms = []roomSpec{
	{"Main Hall", "Large hall for community gatherings and holidays", "Ground floor", 120},
	{"Club Room", "Card games, board games, and small circles", "Ground floor, east wing", 30},
	{"Fitness Studio", "Mirrored studio for movement classes", "Floor 1", 20},
	{"Garden Terrace", "Shaded outdoor seating by the herb garden", "Garden level", 40},
}

var demoProviderTypes = []string{"Plumber", "Electrician", "Handyman", "Gardener"}

func seedRooms(ctx context.Context, opts Options, rec *tenant.Record, logger *slog.Logger) error {
	pool, err := opts.Pools.Get(ctx, rec.DatabaseSchema)
	if err != nil {
		return fmt.Errorf("acquiring home pool: %w", err)
	}
	store := rooms.NewStore(pool, rec.DatabaseSchema)

	for _, r := range demoRooms {
		desc, loc := r.description, r.location
		if _, err := store.CreateRoom(ctx, rooms.RoomParams{
			Name:        r.name,
			Description: &desc,
			Location:    &loc,
			Capacity:    r.capacity,
		}); err != nil {
			return fmt.Errorf("creating room %s: %w", r.name, err)
		}
	}
	for _, name := range demoProviderTypes {
		if _, err := store.CreateProviderType(ctx, rooms.ProviderTypeParams{Name: name}); err != nil {
			return fmt.Errorf("creating provider type %s: %w", name, err)
		}
	}
	logger.Info("seed: rooms created", "rooms", len(demoRooms), "provider_types", len(demoProviderTypes))
	return nil
}

type eventSpec struct {
	name, description, eventType, location string

	// start is a date expression evaluated against the seed clock.
	start           string
	durationMinutes int
	maxParticipants int
	withInstructor  bool
}

var demoEvents = []eventSpec{
	{"Morning Yoga", "Gentle chair yoga, suitable for all levels", "class",
		"Fitness Studio", "dateadd(1, days)", 60, 20, true},
	{"Friday Night Dinner", "Shared kabbalat shabbat dinner", "meal",
		"Main Hall", "dateadd(4, days)", 150, 100, false},
	{"Bridge Club", "Weekly bridge afternoon, partners assigned on arrival", "club",
		"Club Room", "dateadd(1, weeks)", 120, 16, false},
	{"Memory Fitness Workshop", "Exercises and games for a sharp mind", "workshop",
		"Club Room", "dateadd(2, weeks)", 90, 25, true},
	{"Hanukkah Party", "Candle lighting, sufganiyot, and live music", "holiday",
		"Main Hall", "dateadd(2, months)", 180, 120, false},
}

func seedEvents(ctx context.Context, opts Options, rec *tenant.Record, logger *slog.Logger, now time.Time) error {
	pool, err := opts.Pools.Get(ctx, rec.DatabaseSchema)
	if err != nil {
		return fmt.Errorf("acquiring home pool: %w", err)
	}
	store := events.NewStore(pool, rec.DatabaseSchema)

	instructorDesc := "Certified senior-fitness and mindfulness instructor"
	instructor, err := store.CreateInstructor(ctx, events.InstructorParams{
		FullName:    "Rina Shapiro",
		Description: &instructorDesc,
	})
	if err != nil {
		return fmt.Errorf("creating instructor: %w", err)
	}

	for _, e := range demoEvents {
		start, err := evalDate(e.start, now)
		if err != nil {
			return fmt.Errorf("event %q start: %w", e.name, err)
		}
		end := start.Add(time.Duration(e.durationMinutes) * time.Minute)

		desc, evType, loc := e.description, e.eventType, e.location
		params := events.CreateParams{
			Name:            e.name,
			Description:     &desc,
			EventType:       &evType,
			Location:        &loc,
			StartTime:       start,
			EndTime:         &end,
			MaxParticipants: e.maxParticipants,
		}
		if e.withInstructor {
			params.InstructorID = &instructor.ID
		}
		if _, err := store.Create(ctx, params); err != nil {
			return fmt.Errorf("creating event %s: %w", e.name, err)
		}
	}
	logger.Info("seed: events created", "count", len(demoEvents), "instructor", instructor.FullName)
	return nil
}
