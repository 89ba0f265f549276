// Package audit records administrative actions against the home catalog.
// Writes are asynchronous so a slow audit insert can never stall a
// provisioning call; entries land in admin.audit_log.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

// Entry is a single audit log entry to be written.
type Entry struct {
	Actor    string
	Action   string
	HomeName string
	Detail   string
}

// Record is a persisted audit entry as read back for the admin API.
type Record struct {
	ID        int64     `db:"id" json:"id"`
	Actor     string    `db:"actor" json:"actor"`
	Action    string    `db:"action" json:"action"`
	HomeName  string    `db:"home_name" json:"home_name"`
	Detail    *string   `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	pool    *dbpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer over the admin pool. Call Start to begin
// processing entries.
func NewWriter(pool *dbpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes entries to the database.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged. Safe
// to call on a nil Writer.
func (w *Writer) Log(entry Entry) {
	if w == nil {
		return
	}
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "home", entry.HomeName)
	}
}

// LogRequest enqueues an entry annotated with the caller's address.
func (w *Writer) LogRequest(r *http.Request, actor, action, homeName, detail string) {
	if w == nil {
		return
	}
	if ip := clientIP(r); ip.IsValid() {
		if detail != "" {
			detail += "; "
		}
		detail += "ip=" + ip.String()
	}
	w.Log(Entry{Actor: actor, Action: action, HomeName: homeName, Detail: detail})
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Drain any remaining entries.
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries through the admin pool.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table := w.pool.Engine().QualifyTable(platform.AdminSchema, "audit_log")
	query := w.pool.Rebind(fmt.Sprintf(
		`INSERT INTO %s (actor, action, home_name, detail, created_at) VALUES (?, ?, ?, ?, ?)`, table))

	db := w.pool.DB()
	for _, e := range entries {
		var detail *string
		if e.Detail != "" {
			detail = &e.Detail
		}
		if _, err := db.ExecContext(ctx, query, e.Actor, e.Action, e.HomeName, detail, time.Now().UTC()); err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "home", e.HomeName)
		}
	}
}

// List returns persisted entries, newest first, with the total count.
func (w *Writer) List(ctx context.Context, limit, offset int) ([]Record, int, error) {
	table := w.pool.Engine().QualifyTable(platform.AdminSchema, "audit_log")
	qctx, cancel := w.pool.QueryCtx(ctx)
	defer cancel()

	var records []Record
	query := w.pool.Rebind(fmt.Sprintf(
		`SELECT id, actor, action, home_name, detail, created_at FROM %s
		 ORDER BY id DESC OFFSET ? ROWS FETCH NEXT ? ROWS ONLY`, table))
	if err := w.pool.DB().SelectContext(qctx, &records, query, offset, limit); err != nil {
		return nil, 0, fmt.Errorf("listing audit log: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
	if err := w.pool.DB().GetContext(qctx, &total, countQuery); err != nil {
		return nil, 0, fmt.Errorf("counting audit log: %w", err)
	}
	return records, total, nil
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	// X-Forwarded-For: first entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
