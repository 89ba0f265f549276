// Package docs serves the operations index: a JSON catalog of every route
// the server exposes, in registration order. The index is assembled once at
// startup from the projector's metadata plus the handful of routes that live
// outside the tenant prefix, so serving it never touches the route table.
package docs

import (
	"net/http"

	"github.com/hearthhq/hearth/internal/httpserver"
	"github.com/hearthhq/hearth/pkg/gate"
)

// Index is the document served at /api/docs.
type Index struct {
	Service    string           `json:"service"`
	Operations []gate.Operation `json:"operations"`
}

// Builder accumulates operations for the index. Populate it during startup
// wiring; it is not safe for concurrent mutation.
type Builder struct {
	service string
	ops     []gate.Operation
}

// NewBuilder creates a Builder for the named service.
func NewBuilder(service string) *Builder {
	return &Builder{service: service}
}

// Add records one operation that is mounted outside the tenant prefix, such
// as /metrics or the admin API.
func (b *Builder) Add(name, method, pattern, mode string) {
	b.ops = append(b.ops, gate.Operation{Name: name, Method: method, Pattern: pattern, Mode: mode})
}

// AddProjected records every operation the projector mounted.
func (b *Builder) AddProjected(ops []gate.Operation) {
	b.ops = append(b.ops, ops...)
}

// Handler returns the handler for the operations index. The index is
// snapshotted at call time; register all operations first.
func (b *Builder) Handler() http.HandlerFunc {
	index := Index{Service: b.service, Operations: b.ops}
	return func(w http.ResponseWriter, r *http.Request) {
		httpserver.Respond(w, http.StatusOK, index)
	}
}
