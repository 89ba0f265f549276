package gate

import (
	"github.com/go-chi/chi/v5"
)

// Projector mounts canonical routes under /{tenant_name}, wrapping each
// handler with the gate in the mode its pattern dictates. Projection is a
// startup-time operation; the result is plain chi routes with middleware,
// nothing dynamic per request.
type Projector struct {
	gate *Gate
	ops  []Operation
}

// NewProjector creates a Projector over the gate.
func NewProjector(g *Gate) *Projector {
	return &Projector{gate: g}
}

// Mount projects every route in the set onto the router under
// /{tenant_name}. Canonical patterns keep their parameter names and
// positions; operation names gain a tenant_ prefix so projected ids never
// collide with unprefixed ones.
func (p *Projector) Mount(router chi.Router, set *RouteSet) {
	router.Route("/{tenant_name}", func(r chi.Router) {
		for _, rt := range set.Routes() {
			mode := rt.Mode()
			r.Method(rt.Method, rt.Pattern, p.gate.Wrap(mode, rt.Handler))
			p.ops = append(p.ops, Operation{
				Name:    "tenant_" + rt.Name,
				Method:  rt.Method,
				Pattern: "/{tenant_name}" + rt.Pattern,
				Mode:    mode.String(),
			})
		}
	})
}

// Operations returns the metadata of every projected route in registration
// order.
func (p *Projector) Operations() []Operation {
	return p.ops
}
