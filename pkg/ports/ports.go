// Package ports implements the Port Registry: the canonical set
// of port identifiers and their admin/oper state, consumed read-only
// by the VLAN policy, MAC table, learning controller, and forwarding
// decision components. Ports are identified by a small-integer PortId
// carrying independent admin and operational state booleans.
package ports

import (
	"fmt"
	"sync"

	"github.com/brindlenet/l2fabric/pkg/l2err"
)

// PortId identifies a port; valid values are in [0, PortMax).
type PortId int

// Registry is the canonical, concurrency-safe set of configured ports.
type Registry struct {
	mu      sync.RWMutex
	portMax int
	adminUp map[PortId]bool
	operUp  map[PortId]bool
}

// NewRegistry creates an empty registry bounded to portMax ports.
func NewRegistry(portMax int) *Registry {
	return &Registry{
		portMax: portMax,
		adminUp: make(map[PortId]bool),
		operUp:  make(map[PortId]bool),
	}
}

func (r *Registry) validId(p PortId) bool {
	return p >= 0 && int(p) < r.portMax
}

// Add registers a new port, administratively down and operationally
// down until explicitly brought up.
func (r *Registry) Add(p PortId) error {
	if !r.validId(p) {
		return l2err.Invalid("port_add", fmt.Sprintf("port %d", p), "out of range")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adminUp[p]; exists {
		return l2err.AlreadyExists("port_add", fmt.Sprintf("port %d", p))
	}
	r.adminUp[p] = false
	r.operUp[p] = false
	return nil
}

// Remove deregisters a port entirely.
func (r *Registry) Remove(p PortId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adminUp[p]; !exists {
		return l2err.NotFound("port_remove", fmt.Sprintf("port %d", p))
	}
	delete(r.adminUp, p)
	delete(r.operUp, p)
	return nil
}

// Exists reports whether p is a registered port.
func (r *Registry) Exists(p PortId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adminUp[p]
	return ok
}

// AdminUp reports the administrative state of p. A non-existent port
// reports false.
func (r *Registry) AdminUp(p PortId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adminUp[p]
}

// OperUp reports the operational state of p. A non-existent port, or
// one administratively down, reports false.
func (r *Registry) OperUp(p PortId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adminUp[p] && r.operUp[p]
}

// SetAdminState sets the administrative state of p. Bringing a port
// administratively down also clears its operational state.
func (r *Registry) SetAdminState(p PortId, up bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adminUp[p]; !exists {
		return l2err.NotFound("port_set_admin_state", fmt.Sprintf("port %d", p))
	}
	r.adminUp[p] = up
	if !up {
		r.operUp[p] = false
	}
	return nil
}

// SetOperState records an operational state transition notification.
// It returns the previous effective (admin && oper) state and the new
// one so callers can detect a down-transition and flush dynamic MAC
// bindings.
func (r *Registry) SetOperState(p PortId, up bool) (was bool, now bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	admin, exists := r.adminUp[p]
	if !exists {
		return false, false, l2err.NotFound("notify_port_state", fmt.Sprintf("port %d", p))
	}

	was = admin && r.operUp[p]
	r.operUp[p] = up
	now = admin && r.operUp[p]
	return was, now, nil
}

// Count returns the number of registered ports.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adminUp)
}

// PortMax returns the configured capacity.
func (r *Registry) PortMax() int {
	return r.portMax
}

// All returns every registered port ID, unordered.
func (r *Registry) All() []PortId {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PortId, 0, len(r.adminUp))
	for p := range r.adminUp {
		out = append(out, p)
	}
	return out
}
