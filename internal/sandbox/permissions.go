package sandbox

import (
	"fmt"
	"sync"
)

// Permission names one capability a strategy may be granted: what it's
// allowed to touch beyond pure computation over the data it's handed.
type Permission string

const (
	PermReadMarketData Permission = "read_market_data"
	PermReadPortfolio  Permission = "read_portfolio"
	PermEmitOrders     Permission = "emit_orders"
	PermReadExternal   Permission = "read_external"
)

// Mode selects how strictly permission checks are enforced.
type Mode string

const (
	Strict  Mode = "strict"  // a strategy with no recorded grants is denied
	Lenient Mode = "lenient" // a strategy with no recorded grants is allowed
)

// Registry tracks which permissions are granted to which strategy IDs
// behind a mutex-guarded map.
type Registry struct {
	mu     sync.RWMutex
	grants map[string]map[Permission]bool
	mode   Mode
}

// NewRegistry builds an empty permission Registry in the given mode.
func NewRegistry(mode Mode) *Registry {
	return &Registry{grants: make(map[string]map[Permission]bool), mode: mode}
}

// Grant records that strategyID is allowed the given permissions.
func (r *Registry) Grant(strategyID string, perms ...Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.grants[strategyID]
	if !ok {
		set = make(map[Permission]bool)
		r.grants[strategyID] = set
	}
	for _, p := range perms {
		set[p] = true
	}
}

// Check verifies strategyID holds the requested permission. In Strict
// mode, a strategy with no recorded grants at all is denied everything;
// in Lenient mode the same case is allowed (treated as "not yet
// configured", not "forbidden").
func (r *Registry) Check(strategyID string, perm Permission) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, known := r.grants[strategyID]
	if !known {
		if r.mode == Lenient {
			return nil
		}
		return fmt.Errorf("sandbox: strategy %q has no permission grants recorded (strict mode)", strategyID)
	}
	if !set[perm] {
		return fmt.Errorf("sandbox: strategy %q lacks permission %q", strategyID, perm)
	}
	return nil
}

// Revoke removes all grants for strategyID.
func (r *Registry) Revoke(strategyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, strategyID)
}
