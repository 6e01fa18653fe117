package core

import (
	"errors"
	"fmt"
)

// Lookup and registration errors of RouterDB.
var (
	ErrNotFound     = errors.New("router not found")
	ErrDuplicateKey = errors.New("address or prefix already registered")
)

// RouterDB indexes the started routers of a run by interface address and
// by originated prefix. It also remembers every key drawn by a router of
// the run, started or not, so new routers draw disjoint keys. It belongs
// to a Sim and is only touched from the run's tick loop.
type RouterDB struct {
	byAddr   map[string]*Router
	byPrefix map[string]*Router

	claimedAddr   map[string]*Router
	claimedPrefix map[string]*Router
}

// NewRouterDB creates an empty index.
func NewRouterDB() *RouterDB {
	return &RouterDB{
		byAddr:        make(map[string]*Router),
		byPrefix:      make(map[string]*Router),
		claimedAddr:   make(map[string]*Router),
		claimedPrefix: make(map[string]*Router),
	}
}

// claimAddr records addr for r. It reports false if another router
// already drew it.
func (db *RouterDB) claimAddr(addr string, r *Router) bool {
	if other, ok := db.claimedAddr[addr]; ok && other != r {
		return false
	}
	if other, ok := db.byAddr[addr]; ok && other != r {
		return false
	}
	db.claimedAddr[addr] = r
	return true
}

// claimPrefix is claimAddr for originated prefixes.
func (db *RouterDB) claimPrefix(prefix string, r *Router) bool {
	if other, ok := db.claimedPrefix[prefix]; ok && other != r {
		return false
	}
	if other, ok := db.byPrefix[prefix]; ok && other != r {
		return false
	}
	db.claimedPrefix[prefix] = r
	return true
}

// Register inserts every address and prefix key of r. Nothing is
// inserted if any key is already held by another router.
func (db *RouterDB) Register(r *Router) error {
	addrs := r.Addresses()
	prefixes := r.Networks()
	for _, a := range addrs {
		if other, ok := db.byAddr[a]; ok && other != r {
			return fmt.Errorf("%w: address %s of router %s held by %s", ErrDuplicateKey, a, r.ID(), other.ID())
		}
	}
	for _, p := range prefixes {
		if other, ok := db.byPrefix[p]; ok && other != r {
			return fmt.Errorf("%w: prefix %s of router %s held by %s", ErrDuplicateKey, p, r.ID(), other.ID())
		}
	}
	for _, a := range addrs {
		db.byAddr[a] = r
	}
	for _, p := range prefixes {
		db.byPrefix[p] = r
	}
	return nil
}

// Remove deletes exactly the keys r registered.
func (db *RouterDB) Remove(r *Router) {
	for _, a := range r.Addresses() {
		if db.byAddr[a] == r {
			delete(db.byAddr, a)
		}
	}
	for _, p := range r.Networks() {
		if db.byPrefix[p] == r {
			delete(db.byPrefix, p)
		}
	}
}

// ByAddr resolves an interface address.
func (db *RouterDB) ByAddr(addr string) (*Router, error) {
	r, ok := db.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: address %q", ErrNotFound, addr)
	}
	return r, nil
}

// ByPrefix resolves an originated prefix.
func (db *RouterDB) ByPrefix(prefix string) (*Router, error) {
	r, ok := db.byPrefix[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: prefix %q", ErrNotFound, prefix)
	}
	return r, nil
}

// Len returns the number of address and prefix keys.
func (db *RouterDB) Len() int {
	return len(db.byAddr) + len(db.byPrefix)
}
