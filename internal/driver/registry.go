package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// registry maps lowercased names and aliases to drivers.
type registry struct {
	mu     sync.RWMutex
	byName map[string]Driver
}

var adapters = &registry{byName: make(map[string]Driver)}

func (r *registry) add(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range append([]string{d.Name()}, d.Aliases()...) {
		key := strings.ToLower(name)
		if prev, dup := r.byName[key]; dup {
			panic(fmt.Sprintf("driver: %q registered twice (already used by %s)", name, prev.Name()))
		}
		r.byName[key] = d
	}
}

func (r *registry) lookup(name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

func (r *registry) primaryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for key, d := range r.byName {
		if key == strings.ToLower(d.Name()) {
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Register makes a driver available under its name and aliases.
// Driver packages call it from init and it panics on a duplicate name.
func Register(d Driver) {
	adapters.add(d)
}

// Get returns the driver registered under name or alias, ignoring case.
func Get(name string) (Driver, error) {
	d, ok := adapters.lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown database adapter: %q (available: %v)", name, Available())
	}
	return d, nil
}

// Open resolves cfg.Adapter and connects with it.
func Open(ctx context.Context, cfg Config) (DB, error) {
	d, err := Get(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	return d.Open(ctx, cfg)
}

// Canonicalize maps an alias to its driver's name ("mariadb" -> "mysql").
// Unknown names come back unchanged.
func Canonicalize(name string) string {
	if d, ok := adapters.lookup(name); ok {
		return d.Name()
	}
	return name
}

// Available lists the registered driver names, sorted.
func Available() []string {
	return adapters.primaryNames()
}

func IsRegistered(name string) bool {
	_, ok := adapters.lookup(name)
	return ok
}
