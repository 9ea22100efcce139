// Package registry holds the static catalog of QUIC implementations under test: a name, the
// container image to run, where the source lives, and whether it can act as client, server
// or both.
package registry

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Role declares which side of a connection an implementation can play.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
	RoleBoth   Role = "both"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleServer || r == RoleBoth
}

// CanServe returns true if an implementation with this role may be used as the server.
func (r Role) CanServe() bool { return r == RoleServer || r == RoleBoth }

// CanConnect returns true if an implementation with this role may be used as the client.
func (r Role) CanConnect() bool { return r == RoleClient || r == RoleBoth }

// Implementation is one entry of the registry. It is immutable once loaded.
type Implementation struct {
	Name  string
	Image string
	URL   string
	Role  Role
}

// Registry is the read-only set of implementations, in declaration order.
type Registry struct {
	impls  []Implementation
	byName map[string]int
}

// New validates the implementations and builds a Registry. Names must be unique.
func New(impls ...Implementation) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(impls))}
	for _, impl := range impls {
		if impl.Name == "" {
			return nil, fmt.Errorf("implementation with image %q has no name", impl.Image)
		}
		if _, dup := r.byName[impl.Name]; dup {
			return nil, fmt.Errorf("duplicate implementation name %q", impl.Name)
		}
		if impl.Image == "" {
			return nil, fmt.Errorf("implementation %q has no image", impl.Name)
		}
		if !impl.Role.Valid() {
			return nil, fmt.Errorf("implementation %q has invalid role %q (must be client, server or both)",
				impl.Name, impl.Role)
		}
		r.byName[impl.Name] = len(r.impls)
		r.impls = append(r.impls, impl)
	}
	return r, nil
}

// All returns every implementation in declaration order.
func (r *Registry) All() []Implementation {
	return append([]Implementation(nil), r.impls...)
}

func (r *Registry) Get(name string) (Implementation, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Implementation{}, false
	}
	return r.impls[i], true
}

// Servers returns the implementations that may act as server. If names is empty, all eligible
// implementations are returned in declaration order; otherwise the named ones in the order
// given, and an error for an unknown name or one whose role forbids serving.
func (r *Registry) Servers(names []string) ([]Implementation, error) {
	return r.selectByRole(names, RoleServer, Role.CanServe)
}

// Clients is the client-side counterpart of Servers.
func (r *Registry) Clients(names []string) ([]Implementation, error) {
	return r.selectByRole(names, RoleClient, Role.CanConnect)
}

func (r *Registry) selectByRole(names []string, want Role, eligible func(Role) bool) ([]Implementation, error) {
	var ret []Implementation
	if len(names) == 0 {
		for _, impl := range r.impls {
			if eligible(impl.Role) {
				ret = append(ret, impl)
			}
		}
		return ret, nil
	}
	for _, name := range names {
		impl, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown implementation %q (known: %s)", name, strings.Join(r.names(), ", "))
		}
		if !eligible(impl.Role) {
			return nil, fmt.Errorf("implementation %q has role %q and cannot act as %s", name, impl.Role, want)
		}
		ret = append(ret, impl)
	}
	return ret, nil
}

// WithImage returns a copy of the registry where the named implementation uses a different
// image. The receiver is not modified.
func (r *Registry) WithImage(name, image string) (*Registry, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("cannot replace image of unknown implementation %q", name)
	}
	impls := r.All()
	impls[i].Image = image
	return New(impls...)
}

func (r *Registry) names() []string {
	ret := make([]string, 0, len(r.impls))
	for _, impl := range r.impls {
		ret = append(ret, impl.Name)
	}
	slices.Sort(ret)
	return ret
}
