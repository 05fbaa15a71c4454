// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package provider

import (
	"sync"

	ibrerr "github.com/intelbridge/intelbridge/pkg/errors"
)

// Registry holds configured providers keyed by name, with one designated
// default.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. The first registered provider becomes the
// default until SetDefault overrides it.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	if r.defaultName == "" {
		r.defaultName = p.Name()
	}
}

// SetDefault marks the named provider as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return ibrerr.Errorf(ibrerr.CodeProviderNotFound, "provider %q is not registered", name)
	}
	r.defaultName = name
	return nil
}

// Get returns the named provider, or the default when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}
	if name == "" {
		return nil, ibrerr.New(ibrerr.CodeProviderNotFound, "no providers registered")
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, ibrerr.Errorf(ibrerr.CodeProviderNotFound, "provider %q is not registered", name)
	}
	return p, nil
}

// Close closes every registered provider, joining any errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return ibrerr.Join(errs...)
}
