// File: internal/infra/providers/providers.go

// Package providers holds the payment provider adapters. Each adapter
// implements the provider port; the registry is the only piece the use-case
// layer sees.
package providers

import "telegram-subscription-bot/internal/domain/ports/adapter"

// Registry maps provider kinds to their adapters. Built once at startup;
// read-only afterwards.
type Registry struct {
	byKind map[adapter.ProviderKind]adapter.PaymentProvider
}

func NewRegistry(provs ...adapter.PaymentProvider) *Registry {
	r := &Registry{byKind: make(map[adapter.ProviderKind]adapter.PaymentProvider, len(provs))}
	for _, p := range provs {
		r.byKind[p.Kind()] = p
	}
	return r
}

func (r *Registry) Get(kind adapter.ProviderKind) (adapter.PaymentProvider, bool) {
	p, ok := r.byKind[kind]
	return p, ok
}

// Configured lists the kinds a user can actually pay with right now.
func (r *Registry) Configured() []adapter.ProviderKind {
	out := make([]adapter.ProviderKind, 0, len(r.byKind))
	for k, p := range r.byKind {
		if p.Configured() {
			out = append(out, k)
		}
	}
	return out
}
