package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Registry resolves a provider by name.
type Registry struct {
	items   map[string]Provider
	defName string
}

// NewRegistry registers providers; defaultName is used when neither the
// chatbot nor its model names a provider.
func NewRegistry(defaultName string, providers ...Provider) *Registry {
	r := &Registry{items: make(map[string]Provider, len(providers)), defName: normalizeName(defaultName)}
	for _, p := range providers {
		if p != nil {
			r.items[normalizeName(p.Name())] = p
		}
	}
	return r
}

func normalizeName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Lookup returns the provider called name. An empty name is inferred from
// model, then falls back to the registry default.
func (r *Registry) Lookup(name, model string) (Provider, error) {
	key := normalizeName(name)
	if key == "" {
		key = CapabilitiesFor(model).Provider
	}
	if key == "" {
		key = r.defName
	}
	p, ok := r.items[key]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", key)
	}
	return p, nil
}

// Names lists registered providers in order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.items))
	for k := range r.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
