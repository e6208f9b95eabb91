package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry holds all registered providers. Registration happens during
// startup, before any lookup; lookups are read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Duplicate names are a programming error and are
// rejected.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if name == "" {
		return errors.New("provider name is empty")
	}
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderInfo is the describable surface of one provider, for listings.
type ProviderInfo struct {
	Name        string               `json:"name"`
	AuthService string               `json:"auth_service,omitempty"`
	Actions     []ActionDefinition   `json:"actions"`
	Reactions   []ReactionDefinition `json:"reactions"`
}

// Definitions returns the full capability catalogue, sorted by provider name.
func (r *Registry) Definitions() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		infos = append(infos, ProviderInfo{
			Name:        p.Name(),
			AuthService: p.AuthService(),
			Actions:     p.Actions(),
			Reactions:   p.Reactions(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// InitializeAll runs every provider's Initialize concurrently and waits for
// all of them. All failures are reported together.
func (r *Registry) InitializeAll(ctx context.Context) error {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make([]error, len(providers))
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			if err := p.Initialize(ctx); err != nil {
				errs[i] = fmt.Errorf("initialize %s: %w", p.Name(), err)
			}
		}(i, p)
	}
	wg.Wait()
	return errors.Join(errs...)
}
