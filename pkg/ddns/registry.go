package ddns

import (
	"fmt"
	"sync"
)

// ProviderSpec is the common, kind-agnostic shape a configuration source
// (env vars or a YAML file) produces for one IP source, DNS provider, or
// state store instance: a name, a type naming a registered factory, and a
// flat set of type-specific options. Each factory parses its own Options.
type ProviderSpec struct {
	Name    string
	Type    string
	Options map[string]string
}

// Factory builds an instance of T from a ProviderSpec. Factories return a
// KindConfig Error on any invalid option.
type Factory[T any] func(spec ProviderSpec) (T, error)

// Registry maps type names to factories and holds the named instances built
// from them. A single generic implementation backs the IP source, DNS
// provider, and state store registries: adding a new provider of any kind is
// a RegisterFactory call, never an edit to this type.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
	instances map[string]T
	order     []string
}

// NewRegistry creates an empty registry for instances of type T.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		factories: make(map[string]Factory[T]),
		instances: make(map[string]T),
	}
}

// RegisterFactory associates typeName with factory. Registering the same
// type name twice replaces the previous factory; call sites do this only at
// init time, before any CreateInstance call.
func (r *Registry[T]) RegisterFactory(typeName string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Types returns the registered factory type names, for config validation
// error messages.
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}

// CreateInstance builds an instance from spec using the factory registered
// for spec.Type and records it under spec.Name. It returns a KindConfig
// Error if the type is unknown, the name is already taken, or the factory
// itself rejects the spec.
func (r *Registry[T]) CreateInstance(spec ProviderSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[spec.Type]
	if !ok {
		return Newf(KindConfig, "unknown type %q for instance %q", spec.Type, spec.Name)
	}
	if _, exists := r.instances[spec.Name]; exists {
		return Newf(KindConfig, "instance %q already registered", spec.Name)
	}

	instance, err := factory(spec)
	if err != nil {
		return Wrap(KindConfig, fmt.Sprintf("constructing instance %q", spec.Name), err)
	}

	r.instances[spec.Name] = instance
	r.order = append(r.order, spec.Name)
	return nil
}

// Get returns the named instance, if one was created.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.instances[name]
	return v, ok
}

// All returns every instance in creation order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.instances[name])
	}
	return out
}

// IpSourceRegistry holds IpSource factories and instances.
type IpSourceRegistry = Registry[IpSource]

// DnsProviderRegistry holds DnsProvider factories and instances.
type DnsProviderRegistry = Registry[DnsProvider]

// StateStoreRegistry holds StateStore factories and instances.
type StateStoreRegistry = Registry[StateStore]

// NewIpSourceRegistry creates an empty IpSourceRegistry.
func NewIpSourceRegistry() *IpSourceRegistry { return NewRegistry[IpSource]() }

// NewDnsProviderRegistry creates an empty DnsProviderRegistry.
func NewDnsProviderRegistry() *DnsProviderRegistry { return NewRegistry[DnsProvider]() }

// NewStateStoreRegistry creates an empty StateStoreRegistry.
func NewStateStoreRegistry() *StateStoreRegistry { return NewRegistry[StateStore]() }
