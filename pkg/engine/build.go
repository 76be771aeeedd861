package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// Subsystems is the three constructed, ready-to-use instances the wire-up
// glue hands to New. All three constructions are eager; BuildSubsystems
// runs them concurrently, waits for all three to finish, and returns the
// first error. A failing constructor does not cancel the other two.
type Subsystems struct {
	Source   ddns.IpSource
	Provider ddns.DnsProvider
	State    ddns.StateStore
}

// BuildSubsystems constructs the named IP source, DNS provider, and state
// store instance from the given registries and specs. New itself performs
// no I/O; this is the one place the daemon glue's construction step fans
// out, by design distinct from the pure Engine constructor.
func BuildSubsystems(ctx context.Context, sources *ddns.IpSourceRegistry, providers *ddns.DnsProviderRegistry, stores *ddns.StateStoreRegistry, sourceSpec, providerSpec, stateSpec ddns.ProviderSpec) (Subsystems, error) {
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error { return sources.CreateInstance(sourceSpec) })
	g.Go(func() error { return providers.CreateInstance(providerSpec) })
	g.Go(func() error { return stores.CreateInstance(stateSpec) })

	if err := g.Wait(); err != nil {
		return Subsystems{}, err
	}

	source, _ := sources.Get(sourceSpec.Name)
	provider, _ := providers.Get(providerSpec.Name)
	state, _ := stores.Get(stateSpec.Name)
	return Subsystems{Source: source, Provider: provider, State: state}, nil
}
