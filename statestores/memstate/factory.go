package memstate

import "gitlab.bluewillows.net/root/ddnsd/pkg/ddns"

// Factory returns a ddns.Factory for creating in-memory state store
// instances, for registration with a ddns.StateStoreRegistry under the
// type name "memory". The spec's Options map is ignored; there is nothing
// to configure.
func Factory() ddns.Factory[ddns.StateStore] {
	return func(spec ddns.ProviderSpec) (ddns.StateStore, error) {
		return New(), nil
	}
}
