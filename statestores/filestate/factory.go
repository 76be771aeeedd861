package filestate

import "gitlab.bluewillows.net/root/ddnsd/pkg/ddns"

// Factory returns a ddns.Factory for creating file-backed state store
// instances, for registration with a ddns.StateStoreRegistry under the
// type name "file". The spec's Options map supplies PATH, the file the
// store reads and writes with the atomic write protocol.
func Factory() ddns.Factory[ddns.StateStore] {
	return func(spec ddns.ProviderSpec) (ddns.StateStore, error) {
		path := spec.Options["PATH"]
		if path == "" {
			return nil, ddns.New(ddns.KindConfig, "filestate: PATH option is required")
		}
		return Open(path)
	}
}
