package config

import (
	"fmt"
	"os"
	"strings"

	"gitlab.bluewillows.net/root/ddnsd/pkg/ddns"
)

// envOptions scans the process environment for every variable beginning
// with prefix and returns the suffixes (with the prefix stripped) as a flat
// options map, resolving any _FILE-suffixed key to its file's contents. A
// direct value and a _FILE value for the same option key resolve with the
// file taking precedence.
func envOptions(prefix string) (map[string]string, error) {
	opts := make(map[string]string)
	fileKeys := make(map[string]struct{})

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		key := strings.TrimPrefix(k, prefix)
		if strings.HasSuffix(key, "_FILE") {
			base := strings.TrimSuffix(key, "_FILE")
			content, err := os.ReadFile(v)
			if err != nil {
				return nil, ddns.Wrap(ddns.KindConfig, fmt.Sprintf("reading %s%s", prefix, key), err)
			}
			opts[base] = strings.TrimSpace(string(content))
			fileKeys[base] = struct{}{}
			continue
		}
		if _, hasFile := fileKeys[key]; hasFile {
			continue // file-backed value already resolved and takes precedence
		}
		opts[key] = v
	}
	return opts, nil
}
