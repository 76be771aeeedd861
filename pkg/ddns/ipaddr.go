package ddns

import "net/netip"

// ValidateIP rejects addresses the core must discard with a warning rather
// than hand to a provider: the unspecified address, loopback, multicast, and
// (for IPv6) link-local unicast.
func ValidateIP(addr netip.Addr) error {
	if !addr.IsValid() {
		return New(KindConfig, "invalid IP address")
	}
	if addr.IsUnspecified() {
		return New(KindConfig, "IP address is unspecified")
	}
	if addr.IsLoopback() {
		return New(KindConfig, "IP address is loopback")
	}
	if addr.IsMulticast() {
		return New(KindConfig, "IP address is multicast")
	}
	if addr.Is6() && !addr.Is4In6() && addr.IsLinkLocalUnicast() {
		return New(KindConfig, "IPv6 address is link-local")
	}
	return nil
}
