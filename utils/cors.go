package utils

import (
	"net/netip"
	"net/url"
	"strings"
)

// IsAllowedOrigin reports whether an Origin header belongs to the local
// network. The guide surface is meant for DVR frontends and browsers on the
// same LAN, so localhost, private and link-local addresses, .local mDNS
// names and bare single-label hostnames pass; public origins do not.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()

	if addr, perr := netip.ParseAddr(host); perr == nil {
		// IsPrivate covers RFC1918 and IPv6 unique-local ranges.
		return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
	}

	switch {
	case host == "localhost":
		return true
	case strings.HasSuffix(host, ".local"):
		return true
	case !strings.Contains(host, "."):
		// Bare hostnames resolve through the LAN's own DNS.
		return true
	}
	return false
}
