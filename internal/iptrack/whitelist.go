// Package iptrack implements the IP allowlist described in §4.3 and, in
// full, in the original worker's ip_whitelist.rs: single IPs or CIDR
// ranges, IPv4 and IPv6, empty list means "allow all". Translated
// idiom-for-idiom into net/netip rather than copied, since the teacher
// has no CIDR-matching logic of its own to follow for this piece.
package iptrack

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/nodebridge/relayworker/internal/logging"
)

type entry struct {
	prefix netip.Prefix
	single bool
}

func (e entry) contains(ip netip.Addr) bool {
	if e.single {
		return e.prefix.Addr() == ip
	}
	return e.prefix.Contains(ip)
}

// Whitelist is a parsed, ready-to-check allowlist. The zero value is an
// empty whitelist, which allows every address.
type Whitelist struct {
	entries []entry
}

func parseOne(s string) (entry, error) {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return entry{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		max := 32
		if prefix.Addr().Is6() {
			max = 128
		}
		if prefix.Bits() > max {
			return entry{}, fmt.Errorf("prefix /%d too large for %s", prefix.Bits(), prefix.Addr())
		}
		return entry{prefix: prefix.Masked()}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return entry{}, fmt.Errorf("invalid IP %q: %w", s, err)
	}
	return entry{prefix: netip.PrefixFrom(addr, addr.BitLen()), single: true}, nil
}

// FromList parses a list of IP/CIDR strings (e.g. a TOML array). Invalid
// entries are logged and dropped rather than treated as a fatal error.
func FromList(items []string) Whitelist {
	var w Whitelist
	for _, raw := range items {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		e, err := parseOne(s)
		if err != nil {
			logging.Warn("iptrack.parse", "skip", "skipping invalid ip_whitelist entry", logging.Fields{"entry": s, "error": err.Error()})
			continue
		}
		w.entries = append(w.entries, e)
	}
	return w
}

// FromText parses a newline- or comma-separated blob, e.g. the
// ip_allowlist_text an AuthBackend.VerifyToken call returns.
func FromText(text string) Whitelist {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ',' || r == '\r' })
	return FromList(fields)
}

// IsEmpty reports whether the whitelist is disabled (allows everything).
func (w Whitelist) IsEmpty() bool { return len(w.entries) == 0 }

// Check reports whether ipAddress (a plain string, as extracted from
// X-Forwarded-For or the peer address) is allowed. An empty whitelist
// always allows.
func (w Whitelist) Check(ipAddress string) error {
	if w.IsEmpty() {
		return nil
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(ipAddress))
	if err != nil {
		return fmt.Errorf("invalid client IP %q: %w", ipAddress, err)
	}
	for _, e := range w.entries {
		if e.contains(ip) {
			return nil
		}
	}
	return fmt.Errorf("IP not in whitelist")
}
