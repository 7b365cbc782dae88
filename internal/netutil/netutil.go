package netutil

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"
)

const MaxUserAgentLength = 512

// NormalizeIP accepts a bare IP or host:port (IPv6 may be bracketed) and
// returns the IP without zone. ok is false when no IP could be parsed, in
// which case the trimmed input is returned.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	candidates := []string{raw}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		candidates = append(candidates, host)
	}
	if strings.HasPrefix(raw, "[") {
		if end := strings.LastIndex(raw, "]"); end > 0 {
			candidates = append(candidates, raw[1:end])
		}
	}
	for _, c := range candidates {
		if ap, err := netip.ParseAddrPort(c); err == nil {
			return ap.Addr().WithZone("").String(), true
		}
		if addr, err := netip.ParseAddr(c); err == nil {
			return addr.WithZone("").String(), true
		}
	}
	return raw, false
}

// TrustedProxies lists the peers whose forwarding headers are honored. The
// zero value trusts nobody.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDRs or bare IPs.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	out := make(TrustedProxies, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			addr, err := netip.ParseAddr(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func (t TrustedProxies) trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the peer address unless the peer is a trusted proxy. Behind
// a trusted proxy X-Forwarded-For is walked from the right and the first hop
// that is not itself trusted wins; X-Real-IP is the fallback.
func (t TrustedProxies) ClientIP(r *http.Request) string {
	peer, _ := NormalizeIP(r.RemoteAddr)
	if !t.trusts(peer) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip, ok := NormalizeIP(hops[i])
			if !ok {
				break
			}
			if !t.trusts(ip) || i == 0 {
				return ip
			}
		}
	}
	if ip, ok := NormalizeIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return peer
}

// TruncateUserAgent caps ua at MaxUserAgentLength runes.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	n := 0
	for i := range ua {
		if n == MaxUserAgentLength {
			return ua[:i]
		}
		n++
	}
	return ua
}

// MaskEmail keeps the first character of the local part and of the domain
// plus the top-level domain: alice@example.com becomes a***@e***.com.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" || domain == "" {
		return "***"
	}
	masked := firstRune(local) + "***@"
	if dot := strings.LastIndex(domain, "."); dot > 0 {
		return masked + firstRune(domain) + "***" + domain[dot:]
	}
	return masked + firstRune(domain) + "***"
}

func firstRune(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	return s[:size]
}
