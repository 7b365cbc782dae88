package netutil

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{name: "ipv4 with port", input: "192.0.2.4:8080", expected: "192.0.2.4", ok: true},
		{name: "ipv6 with port", input: "[2001:db8::1]:443", expected: "2001:db8::1", ok: true},
		{name: "ipv6 textual port", input: "[::1]:port", expected: "::1", ok: true},
		{name: "plain ipv4", input: "203.0.113.9", expected: "203.0.113.9", ok: true},
		{name: "plain ipv6", input: "2001:db8::5", expected: "2001:db8::5", ok: true},
		{name: "zone dropped", input: "fe80::1%eth0", expected: "fe80::1", ok: true},
		{name: "garbage", input: " not-an-ip ", expected: "not-an-ip", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizeIP(tc.input)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestClientIP_UntrustedPeerIgnoresForwardingHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	r.Header.Set("X-Real-IP", "198.51.100.2")

	var none TrustedProxies
	if got := none.ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("no proxies trusted: got %q", got)
	}
	other, _ := ParseTrustedProxies([]string{"192.168.0.0/16"})
	if got := other.ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("peer outside trusted range: got %q", got)
	}
}

func TestClientIP_TrustedProxy(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}

	cases := []struct {
		name     string
		xff      string
		realIP   string
		expected string
	}{
		{"peer only", "", "", "10.0.0.9"},
		{"x-real-ip", "", "198.51.100.2", "198.51.100.2"},
		{"single hop", "203.0.113.7", "", "203.0.113.7"},
		{"client-supplied prefix is skipped", "1.2.3.4, 203.0.113.7, 10.0.0.1", "", "203.0.113.7"},
		{"all hops trusted", "10.1.1.1, 192.0.2.1", "", "10.1.1.1"},
		{"garbage hop", "203.0.113.7, not-an-ip", "198.51.100.2", "198.51.100.2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "10.0.0.9:5555"
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := proxies.ClientIP(r); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Fatalf("invalid prefix accepted")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Fatalf("hostname accepted")
	}
	p, err := ParseTrustedProxies([]string{" ", "::1", "10.0.0.0/8"})
	if err != nil || len(p) != 2 {
		t.Fatalf("got %v, %v", p, err)
	}
}

func TestTruncateUserAgent(t *testing.T) {
	long := strings.Repeat("é", MaxUserAgentLength+10)
	truncated := TruncateUserAgent(long)
	if n := len([]rune(truncated)); n != MaxUserAgentLength {
		t.Fatalf("expected %d runes, got %d", MaxUserAgentLength, n)
	}
	if got := TruncateUserAgent("curl/8"); got != "curl/8" {
		t.Fatalf("short UA changed: %q", got)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com":  "a***@e***.com",
		"bob@mail.acme.test": "b***@m***.test",
		"root@localhost":     "r***@l***",
		"not-an-email":       "***",
		"@example.com":       "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
