package avurl

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

// ValidateHost accepts an IPv4 dotted quad, an IPv6 literal (without
// brackets) or an RFC 1123 hostname.
func ValidateHost(host string) error {
	switch {
	case looksLikeIPv4(host):
		if ip := net.ParseIP(host); ip == nil || ip.To4() == nil {
			return fmt.Errorf("bad IP: '%s'", host)
		}
	case strings.Contains(host, ":"):
		if ip := net.ParseIP(host); ip == nil || ip.To4() != nil {
			return fmt.Errorf("bad IPv6: '%s'", host)
		}
	default:
		if !validHostname(host) {
			return fmt.Errorf("bad hostname: '%s'", host)
		}
	}
	return nil
}

func looksLikeIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || strings.TrimFunc(p, unicode.IsDigit) != "" {
			return false
		}
	}
	return true
}

func validHostname(s string) bool {
	if len(s) > 253 {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if len(label) < 1 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
				return false
			}
		}
	}
	return true
}
