// Package avurl splits and validates media URLs the way ffmpeg's
// av_url_split does, so a URL accepted here reaches the encoder unchanged.
package avurl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type URL struct {
	Scheme   string `json:"scheme"`
	Userinfo string `json:"userinfo"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Path     string `json:"path"` // includes query and fragment
}

// layout records the punctuation split consumed so join can rebuild the
// original string byte for byte.
type layout struct {
	colon    bool // after scheme
	slashes  int  // 0..2 after "scheme:"
	at       bool
	brackets bool
	portSep  bool
	junk     string // bytes between ']' and the path
}

// split breaks raw into components without validating them. A string without
// ':' is a plain path. Userinfo extends to the last '@' of the authority.
func split(raw string) (u URL, l layout) {
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		u.Path = raw
		return u, l
	}
	u.Scheme = raw[:colon]
	l.colon = true

	i := colon + 1
	for l.slashes < 2 && i < len(raw) && raw[i] == '/' {
		i++
		l.slashes++
	}

	end := i + strcspn(raw[i:], "/?#")
	u.Path = raw[end:]
	auth := raw[i:end]
	if auth == "" {
		return u, l
	}

	if at := strings.LastIndexByte(auth, '@'); at >= 0 {
		l.at = true
		u.Userinfo = auth[:at]
		auth = auth[at+1:]
	}

	if strings.HasPrefix(auth, "[") {
		if rb := strings.IndexByte(auth, ']'); rb >= 0 {
			l.brackets = true
			u.Host = auth[1:rb]
			rest := auth[rb+1:]
			switch {
			case strings.HasPrefix(rest, ":"):
				l.portSep = true
				u.Port = rest[1:]
			case rest != "":
				l.junk = rest
			}
			return u, l
		}
	}

	if c := strings.IndexByte(auth, ':'); c >= 0 {
		l.portSep = true
		u.Host = auth[:c]
		u.Port = auth[c+1:]
	} else {
		u.Host = auth
	}
	return u, l
}

// join is the inverse of split.
func join(u URL, l layout) string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	if l.colon {
		b.WriteByte(':')
	}
	b.WriteString(strings.Repeat("/", l.slashes))
	b.WriteString(u.Userinfo)
	if l.at {
		b.WriteByte('@')
	}
	if l.brackets {
		b.WriteString("[" + u.Host + "]")
	} else {
		b.WriteString(u.Host)
	}
	if l.portSep {
		b.WriteByte(':')
	}
	b.WriteString(u.Port)
	b.WriteString(l.junk)
	b.WriteString(u.Path)
	return b.String()
}

// Parse splits raw and validates host and port. Embedded credentials are
// rejected; they would end up in logs next to the encoder argv.
func Parse(raw string) (*URL, error) {
	u, l := split(raw)
	if join(u, l) != raw {
		return nil, errors.New("unable to parse URL")
	}
	if l.junk != "" {
		return nil, errors.New("invalid URL")
	}
	if l.at {
		return nil, errors.New("userinfo should not be embedded in the URL")
	}
	if u.Host != "" {
		if err := ValidateHost(u.Host); err != nil {
			return nil, err
		}
	}
	if l.portSep && !isPort(u.Port) {
		return nil, fmt.Errorf("bad port: '%s'", u.Port)
	}
	return &u, nil
}

// ingestSchemes are the push protocols the encoder is invoked with.
var ingestSchemes = []string{"rtmp", "rtmps", "srt"}

// ParseIngest accepts a full ingest target or base: a supported scheme and a
// host are required.
func ParseIngest(raw string) (*URL, error) {
	u, err := Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	supported := false
	for _, s := range ingestSchemes {
		if scheme == s {
			supported = true
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported scheme '%s' (want one of %s)", u.Scheme, strings.Join(ingestSchemes, ", "))
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// isPort reports whether s is a decimal port in 0..65535 without leading zeros.
func isPort(s string) bool {
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	p, err := strconv.Atoi(s)
	return err == nil && p >= 0 && p <= 65535 && !strings.HasPrefix(s, "+")
}

func strcspn(s, reject string) int {
	if i := strings.IndexAny(s, reject); i >= 0 {
		return i
	}
	return len(s)
}
