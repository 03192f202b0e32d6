package security

import (
	"strings"
)

// SchemeOf returns the lower-cased URL scheme of u, or "" for relative
// references. Whitespace and control characters are dropped first because
// browsers ignore them inside a scheme ("java\tscript:").
func SchemeOf(u string) string {
	var b strings.Builder
	for _, r := range u {
		if r <= 0x20 || r == 0x7F {
			continue
		}
		if r == ':' {
			s := strings.ToLower(b.String())
			if validScheme(s) {
				return s
			}
			return ""
		}
		if r == '/' || r == '?' || r == '#' {
			return ""
		}
		b.WriteRune(r)
		if b.Len() > 32 {
			return ""
		}
	}
	return ""
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

var dangerousSchemes = map[string]bool{
	"javascript": true,
	"vbscript":   true,
	"data":       true,
	"file":       true,
}

// IsDangerousScheme reports whether a link with this scheme can execute
// code or reach the local filesystem.
func IsDangerousScheme(scheme string) bool { return dangerousSchemes[scheme] }

// DataURI describes an embedded data: URL.
type DataURI struct {
	MediaType string `json:"media_type"`
	Base64    bool   `json:"base64"`
	// Size is the length of the full URI text in bytes.
	Size int `json:"size"`
}

// ParseDataURI parses u when it is a data: URL.
func ParseDataURI(u string) (DataURI, bool) {
	trimmed := strings.TrimSpace(u)
	if SchemeOf(trimmed) != "data" {
		return DataURI{}, false
	}
	rest := trimmed[strings.IndexByte(trimmed, ':')+1:]
	meta, _, found := strings.Cut(rest, ",")
	if !found {
		return DataURI{}, false
	}
	d := DataURI{Size: len(trimmed), MediaType: "text/plain"}
	parts := strings.Split(meta, ";")
	if mt := strings.TrimSpace(parts[0]); mt != "" {
		d.MediaType = strings.ToLower(mt)
	}
	for _, p := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			d.Base64 = true
		}
	}
	return d, true
}

// ImageMediaType reports whether a data URI carries a raster image type
// that cannot execute script.
func (d DataURI) ImageMediaType() bool {
	switch d.MediaType {
	case "image/png", "image/jpeg", "image/jpg", "image/gif", "image/webp", "image/bmp", "image/avif":
		return true
	}
	return false
}
