package security

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	drivePath    = regexp.MustCompile(`^[a-zA-Z]:[\\/]`)
	uncPath      = regexp.MustCompile(`^\\\\[^\\\s]+\\`)
	dotSegment   = regexp.MustCompile(`(^|[\\/])\.\.([\\/]|$)`)
)

// maxDecodeRounds bounds repeated percent-decoding of nested encodings.
const maxDecodeRounds = 3

// CheckPathTraversal reports whether s looks like a path or URL that
// escapes its base: dot-dot segments (also percent or double-percent
// encoded), drive-letter paths, UNC paths, or the file: scheme. Ordinary
// web, mail and phone links and prose containing "//" are not suspicious.
// A parse failure or panic is reported as suspicious.
func CheckPathTraversal(s string) (suspicious bool) {
	defer func() {
		if recover() != nil {
			suspicious = true
		}
	}()

	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	forms := []string{s}
	cur := s
	for range maxDecodeRounds {
		next := percentDecode(cur)
		if next == cur {
			break
		}
		forms = append(forms, next)
		cur = next
	}

	for _, f := range forms {
		if pathSuspicious(f) {
			return true
		}
	}

	if schemePrefix.MatchString(s) && !drivePath.MatchString(s) {
		u, err := url.Parse(s)
		if err != nil {
			return true
		}
		if strings.EqualFold(u.Scheme, "file") {
			return true
		}
		if dotSegment.MatchString(u.Path) {
			return true
		}
	}
	return false
}

func pathSuspicious(s string) bool {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "file:"):
		return true
	case drivePath.MatchString(s):
		return true
	case uncPath.MatchString(s):
		return true
	case dotSegment.MatchString(s):
		return true
	}
	return false
}

// percentDecode decodes %XX escapes and leaves malformed ones in place.
func percentDecode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
