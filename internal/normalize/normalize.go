// Package normalize turns raw document bytes into the canonical text every
// other component works on: decoded to UTF-8, LF line endings, NFC.
package normalize

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Decoded is the outcome of encoding detection.
type Decoded struct {
	Text       string  `json:"-"`
	Encoding   string  `json:"encoding"`
	Confidence float64 `json:"confidence"`
}

// Detection confidences per cascade stage.
const (
	confBOM        = 1.0
	confDeclared   = 0.8
	confSniffUTF8  = 0.9
	confUTF8Trial  = 0.85
	confFallback   = 0.4
	confByteMap    = 0.1
	minCoherence   = 0.6
	maxReplacement = 0.02
	maxControl     = 0.05
)

var boms = []struct {
	prefix []byte
	name   string
	enc    encoding.Encoding
}{
	{[]byte{0xEF, 0xBB, 0xBF}, "utf-8", unicode.UTF8BOM},
	{[]byte{0xFE, 0xFF}, "utf-16be", unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)},
	{[]byte{0xFF, 0xFE}, "utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)},
}

var fallbacks = []struct {
	name string
	enc  encoding.Encoding
}{
	{"windows-1252", charmap.Windows1252},
	{"iso-8859-15", charmap.ISO8859_15},
}

// Decode detects the encoding of raw and returns UTF-8 text. It never fails:
// the last stage maps every byte to the code point of the same value.
func Decode(raw []byte) Decoded {
	if len(raw) == 0 {
		return Decoded{Encoding: "utf-8", Confidence: confBOM}
	}

	for _, b := range boms {
		if bytes.HasPrefix(raw, b.prefix) {
			if s, ok := decodeWith(b.enc, raw); ok && sane(s) {
				return Decoded{Text: s, Encoding: b.name, Confidence: confBOM}
			}
		}
	}

	if enc, name, conf := sniff(raw); conf >= minCoherence {
		if s, ok := decodeWith(enc, raw); ok && sane(s) {
			return Decoded{Text: s, Encoding: name, Confidence: conf}
		}
	}

	if utf8.Valid(raw) {
		s := string(raw)
		if sane(s) {
			return Decoded{Text: s, Encoding: "utf-8", Confidence: confUTF8Trial}
		}
	}

	for _, fb := range fallbacks {
		if s, ok := decodeWith(fb.enc, raw); ok && sane(s) {
			return Decoded{Text: s, Encoding: fb.name, Confidence: confFallback}
		}
	}

	var sb strings.Builder
	sb.Grow(len(raw) * 2)
	for _, b := range raw {
		sb.WriteRune(rune(b))
	}
	return Decoded{Text: sb.String(), Encoding: "latin-1/raw", Confidence: confByteMap}
}

// sniff scores the statistical detector's answer. An uncertain
// windows-1252 guess is its default and carries no evidence.
func sniff(raw []byte) (encoding.Encoding, string, float64) {
	enc, name, certain := charset.DetermineEncoding(raw, "")
	switch {
	case enc == nil:
		return nil, "", 0
	case certain:
		return enc, name, confBOM
	case name == "utf-8":
		return enc, name, confSniffUTF8
	case name == "windows-1252":
		return enc, name, 0.3
	case utf8.Valid(raw):
		// A <meta charset> prescan hit never overrides valid UTF-8; the
		// tag may sit in a code sample.
		return nil, "", 0
	default:
		return enc, name, confDeclared
	}
}

func decodeWith(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(raw), enc.NewDecoder()))
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

// sane rejects decodings dominated by replacement or control characters.
func sane(s string) bool {
	var total, repl, ctrl int
	for _, r := range s {
		total++
		switch {
		case r == utf8.RuneError:
			repl++
		case r < 0x20 && r != '\t' && r != '\n' && r != '\r' && r != '\f':
			ctrl++
		case r >= 0x7F && r < 0xA0:
			ctrl++
		}
	}
	if total == 0 {
		return true
	}
	return float64(repl)/float64(total) <= maxReplacement &&
		float64(ctrl)/float64(total) <= maxControl
}

// LineEndings rewrites CRLF and bare CR to LF.
func LineEndings(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Text canonicalizes decoded text: LF line endings, then NFC. Idempotent.
func Text(s string) string {
	return norm.NFC.String(LineEndings(s))
}

// Bytes runs Decode followed by Text.
func Bytes(raw []byte) (Decoded, string) {
	d := Decode(raw)
	return d, Text(d.Text)
}

// Lines splits canonical text into lines. A trailing newline does not start
// an extra empty line.
func Lines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
