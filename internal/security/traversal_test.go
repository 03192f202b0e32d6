package security

import "testing"

func TestCheckPathTraversal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com", false},
		{"http://example.com/docs/guide.html?x=1#top", false},
		{"mailto:user@example.com", false},
		{"tel:+15551234567", false},
		{"see the // comment in main.go", false},
		{"//cdn.example.com/lib.js", false},
		{"docs/intro.md", false},
		{"..foo", false},
		{"", false},

		{"../etc/passwd", true},
		{"docs/../../secret", true},
		{`..\windows\system32`, true},
		{`C:\Windows\win.ini`, true},
		{"c:/boot.ini", true},
		{`\\server\share\file.txt`, true},
		{"file:///etc/passwd", true},
		{"FILE:///etc/passwd", true},
		{"%2e%2e%2fetc%2fpasswd", true},
		{"%2E%2E/etc/passwd", true},
		{"..%5cwindows", true},
		{"%252e%252e%252fetc%252fpasswd", true},
		{"https://example.com/a/%2e%2e/%2e%2e/etc/passwd", true},
		{"http://exa mple.com/", true},
	}
	for _, tt := range tests {
		if got := CheckPathTraversal(tt.in); got != tt.want {
			t.Errorf("CheckPathTraversal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPercentDecodeTolerant(t *testing.T) {
	if got := percentDecode("100%zz%2"); got != "100%zz%2" {
		t.Errorf("malformed escapes changed: %q", got)
	}
	if got := percentDecode("%41%42"); got != "AB" {
		t.Errorf("got %q", got)
	}
}
