// Package convert turns supported source formats into Markdown so that
// every document reaches the parser through the same hardened path.
package convert

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/mdguard/internal/security"
)

// Source is a converted document.
type Source struct {
	Title    string
	Format   string
	Markdown []byte
	// Original holds pattern statistics of the pre-conversion input for
	// formats whose conversion can drop markup (HTML).
	Original *security.PatternStats
}

// Converter converts raw document bytes into Markdown.
type Converter interface {
	Convert(r io.Reader, filename string) (*Source, error)
}

// Options configures converters that need it.
type Options struct {
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the converter for a filename.
func ForFile(filename string, opts Options) (Converter, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return &MarkdownConverter{}, nil
	case ".txt":
		return &TextConverter{}, nil
	case ".csv":
		return &CSVConverter{}, nil
	case ".html", ".htm":
		return NewHTMLConverter(), nil
	case ".pdf":
		return &PDFConverter{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXConverter{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MarkdownConverter passes Markdown through untouched.
type MarkdownConverter struct{}

func (c *MarkdownConverter) Convert(r io.Reader, filename string) (*Source, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Source{Title: baseTitle(filename), Format: "markdown", Markdown: src}, nil
}

// writeHeading writes an ATX heading followed by a blank line.
func writeHeading(b *strings.Builder, level int, title string) {
	b.WriteString(strings.Repeat("#", level))
	b.WriteByte(' ')
	b.WriteString(strings.ReplaceAll(title, "\n", " "))
	b.WriteString("\n\n")
}
