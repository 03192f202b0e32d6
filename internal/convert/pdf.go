package convert

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// PDFConverter extracts PDF text with the Go library first, then falls
// back to pdftotext if enabled. Each page becomes a "## Page N" section.
type PDFConverter struct {
	FallbackPdftotext bool
}

func (c *PDFConverter) Convert(r io.Reader, filename string) (*Source, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "mdguard-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	text, err := extractPDFText(tmpPath)
	if err != nil && c.FallbackPdftotext {
		text, err = extractPdftotext(tmpPath)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	src := &Source{Title: baseTitle(filename), Format: "pdf"}
	src.Markdown = []byte(pagesToMarkdown(src.Title, strings.Split(text, "\f")))
	return src, nil
}

// pagesToMarkdown writes one section per non-empty page. Page text is
// emitted as paragraphs; lines that would open a heading are escaped.
func pagesToMarkdown(title string, pages []string) string {
	var b strings.Builder
	writeHeading(&b, 1, title)
	for i, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		writeHeading(&b, 2, fmt.Sprintf("Page %d", i+1))
		for _, line := range strings.Split(page, "\n") {
			line = strings.TrimRight(line, " \t\r")
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				line = `\` + strings.TrimSpace(line)
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\f")
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
