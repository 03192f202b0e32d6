package convert

import (
	"bufio"
	"io"
	"strings"
)

// TextConverter handles plain text files. Paragraphs are separated by
// blank lines; lines that would start a Markdown heading are escaped.
type TextConverter struct{}

func (c *TextConverter) Convert(r io.Reader, filename string) (*Source, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			line = `\` + strings.TrimSpace(line)
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	md := strings.Join(paragraphs, "\n\n")
	if md != "" {
		md += "\n"
	}
	return &Source{Title: baseTitle(filename), Format: "text", Markdown: []byte(md)}, nil
}
