package convert

import (
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/dgallion1/mdguard/internal/security"
)

// HTMLConverter converts HTML to Markdown. The original HTML is also
// pattern-scanned, since conversion drops scripts and handlers that the
// caller still needs to know about.
type HTMLConverter struct {
	conv *converter.Converter
}

func NewHTMLConverter() *HTMLConverter {
	return &HTMLConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (c *HTMLConverter) Convert(r io.Reader, filename string) (*Source, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	stats := security.ScanPatterns(string(raw))

	md, err := c.conv.ConvertString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("convert html: %w", err)
	}

	src := &Source{Title: baseTitle(filename), Format: "html", Original: &stats}
	if doc, err := html.Parse(strings.NewReader(string(raw))); err == nil {
		if title := findTitle(doc); title != "" {
			src.Title = title
		}
	}
	src.Markdown = []byte(strings.TrimSpace(md) + "\n")
	return src, nil
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
