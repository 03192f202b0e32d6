package collect

import (
	"log/slog"
	"strings"

	"github.com/dgallion1/mdguard/internal/budget"
	"github.com/dgallion1/mdguard/internal/profile"
	"github.com/dgallion1/mdguard/internal/security"
	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// Link is one hyperlink.
type Link struct {
	Href          string `json:"href"`
	Text          string `json:"text"`
	Title         string `json:"title,omitempty"`
	Line          int    `json:"line"`
	Scheme        string `json:"scheme,omitempty"`
	Autolink      bool   `json:"autolink,omitempty"`
	Allowed       bool   `json:"allowed"`
	Dangerous     bool   `json:"dangerous,omitempty"`
	PathTraversal bool   `json:"path_traversal,omitempty"`
}

// Links collects link_open tokens.
type Links struct {
	accept
	th profile.Thresholds
	c  capped[Link]
}

// NewLinks collects links, classifying each scheme against th.
func NewLinks(th profile.Thresholds) *Links {
	return &Links{th: th, c: newCapped[Link](MaxLinks)}
}

// Name is "links".
func (l *Links) Name() string { return "links" }

// Interest routes link_open tokens here.
func (l *Links) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.LinkOpen}}
}

// classifyURL annotates a destination against the profile. Relative
// references are allowed.
func classifyURL(th profile.Thresholds, href string) (scheme string, allowed, dangerous, traversal bool) {
	scheme = security.SchemeOf(href)
	dangerous = security.IsDangerousScheme(scheme)
	allowed = scheme == "" || th.SchemeAllowed(scheme)
	traversal = security.CheckPathTraversal(href)
	return scheme, allowed && !dangerous, dangerous, traversal
}

func (l *Links) OnToken(idx int, tok token.Token, w *warehouse.Warehouse) error {
	if l.c.full() {
		return nil
	}
	href := tok.Attr("href")
	scheme, allowed, dangerous, traversal := classifyURL(l.th, href)
	l.c.add(Link{
		Href:          href,
		Text:          strings.TrimSpace(w.TextBetween(idx, w.PairOf(idx))),
		Title:         tok.Attr("title"),
		Line:          tok.StartLine(),
		Scheme:        scheme,
		Autolink:      tok.Markup == "autolink",
		Allowed:       allowed,
		Dangerous:     dangerous,
		PathTraversal: traversal,
	})
	return nil
}

func (l *Links) Finalize(*warehouse.Warehouse) (any, error) { return l.c.result(), nil }

// Result returns the collected links.
func (l *Links) Result() Result[Link] { return l.c.result() }

// Image is one image reference.
type Image struct {
	Src           string            `json:"src"`
	Alt           string            `json:"alt"`
	Title         string            `json:"title,omitempty"`
	Line          int               `json:"line"`
	Scheme        string            `json:"scheme,omitempty"`
	Allowed       bool              `json:"allowed"`
	Dangerous     bool              `json:"dangerous,omitempty"`
	PathTraversal bool              `json:"path_traversal,omitempty"`
	DataURI       *security.DataURI `json:"data_uri,omitempty"`
	Blocked       bool              `json:"blocked,omitempty"`
	BlockReason   string            `json:"block_reason,omitempty"`
}

// Images collects image tokens and charges embedded data URIs against the
// document's URI budget.
type Images struct {
	accept
	th       profile.Thresholds
	uris     *budget.URIs
	log      *slog.Logger
	c        capped[Image]
	Warnings []string
}

// NewImages collects images. Data URIs are charged to uris.
func NewImages(th profile.Thresholds, uris *budget.URIs, log *slog.Logger) *Images {
	return &Images{th: th, uris: uris, log: log, c: newCapped[Image](MaxImages)}
}

// Name is "images".
func (im *Images) Name() string { return "images" }

// Interest routes image tokens here.
func (im *Images) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.Image}}
}

func (im *Images) OnToken(_ int, tok token.Token, _ *warehouse.Warehouse) error {
	if im.c.full() {
		return nil
	}
	src := tok.Attr("src")
	img := Image{
		Src:   src,
		Alt:   tok.Content,
		Title: tok.Attr("title"),
		Line:  tok.StartLine(),
	}
	img.Scheme, img.Allowed, img.Dangerous, img.PathTraversal = classifyURL(im.th, src)

	if d, ok := security.ParseDataURI(src); ok {
		img.DataURI = &d
		img.Dangerous = !d.ImageMediaType()
		img.Allowed = false
		if err := im.chargeDataURI(&img, d); err != nil {
			return err
		}
	}
	im.c.add(img)
	return nil
}

// chargeDataURI applies the URI budget. A URI over the per-URI limit is a
// hard error under strict and a blocked image otherwise; count and total
// overflows are hard errors under every profile.
func (im *Images) chargeDataURI(img *Image, d security.DataURI) error {
	if img.Dangerous {
		img.Blocked = true
		img.BlockReason = "data_uri_media_type"
		im.warn("image data URI with non-raster media type "+d.MediaType, img.Line)
		return nil
	}
	if im.uris == nil {
		return nil
	}
	if err := im.uris.CheckEach(d.Size); err != nil {
		if im.th.Profile == profile.Strict {
			return err
		}
		img.Blocked = true
		img.BlockReason = "data_uri_too_large"
		im.warn("image data URI exceeds per-URI limit", img.Line)
		return nil
	}
	if err := im.uris.Add(d.Size); err != nil {
		return err
	}
	img.Allowed = true
	return nil
}

func (im *Images) warn(msg string, line int) {
	im.Warnings = append(im.Warnings, msg)
	im.log.Warn(msg, "line", line)
}

func (im *Images) Finalize(*warehouse.Warehouse) (any, error) { return im.c.result(), nil }

// Result returns the collected images.
func (im *Images) Result() Result[Image] { return im.c.result() }
