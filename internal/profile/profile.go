// Package profile holds the security profiles and their thresholds.
//
// The table in this file is the only place numeric security limits are
// declared. Other packages read them through Lookup or the two canonical
// accessors MaxDataURIBytes and InjectionScanChars.
package profile

import (
	"slices"
	"strings"

	"github.com/dgallion1/mdguard/internal/errs"
)

// Name identifies a security profile.
type Name string

const (
	Strict     Name = "strict"
	Moderate   Name = "moderate"
	Permissive Name = "permissive"

	Default = Strict
)

// Markdown extensions a profile may enable in the tokenizer.
const (
	PluginTable         = "table"
	PluginStrikethrough = "strikethrough"
	PluginFootnote      = "footnote"
	PluginTaskList      = "tasklist"
	PluginLinkify       = "linkify"
)

// Thresholds is the fixed limit set for one profile.
type Thresholds struct {
	Profile Name

	MaxContentBytes int
	MaxLines        int
	MaxNodes        int
	MaxTableCells   int

	MaxDataURIBytes      int
	MaxDataURICount      int
	MaxDataURITotalBytes int

	InjectionScanChars  int
	MaxUnicodeScanRunes int

	allowedSchemes []string
	plugins        []string
}

// AllowedSchemes returns a copy of the link schemes the profile accepts.
func (t Thresholds) AllowedSchemes() []string { return slices.Clone(t.allowedSchemes) }

// SchemeAllowed reports whether scheme (lower-case, no colon) is accepted.
func (t Thresholds) SchemeAllowed(scheme string) bool {
	return slices.Contains(t.allowedSchemes, strings.ToLower(scheme))
}

// Plugins returns a copy of the enabled tokenizer extensions.
func (t Thresholds) Plugins() []string { return slices.Clone(t.plugins) }

// HasPlugin reports whether the named extension is enabled.
func (t Thresholds) HasPlugin(name string) bool { return slices.Contains(t.plugins, name) }

var table = map[Name]Thresholds{
	Strict: {
		Profile:              Strict,
		MaxContentBytes:      100 * 1024,
		MaxLines:             2000,
		MaxNodes:             50000,
		MaxTableCells:        10000,
		MaxDataURIBytes:      0,
		MaxDataURICount:      0,
		MaxDataURITotalBytes: 0,
		InjectionScanChars:   4096,
		MaxUnicodeScanRunes:  100000,
		allowedSchemes:       []string{"http", "https", "mailto"},
		plugins:              []string{PluginTable, PluginStrikethrough},
	},
	Moderate: {
		Profile:              Moderate,
		MaxContentBytes:      1024 * 1024,
		MaxLines:             10000,
		MaxNodes:             200000,
		MaxTableCells:        50000,
		MaxDataURIBytes:      10240,
		MaxDataURICount:      20,
		MaxDataURITotalBytes: 102400,
		InjectionScanChars:   2048,
		MaxUnicodeScanRunes:  500000,
		allowedSchemes:       []string{"http", "https", "mailto", "tel"},
		plugins:              []string{PluginTable, PluginStrikethrough, PluginFootnote, PluginTaskList},
	},
	Permissive: {
		Profile:              Permissive,
		MaxContentBytes:      10 * 1024 * 1024,
		MaxLines:             50000,
		MaxNodes:             1000000,
		MaxTableCells:        200000,
		MaxDataURIBytes:      102400,
		MaxDataURICount:      100,
		MaxDataURITotalBytes: 1024 * 1024,
		InjectionScanChars:   1024,
		MaxUnicodeScanRunes:  2000000,
		allowedSchemes:       []string{"http", "https", "mailto", "tel", "ftp"},
		plugins:              []string{PluginTable, PluginStrikethrough, PluginFootnote, PluginTaskList, PluginLinkify},
	},
}

// Names lists the known profiles from most to least restrictive.
func Names() []Name { return []Name{Strict, Moderate, Permissive} }

// Parse resolves a user-supplied profile name. The empty string selects
// Default; anything unrecognized is a ValidationError.
func Parse(s string) (Name, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	n := Name(s)
	if _, ok := table[n]; !ok {
		return "", errs.UnknownProfile(s)
	}
	return n, nil
}

// Lookup returns the thresholds for a profile.
func Lookup(n Name) (Thresholds, error) {
	t, ok := table[n]
	if !ok {
		return Thresholds{}, errs.UnknownProfile(string(n))
	}
	return t, nil
}

// MustLookup is Lookup for the package constants; it panics on unknown names.
func MustLookup(n Name) Thresholds {
	t, err := Lookup(n)
	if err != nil {
		panic(err)
	}
	return t
}

// MaxDataURIBytes is the canonical per-URI size accessor.
func MaxDataURIBytes(name string) (int, error) {
	t, err := Lookup(Name(name))
	if err != nil {
		return 0, err
	}
	return t.MaxDataURIBytes, nil
}

// InjectionScanChars is the canonical prompt-injection scan window accessor.
func InjectionScanChars(name string) (int, error) {
	t, err := Lookup(Name(name))
	if err != nil {
		return 0, err
	}
	return t.InjectionScanChars, nil
}
