// Package budget tracks per-document resource ceilings. Every increment is
// checked before it is committed; overflow is a *errs.SizeError.
package budget

import (
	"github.com/dgallion1/mdguard/internal/errs"
	"github.com/dgallion1/mdguard/internal/profile"
)

// Dimensions reported in SizeError.
const (
	DimContentBytes = "content_bytes"
	DimLines        = "lines"
	DimNodes        = "nodes"
	DimTableCells   = "table_cells"
	DimDataURIBytes = "data_uri_bytes"
	DimDataURICount = "data_uri_count"
	DimDataURITotal = "data_uri_total_bytes"
)

// Counter is a monotonically increasing bounded count.
type Counter struct {
	Dimension string       `json:"dimension"`
	Max       int          `json:"max"`
	Current   int          `json:"current"`
	Profile   profile.Name `json:"profile"`
}

// NewNodes returns the node budget for a profile.
func NewNodes(t profile.Thresholds) *Counter {
	return &Counter{Dimension: DimNodes, Max: t.MaxNodes, Profile: t.Profile}
}

// NewCells returns the table-cell budget for a profile.
func NewCells(t profile.Thresholds) *Counter {
	return &Counter{Dimension: DimTableCells, Max: t.MaxTableCells, Profile: t.Profile}
}

// Add increments the counter by n or fails without changing it.
func (c *Counter) Add(n int) error {
	if n < 0 {
		n = 0
	}
	next := c.Current + n
	if next > c.Max {
		return &errs.SizeError{Dimension: c.Dimension, Limit: c.Max, Actual: next, Profile: string(c.Profile)}
	}
	c.Current = next
	return nil
}

// Remaining returns how much can still be added.
func (c *Counter) Remaining() int { return c.Max - c.Current }

// Check validates a one-off measurement against a ceiling.
func Check(dim string, actual, limit int, p profile.Name) error {
	if actual > limit {
		return &errs.SizeError{Dimension: dim, Limit: limit, Actual: actual, Profile: string(p)}
	}
	return nil
}

// URIs tracks embedded data URIs: size of each, count, and total bytes.
type URIs struct {
	Profile    profile.Name `json:"profile"`
	MaxEach    int          `json:"max_each"`
	MaxCount   int          `json:"max_count"`
	MaxTotal   int          `json:"max_total"`
	Count      int          `json:"count"`
	TotalBytes int          `json:"total_bytes"`
}

// NewURIs returns the data-URI budget for a profile. The per-URI limit is
// read through the canonical accessor.
func NewURIs(t profile.Thresholds) (*URIs, error) {
	each, err := profile.MaxDataURIBytes(string(t.Profile))
	if err != nil {
		return nil, err
	}
	return &URIs{
		Profile:  t.Profile,
		MaxEach:  each,
		MaxCount: t.MaxDataURICount,
		MaxTotal: t.MaxDataURITotalBytes,
	}, nil
}

// CheckEach reports whether a single URI of size n fits the per-URI limit
// without recording it.
func (u *URIs) CheckEach(n int) error {
	return Check(DimDataURIBytes, n, u.MaxEach, u.Profile)
}

// Add records one data URI of n bytes. The per-URI, count and total
// limits are all checked before anything is committed.
func (u *URIs) Add(n int) error {
	if err := u.CheckEach(n); err != nil {
		return err
	}
	if err := Check(DimDataURICount, u.Count+1, u.MaxCount, u.Profile); err != nil {
		return err
	}
	if err := Check(DimDataURITotal, u.TotalBytes+n, u.MaxTotal, u.Profile); err != nil {
		return err
	}
	u.Count++
	u.TotalBytes += n
	return nil
}
