package domain

import (
	"fmt"
	"strings"
)

// GeometryError marks a casing row that cannot describe real pipe. The row is skipped.
type GeometryError struct {
	Row    int
	Name   string
	Reason string
}

func (e GeometryError) Error() string {
	return fmt.Sprintf("geometry: casing row %d (%s) skipped: %s", e.Row, e.Name, e.Reason)
}

// MappingWarning covers unknown categories, unparsable values and missing inputs.
type MappingWarning struct {
	Index  int
	Field  string
	Reason string
}

func (e MappingWarning) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("mapping: event %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("mapping: event %d field %s: %s", e.Index, e.Field, e.Reason)
}

// HoleSizeUnavailable means no casing is present at the queried depth.
type HoleSizeUnavailable struct {
	Plug  int
	Depth float64
}

func (e HoleSizeUnavailable) Error() string {
	return fmt.Sprintf("hole size unavailable: plug %d at %.2f ft", e.Plug, e.Depth)
}

// VolumeUnavailable means neither sacks nor slurry volume allow a TOC calculation.
type VolumeUnavailable struct {
	Plug   int
	Reason string
}

func (e VolumeUnavailable) Error() string {
	return fmt.Sprintf("volume unavailable: plug %d: %s", e.Plug, e.Reason)
}

// CutUnappliedWarning means a cut depth matched no standing casing.
type CutUnappliedWarning struct {
	Depth float64
}

func (e CutUnappliedWarning) Error() string {
	return fmt.Sprintf("cut casing at %.2f ft matched no standing casing", e.Depth)
}

// OrphanEventWarning means an event needed a plug to attach to and none existed yet.
type OrphanEventWarning struct {
	Index    int
	Category Category
}

func (e OrphanEventWarning) Error() string {
	return fmt.Sprintf("event %d (%s) has no plug to attach to", e.Index, e.Category)
}

// BaselineInvalidError is the only fatal reconstruction failure.
type BaselineInvalidError struct {
	Missing []string
}

func (e *BaselineInvalidError) Error() string {
	return "baseline invalid: missing " + strings.Join(e.Missing, ", ")
}

// Diagnostics accumulates recoverable problems in the order they occur.
type Diagnostics struct {
	items []error
}

func (d *Diagnostics) Add(errs ...error) {
	for _, err := range errs {
		if err != nil {
			d.items = append(d.items, err)
		}
	}
}

func (d *Diagnostics) Len() int { return len(d.items) }

func (d *Diagnostics) Errors() []error {
	out := make([]error, len(d.items))
	copy(out, d.items)
	return out
}

// Strings renders the accumulated problems; never nil.
func (d *Diagnostics) Strings() []string {
	out := make([]string, 0, len(d.items))
	for _, err := range d.items {
		out = append(out, err.Error())
	}
	return out
}
