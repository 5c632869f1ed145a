// Package casing tracks which casing strings stand at any depth while cuts are applied.
package casing

import (
	"sort"
	"strings"

	"asbuilt/internal/domain"
)

// State is the casing program of one reconstruction run. It is not safe for concurrent use.
type State struct {
	strings []domain.CasingString
}

// Initialize builds state from baseline rows. Malformed rows are skipped and reported as
// GeometryError values; the survivors are ordered deepest shoe first.
func Initialize(rows []domain.BaselineCasingRow) (*State, []error) {
	var errs []error
	out := make([]domain.CasingString, 0, len(rows))
	for i, row := range rows {
		if reason := rowProblem(row); reason != "" {
			errs = append(errs, domain.GeometryError{Row: i, Name: row.Name, Reason: reason})
			continue
		}
		cs := domain.CasingString{
			Name:          row.Name,
			Role:          parseRole(row.Role),
			OuterDiameter: row.OD,
			Top:           row.Top,
			Bottom:        row.Bottom,
			Weight:        copyFloat(row.Weight),
			Grade:         row.Grade,
		}
		if row.HoleSize != nil && *row.HoleSize > 0 {
			cs.HoleDiameter = copyFloat(row.HoleSize)
		}
		out = append(out, cs)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bottom > out[j].Bottom })
	return &State{strings: out}, errs
}

func rowProblem(row domain.BaselineCasingRow) string {
	switch {
	case row.OD <= 0:
		return "non-positive outer diameter"
	case row.Top < 0:
		return "negative top depth"
	case row.Bottom-row.Top <= 0:
		return "non-positive span"
	}
	return ""
}

func parseRole(s string) domain.CasingRole {
	switch r := domain.CasingRole(strings.ToLower(strings.TrimSpace(s))); r {
	case domain.RoleSurface, domain.RoleIntermediate, domain.RoleProduction, domain.RoleLiner:
		return r
	}
	return domain.RoleOther
}

// Strings returns a snapshot of every string, cut or not, in state order.
func (s *State) Strings() []domain.CasingString {
	out := make([]domain.CasingString, len(s.strings))
	for i, cs := range s.strings {
		cs.HoleDiameter = copyFloat(cs.HoleDiameter)
		cs.CutTo = copyFloat(cs.CutTo)
		cs.Weight = copyFloat(cs.Weight)
		out[i] = cs
	}
	return out
}

// standing reports whether pipe still exists at depth: in range and not cut at or below it.
func standing(cs domain.CasingString, depth float64) bool {
	if depth < cs.Top || depth > cs.Bottom {
		return false
	}
	return cs.CutTo == nil || depth > *cs.CutTo
}

// present returns indexes of strings standing at depth, in state order.
func (s *State) present(depth float64) []int {
	var idx []int
	for i, cs := range s.strings {
		if standing(cs, depth) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (s *State) innermost(idx []int) int {
	best := idx[0]
	for _, i := range idx[1:] {
		if s.strings[i].OuterDiameter < s.strings[best].OuterDiameter {
			best = i
		}
	}
	return best
}

func (s *State) outermost(idx []int) int {
	best := idx[0]
	for _, i := range idx[1:] {
		if s.strings[i].OuterDiameter > s.strings[best].OuterDiameter {
			best = i
		}
	}
	return best
}

// ApplyCut cuts the innermost string still standing at depth. A cut that matches nothing
// returns CutUnappliedWarning and leaves state unchanged.
func (s *State) ApplyCut(depth float64) error {
	idx := s.present(depth)
	if len(idx) == 0 {
		return domain.CutUnappliedWarning{Depth: depth}
	}
	i := s.innermost(idx)
	d := depth
	s.strings[i].CutTo = &d
	return nil
}

// ActiveStringAt returns the innermost string standing at depth.
func (s *State) ActiveStringAt(depth float64) (domain.CasingString, bool) {
	idx := s.present(depth)
	if len(idx) == 0 {
		return domain.CasingString{}, false
	}
	return s.strings[s.innermost(idx)], true
}

// HoleSizeAt resolves the governing diameter for cement placed at depth.
func (s *State) HoleSizeAt(depth float64, mode domain.PlacementMode) (float64, bool) {
	idx := s.present(depth)
	if len(idx) == 0 {
		return 0, false
	}
	inner := s.strings[s.innermost(idx)]
	switch mode {
	case domain.ModeSpot:
		return inner.OuterDiameter, true
	case domain.ModeSqueeze:
		if len(idx) > 1 {
			return s.strings[s.outermost(idx)].OuterDiameter, true
		}
		if inner.HoleDiameter != nil {
			return *inner.HoleDiameter, true
		}
		return inner.OuterDiameter, true
	}
	if len(idx) == 1 {
		return inner.OuterDiameter, true
	}
	cands := make([]domain.CasingString, 0, len(idx))
	for _, i := range idx {
		cands = append(cands, s.strings[i])
	}
	if d, ok := shoeDiameter(cands, depth); ok {
		return d, true
	}
	return inner.OuterDiameter, true
}

// shoeDiameter scans candidates from largest to smallest diameter for a string whose shoe sits
// above depth and returns its recorded hole diameter, or its outer diameter when none was
// recorded. Present strings always reach depth, so HoleSizeAt currently never takes this path.
func shoeDiameter(cands []domain.CasingString, depth float64) (float64, bool) {
	byOD := append([]domain.CasingString(nil), cands...)
	sort.SliceStable(byOD, func(a, b int) bool {
		return byOD[a].OuterDiameter > byOD[b].OuterDiameter
	})
	for _, cs := range byOD {
		if cs.Bottom >= depth {
			continue
		}
		if cs.HoleDiameter != nil {
			return *cs.HoleDiameter, true
		}
		return cs.OuterDiameter, true
	}
	return 0, false
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
