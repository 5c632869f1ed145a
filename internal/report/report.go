// Package report renders assembled plugs and final casing state into the as-built record.
package report

import (
	"strings"

	"asbuilt/internal/casing"
	"asbuilt/internal/domain"
	"asbuilt/internal/plugs"
	"asbuilt/internal/volume"
)

const DefaultDateLayout = "01/02/2006"

type Formatter struct {
	Calc       volume.Calculator
	DatePrefix bool
	DateLayout string
}

// NewFormatter returns a Formatter with date-prefixed remarks.
func NewFormatter(calc volume.Calculator) Formatter {
	return Formatter{Calc: calc, DatePrefix: true, DateLayout: DefaultDateLayout}
}

type Input struct {
	Baseline    domain.Baseline
	State       *casing.State
	Assembly    plugs.Assembly
	DocumentRef string
}

// Finalize resolves hole size, calculated TOC and variance on each plug in place.
// Plugs already finalized are left alone.
func (f Formatter) Finalize(ps []domain.Plug, state *casing.State) []error {
	var diag domain.Diagnostics
	for i := range ps {
		p := &ps[i]
		if p.Finalized {
			continue
		}
		p.Finalized = true
		depth, ok := p.QueryDepth()
		if !ok {
			diag.Add(domain.VolumeUnavailable{Plug: p.Number, Reason: "no design depth"})
			continue
		}
		if hs, ok := state.HoleSizeAt(depth, p.Mode); ok {
			p.HoleSize = &hs
		} else {
			diag.Add(domain.HoleSizeUnavailable{Plug: p.Number, Depth: depth})
		}
		if p.CalculatedTOC == nil {
			toc, ok := f.Calc.CalculatedTOC(volume.Input{
				Bottom:       depth,
				Sacks:        p.Sacks,
				Class:        p.CementClass,
				HoleDiameter: p.HoleSize,
				SlurryBbl:    p.SlurryVolume,
			})
			if ok {
				p.CalculatedTOC = &toc
			} else {
				diag.Add(domain.VolumeUnavailable{Plug: p.Number, Reason: "no sacks or slurry volume"})
			}
		}
		p.Variance = volume.Variance(p.MeasuredTOC, p.CalculatedTOC)
	}
	return diag.Errors()
}

// Format builds the report. Plugs not yet finalized are finalized first.
func (f Formatter) Format(in Input) (domain.Report, []error) {
	var diag domain.Diagnostics
	diag.Add(f.Finalize(in.Assembly.Plugs, in.State)...)

	rep := domain.Report{
		Header:      make(map[string]string, len(in.Baseline.Header)),
		Plugs:       make([]domain.PlugRow, 0, len(in.Assembly.Plugs)),
		Casing:      casingRecords(in.State),
		DocumentRef: in.DocumentRef,
	}
	for k, v := range in.Baseline.Header {
		rep.Header[k] = v
	}
	for _, p := range in.Assembly.Plugs {
		rep.Plugs = append(rep.Plugs, f.plugRow(p))
	}
	perfs, errs := perforations(in.Baseline.Perforations, in.Assembly.Perforations)
	diag.Add(errs...)
	rep.Perforations = perfs
	rep.Remarks = f.remarks(in.Baseline.Remarks, in.Assembly.Narrative)
	return rep, diag.Errors()
}

func (f Formatter) plugRow(p domain.Plug) domain.PlugRow {
	row := domain.PlugRow{
		Number:        p.Number,
		Top:           p.Top,
		Bottom:        p.Bottom,
		Type:          string(p.Mode),
		CementClass:   p.CementClass,
		Sacks:         p.Sacks,
		SlurryVolume:  p.SlurryVolume,
		SlurryWeight:  f.Calc.SlurryWeight(p.CementClass),
		HoleSize:      p.HoleSize,
		MeasuredTOC:   p.MeasuredTOC,
		CalculatedTOC: p.CalculatedTOC,
		Variance:      p.Variance,
		Remarks:       plugRemarks(p),
	}
	if p.SlurryWeight != nil {
		row.SlurryWeight = *p.SlurryWeight
	}
	row.TOC = p.MeasuredTOC
	if row.TOC == nil {
		row.TOC = p.CalculatedTOC
	}
	return row
}

// plugRemarks joins the plug's own remark lines with the narratives of attached,
// non-administrative events. Creation narratives are already among the plug remarks.
func plugRemarks(p domain.Plug) string {
	lines := append([]string(nil), p.Remarks...)
	for _, ev := range p.Events {
		if ev.Category.CreatesPlug() || ev.Category == domain.CategoryApproval {
			continue
		}
		if ev.Narrative != "" {
			lines = append(lines, ev.Narrative)
		}
	}
	return strings.Join(lines, "\n")
}

func casingRecords(state *casing.State) []domain.CasingRecord {
	strs := state.Strings()
	out := make([]domain.CasingRecord, 0, len(strs))
	for _, cs := range strs {
		out = append(out, domain.CasingRecord{
			Name:     cs.Name,
			Role:     string(cs.Role),
			OD:       cs.OuterDiameter,
			Weight:   cs.Weight,
			Grade:    cs.Grade,
			HoleSize: cs.HoleDiameter,
			Top:      cs.Top,
			Bottom:   cs.Bottom,
			CutTo:    cs.CutTo,
		})
	}
	return out
}

func perforations(baseline []domain.Interval, reported []domain.NormalizedEvent) ([]domain.PerforationRow, []error) {
	var errs []error
	out := make([]domain.PerforationRow, 0, len(baseline)+len(reported))
	for _, iv := range baseline {
		out = append(out, domain.PerforationRow{Top: iv.Top, Bottom: iv.Bottom, Source: "baseline"})
	}
	for _, ev := range reported {
		top := ev.PerfDepth
		if top == nil {
			top = ev.DepthTop
		}
		if top == nil {
			errs = append(errs, domain.MappingWarning{Index: ev.Index, Field: "1", Reason: "perforation without depth"})
			continue
		}
		row := domain.PerforationRow{Top: *top, Bottom: *top, Source: "reported"}
		if ev.DepthBottom != nil {
			row.Bottom = *ev.DepthBottom
		}
		if ev.Dated {
			row.Date = ev.Date.Format("2006-01-02")
		}
		out = append(out, row)
	}
	return out, errs
}

func (f Formatter) remarks(baseline string, narrative []domain.NormalizedEvent) string {
	var lines []string
	if b := strings.TrimSpace(baseline); b != "" {
		lines = append(lines, b)
	}
	layout := f.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	for _, ev := range narrative {
		if ev.Narrative == "" {
			continue
		}
		line := ev.Narrative
		if f.DatePrefix && ev.Dated {
			line = ev.Date.Format(layout) + ": " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
