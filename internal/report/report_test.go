package report_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"asbuilt/internal/casing"
	"asbuilt/internal/domain"
	"asbuilt/internal/normalize"
	"asbuilt/internal/plugs"
	"asbuilt/internal/report"
	"asbuilt/internal/volume"
)

func f(v float64) *float64 { return &v }

func dated(i int, cat domain.Category, narrative string) domain.NormalizedEvent {
	return domain.NormalizedEvent{
		Index:     i,
		Category:  cat,
		Narrative: narrative,
		Date:      time.Date(2024, 2, 10+i, 0, 0, 0, 0, time.UTC),
		Dated:     true,
	}
}

func singleString(t *testing.T) *casing.State {
	t.Helper()
	st, _ := casing.Initialize([]domain.BaselineCasingRow{
		{Name: "production", Role: "production", OD: 5.5, Top: 0, Bottom: 8000, HoleSize: f(7.875), Weight: f(17), Grade: "J-55"},
	})
	return st
}

func TestFormatPlugRows(t *testing.T) {
	st := singleString(t)
	plug := dated(0, domain.CategorySetPlug, "Spot 50 sx class H")
	plug.DepthTop, plug.DepthBottom, plug.Sacks, plug.CementClass = f(4000), f(4100), f(50), "H"
	bp := dated(1, domain.CategorySetBridgePlug, "Set CIBP at 3900")
	approval := dated(2, domain.CategoryApproval, "District approved")
	tag := dated(3, domain.CategoryTagTOC, "Tagged TOC")
	tag.TaggedDepth = f(4050)
	bare := dated(4, domain.CategorySetPlug, "")

	asm, errs := plugs.Assemble([]domain.NormalizedEvent{plug, bp, approval, tag, bare}, st)
	if len(errs) != 0 {
		t.Fatalf("assemble: %v", errs)
	}
	fm := report.NewFormatter(volume.NewCalculator())
	rep, errs := fm.Format(report.Input{
		Baseline: domain.Baseline{Header: map[string]string{"api": "42-000-00000"}},
		State:    st,
		Assembly: asm,
	})
	if len(rep.Plugs) != 2 {
		t.Fatalf("expected 2 plug rows, got %d", len(rep.Plugs))
	}
	row := rep.Plugs[0]
	wantCalc := 4100 - 50*1.19/volume.AnnularCapacity(5.5)
	if row.CalculatedTOC == nil || math.Abs(*row.CalculatedTOC-wantCalc) > 1e-6 {
		t.Fatalf("calculated toc = %v want %v", row.CalculatedTOC, wantCalc)
	}
	if row.TOC == nil || *row.TOC != 4050 {
		t.Fatalf("preferred toc should be measured, got %v", row.TOC)
	}
	if row.Variance == nil || math.Abs(*row.Variance-(4050-wantCalc)) > 1e-6 {
		t.Fatalf("variance = %v", row.Variance)
	}
	if row.HoleSize == nil || *row.HoleSize != 5.5 || row.Type != "spot" {
		t.Fatalf("unexpected hole size/type %v %s", row.HoleSize, row.Type)
	}
	if row.SlurryWeight != 16.4 {
		t.Fatalf("slurry weight default = %v", row.SlurryWeight)
	}
	wantRemarks := "Spot 50 sx class H\nTagged TOC at 4050 ft\nSet CIBP at 3900\nTagged TOC"
	if row.Remarks != wantRemarks {
		t.Fatalf("remarks = %q want %q", row.Remarks, wantRemarks)
	}
	// The bare plug has no depth at all.
	if rep.Plugs[1].CalculatedTOC != nil || rep.Plugs[1].TOC != nil {
		t.Fatalf("expected no toc for depthless plug")
	}
	var vu domain.VolumeUnavailable
	if len(errs) != 1 || !errors.As(errs[0], &vu) || vu.Plug != 2 {
		t.Fatalf("expected one VolumeUnavailable for plug 2, got %v", errs)
	}
	if rep.Header["api"] != "42-000-00000" {
		t.Fatalf("header not passed through")
	}
}

func TestFormatHoleSizeUnavailable(t *testing.T) {
	st := singleString(t)
	deep := dated(0, domain.CategorySetPlug, "")
	deep.DepthBottom, deep.Sacks = f(9000), f(10)
	asm, _ := plugs.Assemble([]domain.NormalizedEvent{deep}, st)
	rep, errs := report.NewFormatter(volume.NewCalculator()).Format(report.Input{State: st, Assembly: asm})
	var hu domain.HoleSizeUnavailable
	if len(errs) != 1 || !errors.As(errs[0], &hu) {
		t.Fatalf("expected HoleSizeUnavailable, got %v", errs)
	}
	want := 9000 - 10*1.19/volume.AnnularCapacity(volume.DefaultHoleDiameter)
	if got := rep.Plugs[0].CalculatedTOC; got == nil || math.Abs(*got-want) > 1e-6 {
		t.Fatalf("calculated toc with default hole = %v want %v", got, want)
	}
}

func TestFormatCasingPerforationsAndRemarks(t *testing.T) {
	st := singleString(t)
	cut := dated(0, domain.CategoryCutCasing, "Cut casing at 2000")
	cut.CasingCut, cut.DepthTop = true, f(2000)
	perf := dated(1, domain.CategoryPerforate, "Perforated at 2500")
	perf.PerfDepth, perf.DepthTop = f(2500), f(2500)
	pressure := dated(2, domain.CategoryPressureUp, "Pressured to 500 psi")
	other := dated(3, domain.CategoryOther, "Crew change")

	asm, _ := plugs.Assemble([]domain.NormalizedEvent{cut, perf, pressure, other}, st)
	fm := report.NewFormatter(volume.NewCalculator())
	rep, _ := fm.Format(report.Input{
		Baseline: domain.Baseline{
			Perforations: []domain.Interval{{Top: 7000, Bottom: 7100}},
			Remarks:      "  Baseline remark.  ",
		},
		State:       st,
		Assembly:    asm,
		DocumentRef: "doc-1",
	})
	if len(rep.Casing) != 1 || rep.Casing[0].CutTo == nil || *rep.Casing[0].CutTo != 2000 {
		t.Fatalf("casing record missing cut: %+v", rep.Casing)
	}
	if rep.Casing[0].Weight == nil || *rep.Casing[0].Weight != 17 || rep.Casing[0].Grade != "J-55" {
		t.Fatalf("static casing fields not carried: %+v", rep.Casing[0])
	}
	if len(rep.Perforations) != 2 {
		t.Fatalf("expected baseline + reported perforations, got %+v", rep.Perforations)
	}
	if p := rep.Perforations[1]; p.Top != 2500 || p.Bottom != 2500 || p.Source != "reported" || p.Date != "2024-02-11" {
		t.Fatalf("unexpected reported perforation %+v", p)
	}
	want := strings.Join([]string{
		"Baseline remark.",
		"02/11/2024: Perforated at 2500",
		"02/12/2024: Pressured to 500 psi",
	}, "\n")
	if rep.Remarks != want {
		t.Fatalf("remarks = %q want %q", rep.Remarks, want)
	}
	if rep.DocumentRef != "doc-1" {
		t.Fatalf("document ref not carried")
	}

	fm.DatePrefix = false
	rep, _ = fm.Format(report.Input{State: st, Assembly: asm})
	if rep.Remarks != "Perforated at 2500\nPressured to 500 psi" {
		t.Fatalf("undated remarks = %q", rep.Remarks)
	}
}

func TestFormatReportedPerforationIntervals(t *testing.T) {
	n := normalize.New(nil)
	raws := []domain.RawFieldEvent{
		{Category: "perforate", Date: "2024-02-10", Values: map[string]string{"1": "4900", "2": "5000"}},
		{Category: "perforate", Date: "2024-02-11", Values: map[string]string{"1": "6100", "2": "6000"}},
		{Category: "perforate", Date: "2024-02-12", CasingCut: true, Values: map[string]string{"1": "3000"}},
	}
	var events []domain.NormalizedEvent
	for i, raw := range raws {
		ev, _ := n.Normalize(raw, i)
		events = append(events, ev)
	}
	st := singleString(t)
	asm, errs := plugs.Assemble(events, st)
	if len(errs) != 0 {
		t.Fatalf("unexpected warnings: %v", errs)
	}
	rep, _ := report.NewFormatter(volume.NewCalculator()).Format(report.Input{State: st, Assembly: asm})

	want := []domain.PerforationRow{
		{Top: 4900, Bottom: 5000, Source: "reported", Date: "2024-02-10"},
		{Top: 6000, Bottom: 6100, Source: "reported", Date: "2024-02-11"},
		{Top: 3000, Bottom: 3000, Source: "reported", Date: "2024-02-12"},
	}
	if len(rep.Perforations) != len(want) {
		t.Fatalf("perforations = %+v", rep.Perforations)
	}
	for i, p := range rep.Perforations {
		if p != want[i] {
			t.Fatalf("perforation %d = %+v want %+v", i, p, want[i])
		}
	}
	if len(rep.Casing) != 1 || rep.Casing[0].CutTo == nil || *rep.Casing[0].CutTo != 3000 {
		t.Fatalf("casing cut flag not applied: %+v", rep.Casing)
	}
}
