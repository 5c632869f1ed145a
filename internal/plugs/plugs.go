// Package plugs groups normalized events into logical plugging operations.
package plugs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"asbuilt/internal/casing"
	"asbuilt/internal/domain"
)

// squeezedMarker in a set-plug narrative means cement went behind pipe.
const squeezedMarker = "squeezed"

// Assembly is the output of one scan over the event stream.
type Assembly struct {
	Plugs        []domain.Plug
	Perforations []domain.NormalizedEvent
	// Narrative holds the events that feed the report's remarks, in processing order.
	Narrative []domain.NormalizedEvent
}

// Assembler is the scanning state machine. lastTouched indexes plugs, -1 when no plug
// has been created yet; only creation events move it.
type Assembler struct {
	state       *casing.State
	plugs       []domain.Plug
	byNumber    map[int]int
	lastTouched int
	maxNumber   int
	perfs       []domain.NormalizedEvent
	narrative   []domain.NormalizedEvent
	diag        domain.Diagnostics
}

// NewAssembler returns an Assembler that applies cuts to state.
func NewAssembler(state *casing.State) *Assembler {
	return &Assembler{state: state, byNumber: map[int]int{}, lastTouched: -1}
}

// Assemble orders events chronologically and runs them through a fresh Assembler.
func Assemble(events []domain.NormalizedEvent, state *casing.State) (Assembly, []error) {
	a := NewAssembler(state)
	ordered, errs := Order(events)
	a.diag.Add(errs...)
	for _, ev := range ordered {
		a.Apply(ev)
	}
	return a.Result(), a.diag.Errors()
}

// Order sorts events by date, then input position. An undated event takes the date of the
// event before it in input order so it stays next to its neighbours.
func Order(events []domain.NormalizedEvent) ([]domain.NormalizedEvent, []error) {
	var errs []error
	keys := make([]time.Time, len(events))
	var prev time.Time
	havePrev := false
	for i, ev := range events {
		switch {
		case ev.Dated:
			keys[i], prev, havePrev = ev.Date, ev.Date, true
		case havePrev:
			keys[i] = prev
			errs = append(errs, domain.MappingWarning{Index: ev.Index, Field: "date", Reason: "missing date; ordered with previous event"})
		default:
			errs = append(errs, domain.MappingWarning{Index: ev.Index, Field: "date", Reason: "missing date; ordered first"})
		}
	}
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if !ka.Equal(kb) {
			return ka.Before(kb)
		}
		return events[idx[a]].Index < events[idx[b]].Index
	})
	out := make([]domain.NormalizedEvent, len(events))
	for i, j := range idx {
		out[i] = events[j]
	}
	return out, errs
}

// Apply feeds one event through the state machine.
func (a *Assembler) Apply(ev domain.NormalizedEvent) {
	if ev.CasingCut {
		a.cut(ev)
	}
	switch ev.Category {
	case domain.CategoryCutCasing:
		// handled above
	case domain.CategorySetPlug, domain.CategorySqueeze:
		a.create(ev)
	case domain.CategoryTagTOC:
		a.tagTOC(ev)
	case domain.CategoryTagBridgePlug:
		p := a.last()
		if p == nil {
			a.diag.Add(domain.OrphanEventWarning{Index: ev.Index, Category: ev.Category})
			break
		}
		p.Events = append(p.Events, ev)
		if ev.TaggedDepth != nil {
			p.Remarks = append(p.Remarks, "Tagged bridge plug at "+FormatFeet(*ev.TaggedDepth)+" ft")
		}
	case domain.CategoryPerforate:
		a.perfs = append(a.perfs, ev)
	case domain.CategorySetBridgePlug, domain.CategoryBrokeCirculation, domain.CategoryPressureUp, domain.CategoryApproval:
		if p := a.last(); p != nil {
			p.Events = append(p.Events, ev)
		}
	}
	if feedsNarrative(ev.Category) {
		a.narrative = append(a.narrative, ev)
	}
}

func feedsNarrative(c domain.Category) bool {
	switch c {
	case domain.CategorySetBridgePlug, domain.CategoryPerforate, domain.CategorySqueeze,
		domain.CategoryPressureUp, domain.CategoryBrokeCirculation, domain.CategoryApproval,
		domain.CategoryTagTOC, domain.CategoryTagBridgePlug:
		return true
	}
	return false
}

func (a *Assembler) cut(ev domain.NormalizedEvent) {
	depth := firstDepth(ev.DepthTop, ev.DepthBottom, ev.PerfDepth)
	if depth == nil {
		a.diag.Add(domain.MappingWarning{Index: ev.Index, Field: "1", Reason: "casing cut without depth"})
		return
	}
	a.diag.Add(a.state.ApplyCut(*depth))
}

func firstDepth(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func (a *Assembler) last() *domain.Plug {
	if a.lastTouched < 0 {
		return nil
	}
	return &a.plugs[a.lastTouched]
}

// Classify decides spot or squeeze for a plug-creation event.
func Classify(ev domain.NormalizedEvent) domain.PlacementMode {
	squeezed := strings.Contains(strings.ToLower(ev.Narrative), squeezedMarker)
	switch {
	case ev.Category == domain.CategorySqueeze || (ev.Category == domain.CategorySetPlug && ev.SurfaceIntent):
		return domain.ModeSqueeze
	case ev.Category == domain.CategorySetPlug && squeezed:
		return domain.ModeSqueeze
	}
	return domain.ModeSpot
}

func (a *Assembler) create(ev domain.NormalizedEvent) {
	num := a.maxNumber + 1
	if ev.PlugNumber != nil {
		num = *ev.PlugNumber
	}
	if num > a.maxNumber {
		a.maxNumber = num
	}
	if i, ok := a.byNumber[num]; ok {
		p := &a.plugs[i]
		p.Events = append(p.Events, ev)
		if ev.Narrative != "" {
			p.Remarks = append(p.Remarks, ev.Narrative)
		}
		fillAbsent(p, ev)
		a.lastTouched = i
		return
	}
	p := domain.Plug{
		Number:       num,
		Top:          ev.DepthTop,
		Bottom:       ev.DepthBottom,
		Mode:         Classify(ev),
		CementClass:  ev.CementClass,
		Sacks:        ev.Sacks,
		SlurryVolume: ev.SlurryVolume,
		SlurryWeight: ev.SlurryWeight,
		Events:       []domain.NormalizedEvent{ev},
	}
	if ev.Narrative != "" {
		p.Remarks = append(p.Remarks, ev.Narrative)
	}
	a.plugs = append(a.plugs, p)
	a.byNumber[num] = len(a.plugs) - 1
	a.lastTouched = len(a.plugs) - 1
}

// fillAbsent copies fields a later same-numbered event supplies that the plug still lacks.
func fillAbsent(p *domain.Plug, ev domain.NormalizedEvent) {
	if p.Top == nil {
		p.Top = ev.DepthTop
	}
	if p.Bottom == nil {
		p.Bottom = ev.DepthBottom
	}
	if p.CementClass == "" {
		p.CementClass = ev.CementClass
	}
	if p.Sacks == nil {
		p.Sacks = ev.Sacks
	}
	if p.SlurryVolume == nil {
		p.SlurryVolume = ev.SlurryVolume
	}
	if p.SlurryWeight == nil {
		p.SlurryWeight = ev.SlurryWeight
	}
}

func (a *Assembler) tagTOC(ev domain.NormalizedEvent) {
	target := a.lastTouched
	if ev.PlugNumber != nil {
		if i, ok := a.byNumber[*ev.PlugNumber]; ok {
			target = i
		}
	}
	if target < 0 {
		a.diag.Add(domain.OrphanEventWarning{Index: ev.Index, Category: ev.Category})
		return
	}
	p := &a.plugs[target]
	p.Events = append(p.Events, ev)
	if ev.TaggedDepth == nil {
		a.diag.Add(domain.MappingWarning{Index: ev.Index, Field: "1", Reason: "tag without depth"})
		return
	}
	d := *ev.TaggedDepth
	p.MeasuredTOC = &d
	p.Remarks = append(p.Remarks, "Tagged TOC at "+FormatFeet(d)+" ft")
}

// Result returns the plugs in first-creation order along with the side collections.
func (a *Assembler) Result() Assembly {
	out := Assembly{
		Plugs:        make([]domain.Plug, len(a.plugs)),
		Perforations: append([]domain.NormalizedEvent(nil), a.perfs...),
		Narrative:    append([]domain.NormalizedEvent(nil), a.narrative...),
	}
	copy(out.Plugs, a.plugs)
	return out
}

// FormatFeet renders a depth without trailing zeros.
func FormatFeet(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (a Assembly) String() string {
	return fmt.Sprintf("%d plugs, %d perforations, %d narrative events", len(a.Plugs), len(a.Perforations), len(a.Narrative))
}
