// Package normalize turns template-keyed field report entries into typed events.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"asbuilt/internal/domain"
)

type template struct {
	category      domain.Category
	surfaceIntent bool
}

var templates = map[string]template{
	"set_plug":            {category: domain.CategorySetPlug},
	"set_cement_plug":     {category: domain.CategorySetPlug},
	"cement_plug":         {category: domain.CategorySetPlug},
	"spot_plug":           {category: domain.CategorySetPlug},
	"set_surface_plug":    {category: domain.CategorySetPlug, surfaceIntent: true},
	"surface_plug":        {category: domain.CategorySetPlug, surfaceIntent: true},
	"squeeze":             {category: domain.CategorySqueeze},
	"squeeze_cement":      {category: domain.CategorySqueeze},
	"perf_and_squeeze":    {category: domain.CategorySqueeze},
	"perforate":           {category: domain.CategoryPerforate},
	"perf":                {category: domain.CategoryPerforate},
	"set_cibp":            {category: domain.CategorySetBridgePlug},
	"set_bridge_plug":     {category: domain.CategorySetBridgePlug},
	"set_retainer":        {category: domain.CategorySetBridgePlug},
	"cut_casing":          {category: domain.CategoryCutCasing},
	"cut_and_pull":        {category: domain.CategoryCutCasing},
	"tag_toc":             {category: domain.CategoryTagTOC},
	"tag_top_of_cement":   {category: domain.CategoryTagTOC},
	"tag_cibp":            {category: domain.CategoryTagBridgePlug},
	"tag_bridge_plug":     {category: domain.CategoryTagBridgePlug},
	"broke_circulation":   {category: domain.CategoryBrokeCirculation},
	"break_circulation":   {category: domain.CategoryBrokeCirculation},
	"pressure_up":         {category: domain.CategoryPressureUp},
	"pressure_test":       {category: domain.CategoryPressureUp},
	"approval":            {category: domain.CategoryApproval},
	"regulatory_approval": {category: domain.CategoryApproval},
}

type narrativeRule struct {
	pattern  *regexp.Regexp
	category domain.Category
}

// Order matters: tags and cuts mention plugs and casing too.
var narrativeRules = []narrativeRule{
	{regexp.MustCompile(`(?i)tag.*(toc|top of cement)`), domain.CategoryTagTOC},
	{regexp.MustCompile(`(?i)tag.*(cibp|bridge plug)`), domain.CategoryTagBridgePlug},
	{regexp.MustCompile(`(?i)cut.*(casing|csg)`), domain.CategoryCutCasing},
	{regexp.MustCompile(`(?i)squeez`), domain.CategorySqueeze},
	{regexp.MustCompile(`(?i)perforat`), domain.CategoryPerforate},
	{regexp.MustCompile(`(?i)(cibp|bridge plug)`), domain.CategorySetBridgePlug},
	{regexp.MustCompile(`(?i)circulation`), domain.CategoryBrokeCirculation},
	{regexp.MustCompile(`(?i)pressure`), domain.CategoryPressureUp},
	{regexp.MustCompile(`(?i)approv`), domain.CategoryApproval},
	{regexp.MustCompile(`(?i)plug`), domain.CategorySetPlug},
}

var requiredFields = map[domain.Category]int{
	domain.CategorySetPlug:       3,
	domain.CategorySqueeze:       3,
	domain.CategoryPerforate:     1,
	domain.CategorySetBridgePlug: 1,
	domain.CategoryCutCasing:     1,
	domain.CategoryTagTOC:        1,
	domain.CategoryTagBridgePlug: 1,
	domain.CategoryPressureUp:    1,
}

// positions is the highest positional field each category reads.
var positions = map[domain.Category]int{
	domain.CategorySetPlug:       7,
	domain.CategorySqueeze:       7,
	domain.CategoryPerforate:     2,
	domain.CategorySetBridgePlug: 1,
	domain.CategoryCutCasing:     1,
	domain.CategoryTagTOC:        2,
	domain.CategoryTagBridgePlug: 1,
	domain.CategoryPressureUp:    1,
}

// Normalizer resolves categories using the built-in template table plus configured aliases.
type Normalizer struct {
	aliases map[string]template
}

// New returns a Normalizer. Aliases map extra template identifiers onto categories; an alias
// whose category is not recognized is ignored.
func New(aliases map[string]string) Normalizer {
	n := Normalizer{aliases: map[string]template{}}
	for id, cat := range aliases {
		c := domain.Category(templateKey(cat))
		if !c.IsValid() || c == domain.CategoryOther {
			continue
		}
		n.aliases[templateKey(id)] = template{category: c}
	}
	return n
}

func templateKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// ResolveCategory maps a template identifier, then the narrative, onto a category. Unresolved
// input yields CategoryOther and false.
func (n Normalizer) ResolveCategory(categoryID, narrative string) (domain.Category, bool) {
	tpl, ok := n.resolve(categoryID, narrative)
	return tpl.category, ok
}

func (n Normalizer) resolve(categoryID, narrative string) (template, bool) {
	key := templateKey(categoryID)
	if key != "" {
		if t, found := templates[key]; found {
			return t, true
		}
		if t, found := n.aliases[key]; found {
			return t, true
		}
	}
	for _, rule := range narrativeRules {
		if rule.pattern.MatchString(narrative) {
			t := template{category: rule.category}
			if t.category == domain.CategorySetPlug && strings.Contains(strings.ToLower(narrative), "surface") {
				t.surfaceIntent = true
			}
			return t, true
		}
	}
	return template{category: domain.CategoryOther}, false
}

// Normalize projects one raw event. Problems never abort normalization; they come back as
// MappingWarning values alongside an event with the affected fields left absent.
func (n Normalizer) Normalize(raw domain.RawFieldEvent, index int) (domain.NormalizedEvent, []error) {
	var warns []error
	warn := func(field, format string, args ...any) {
		warns = append(warns, domain.MappingWarning{Index: index, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	tpl, ok := n.resolve(raw.Category, raw.Narrative)
	ev := domain.NormalizedEvent{
		Index:         index,
		Category:      tpl.category,
		SurfaceIntent: tpl.surfaceIntent,
		Narrative:     strings.TrimSpace(raw.Narrative),
		WorkOrder:     raw.WorkOrder,
		ParentRef:     raw.ParentRef,
		StartTime:     ParseClock(raw.StartTime),
		EndTime:       ParseClock(raw.EndTime),
	}
	if !ok {
		ev.RawCategory = raw.Category
		warn("", "unknown category %q", raw.Category)
	}
	if d, ok := ParseDate(raw.Date); ok {
		ev.Date, ev.Dated = d, true
	} else if strings.TrimSpace(raw.Date) != "" {
		warn("date", "unparsable date %q", raw.Date)
	}

	number := func(pos string) *float64 {
		s := lookup(raw.Values, pos)
		if s == "" {
			return nil
		}
		v, ok := ParseNumber(s)
		if !ok {
			warn(pos, "unparsable number %q", s)
			return nil
		}
		return &v
	}
	depth := func(pos string) *float64 {
		v := number(pos)
		if v != nil && *v < 0 {
			warn(pos, "negative depth %v", *v)
			return nil
		}
		return v
	}
	plug := func(pos string) *int {
		v := number(pos)
		if v == nil {
			return nil
		}
		num, ok := plugNumber(*v)
		if !ok {
			warn(pos, "invalid plug number %v", *v)
		}
		return num
	}

	switch ev.Category {
	case domain.CategorySetPlug, domain.CategorySqueeze:
		ev.PlugNumber = plug("1")
		ev.Sacks = nonNegative(number("2"))
		ev.CementClass = ParseCementClass(lookup(raw.Values, "3"))
		ev.DepthBottom = depth("4")
		ev.DepthTop = depth("5")
		ev.SlurryVolume = nonNegative(number("6"))
		ev.SlurryWeight = nonNegative(number("7"))
	case domain.CategoryPerforate:
		ev.PerfDepth = depth("1")
		ev.DepthTop = ev.PerfDepth
		ev.DepthBottom = depth("2")
	case domain.CategorySetBridgePlug:
		ev.DepthTop = depth("1")
		ev.DepthBottom = ev.DepthTop
	case domain.CategoryCutCasing:
		ev.DepthTop = depth("1")
	case domain.CategoryTagTOC:
		ev.TaggedDepth = depth("1")
		ev.PlugNumber = plug("2")
	case domain.CategoryTagBridgePlug:
		ev.TaggedDepth = depth("1")
	case domain.CategoryPressureUp:
		ev.Pressure = number("1")
	}

	if ev.DepthTop != nil && ev.DepthBottom != nil && *ev.DepthTop > *ev.DepthBottom {
		warn("", "depth top %v below bottom %v; swapped", *ev.DepthTop, *ev.DepthBottom)
		ev.DepthTop, ev.DepthBottom = ev.DepthBottom, ev.DepthTop
		if ev.Category == domain.CategoryPerforate {
			ev.PerfDepth = ev.DepthTop
		}
	}
	ev.CasingCut = raw.CasingCut || ev.Category == domain.CategoryCutCasing
	if valid, reason := ValidateInputs(ev.Category, raw.Values); !valid {
		warn("", "%s", reason)
	}
	return ev, warns
}

// ValidateInputs checks that a category received its minimum number of filled positional fields.
// Only the positions the category reads are counted.
func ValidateInputs(category domain.Category, values map[string]string) (bool, string) {
	need := requiredFields[category]
	have := 0
	for i := 1; i <= positions[category]; i++ {
		if lookup(values, strconv.Itoa(i)) != "" {
			have++
		}
	}
	if have < need {
		return false, fmt.Sprintf("%s requires %d inputs, got %d", category, need, have)
	}
	return true, ""
}

// lookup reads a positional value keyed "3" or "{3}".
func lookup(values map[string]string, pos string) string {
	if v, ok := values[pos]; ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(values["{"+pos+"}"])
}

func plugNumber(v float64) (*int, bool) {
	if v < 1 || v > math.MaxInt32 || v != math.Trunc(v) {
		return nil, false
	}
	n := int(v)
	return &n, true
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}
