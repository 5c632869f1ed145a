package domain

import "time"

// Category is the closed set of operational event kinds.
type Category string

const (
	CategorySetPlug          Category = "set_plug"
	CategorySqueeze          Category = "squeeze"
	CategoryPerforate        Category = "perforate"
	CategorySetBridgePlug    Category = "set_bridge_plug"
	CategoryCutCasing        Category = "cut_casing"
	CategoryTagTOC           Category = "tag_toc"
	CategoryTagBridgePlug    Category = "tag_bridge_plug"
	CategoryBrokeCirculation Category = "broke_circulation"
	CategoryPressureUp       Category = "pressure_up"
	CategoryApproval         Category = "approval"
	CategoryOther            Category = "other"
)

// IsValid reports whether c is a recognized category, including other.
func (c Category) IsValid() bool {
	switch c {
	case CategorySetPlug, CategorySqueeze, CategoryPerforate, CategorySetBridgePlug,
		CategoryCutCasing, CategoryTagTOC, CategoryTagBridgePlug, CategoryBrokeCirculation,
		CategoryPressureUp, CategoryApproval, CategoryOther:
		return true
	}
	return false
}

// CreatesPlug reports whether events of this category seed or extend a cement plug.
func (c Category) CreatesPlug() bool {
	return c == CategorySetPlug || c == CategorySqueeze
}

// PlacementMode is how cement is placed for a plug.
type PlacementMode string

const (
	ModeSpot        PlacementMode = "spot"
	ModeSqueeze     PlacementMode = "squeeze"
	ModeUnspecified PlacementMode = ""
)

type CasingRole string

const (
	RoleSurface      CasingRole = "surface"
	RoleIntermediate CasingRole = "intermediate"
	RoleProduction   CasingRole = "production"
	RoleLiner        CasingRole = "liner"
	RoleOther        CasingRole = "other"
)

// CasingString is one physical casing run. CutTo, when set, lies within [Top, Bottom];
// pipe above CutTo has been removed.
type CasingString struct {
	Name          string     `json:"name"`
	Role          CasingRole `json:"role"`
	OuterDiameter float64    `json:"od"`
	Top           float64    `json:"top"`
	Bottom        float64    `json:"bottom"`
	HoleDiameter  *float64   `json:"hole_size,omitempty"`
	CutTo         *float64   `json:"cut_to,omitempty"`
	Weight        *float64   `json:"weight,omitempty"`
	Grade         string     `json:"grade,omitempty"`
}

// Interval is a depth range in feet.
type Interval struct {
	Top    float64 `json:"top" yaml:"top"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
}

type BaselineCasingRow struct {
	Name     string   `json:"name" yaml:"name"`
	Role     string   `json:"role,omitempty" yaml:"role"`
	OD       float64  `json:"od" yaml:"od"`
	Top      float64  `json:"top" yaml:"top"`
	Bottom   float64  `json:"bottom" yaml:"bottom"`
	HoleSize *float64 `json:"hole_size,omitempty" yaml:"hole_size"`
	Weight   *float64 `json:"weight,omitempty" yaml:"weight"`
	Grade    string   `json:"grade,omitempty" yaml:"grade"`
}

// Baseline is the well-construction record events are applied against.
// Header and CasingProgram are required; nil means the section is missing.
type Baseline struct {
	Header        map[string]string   `json:"header" yaml:"header"`
	CasingProgram []BaselineCasingRow `json:"casing_program" yaml:"casing_program"`
	Perforations  []Interval          `json:"perforations,omitempty" yaml:"perforations"`
	Remarks       string              `json:"remarks,omitempty" yaml:"remarks"`
}

// RawFieldEvent is a field-report entry as authored upstream.
type RawFieldEvent struct {
	Category  string            `json:"category" yaml:"category"`
	Narrative string            `json:"narrative,omitempty" yaml:"narrative"`
	Values    map[string]string `json:"values,omitempty" yaml:"values"`
	Date      string            `json:"date,omitempty" yaml:"date"`
	StartTime string            `json:"start_time,omitempty" yaml:"start_time"`
	EndTime   string            `json:"end_time,omitempty" yaml:"end_time"`
	CasingCut bool              `json:"casing_cut,omitempty" yaml:"casing_cut"`
	WorkOrder string            `json:"work_order,omitempty" yaml:"work_order"`
	ParentRef string            `json:"parent_ref,omitempty" yaml:"parent_ref"`
}

// ClockTime is a time of day without a date.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// NormalizedEvent is the typed projection of a RawFieldEvent. Never mutated after normalization.
type NormalizedEvent struct {
	Index         int           `json:"index"`
	Category      Category      `json:"category"`
	RawCategory   string        `json:"raw_category,omitempty"`
	Date          time.Time     `json:"date"`
	Dated         bool          `json:"dated"`
	StartTime     *ClockTime    `json:"start_time,omitempty"`
	EndTime       *ClockTime    `json:"end_time,omitempty"`
	DepthTop      *float64      `json:"depth_top,omitempty"`
	DepthBottom   *float64      `json:"depth_bottom,omitempty"`
	PerfDepth     *float64      `json:"perf_depth,omitempty"`
	TaggedDepth   *float64      `json:"tagged_depth,omitempty"`
	PlugNumber    *int          `json:"plug_number,omitempty"`
	CementClass   string        `json:"cement_class,omitempty"`
	Sacks         *float64      `json:"sacks,omitempty"`
	SlurryVolume  *float64      `json:"slurry_volume,omitempty"`
	SlurryWeight  *float64      `json:"slurry_weight,omitempty"`
	Pressure      *float64      `json:"pressure,omitempty"`
	CasingCut     bool          `json:"casing_cut"`
	SurfaceIntent bool          `json:"surface_intent,omitempty"`
	Narrative     string        `json:"narrative,omitempty"`
	WorkOrder     string        `json:"work_order,omitempty"`
	ParentRef     string        `json:"parent_ref,omitempty"`
}

// Plug is a logical plugging operation.
type Plug struct {
	Number        int
	Top           *float64
	Bottom        *float64
	Mode          PlacementMode
	CementClass   string
	Sacks         *float64
	SlurryVolume  *float64
	SlurryWeight  *float64
	MeasuredTOC   *float64
	CalculatedTOC *float64
	Variance      *float64
	HoleSize      *float64
	Remarks       []string
	Events        []NormalizedEvent
	Finalized     bool
}

// QueryDepth is the depth used for hole-size and volume lookups: bottom, else top.
func (p *Plug) QueryDepth() (float64, bool) {
	if p.Bottom != nil {
		return *p.Bottom, true
	}
	if p.Top != nil {
		return *p.Top, true
	}
	return 0, false
}

type PlugRow struct {
	Number        int      `json:"plug_number"`
	Top           *float64 `json:"top"`
	Bottom        *float64 `json:"bottom"`
	Type          string   `json:"type"`
	CementClass   string   `json:"cement_class"`
	Sacks         *float64 `json:"sacks"`
	SlurryVolume  *float64 `json:"slurry_volume"`
	SlurryWeight  float64  `json:"slurry_weight"`
	HoleSize      *float64 `json:"hole_size"`
	TOC           *float64 `json:"toc"`
	MeasuredTOC   *float64 `json:"measured_toc"`
	CalculatedTOC *float64 `json:"calculated_toc"`
	Variance      *float64 `json:"variance"`
	Remarks       string   `json:"remarks"`
}

type CasingRecord struct {
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	OD       float64  `json:"od"`
	Weight   *float64 `json:"weight"`
	Grade    string   `json:"grade,omitempty"`
	HoleSize *float64 `json:"hole_size"`
	Top      float64  `json:"top"`
	Bottom   float64  `json:"bottom"`
	CutTo    *float64 `json:"cut_to"`
}

type PerforationRow struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Source string  `json:"source"`
	Date   string  `json:"date,omitempty"`
}

// Report is the as-built plugging record.
type Report struct {
	Header       map[string]string `json:"header"`
	Plugs        []PlugRow         `json:"plugs"`
	Casing       []CasingRecord    `json:"casing"`
	Perforations []PerforationRow  `json:"perforations"`
	Remarks      string            `json:"remarks"`
	DocumentRef  string            `json:"document_ref,omitempty"`
}

// Result is what a reconstruction hands back to its caller.
type Result struct {
	Report   Report   `json:"report"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors,omitempty"`
	Failed   bool     `json:"failed"`
}

// Run is an archived reconstruction.
type Run struct {
	ID           string `json:"id"`
	WellID       string `json:"well_id,omitempty"`
	DocumentRef  string `json:"document_ref,omitempty"`
	Failed       bool   `json:"failed"`
	PlugCount    int    `json:"plug_count"`
	WarningCount int    `json:"warning_count"`
	InputJSON    string `json:"input_json,omitempty"`
	ResultJSON   string `json:"result_json,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	Payload string `json:"payload_json"`
}
