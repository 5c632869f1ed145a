package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"asbuilt/internal/domain"
	"asbuilt/internal/volume"
)

// Config models asbuilt.yml.
type Config struct {
	Engine struct {
		DefaultCementClass  string  `yaml:"default_cement_class" json:"default_cement_class"`
		DefaultHoleDiameter float64 `yaml:"default_hole_diameter" json:"default_hole_diameter"`
		DefaultSlurryWeight float64 `yaml:"default_slurry_weight" json:"default_slurry_weight"`
		DatePrefixRemarks   *bool   `yaml:"date_prefix_remarks" json:"date_prefix_remarks"`
		RemarkDateLayout    string  `yaml:"remark_date_layout" json:"remark_date_layout"`
		Parallelism         int     `yaml:"parallelism" json:"parallelism"`
	} `yaml:"engine" json:"engine"`
	Cement struct {
		Classes map[string]volume.Class `yaml:"classes" json:"classes"`
	} `yaml:"cement" json:"cement"`
	Categories struct {
		Aliases map[string]string `yaml:"aliases" json:"aliases"`
	} `yaml:"categories" json:"categories"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with asbuilt config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Engine.DefaultHoleDiameter < 0 {
		return fmt.Errorf("config.engine.default_hole_diameter must be positive")
	}
	if c.Engine.DefaultSlurryWeight < 0 {
		return fmt.Errorf("config.engine.default_slurry_weight must be positive")
	}
	if c.Engine.Parallelism < 0 {
		return fmt.Errorf("config.engine.parallelism must not be negative")
	}
	for name, class := range c.Cement.Classes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.cement.classes contains empty class name")
		}
		if class.Yield <= 0 {
			return fmt.Errorf("cement class %s has non-positive yield", name)
		}
		if class.Weight < 0 {
			return fmt.Errorf("cement class %s has negative weight", name)
		}
	}
	if dc := c.Engine.DefaultCementClass; dc != "" && len(c.Cement.Classes) > 0 {
		if _, ok := c.Cement.Classes[strings.ToUpper(dc)]; !ok {
			return fmt.Errorf("default cement class %s not in config.cement.classes", dc)
		}
	}
	for id, cat := range c.Categories.Aliases {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.categories.aliases has empty template id")
		}
		if category := domain.Category(cat); !category.IsValid() || category == domain.CategoryOther {
			return fmt.Errorf("alias %s maps to unknown category %s", id, cat)
		}
	}
	return nil
}

// Calculator builds the volumetric calculator described by the config, falling back to
// built-in values for anything unset.
func (c *Config) Calculator() volume.Calculator {
	calc := volume.NewCalculator()
	if c == nil {
		return calc
	}
	for name, class := range c.Cement.Classes {
		calc.Classes[strings.ToUpper(strings.TrimSpace(name))] = class
	}
	if c.Engine.DefaultCementClass != "" {
		calc.DefaultClass = strings.ToUpper(c.Engine.DefaultCementClass)
	}
	if c.Engine.DefaultHoleDiameter > 0 {
		calc.DefaultHoleDiameter = c.Engine.DefaultHoleDiameter
	}
	if c.Engine.DefaultSlurryWeight > 0 {
		calc.DefaultSlurryWeight = c.Engine.DefaultSlurryWeight
	}
	return calc
}

// DatePrefix reports whether remark lines carry their event date; defaults to true.
func (c *Config) DatePrefix() bool {
	if c == nil || c.Engine.DatePrefixRemarks == nil {
		return true
	}
	return *c.Engine.DatePrefixRemarks
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "asbuilt.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `engine:
  default_cement_class: H
  default_hole_diameter: 7.875
  default_slurry_weight: 15.6
  date_prefix_remarks: true
  remark_date_layout: "01/02/2006"
  parallelism: 4

cement:
  classes:
    A: {yield: 1.18, weight: 15.6}
    B: {yield: 1.18, weight: 15.6}
    C: {yield: 1.32, weight: 14.8}
    G: {yield: 1.15, weight: 15.8}
    H: {yield: 1.19, weight: 16.4}

categories:
  aliases:
    w3_plug: set_plug
    w3_squeeze: squeeze
    w3_perforate: perforate
    w3_cibp: set_bridge_plug
    w3_cut: cut_casing
    w3_tag: tag_toc
`
