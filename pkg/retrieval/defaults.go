package retrieval

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultHEKAttributes returns the built-in query defaults for the HEK event
// search: a full-disk search box for coronal jets on AIA channel 304. A fresh
// slice is returned on every call so callers can mutate their copy freely.
func DefaultHEKAttributes() []Attribute {
	return []Attribute{
		NewAttribute("cosec", 2),
		NewAttribute("cmd", "search"),
		NewAttribute("type", "column"),
		NewQueryAttribute("event_types", []string{"cj"}, "event_type"),
		NewQueryAttribute("coord_sys", "helioprojective", "event_coordsys"),
		NewAttribute("x1", -1200),
		NewAttribute("x2", 1200),
		NewAttribute("y1", -1200),
		NewAttribute("y2", 1200),
		NewQueryAttribute("channel", 304, "obs_channelid"),
	}
}

// DefaultCutoutAttributes returns the built-in submission defaults for the
// SSW cutout service.
func DefaultCutoutAttributes() []Attribute {
	return []Attribute{
		NewAttribute("instrume", "aia"),
		NewAttribute("waves", 304),
		NewAttribute("max_frames", 10),
		NewAttribute("queue_job", 1),
		NewAttribute("notrack", 1),
	}
}

// Defaults bundles the per-provider default attribute sets.
type Defaults struct {
	HEK    []Attribute
	Cutout []Attribute
}

// BuiltinDefaults returns the code-level defaults for both providers.
func BuiltinDefaults() Defaults {
	return Defaults{HEK: DefaultHEKAttributes(), Cutout: DefaultCutoutAttributes()}
}

type attributeSpec struct {
	Name        string      `yaml:"name"`
	QueryName   string      `yaml:"query_name,omitempty"`
	Value       interface{} `yaml:"value"`
	Format      string      `yaml:"format,omitempty"`
	Description string      `yaml:"description,omitempty"`
}

type defaultsFile struct {
	HEK    []attributeSpec `yaml:"hek"`
	Cutout []attributeSpec `yaml:"cutout"`
}

// LoadDefaults reads a YAML defaults file and merges it over the built-in
// attribute sets, the file entries winning by name. An empty path returns the
// built-ins unchanged.
func LoadDefaults(path string) (Defaults, error) {
	builtin := BuiltinDefaults()
	if path == "" {
		return builtin, nil
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return builtin, err
	}

	var file defaultsFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return Defaults{}, fmt.Errorf("parsing attribute defaults: %w", err)
	}

	hek, err := specsToAttributes(file.HEK)
	if err != nil {
		return Defaults{}, err
	}
	cutout, err := specsToAttributes(file.Cutout)
	if err != nil {
		return Defaults{}, err
	}

	return Defaults{
		HEK:    Merge(builtin.HEK, hek),
		Cutout: Merge(builtin.Cutout, cutout),
	}, nil
}

func specsToAttributes(specs []attributeSpec) ([]Attribute, error) {
	attrs := make([]Attribute, 0, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("attribute default missing name")
		}
		queryName := s.QueryName
		if queryName == "" {
			queryName = s.Name
		}
		attrs = append(attrs, Attribute{
			Name:        s.Name,
			QueryName:   queryName,
			Value:       normalizeYAMLValue(s.Value),
			Format:      s.Format,
			Description: s.Description,
		})
	}
	return attrs, nil
}

// normalizeYAMLValue maps decoded YAML values onto the attribute value types.
// Lists become string lists regardless of element type.
func normalizeYAMLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		items := make([]string, 0, len(val))
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
		return items
	case int, float64, string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
