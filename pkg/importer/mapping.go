package importer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// WildcardSheet matches any sheet not named in the mapping
const WildcardSheet = "*"

// DefaultMappingPath is where commands look for a mapping file
const DefaultMappingPath = "configs/mapping/assets.yaml"

// MappingConfig represents the YAML mapping configuration
type MappingConfig struct {
	Version  int                    `yaml:"version"`
	Defaults map[string]string      `yaml:"defaults"`
	Sheets   map[string]SheetConfig `yaml:"sheets"`
}

// SheetConfig maps asset fields to spreadsheet columns
type SheetConfig struct {
	Columns  map[string]ColumnConfig `yaml:"columns"`
	defaults map[string]string
}

// ColumnConfig names the header of one field and its accepted aliases
type ColumnConfig struct {
	Header   string   `yaml:"header"`
	Aliases  []string `yaml:"aliases"`
	Required bool     `yaml:"required"`
}

var knownFields = map[string]bool{
	FieldName:        true,
	FieldDescription: true,
	FieldStatus:      true,
	FieldImageURL:    true,
}

// DefaultMapping accepts any sheet with a Name column
func DefaultMapping() *MappingConfig {
	return &MappingConfig{
		Version: 1,
		Sheets: map[string]SheetConfig{
			WildcardSheet: {
				Columns: map[string]ColumnConfig{
					FieldName:        {Header: "Name", Aliases: []string{"Asset", "Asset Name", "Item"}, Required: true},
					FieldDescription: {Header: "Description", Aliases: []string{"Notes", "Details"}},
					FieldStatus:      {Header: "Status"},
					FieldImageURL:    {Header: "Image URL", Aliases: []string{"Image", "Photo"}},
				},
			},
		},
	}
}

// LoadMapping reads a YAML mapping file
func LoadMapping(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes and validates a YAML mapping
func ParseMapping(data []byte) (*MappingConfig, error) {
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if len(m.Sheets) == 0 {
		return nil, fmt.Errorf("mapping defines no sheets")
	}
	for name, sheet := range m.Sheets {
		if len(sheet.Columns) == 0 {
			return nil, fmt.Errorf("sheet %q maps no columns", name)
		}
		for field, col := range sheet.Columns {
			if !knownFields[field] {
				return nil, fmt.Errorf("sheet %q: unknown field %q", name, field)
			}
			if strings.TrimSpace(col.Header) == "" && len(col.Aliases) == 0 {
				return nil, fmt.Errorf("sheet %q: field %q has no header", name, field)
			}
		}
		if _, ok := sheet.Columns[FieldName]; !ok {
			return nil, fmt.Errorf("sheet %q must map the %q field", name, FieldName)
		}
	}
	for field := range m.Defaults {
		if !knownFields[field] {
			return nil, fmt.Errorf("defaults: unknown field %q", field)
		}
	}
	return &m, nil
}

// SheetFor returns the configuration for a sheet, falling back to the wildcard
func (m *MappingConfig) SheetFor(name string) (SheetConfig, bool) {
	cfg, ok := m.Sheets[name]
	if !ok {
		cfg, ok = m.Sheets[WildcardSheet]
	}
	cfg.defaults = m.Defaults
	return cfg, ok
}

// resolve maps every configured field to a column index. Header matching is
// case-insensitive. Missing optional columns are left out.
func (s SheetConfig) resolve(headers []string) (map[string]int, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToUpper(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}

	columns := make(map[string]int, len(s.Columns))
	var missing []string
	for field, col := range s.Columns {
		found := false
		for _, name := range append([]string{col.Header}, col.Aliases...) {
			if i, ok := index[strings.ToUpper(strings.TrimSpace(name))]; ok && name != "" {
				columns[field] = i
				found = true
				break
			}
		}
		if !found && col.Required {
			missing = append(missing, col.Header)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func (s SheetConfig) build(values map[string]string) (AssetRow, error) {
	get := func(field string) string {
		if v := values[field]; v != "" {
			return v
		}
		return s.defaults[field]
	}

	for field, col := range s.Columns {
		if col.Required && get(field) == "" {
			return AssetRow{}, fmt.Errorf("%s is required", col.Header)
		}
	}

	return AssetRow{
		Name:        get(FieldName),
		Description: get(FieldDescription),
		Status:      get(FieldStatus),
		ImageURL:    get(FieldImageURL),
	}, nil
}
