package portfolio

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SectorTableSchema is the constraint a sector file's schema_version must satisfy
const SectorTableSchema = "^1.0.0"

// SectorTable maps holding identifiers (ISIN, ticker or name) to a sector label.
// Lookups are case-insensitive.
type SectorTable struct {
	sectors map[string]string
}

// sectorFile is the on-disk YAML layout
type sectorFile struct {
	SchemaVersion string            `yaml:"schema_version"`
	Sectors       map[string]string `yaml:"sectors"`
}

// NewSectorTable builds a table from an identifier -> sector map
func NewSectorTable(entries map[string]string) *SectorTable {
	t := &SectorTable{sectors: make(map[string]string, len(entries))}
	t.Merge(entries)
	return t
}

// LoadSectorTable reads a YAML sector file and checks its schema version
func LoadSectorTable(path string) (*SectorTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sector table: %w", err)
	}
	return ParseSectorTable(data)
}

// ParseSectorTable decodes the YAML sector file format
func ParseSectorTable(data []byte) (*SectorTable, error) {
	var f sectorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sector table: %w", err)
	}

	if f.SchemaVersion == "" {
		return nil, fmt.Errorf("sector table is missing schema_version")
	}
	version, err := semver.NewVersion(f.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid sector table schema_version %q: %w", f.SchemaVersion, err)
	}
	constraint, err := semver.NewConstraint(SectorTableSchema)
	if err != nil {
		return nil, fmt.Errorf("invalid schema constraint: %w", err)
	}
	if !constraint.Check(version) {
		return nil, fmt.Errorf("sector table schema_version %s does not satisfy %s", version, SectorTableSchema)
	}

	return NewSectorTable(f.Sectors), nil
}

// Merge adds entries, overriding existing identifiers
func (t *SectorTable) Merge(entries map[string]string) {
	for id, sector := range entries {
		id = normalizeKey(id)
		sector = strings.TrimSpace(sector)
		if id == "" || sector == "" {
			continue
		}
		t.sectors[id] = sector
	}
}

// Lookup returns the sector for a holding, trying identifier then name
func (t *SectorTable) Lookup(h Holding) (string, bool) {
	if t == nil {
		return "", false
	}
	if s, ok := t.sectors[normalizeKey(h.Identifier)]; ok {
		return s, true
	}
	if h.Name != "" {
		if s, ok := t.sectors[normalizeKey(h.Name)]; ok {
			return s, true
		}
	}
	return "", false
}

// Len returns the number of mapped identifiers
func (t *SectorTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.sectors)
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
