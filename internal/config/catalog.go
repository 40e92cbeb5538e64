package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zberg/go-vclient/pkg/vcontrold"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// DefaultCatalogYAML returns the built-in catalog file.
func DefaultCatalogYAML() []byte {
	return append([]byte(nil), defaultCatalog...)
}

// catalogFile is the on-disk layout shared with existing vcontrold client
// configurations. Entries are kept as nodes so item order survives.
type catalogFile struct {
	Commands struct {
		Get yaml.Node `yaml:"get"`
		Set yaml.Node `yaml:"set"`
	} `yaml:"vcontrold_commands"`
}

// commandEntry is one command in the catalog file.
type commandEntry struct {
	Command     string   `yaml:"command"`
	Description string   `yaml:"description"`
	Status      string   `yaml:"status"`
	Unit        string   `yaml:"unit"`
	Groups      []string `yaml:"groups"`
	Devices     []int    `yaml:"devices"`
	Day         string   `yaml:"day"`
}

// weekdays maps the suffix of timer command names to their day label.
var weekdays = []string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}

// ParseCatalog builds a catalog from a catalog file.
func ParseCatalog(data []byte) (*vcontrold.Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if f.Commands.Get.Kind == 0 {
		return nil, errors.New("catalog has no vcontrold_commands.get section")
	}

	reads, err := decodeEntries(&f.Commands.Get, false)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	writes, err := decodeEntries(&f.Commands.Set, true)
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}

	return vcontrold.NewCatalogWithWrites(reads, writes)
}

func decodeEntries(node *yaml.Node, writable bool) ([]vcontrold.CommandDefinition, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of commands", node.Line)
	}

	defs := make([]vcontrold.CommandDefinition, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value

		var e commandEntry
		if err := node.Content[i+1].Decode(&e); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		def, err := e.definition(name, writable)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (e commandEntry) definition(name string, writable bool) (vcontrold.CommandDefinition, error) {
	def := vcontrold.CommandDefinition{
		Name:        name,
		Command:     e.Command,
		Description: e.Description,
		Groups:      e.Groups,
		Devices:     e.Devices,
		ReadOnly:    !writable,
		Day:         e.Day,
	}

	switch strings.ToLower(e.Status) {
	case "", "enabled":
	case "disabled":
		def.Disabled = true
	default:
		return def, fmt.Errorf("%s: unknown status %q", name, e.Status)
	}

	unit, err := vcontrold.ParseUnit(e.Unit)
	switch {
	case err == nil:
		def.Unit = unit
	case writable:
		// Units of set commands only describe the argument.
		def.Unit = vcontrold.UnitNone
	default:
		return def, fmt.Errorf("%s: %w", name, err)
	}

	if def.Unit == vcontrold.UnitTimer && def.Day == "" {
		def.Day = dayFromName(name)
	}
	return def, nil
}

func dayFromName(name string) string {
	for _, d := range weekdays {
		if strings.HasSuffix(name, d) {
			return d
		}
	}
	return ""
}

// LoadCatalog reads the catalog file at path, or the built-in catalog when
// path is empty.
func LoadCatalog(path string) (*vcontrold.Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// EnsureCatalog writes the built-in catalog to path unless a file already
// exists there. It reports whether a file was created.
func EnsureCatalog(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := os.WriteFile(path, defaultCatalog, 0o644); err != nil {
		return false, fmt.Errorf("failed to write catalog: %w", err)
	}
	return true, nil
}
