package vcontrold

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// CommandDefinition describes one item the daemon can report.
type CommandDefinition struct {
	Name        string
	Command     string // protocol command text; defaults to Name
	Unit        Unit
	Groups      []string
	ReadOnly    bool
	Description string
	Day         string // weekday label for timer items
	Devices     []int  // device IDs supporting the command; empty means any
	Disabled    bool
}

// SupportsDevice reports whether the command is available on the device.
func (d CommandDefinition) SupportsDevice(id int) bool {
	return len(d.Devices) == 0 || id == 0 || slices.Contains(d.Devices, id)
}

func (d CommandDefinition) clone() CommandDefinition {
	d.Groups = slices.Clone(d.Groups)
	d.Devices = slices.Clone(d.Devices)
	return d
}

// GroupDef is a named, ordered set of item names.
type GroupDef struct {
	Name    string
	Members []string
}

// Catalog is the immutable lookup table of command definitions.
type Catalog struct {
	defs   map[string]CommandDefinition
	order  []string
	groups map[string][]string
	writes map[string]CommandDefinition
}

// NewCatalog validates the definitions and builds a catalog. Groups passed
// explicitly take precedence over those derived from CommandDefinition.Groups.
func NewCatalog(defs []CommandDefinition, groups ...GroupDef) (*Catalog, error) {
	c := &Catalog{
		defs:   make(map[string]CommandDefinition, len(defs)),
		groups: make(map[string][]string),
		writes: make(map[string]CommandDefinition),
	}

	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("vcontrold: command definition without name")
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("vcontrold: duplicate command %q", d.Name)
		}
		if !d.Unit.Valid() {
			return nil, fmt.Errorf("command %q: %w", d.Name, ErrUnknownUnit)
		}
		if d.Command == "" {
			d.Command = d.Name
		}
		d = d.clone()
		c.defs[d.Name] = d
		c.order = append(c.order, d.Name)
		for _, g := range d.Groups {
			if !slices.Contains(c.groups[g], d.Name) {
				c.groups[g] = append(c.groups[g], d.Name)
			}
		}
	}

	for _, g := range groups {
		if g.Name == "" {
			return nil, errors.New("vcontrold: group without name")
		}
		for _, m := range g.Members {
			if _, ok := c.defs[m]; !ok {
				return nil, fmt.Errorf("group %q: %w", g.Name, &LookupError{Kind: "item", Name: m})
			}
		}
		c.groups[g.Name] = slices.Clone(g.Members)
	}

	return c, nil
}

// withWrites registers set commands. They live beside the read items and
// are addressed by their own names. Write commands are never read-only.
func (c *Catalog) withWrites(defs []CommandDefinition) error {
	for _, d := range defs {
		if d.Name == "" {
			return errors.New("vcontrold: write command without name")
		}
		if d.Command == "" {
			d.Command = d.Name
		}
		d.ReadOnly = false
		c.writes[d.Name] = d.clone()
	}
	return nil
}

// NewCatalogWithWrites is NewCatalog plus a set of write commands.
func NewCatalogWithWrites(reads, writes []CommandDefinition, groups ...GroupDef) (*Catalog, error) {
	c, err := NewCatalog(reads, groups...)
	if err != nil {
		return nil, err
	}
	if err := c.withWrites(writes); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the definition of a read item.
func (c *Catalog) Lookup(name string) (CommandDefinition, error) {
	d, ok := c.defs[name]
	if !ok {
		return CommandDefinition{}, &LookupError{Kind: "item", Name: name}
	}
	return d.clone(), nil
}

// LookupWrite returns the definition of a write command.
func (c *Catalog) LookupWrite(name string) (CommandDefinition, error) {
	d, ok := c.writes[name]
	if !ok {
		return CommandDefinition{}, &LookupError{Kind: "item", Name: name}
	}
	return d.clone(), nil
}

// Group returns the members of a group in declared order.
func (c *Catalog) Group(name string) ([]string, error) {
	m, ok := c.groups[name]
	if !ok {
		return nil, &LookupError{Kind: "group", Name: name}
	}
	return slices.Clone(m), nil
}

// Groups returns the sorted group names.
func (c *Catalog) Groups() []string {
	names := make([]string, 0, len(c.groups))
	for g := range c.groups {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// Items returns every read item name in declared order.
func (c *Catalog) Items() []string {
	return slices.Clone(c.order)
}

// Units returns the distinct unit kinds in use, sorted by name.
func (c *Catalog) Units() []Unit {
	seen := make(map[Unit]bool)
	var units []Unit
	for _, name := range c.order {
		u := c.defs[name].Unit
		if !seen[u] {
			seen[u] = true
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].String() < units[j].String() })
	return units
}

// ItemsPerGroup returns every group with its members.
func (c *Catalog) ItemsPerGroup() []GroupDef {
	out := make([]GroupDef, 0, len(c.groups))
	for _, g := range c.Groups() {
		out = append(out, GroupDef{Name: g, Members: slices.Clone(c.groups[g])})
	}
	return out
}

// Len returns the number of read items.
func (c *Catalog) Len() int { return len(c.order) }
