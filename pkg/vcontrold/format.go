package vcontrold

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FormatKind selects an output rendering.
type FormatKind string

const (
	FormatStructured FormatKind = "structured"
	FormatYAML       FormatKind = "yaml"
	FormatFlat       FormatKind = "flat"
	FormatText       FormatKind = "text"
)

// ParseFormatKind accepts the kind names plus "json" and "csv".
func ParseFormatKind(s string) (FormatKind, error) {
	switch strings.ToLower(s) {
	case "structured", "json", "dict":
		return FormatStructured, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "flat", "csv":
		return FormatFlat, nil
	case "text", "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unsupported output format %q (structured, yaml, flat, text)", s)
}

// FormatOptions control rendering.
type FormatOptions struct {
	Delimiter string // flat field delimiter, default ","
	LineBreak string // flat record terminator, default "\n"
	Quote     string // optional quote wrapped around flat fields
	SortKeys  bool   // render items by name instead of resolution order
	Meta      bool   // include query and per-item metadata in structured output
	Indent    string // structured indentation, default four spaces
}

// DefaultFormatOptions returns the defaults.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{Delimiter: ",", LineBreak: "\n", Indent: "    "}
}

const timeLayout = "2006-01-02 15:04:05"

// Format renders res. The result is not modified.
func Format(res *Result, kind FormatKind, opts FormatOptions) (string, error) {
	if opts.Delimiter == "" {
		opts.Delimiter = ","
	}
	if opts.LineBreak == "" {
		opts.LineBreak = "\n"
	}
	if opts.Indent == "" {
		opts.Indent = "    "
	}

	items := res.Items()
	if opts.SortKeys {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	}

	switch kind {
	case FormatStructured:
		return formatJSON(res, items, opts)
	case FormatYAML:
		return formatYAML(res, items, opts)
	case FormatFlat:
		return formatFlat(items, opts), nil
	case FormatText:
		return formatText(items), nil
	}
	return "", fmt.Errorf("unsupported output format %q", kind)
}

// DisplayValue rounds temperatures to one decimal and renders the value as
// a single string.
func DisplayValue(it Item) string {
	if it.Err != nil {
		return ""
	}
	return displayString(displayValue(it))
}

func displayValue(it Item) any {
	if it.Unit == UnitCelsius {
		if f, ok := toFloat(it.Value); ok {
			return Round(f, 1)
		}
	}
	return it.Value
}

func displayString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(timeLayout)
	case Fault:
		return x.Time.Format(timeLayout) + " " + x.Message
	case []TimerEntry:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = fmt.Sprintf("%d:%s-%s", e.Slot, orDash(e.On), orDash(e.Off))
		}
		return strings.Join(parts, ";")
	}
	return fmt.Sprint(v)
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

// record is the structured view of one item.
type record struct {
	Value       any    `json:"value" yaml:"value"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	State       State  `json:"state,omitempty" yaml:"state,omitempty"`
	Elapsed     string `json:"execution_time,omitempty" yaml:"execution_time,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// itemNode renders a bare value for plain successful items and a record
// otherwise. detailed adds description, state and execution time.
func itemNode(it Item, detailed bool) any {
	v := displayValue(it)
	if t, ok := v.(time.Time); ok {
		v = t.Format(timeLayout)
	}
	if it.Err == nil && it.Label == "" && !detailed {
		return v
	}
	rec := record{Value: v, Unit: it.Label}
	if detailed {
		rec.Description = it.Description
		rec.State = it.State
		rec.Elapsed = it.Elapsed.Round(time.Millisecond).String()
	}
	if it.Err != nil {
		rec.Value = nil
		rec.State = it.State
		rec.Error = it.Err.Error()
	}
	return rec
}

type metaNode struct {
	NumItems int     `json:"num_items" yaml:"num_items"`
	Failed   int     `json:"failed" yaml:"failed"`
	Elapsed  string  `json:"execution_time" yaml:"execution_time"`
	Device   *Device `json:"device,omitempty" yaml:"device,omitempty"`
}

func buildMeta(res *Result) metaNode {
	return metaNode{
		NumItems: res.Len(),
		Failed:   len(res.Failed()),
		Elapsed:  res.Meta.Elapsed.Round(time.Millisecond).String(),
		Device:   res.Meta.Device,
	}
}

// formatJSON writes the object by hand so keys keep the item order.
func formatJSON(res *Result, items []Item, opts FormatOptions) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	if opts.Meta {
		b, err := json.Marshal(buildMeta(res))
		if err != nil {
			return "", err
		}
		buf.WriteString(`"meta":`)
		buf.Write(b)
		buf.WriteString(`,"data":`)
		buf.WriteString("{")
	}
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(it.Name)
		val, err := json.Marshal(itemNode(it, opts.Meta))
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", it.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	if opts.Meta {
		buf.WriteString("}")
	}
	buf.WriteString("}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", opts.Indent); err != nil {
		return "", err
	}
	out.WriteByte('\n')
	return out.String(), nil
}

func formatYAML(res *Result, items []Item, opts FormatOptions) (string, error) {
	data := &yaml.Node{Kind: yaml.MappingNode}
	for _, it := range items {
		var val yaml.Node
		if err := val.Encode(itemNode(it, opts.Meta)); err != nil {
			return "", fmt.Errorf("encode %s: %w", it.Name, err)
		}
		data.Content = append(data.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: it.Name}, &val)
	}

	root := data
	if opts.Meta {
		var meta yaml.Node
		if err := meta.Encode(buildMeta(res)); err != nil {
			return "", err
		}
		root = &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "meta"}, &meta,
			{Kind: yaml.ScalarNode, Value: "data"}, data,
		}}
	}

	b, err := yaml.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// formatFlat writes one "name<delim>value" record per item.
func formatFlat(items []Item, opts FormatOptions) string {
	var b strings.Builder
	for _, it := range items {
		value := DisplayValue(it)
		if it.Err != nil {
			value = "ERROR"
		}
		b.WriteString(flatField(it.Name, opts))
		b.WriteString(opts.Delimiter)
		b.WriteString(flatField(value, opts))
		b.WriteString(opts.LineBreak)
	}
	return b.String()
}

func flatField(s string, opts FormatOptions) string {
	q := opts.Quote
	if q == "" && (strings.Contains(s, opts.Delimiter) || strings.Contains(s, opts.LineBreak) || strings.Contains(s, `"`)) {
		q = `"`
	}
	if q == "" {
		return s
	}
	return q + strings.ReplaceAll(s, q, q+q) + q
}

func formatText(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(it.Name)
		b.WriteByte('=')
		if it.Err != nil {
			b.WriteString("ERROR (")
			b.WriteString(it.Err.Error())
			b.WriteString(")")
		} else {
			b.WriteString(DisplayValue(it))
			if it.Label != "" {
				b.WriteByte(' ')
				b.WriteString(it.Label)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Pair is a name/value record read back from flat output.
type Pair struct {
	Name  string
	Value string
}

// ParseFlat reads records written by the flat formatter with the same
// options. Quoted fields may contain the delimiter or line break; the quote
// defaults to a double quote.
func ParseFlat(s string, opts FormatOptions) ([]Pair, error) {
	delim, linebreak, quote := opts.Delimiter, opts.LineBreak, opts.Quote
	if delim == "" {
		delim = ","
	}
	if linebreak == "" {
		linebreak = "\n"
	}
	if quote == "" {
		quote = `"`
	}

	var pairs []Pair
	for len(s) > 0 {
		name, rest, err := readFlatField(s, delim, linebreak, quote)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(rest, delim) {
			return nil, fmt.Errorf("record %q: missing delimiter", name)
		}
		value, rest, err := readFlatField(rest[len(delim):], delim, linebreak, quote)
		if err != nil {
			return nil, err
		}
		rest = strings.TrimPrefix(rest, linebreak)
		pairs = append(pairs, Pair{Name: name, Value: value})
		s = rest
	}
	return pairs, nil
}

func readFlatField(s, delim, linebreak, quote string) (field, rest string, err error) {
	if strings.HasPrefix(s, quote) {
		var b strings.Builder
		s = s[len(quote):]
		for len(s) > 0 {
			if strings.HasPrefix(s, quote) {
				s = s[len(quote):]
				if strings.HasPrefix(s, quote) {
					b.WriteString(quote)
					s = s[len(quote):]
					continue
				}
				return b.String(), s, nil
			}
			b.WriteByte(s[0])
			s = s[1:]
		}
		return "", "", fmt.Errorf("unterminated quoted field")
	}

	end := len(s)
	if i := strings.Index(s, delim); i >= 0 && i < end {
		end = i
	}
	if i := strings.Index(s, linebreak); i >= 0 && i < end {
		end = i
	}
	return s[:end], s[end:], nil
}
