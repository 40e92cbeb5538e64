package vcontrold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// Transport sends one command and returns the decoded reply. *Session
// implements it.
type Transport interface {
	Send(ctx context.Context, command string, unit Unit) (*Response, error)
}

// Selector chooses the items a query resolves.
type Selector struct {
	groups []string
	items  []string
	all    bool
}

// Group selects the members of a group in declared order.
func Group(name string) Selector { return Selector{groups: []string{name}} }

// Groups selects the members of several groups. Items in more than one
// group appear once, at their first position.
func Groups(names ...string) Selector { return Selector{groups: names} }

// Items selects an explicit ordered list of items.
func Items(names ...string) Selector { return Selector{items: names} }

// All selects every enabled item in the catalog.
func All() Selector { return Selector{all: true} }

// Select combines groups and explicit items. Group members come first.
func Select(groups, items []string) Selector {
	return Selector{groups: groups, items: items}
}

// Empty reports whether the selector names nothing.
func (s Selector) Empty() bool {
	return !s.all && len(s.groups) == 0 && len(s.items) == 0
}

func (s Selector) String() string {
	if s.all {
		return "all"
	}
	var parts []string
	if len(s.groups) > 0 {
		parts = append(parts, "groups("+strings.Join(s.groups, ",")+")")
	}
	if len(s.items) > 0 || len(parts) == 0 {
		parts = append(parts, "items("+strings.Join(s.items, ",")+")")
	}
	return strings.Join(parts, "+")
}

// State is the outcome of fetching one item.
type State string

const (
	StateSuccess State = "success"
	StateFailed  State = "failed"
	// StateRetry marks failures the daemon reports as temporary.
	StateRetry State = "failed_temporarily"
)

// Item is the converted value of one item, or the error that prevented it.
type Item struct {
	Name        string
	Unit        Unit
	Value       any
	Label       string // set only when unit annotation is requested
	Description string
	State       State
	Err         error
	Elapsed     time.Duration
}

// OK reports whether the item was fetched and converted.
func (i Item) OK() bool { return i.Err == nil }

// Meta describes a whole query.
type Meta struct {
	Device  *Device
	Elapsed time.Duration
}

// Result maps item names to values, in resolution order.
type Result struct {
	Meta  Meta
	items []Item
	index map[string]int
}

func newResult(capacity int) *Result {
	return &Result{
		items: make([]Item, 0, capacity),
		index: make(map[string]int, capacity),
	}
}

func (r *Result) add(it Item) {
	r.index[it.Name] = len(r.items)
	r.items = append(r.items, it)
}

// Items returns a copy of the items in resolution order.
func (r *Result) Items() []Item { return slices.Clone(r.items) }

// Names returns the item names in resolution order.
func (r *Result) Names() []string {
	names := make([]string, len(r.items))
	for i, it := range r.items {
		names[i] = it.Name
	}
	return names
}

// Get returns the item called name.
func (r *Result) Get(name string) (Item, bool) {
	i, ok := r.index[name]
	if !ok {
		return Item{}, false
	}
	return r.items[i], true
}

// Len returns the number of items.
func (r *Result) Len() int { return len(r.items) }

// Failed returns the items that carry an error.
func (r *Result) Failed() []Item {
	var out []Item
	for _, it := range r.items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithConvertOptions sets the conversion rules.
func WithConvertOptions(opts ConvertOptions) PollerOption {
	return func(p *Poller) { p.conv = NewConverter(opts) }
}

// WithDevice restricts queries to commands available on dev. Commands for
// other devices are reported with ErrUnsupported.
func WithDevice(dev Device) PollerOption {
	return func(p *Poller) { p.device = &dev }
}

// WithLimit caps the number of commands a query sends. Zero means no limit.
func WithLimit(n int) PollerOption {
	return func(p *Poller) { p.limit = n }
}

// WithPollerLogger sets a structured logger.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

// Poller resolves selectors against a catalog and fetches the items over a
// transport, one command at a time.
type Poller struct {
	t       Transport
	catalog *Catalog
	conv    *Converter
	device  *Device
	limit   int
	logger  *slog.Logger
}

// NewPoller returns a poller using t and cat.
func NewPoller(t Transport, cat *Catalog, opts ...PollerOption) *Poller {
	p := &Poller{
		t:       t,
		catalog: cat,
		conv:    NewConverter(DefaultConvertOptions()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the poller's catalog.
func (p *Poller) Catalog() *Catalog { return p.catalog }

// Resolve expands a selector to item names. Unknown names fail with
// *LookupError.
func (p *Poller) Resolve(sel Selector) ([]string, error) {
	if sel.all {
		var names []string
		for _, n := range p.catalog.Items() {
			if d, _ := p.catalog.Lookup(n); !d.Disabled {
				names = append(names, n)
			}
		}
		return names, nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, g := range sel.groups {
		members, err := p.catalog.Group(g)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if !seen[m] {
				seen[m] = true
				names = append(names, m)
			}
		}
	}
	for _, n := range sel.items {
		if _, err := p.catalog.Lookup(n); err != nil {
			return nil, err
		}
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, nil
}

// Query fetches every item sel resolves to. Per-item failures are recorded
// in the result. A *LookupError fails the call before anything is sent; a
// *ConnectionError aborts it and is returned with the partial result.
func (p *Poller) Query(ctx context.Context, sel Selector) (*Result, error) {
	names, err := p.Resolve(sel)
	if err != nil {
		return nil, err
	}
	if p.limit > 0 && p.limit < len(names) {
		names = names[:p.limit]
	}

	start := time.Now()
	res := newResult(len(names))
	res.Meta.Device = p.device

	for i, name := range names {
		def, _ := p.catalog.Lookup(name)
		if p.logger != nil {
			p.logger.Debug("fetching item", "item", name, "n", i+1, "of", len(names))
		}

		it, err := p.fetch(ctx, def)
		res.add(it)
		if err != nil {
			res.Meta.Elapsed = time.Since(start)
			return res, err
		}
	}

	res.Meta.Elapsed = time.Since(start)
	return res, nil
}

// fetch returns an error only when the whole query must stop.
func (p *Poller) fetch(ctx context.Context, def CommandDefinition) (Item, error) {
	it := Item{
		Name:        def.Name,
		Unit:        def.Unit,
		Description: def.Description,
		State:       StateFailed,
	}

	switch {
	case def.Disabled:
		it.Err = fmt.Errorf("%s: %w: disabled", def.Name, ErrUnsupported)
		return it, nil
	case p.device != nil && !def.SupportsDevice(p.device.ID):
		it.Err = fmt.Errorf("%s: %w on device %d", def.Name, ErrUnsupported, p.device.ID)
		return it, nil
	}

	start := time.Now()
	resp, err := p.t.Send(ctx, def.Command, def.Unit)
	it.Elapsed = time.Since(start)

	var connErr *ConnectionError
	switch {
	case errors.As(err, &connErr), errors.Is(err, ErrSessionClosed), errors.Is(err, context.Canceled):
		it.Err = err
		return it, err
	case err != nil:
		it.Err = err
		return it, nil
	}

	if resp.Status == StatusError {
		it.Err = responseError(def, resp)
		if errors.Is(it.Err, ErrCommandTimeout) || strings.Contains(resp.ErrorDetail, "Wrong result") {
			it.State = StateRetry
		}
		if p.logger != nil {
			p.logger.Warn("item failed", "item", def.Name, "error", it.Err)
		}
		return it, nil
	}

	v, err := p.conv.Convert(resp, def.Unit)
	if err != nil {
		it.Err = fmt.Errorf("%s: %w", def.Name, err)
		return it, nil
	}
	if entries, ok := v.([]TimerEntry); ok && def.Day != "" {
		for i := range entries {
			entries[i].Day = def.Day
		}
	}

	it.Value = v
	it.Label = p.conv.Label(def.Unit)
	it.State = StateSuccess
	return it, nil
}

func responseError(def CommandDefinition, resp *Response) error {
	switch resp.ErrorDetail {
	case timeoutDetail:
		return fmt.Errorf("%s: %w", def.Name, ErrCommandTimeout)
	case emptyDetail:
		return fmt.Errorf("%s: %w", def.Name, ErrEmptyResponse)
	}
	return &DaemonError{Command: def.Command, Detail: resp.ErrorDetail}
}

// Set writes value using the write command called name. The daemon answers
// "OK" on success.
func (p *Poller) Set(ctx context.Context, name string, value string) error {
	def, err := p.catalog.LookupWrite(name)
	if err != nil {
		if rd, rerr := p.catalog.Lookup(name); rerr == nil && rd.ReadOnly {
			return fmt.Errorf("%s: %w", name, ErrReadOnly)
		}
		return err
	}
	if def.Disabled {
		return fmt.Errorf("%s: %w: disabled", name, ErrUnsupported)
	}

	command := def.Command
	if value != "" {
		command += " " + value
	}
	resp, err := p.t.Send(ctx, command, UnitText)
	if err != nil {
		return err
	}
	if resp.Status == StatusError {
		return responseError(def, resp)
	}
	if resp.Text() != "OK" {
		return &DaemonError{Command: def.Command, Detail: resp.Text()}
	}
	if p.logger != nil {
		p.logger.Info("value written", "item", name, "value", value)
	}
	return nil
}

// Fetch dials host, runs one query and closes the session on every path.
func Fetch(ctx context.Context, host string, cat *Catalog, sel Selector, sessionOpts []SessionOption, pollerOpts ...PollerOption) (res *Result, err error) {
	s, err := NewSession(host, sessionOpts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return NewPoller(s, cat, pollerOpts...).Query(ctx, sel)
}
