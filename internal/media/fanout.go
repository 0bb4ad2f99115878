package media

import (
	"errors"
	"fmt"

	"github.com/1ureka/camlink/internal/util"
)

type destination struct {
	name string
	sink Sink
}

// Fanout delivers every unit to each of its destinations in turn. A failing
// destination is counted and logged; the others still receive the unit.
type Fanout struct {
	dests []destination
	log   util.Scope
}

// Compile-time interface check.
var _ Sink = (*Fanout)(nil)

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{log: util.Scope("fanout")}
}

// Add registers a destination. A nil sink is ignored, which keeps every
// destination optional.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	if s != nil {
		f.dests = append(f.dests, destination{name: name, sink: s})
	}
	return f
}

// Len returns the number of destinations.
func (f *Fanout) Len() int { return len(f.dests) }

func (f *Fanout) WriteUnit(p *Packet) error {
	var errs []error
	for _, d := range f.dests {
		if err := d.sink.WriteUnit(p); err != nil {
			util.Stats.AddSinkError()
			f.log.Warning("%s: %v", d.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, d := range f.dests {
		if err := d.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}
