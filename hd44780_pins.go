/*
Copyright 2024 Tim St. Pierre
GPIO line assignment for a parallel HD44780 connection
*/
package hd44780

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Pins is the parallel wiring of one display. Data[i] carries bit i of
// every transfer: D0-D7 on an 8-bit bus, D4-D7 on a 4-bit bus (only the
// first 4 entries are used then).
//
// A display owns its lines exclusively. Two displays must never share one.
type Pins struct {
	RS        gpio.PinOut
	E         gpio.PinOut
	Data      []gpio.PinOut
	Backlight gpio.PinOut // optional
}

// PinsByName looks up the register select, enable and data lines in the
// periph gpio registry. Host drivers must be loaded first, usually by
// host.Init().
func PinsByName(rs, e string, data ...string) (*Pins, error) {
	p := &Pins{}
	var err error
	if p.RS, err = byName(rs); err != nil {
		return nil, err
	}
	if p.E, err = byName(e); err != nil {
		return nil, err
	}
	for _, name := range data {
		d, err := byName(name)
		if err != nil {
			return nil, err
		}
		p.Data = append(p.Data, d)
	}
	return p, nil
}

func byName(name string) (gpio.PinOut, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("hd44780: %w: no gpio named %q", ErrInvalidConfiguration, name)
	}
	return p, nil
}

func (p *Pins) validate(bus BusWidth) error {
	if p == nil {
		return fmt.Errorf("%w: no pins", ErrInvalidConfiguration)
	}
	if p.RS == nil {
		return fmt.Errorf("%w: register select line missing", ErrInvalidConfiguration)
	}
	if p.E == nil {
		return fmt.Errorf("%w: enable line missing", ErrInvalidConfiguration)
	}
	if len(p.Data) > 8 {
		return fmt.Errorf("%w: %d data lines, at most 8", ErrInvalidConfiguration, len(p.Data))
	}
	if len(p.Data) < int(bus) {
		return fmt.Errorf("%w: %s bus needs %d data lines, got %d", ErrInvalidConfiguration, bus, int(bus), len(p.Data))
	}
	used := p.used(bus)
	for i, l := range used {
		if l == nil {
			return fmt.Errorf("%w: line %d missing", ErrInvalidConfiguration, i)
		}
		for _, o := range used[:i] {
			if o == l {
				return fmt.Errorf("%w: line %s assigned twice", ErrInvalidConfiguration, l)
			}
		}
	}
	return nil
}

// used returns every line the display drives: RS, E, the data lines of the
// bus and the backlight when wired.
func (p *Pins) used(bus BusWidth) []gpio.PinOut {
	lines := make([]gpio.PinOut, 0, 3+int(bus))
	lines = append(lines, p.RS, p.E)
	lines = append(lines, p.Data[:bus]...)
	if p.Backlight != nil {
		lines = append(lines, p.Backlight)
	}
	return lines
}
