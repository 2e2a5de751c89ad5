/*
Copyright 2024 Tim St. Pierre
Options for HD44780 character display
*/
package hd44780

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidConfiguration is returned by NewGPIO when the pins or options
// cannot describe a display. No line has been touched when it is returned.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// BusWidth is the number of data lines wired between host and controller.
type BusWidth uint8

const (
	FourBit  BusWidth = 4
	EightBit BusWidth = 8
)

func (b BusWidth) String() string {
	switch b {
	case FourBit:
		return "4-bit"
	case EightBit:
		return "8-bit"
	default:
		return fmt.Sprintf("BusWidth(%d)", uint8(b))
	}
}

// Font selects the character cell. Font5x10 only exists on single line
// displays and is downgraded to Font5x8 otherwise.
type Font uint8

const (
	Font5x8 Font = iota
	Font5x10
)

type Opts struct {
	// Geometry of the panel
	Cols uint8
	Rows uint8
	Font Font
	// DDRAM address of the first cell of each row, for panels not laid out
	// as 0x00, 0x40, Cols, 0x40+Cols. nil derives them from Cols.
	RowOffsets *[maxRows]byte
	// Bus width, decides how many of Pins.Data are driven
	Bus BusWidth
	// Blocking delay source. nil uses the real clock.
	Clock clockwork.Clock
	// nil uses the logrus standard logger
	Logger *log.Logger
}

var DefaultOpts = Opts{
	Cols: 16,
	Rows: 2,
	Font: Font5x8,
	Bus:  FourBit,
}

const maxCols = 40

func (o *Opts) validate() error {
	if o.Cols < 1 || o.Cols > maxCols {
		return fmt.Errorf("%w: %d columns not supported", ErrInvalidConfiguration, o.Cols)
	}
	if o.Rows < 1 || o.Rows > maxRows {
		return fmt.Errorf("%w: %d rows not supported", ErrInvalidConfiguration, o.Rows)
	}
	switch o.Bus {
	case FourBit, EightBit:
	default:
		return fmt.Errorf("%w: unknown bus width %s", ErrInvalidConfiguration, o.Bus)
	}
	switch o.Font {
	case Font5x8, Font5x10:
	default:
		return fmt.Errorf("%w: unknown font %d", ErrInvalidConfiguration, o.Font)
	}
	if o.RowOffsets != nil {
		for i, off := range o.RowOffsets {
			if off >= CMD_DDRAM_Set {
				return fmt.Errorf("%w: row %d offset %#x outside DDRAM", ErrInvalidConfiguration, i, off)
			}
		}
	}
	return nil
}

func (o *Opts) clock() clockwork.Clock {
	if o.Clock == nil {
		return clockwork.NewRealClock()
	}
	return o.Clock
}

func (o *Opts) logger() *log.Logger {
	if o.Logger == nil {
		return log.StandardLogger()
	}
	return o.Logger
}
