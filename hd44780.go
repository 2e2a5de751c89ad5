/*
Copyright 2024 Tim St. Pierre
Controls an HD44780 character LCD wired to GPIO lines in 4-bit or 8-bit mode
*/
package hd44780

import (
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

const (
	// Commands
	CMD_Clear_Display        = 0x01
	CMD_Return_Home          = 0x02
	CMD_Entry_Mode           = 0x04
	CMD_Display_Control      = 0x08
	CMD_Cursor_Display_Shift = 0x10
	CMD_Function_Set         = 0x20
	CMD_CGRAM_Set            = 0x40
	CMD_DDRAM_Set            = 0x80

	// Options
	OPT_Increment      = 0x02 // CMD_Entry_Mode 0 = right to left
	OPT_Entry_Shift    = 0x01 // CMD_Entry_Mode
	OPT_Enable_Display = 0x04 // CMD_Display_Control
	OPT_Enable_Cursor  = 0x02 // CMD_Display_Control
	OPT_Enable_Blink   = 0x01 // CMD_Display_Control
	OPT_Display_Shift  = 0x08 // CMD_Cursor_Display_Shift 0 = move cursor
	OPT_Shift_Right    = 0x04 // CMD_Cursor_Display_Shift 0 = Left
	OPT_8Bit_Mode      = 0x10 // CMD_Function_Set 0 = 4 bit
	OPT_2_Lines        = 0x08 // CMD_Function_Set 0 = 1 line
	OPT_5x10_Dots      = 0x04 // CMD_Function_Set 0 = 5x8 dots
)

const (
	maxRows = 4

	delayPowerUp = 40 * time.Millisecond
	// Clear and home take 1.52ms at the nominal clock, up to ~1.64ms on a
	// slow one.
	delayClear = 2 * time.Millisecond
)

type state uint8

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
)

// Dev is an HD44780 display on a parallel bus.
//
// Dev is not safe for concurrent use; callers sharing one must serialize
// access.
type Dev struct {
	pins  Pins
	opts  Opts
	clock clockwork.Clock
	log   *log.Entry
	state state

	displayFunction byte
	displayControl  byte
	displayMode     byte
	rowOffsets      [maxRows]byte
}

// NewGPIO returns a display driven through pins, initialized and ready for
// use: display on, cursor and blink off, cleared, text flowing left to
// right.
//
// Use default options if nil is used.
func NewGPIO(pins *Pins, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if err := opts.validate(); err != nil {
		opts.logger().WithError(err).Error("hd44780: rejecting configuration")
		return nil, fmt.Errorf("hd44780: %w", err)
	}
	if err := pins.validate(opts.Bus); err != nil {
		opts.logger().WithError(err).Error("hd44780: rejecting configuration")
		return nil, fmt.Errorf("hd44780: %w", err)
	}
	// Own copy of the data lines, later edits to pins must not reach the bus.
	owned := *pins
	owned.Data = append([]gpio.PinOut(nil), pins.Data[:opts.Bus]...)
	d := &Dev{
		pins:  owned,
		opts:  *opts,
		clock: opts.clock(),
	}
	d.log = opts.logger().WithField("dev", d.String())
	d.init()
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("hd44780{%s, %dx%d, rs=%s, e=%s}", d.opts.Bus, d.opts.Cols, d.opts.Rows, d.pins.RS, d.pins.E)
}

// See the datasheet, figure 23 (8-bit) and figure 24 (4-bit).
func (d *Dev) init() {
	d.state = stateInitializing

	if d.opts.Bus == EightBit {
		d.displayFunction = OPT_8Bit_Mode
	}
	if d.opts.Rows > 1 {
		d.displayFunction |= OPT_2_Lines
	}
	if d.opts.Font == Font5x10 && d.opts.Rows == 1 {
		d.displayFunction |= OPT_5x10_Dots
	}
	d.rowOffsets = rowOffsets(d.opts.Cols)
	if d.opts.RowOffsets != nil {
		d.rowOffsets = *d.opts.RowOffsets
	}

	for _, l := range d.pins.used(d.opts.Bus) {
		d.out(l, gpio.Low)
	}
	d.clock.Sleep(delayPowerUp)
	d.out(d.pins.RS, modeCommand)
	d.out(d.pins.E, gpio.Low)

	d.log.Debug("mode set handshake")
	if d.opts.Bus == FourBit {
		// The controller powers up in 8-bit mode and may be mid-transfer,
		// 0x03 three times resyncs it before switching to 4-bit.
		d.writeNibble(0x03)
		d.clock.Sleep(5 * time.Millisecond)
		d.writeNibble(0x03)
		d.clock.Sleep(5 * time.Millisecond)
		d.writeNibble(0x03)
		d.clock.Sleep(2 * time.Millisecond)
		d.writeNibble(0x02)
	} else {
		d.command(CMD_Function_Set | d.displayFunction)
		d.clock.Sleep(5 * time.Millisecond)
		d.command(CMD_Function_Set | d.displayFunction)
		d.clock.Sleep(2 * time.Millisecond)
		d.command(CMD_Function_Set | d.displayFunction)
	}

	// lines and font
	d.command(CMD_Function_Set | d.displayFunction)

	d.displayControl = OPT_Enable_Display
	d.writeDisplaySwitch()
	d.clear()
	d.displayMode = OPT_Increment
	d.writeEntryMode()

	if d.pins.Backlight != nil {
		d.out(d.pins.Backlight, gpio.High)
	}

	d.state = stateReady
	d.log.WithFields(log.Fields{
		"cols":     d.opts.Cols,
		"rows":     d.opts.Rows,
		"function": fmt.Sprintf("%#04x", d.displayFunction),
	}).Info("display initialized")
}

// rowOffsets returns the DDRAM address of the first cell of each row. Rows
// 2 and 3 of a 4 line panel continue rows 0 and 1.
func rowOffsets(cols uint8) [maxRows]byte {
	return [maxRows]byte{0x00, 0x40, cols, 0x40 + cols}
}

func (d *Dev) mustBeReady() {
	if d.state != stateReady {
		panic("hd44780: device used before initialization")
	}
}

func (d *Dev) Cols() int {
	return int(d.opts.Cols)
}

func (d *Dev) Rows() int {
	return int(d.opts.Rows)
}

func (d *Dev) Bus() BusWidth {
	return d.opts.Bus
}

// Halt clears the display, turns it and the backlight off and pulls every
// line low.
func (d *Dev) Halt() error {
	d.mustBeReady()
	d.Clear()
	d.NoDisplay()
	d.SetBacklight(false)
	for _, l := range d.pins.used(d.opts.Bus) {
		d.out(l, gpio.Low)
	}
	return nil
}

// SetBacklight switches the backlight line. It does nothing when no
// backlight line is wired.
func (d *Dev) SetBacklight(on bool) {
	d.mustBeReady()
	if d.pins.Backlight == nil {
		return
	}
	d.out(d.pins.Backlight, gpio.Level(on))
}

// Clear blanks the display and moves the cursor home.
func (d *Dev) Clear() {
	d.mustBeReady()
	d.clear()
}

func (d *Dev) clear() {
	d.command(CMD_Clear_Display)
	d.clock.Sleep(delayClear)
}

// Home moves the cursor to the first cell and undoes any display shift.
func (d *Dev) Home() {
	d.mustBeReady()
	d.command(CMD_Return_Home)
	d.clock.Sleep(delayClear)
}

// SetCursor moves the cursor to col, row, both counted from 0. Rows past the
// last one land on the last row. col is not checked: addresses past the
// visible columns hit off-screen DDRAM.
func (d *Dev) SetCursor(col, row int) {
	d.mustBeReady()
	if row >= int(d.opts.Rows) {
		row = int(d.opts.Rows) - 1
	}
	if row < 0 {
		row = 0
	}
	d.command(CMD_DDRAM_Set | byte(col+int(d.rowOffsets[row])))
}

func (d *Dev) Display() {
	d.setControl(OPT_Enable_Display, true)
}

func (d *Dev) NoDisplay() {
	d.setControl(OPT_Enable_Display, false)
}

// Cursor shows the underline cursor.
func (d *Dev) Cursor() {
	d.setControl(OPT_Enable_Cursor, true)
}

func (d *Dev) NoCursor() {
	d.setControl(OPT_Enable_Cursor, false)
}

// Blink turns on the blinking block cursor.
func (d *Dev) Blink() {
	d.setControl(OPT_Enable_Blink, true)
}

func (d *Dev) NoBlink() {
	d.setControl(OPT_Enable_Blink, false)
}

func (d *Dev) setControl(flag byte, on bool) {
	d.mustBeReady()
	d.displayControl = setFlag(d.displayControl, flag, on)
	d.writeDisplaySwitch()
}

func (d *Dev) writeDisplaySwitch() {
	d.command(CMD_Display_Control | d.displayControl)
}

// ScrollDisplayLeft shifts the whole display one cell left without touching
// DDRAM.
func (d *Dev) ScrollDisplayLeft() {
	d.mustBeReady()
	d.command(CMD_Cursor_Display_Shift | OPT_Display_Shift)
}

func (d *Dev) ScrollDisplayRight() {
	d.mustBeReady()
	d.command(CMD_Cursor_Display_Shift | OPT_Display_Shift | OPT_Shift_Right)
}

// MoveCursorLeft moves the cursor one cell left without writing.
func (d *Dev) MoveCursorLeft() {
	d.mustBeReady()
	d.command(CMD_Cursor_Display_Shift)
}

func (d *Dev) MoveCursorRight() {
	d.mustBeReady()
	d.command(CMD_Cursor_Display_Shift | OPT_Shift_Right)
}

func (d *Dev) LeftToRight() {
	d.setMode(OPT_Increment, true)
}

func (d *Dev) RightToLeft() {
	d.setMode(OPT_Increment, false)
}

// Autoscroll shifts the display on every write, so text appears to be
// right justified at the cursor.
func (d *Dev) Autoscroll() {
	d.setMode(OPT_Entry_Shift, true)
}

func (d *Dev) NoAutoscroll() {
	d.setMode(OPT_Entry_Shift, false)
}

func (d *Dev) setMode(flag byte, on bool) {
	d.mustBeReady()
	d.displayMode = setFlag(d.displayMode, flag, on)
	d.writeEntryMode()
}

func (d *Dev) writeEntryMode() {
	d.command(CMD_Entry_Mode | d.displayMode)
}

// CreateChar stores a custom glyph in one of the 8 CGRAM slots, location is
// masked to 0-7. Each byte is one row of the glyph, low 5 bits used.
//
// The controller stays in CGRAM addressing afterwards: call SetCursor before
// writing text again. The glyph is shown by writing byte location.
func (d *Dev) CreateChar(location byte, glyph [8]byte) {
	d.mustBeReady()
	location &= 0x07
	d.command(CMD_CGRAM_Set | location<<3)
	for _, row := range glyph {
		d.writeChar(row)
	}
}

// Print writes text at the cursor, one byte per cell.
func (d *Dev) Print(text string) error {
	d.mustBeReady()
	for i := 0; i < len(text); i++ {
		if err := d.WriteChar(text[i]); err != nil {
			return err
		}
	}
	return nil
}

// Write implements io.Writer.
func (d *Dev) Write(buf []byte) (int, error) {
	d.mustBeReady()
	for _, c := range buf {
		d.writeChar(c)
	}
	return len(buf), nil
}

func (d *Dev) WriteString(text string) (int, error) {
	return len(text), d.Print(text)
}

func setFlag(mask, flag byte, on bool) byte {
	if on {
		return mask | flag
	}
	return mask &^ flag
}

var _ conn.Resource = &Dev{}
var _ io.Writer = &Dev{}
var _ io.StringWriter = &Dev{}
