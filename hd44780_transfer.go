/*
Copyright 2024 Tim St. Pierre
Nibble and byte transfers over the parallel bus
*/
package hd44780

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

const (
	modeCommand gpio.Level = gpio.Low
	modeData    gpio.Level = gpio.High

	// Held on every enable edge. The controller needs >450ns high and >37us
	// to execute, 1ms leaves room for slow GPIO backends.
	delayEnable = time.Millisecond
)

func (d *Dev) command(value byte) {
	d.send(value, modeCommand)
}

// WriteChar writes one byte of character data at the current address. The
// bus has no acknowledge, so it always succeeds.
func (d *Dev) WriteChar(value byte) error {
	d.mustBeReady()
	d.writeChar(value)
	return nil
}

func (d *Dev) writeChar(value byte) {
	d.send(value, modeData)
}

func (d *Dev) send(value byte, mode gpio.Level) {
	if mode == modeData {
		d.log.Debugf("data %#04x", value)
	} else {
		d.log.Debugf("command %#04x", value)
	}
	d.out(d.pins.RS, mode)
	if d.opts.Bus == EightBit {
		d.writeByte(value)
		return
	}
	// high nibble first
	d.writeNibble(value >> 4)
	d.writeNibble(value)
}

func (d *Dev) writeNibble(value byte) {
	d.writeBits(value, 4)
}

func (d *Dev) writeByte(value byte) {
	d.writeBits(value, 8)
}

func (d *Dev) writeBits(value byte, n int) {
	for i, l := range d.pins.Data[:n] {
		d.out(l, gpio.Level((value>>i)&0x01 == 0x01))
	}
	d.pulseEnable()
}

func (d *Dev) pulseEnable() {
	d.out(d.pins.E, gpio.Low)
	d.clock.Sleep(delayEnable)
	d.out(d.pins.E, gpio.High)
	d.clock.Sleep(delayEnable)
	d.out(d.pins.E, gpio.Low)
	d.clock.Sleep(delayEnable)
}

// out drives one line. A failing line is logged and the transfer carries on,
// the bus gives no way to detect or repair it.
func (d *Dev) out(l gpio.PinOut, level gpio.Level) {
	if err := l.Out(level); err != nil {
		d.log.WithError(err).Warnf("setting %s to %s", l, level)
	}
}
