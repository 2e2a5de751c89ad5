/*
Copyright 2024 Tim St. Pierre
Fake parallel bus for HD44780 tests
*/
package hd44780

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// event is either a level written to a line or a delay.
type event struct {
	line  string
	level gpio.Level
	delay time.Duration
}

// transfer is what the controller latches on an enable falling edge.
type transfer struct {
	rs    gpio.Level
	value byte
}

type fakeBus struct {
	rs, e, bl *line
	data      []*line
	events    []event
	latched   []transfer
}

type line struct {
	*gpiotest.Pin
	bus *fakeBus
	err error
}

func (l *line) Out(level gpio.Level) error {
	prev := l.Read()
	_ = l.Pin.Out(level)
	l.bus.events = append(l.bus.events, event{line: l.N, level: level})
	if l == l.bus.e && prev == gpio.High && level == gpio.Low {
		l.bus.latch()
	}
	return l.err
}

func (b *fakeBus) latch() {
	var v byte
	for i, d := range b.data {
		if d.Read() == gpio.High {
			v |= 1 << i
		}
	}
	b.latched = append(b.latched, transfer{rs: b.rs.Read(), value: v})
}

type recordingClock struct {
	clockwork.Clock
	bus *fakeBus
}

func (c *recordingClock) Sleep(d time.Duration) {
	c.bus.events = append(c.bus.events, event{delay: d})
}

func newFakeBus(dataLines int) *fakeBus {
	b := &fakeBus{}
	b.rs = b.newLine("RS", 0)
	b.e = b.newLine("E", 1)
	b.bl = b.newLine("BL", 2)
	for i := 0; i < dataLines; i++ {
		b.data = append(b.data, b.newLine(fmt.Sprintf("D%d", i), 3+i))
	}
	return b
}

func (b *fakeBus) newLine(name string, num int) *line {
	return &line{Pin: &gpiotest.Pin{N: name, Num: num}, bus: b}
}

func (b *fakeBus) pins() *Pins {
	p := &Pins{RS: b.rs, E: b.e, Backlight: b.bl}
	for _, d := range b.data {
		p.Data = append(p.Data, d)
	}
	return p
}

func (b *fakeBus) reset() {
	b.events = nil
	b.latched = nil
}

// bytes reassembles the latched transfers into the bytes that were sent,
// pairing nibbles on a 4-bit bus.
func (b *fakeBus) bytes(t *testing.T, bus BusWidth) []transfer {
	t.Helper()
	if bus == EightBit {
		return b.latched
	}
	if len(b.latched)%2 != 0 {
		t.Fatalf("odd number of nibbles latched: %d", len(b.latched))
	}
	var out []transfer
	for i := 0; i < len(b.latched); i += 2 {
		hi, lo := b.latched[i], b.latched[i+1]
		if hi.rs != lo.rs {
			t.Fatalf("register select changed between nibbles of transfer %d", i/2)
		}
		out = append(out, transfer{rs: hi.rs, value: hi.value<<4 | lo.value&0x0f})
	}
	return out
}

// delays returns the delays other than the enable pulse holds.
func (b *fakeBus) delays() []time.Duration {
	var out []time.Duration
	for _, e := range b.events {
		if e.line == "" && e.delay != delayEnable {
			out = append(out, e.delay)
		}
	}
	return out
}

func (b *fakeBus) levels(name string) []gpio.Level {
	var out []gpio.Level
	for _, e := range b.events {
		if e.line == name {
			out = append(out, e.level)
		}
	}
	return out
}

// newTestDev returns an initialized display on a fake bus, with the init
// traffic already discarded.
func newTestDev(t *testing.T, opts Opts) (*Dev, *fakeBus, *test.Hook) {
	t.Helper()
	b := newFakeBus(int(opts.Bus))
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	opts.Clock = &recordingClock{Clock: clockwork.NewFakeClock(), bus: b}
	opts.Logger = logger
	d, err := NewGPIO(b.pins(), &opts)
	if err != nil {
		t.Fatal(err)
	}
	b.reset()
	hook.Reset()
	return d, b, hook
}

func commands(values ...byte) []transfer {
	out := make([]transfer, 0, len(values))
	for _, v := range values {
		out = append(out, transfer{rs: modeCommand, value: v})
	}
	return out
}

func equalTransfers(a, b []transfer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
