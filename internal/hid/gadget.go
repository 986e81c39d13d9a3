package hid

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/keys"
)

// keyboardReport is the 8-byte boot keyboard report: modifiers, reserved, six keys.
type keyboardReport struct {
	mods  byte
	keys  [6]byte
	extra [6]byte // modifiers implied by the character in the same slot
}

func (r *keyboardReport) bytes() []byte {
	mods := r.mods
	for _, m := range r.extra {
		mods |= m
	}
	b := make([]byte, 8)
	b[0] = mods
	copy(b[2:], r.keys[:])
	return b
}

func (r *keyboardReport) add(usage, extra byte) bool {
	for i, k := range r.keys {
		if k == usage {
			r.extra[i] = extra
			return true
		}
	}
	for i, k := range r.keys {
		if k == keys.UsageNone {
			r.keys[i] = usage
			r.extra[i] = extra
			return true
		}
	}
	return false
}

func (r *keyboardReport) remove(usage byte) {
	for i, k := range r.keys {
		if k == usage {
			r.keys[i] = keys.UsageNone
			r.extra[i] = 0
		}
	}
}

// Gadget writes boot protocol reports to the Linux USB gadget HID functions,
// usually /dev/hidg0 for the keyboard and /dev/hidg1 for the mouse.
type Gadget struct {
	keyboard io.Writer
	mouse    io.Writer
	closers  []io.Closer
	writer   *frameWriter

	report  keyboardReport
	buttons byte
}

// NewGadget builds a gadget actuator on top of already opened report writers.
func NewGadget(ctx context.Context, keyboard, mouse io.Writer, ratePerSec float64, burst int) *Gadget {
	return &Gadget{
		keyboard: keyboard,
		mouse:    mouse,
		writer:   newFrameWriter(ctx, ratePerSec, burst),
	}
}

// OpenGadget opens the keyboard and mouse gadget device files.
func OpenGadget(ctx context.Context, keyboardPath, mousePath string, ratePerSec float64, burst int) (*Gadget, error) {
	kbd, err := os.OpenFile(keyboardPath, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open keyboard gadget %s: %w", keyboardPath, err)
	}
	mouse, err := os.OpenFile(mousePath, os.O_WRONLY, 0)
	if err != nil {
		kbd.Close()
		return nil, fmt.Errorf("open mouse gadget %s: %w", mousePath, err)
	}
	log.Printf("[HID] USB gadget ready (keyboard=%s, mouse=%s)", keyboardPath, mousePath)
	g := NewGadget(ctx, kbd, mouse, ratePerSec, burst)
	g.closers = []io.Closer{kbd, mouse}
	return g, nil
}

func (g *Gadget) Available() bool {
	return g.writer.available()
}

func (g *Gadget) sendKeyboard() error {
	return g.writer.send(g.keyboard, g.report.bytes())
}

func (g *Gadget) PressKey(c keys.Code) error {
	usage, mods, ok := c.Report()
	if !ok {
		return fmt.Errorf("no report for key %v", c)
	}
	if c.IsModifier() {
		g.report.mods |= mods
	} else if !g.report.add(usage, mods) {
		return fmt.Errorf("keyboard rollover: cannot press %v", c)
	}
	return g.sendKeyboard()
}

func (g *Gadget) ReleaseKey(c keys.Code) error {
	usage, mods, ok := c.Report()
	if !ok {
		return fmt.Errorf("no report for key %v", c)
	}
	if c.IsModifier() {
		g.report.mods &^= mods
	} else {
		g.report.remove(usage)
	}
	return g.sendKeyboard()
}

func (g *Gadget) ReleaseAll() error {
	g.report = keyboardReport{}
	return g.sendKeyboard()
}

// TypeText taps every character of s. Characters without a key on a US layout
// are skipped.
func (g *Gadget) TypeText(s string) error {
	held := g.report
	for i := 0; i < len(s); i++ {
		usage, mods, ok := keys.Stroke(s[i])
		if !ok {
			log.Debugf("[HID] No key for byte 0x%02X, skipping", s[i])
			continue
		}
		g.report = keyboardReport{mods: held.mods}
		g.report.add(usage, mods)
		if err := g.sendKeyboard(); err != nil {
			return err
		}
		g.report = keyboardReport{mods: held.mods}
		if err := g.sendKeyboard(); err != nil {
			return err
		}
	}
	g.report = held
	return nil
}

// MoveMouse sends relative motion, split into int8-sized steps.
func (g *Gadget) MoveMouse(dx, dy, wheel int) error {
	for dx != 0 || dy != 0 || wheel != 0 {
		sx, sy, sw := clamp8(dx), clamp8(dy), clamp8(wheel)
		payload := []byte{g.buttons, byte(sx), byte(sy), byte(sw)}
		if err := g.writer.send(g.mouse, payload); err != nil {
			return err
		}
		dx, dy, wheel = dx-int(sx), dy-int(sy), wheel-int(sw)
	}
	return nil
}

func (g *Gadget) sendButtons() error {
	return g.writer.send(g.mouse, []byte{g.buttons, 0, 0, 0})
}

func (g *Gadget) ClickButton(buttons byte) error {
	if err := g.PressButton(buttons); err != nil {
		return err
	}
	return g.ReleaseButton(buttons)
}

func (g *Gadget) PressButton(buttons byte) error {
	g.buttons |= buttons
	return g.sendButtons()
}

func (g *Gadget) ReleaseButton(buttons byte) error {
	g.buttons &^= buttons
	return g.sendButtons()
}

// Close releases the device files.
func (g *Gadget) Close() error {
	var first error
	for _, c := range g.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func clamp8(v int) int8 {
	switch {
	case v > 127:
		return 127
	case v < -127:
		return -127
	}
	return int8(v)
}
