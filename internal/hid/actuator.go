// Package hid drives the keyboard and mouse seen by the target host.
package hid

import (
	"errors"
	"os"

	"wifihid-agent/internal/keys"
)

var ErrUnavailable = errors.New("hid backend unavailable")

// Actuator performs real keyboard and mouse output. Implementations are not
// required to be safe for concurrent use.
type Actuator interface {
	// Available reports whether output reaches a host.
	Available() bool
	PressKey(c keys.Code) error
	ReleaseKey(c keys.Code) error
	ReleaseAll() error
	TypeText(s string) error
	MoveMouse(dx, dy, wheel int) error
	ClickButton(buttons byte) error
	PressButton(buttons byte) error
	ReleaseButton(buttons byte) error
}

// Nop is the actuator used when no backend could be opened.
type Nop struct{}

func (Nop) Available() bool                { return false }
func (Nop) PressKey(keys.Code) error       { return ErrUnavailable }
func (Nop) ReleaseKey(keys.Code) error     { return ErrUnavailable }
func (Nop) ReleaseAll() error              { return ErrUnavailable }
func (Nop) TypeText(string) error          { return ErrUnavailable }
func (Nop) MoveMouse(int, int, int) error  { return ErrUnavailable }
func (Nop) ClickButton(byte) error         { return ErrUnavailable }
func (Nop) PressButton(byte) error         { return ErrUnavailable }
func (Nop) ReleaseButton(byte) error       { return ErrUnavailable }

// LED toggles a status LED through a sysfs brightness file. An empty path makes
// every call a no-op.
type LED struct {
	path string
}

func NewLED(path string) *LED {
	return &LED{path: path}
}

func (l *LED) Set(on bool) error {
	if l == nil || l.path == "" {
		return nil
	}
	val := []byte("0")
	if on {
		val = []byte("1")
	}
	return os.WriteFile(l.path, val, 0644)
}
