// Package keys resolves symbolic key names to key codes understood by the HID backends.
package keys

import (
	"strconv"
	"strings"
)

// Code identifies a key. The low byte holds either a literal ASCII character,
// a HID usage ID or a modifier bit, depending on the kind flag above it.
type Code uint16

const (
	kindChar     Code = 0x000
	kindUsage    Code = 0x100
	kindModifier Code = 0x200
	kindMask     Code = 0x300
)

// Named keys.
const (
	Ctrl      = kindModifier | ModLeftCtrl
	Shift     = kindModifier | ModLeftShift
	Alt       = kindModifier | ModLeftAlt
	GUI       = kindModifier | ModLeftGUI
	Enter     = kindUsage | UsageEnter
	Esc       = kindUsage | UsageEscape
	Backspace = kindUsage | UsageBackspace
	Tab       = kindUsage | UsageTab
	Space     = kindUsage | UsageSpace
	Delete    = kindUsage | UsageDelete
	Insert    = kindUsage | UsageInsert
	Home      = kindUsage | UsageHome
	End       = kindUsage | UsageEnd
	PageUp    = kindUsage | UsagePageUp
	PageDown  = kindUsage | UsagePageDown
	Up        = kindUsage | UsageUp
	Down      = kindUsage | UsageDown
	Left      = kindUsage | UsageLeft
	Right     = kindUsage | UsageRight
	CapsLock  = kindUsage | UsageCapsLock
)

var named = map[string]Code{
	"CTRL":      Ctrl,
	"SHIFT":     Shift,
	"ALT":       Alt,
	"GUI":       GUI,
	"ENTER":     Enter,
	"ESC":       Esc,
	"BACKSPACE": Backspace,
	"TAB":       Tab,
	"SPACE":     Space,
	"DELETE":    Delete,
	"INSERT":    Insert,
	"HOME":      Home,
	"END":       End,
	"PAGEUP":    PageUp,
	"PAGEDOWN":  PageDown,
	"UP":        Up,
	"DOWN":      Down,
	"LEFT":      Left,
	"RIGHT":     Right,
	"CAPSLOCK":  CapsLock,
}

// Char returns the code for a literal character.
func Char(c byte) Code {
	return kindChar | Code(c)
}

// Function returns the code for F1..F12.
func Function(n int) (Code, bool) {
	if n < 1 || n > 12 {
		return 0, false
	}
	return kindUsage | Code(UsageF1+n-1), true
}

// Resolve maps a key name to its code. A single character resolves to itself;
// longer names are matched case-insensitively against the named table and F1..F12.
func Resolve(name string) (Code, bool) {
	switch {
	case name == "":
		return 0, false
	case len(name) == 1:
		if name[0] >= 0x80 {
			return 0, false
		}
		return Char(name[0]), true
	}

	upper := strings.ToUpper(name)
	if c, ok := named[upper]; ok {
		return c, true
	}
	if rest, ok := strings.CutPrefix(upper, "F"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return 0, false
		}
		return Function(n)
	}
	return 0, false
}

// IsModifier reports whether c is one of CTRL, SHIFT, ALT or GUI.
func (c Code) IsModifier() bool {
	return c&kindMask == kindModifier
}

// Report returns the usage ID and modifier bits that press c on the wire.
// Modifiers yield a zero usage. Characters are translated through the US layout.
func (c Code) Report() (usage, mods byte, ok bool) {
	low := byte(c)
	switch c & kindMask {
	case kindModifier:
		return UsageNone, low, true
	case kindUsage:
		return low, 0, true
	default:
		return Stroke(low)
	}
}

func (c Code) String() string {
	low := byte(c)
	switch c & kindMask {
	case kindModifier:
		for name, code := range named {
			if code == c {
				return name
			}
		}
	case kindUsage:
		if low >= UsageF1 && low <= UsageF12 {
			return "F" + strconv.Itoa(int(low-UsageF1)+1)
		}
		for name, code := range named {
			if code == c {
				return name
			}
		}
	default:
		return string(rune(low))
	}
	return "0x" + strconv.FormatUint(uint64(c), 16)
}
