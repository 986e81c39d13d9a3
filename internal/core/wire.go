package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMalformed      = errors.New("malformed command")
)

// Keys that are sent as a bare word and tapped.
var tapKeys = map[string]bool{
	"ENTER": true, "ESC": true, "TAB": true, "BACKSPACE": true, "DELETE": true,
	"UP": true, "DOWN": true, "LEFT": true, "RIGHT": true, "GUI": true,
	"F1": true, "F2": true, "F3": true, "F4": true, "F5": true, "F6": true,
	"F7": true, "F8": true, "F9": true, "F10": true, "F11": true, "F12": true,
}

// Named combos with a fixed wire form.
var namedCombos = map[string]Command{
	"GUI_R":         {Kind: KeyCombo, Mods: []string{ModGUI}, Key: "r"},
	"GUI_D":         {Kind: KeyCombo, Mods: []string{ModGUI}, Key: "d"},
	"GUI_H":         {Kind: KeyCombo, Mods: []string{ModGUI}, Key: "h"},
	"GUI_W":         {Kind: KeyCombo, Mods: []string{ModGUI}, Key: "w"},
	"GUI_SPACE":     {Kind: KeyCombo, Mods: []string{ModGUI}, Key: "SPACE"},
	"GUI_TAB":       {Kind: KeyCombo, Mods: []string{ModGUI}, Key: "TAB"},
	"GUI_ALT_SPACE": {Kind: KeyCombo, Mods: []string{ModGUI, ModAlt}, Key: "SPACE"},
	"ALT_TAB":       {Kind: KeyCombo, Mods: []string{ModAlt}, Key: "TAB"},
	"ALT_F4":        {Kind: KeyCombo, Mods: []string{ModAlt}, Key: "F4"},
	"CTRL_ALT_DEL":  {Kind: KeyCombo, Mods: []string{ModCtrl, ModAlt}, Key: "DELETE"},
	"CTRL_ALT_T":    {Kind: KeyCombo, Mods: []string{ModCtrl, ModAlt}, Key: "t"},
}

var simpleCommands = map[string]Command{
	"KEY_RELEASE_ALL": {Kind: KeyReleaseAll},
	"MOUSE_LEFT":      {Kind: MouseClick, Button: ButtonLeft},
	"MOUSE_RIGHT":     {Kind: MouseClick, Button: ButtonRight},
	"MOUSE_MIDDLE":    {Kind: MouseClick, Button: ButtonMiddle},
	"MOUSE_DOUBLE":    {Kind: MouseDoubleClick, Button: ButtonLeft},
	"MOUSE_PRESS":     {Kind: MousePress, Button: ButtonLeft},
	"MOUSE_RELEASE":   {Kind: MouseRelease, Button: ButtonLeft},
	"JIGGLE_OFF":      {Kind: JigglerOff},
	"PING":            {Kind: Utility, Utility: UtilPing},
	"STATUS":          {Kind: Utility, Utility: UtilStatus},
	"LED_ON":          {Kind: Utility, Utility: UtilLEDOn},
	"LED_OFF":         {Kind: Utility, Utility: UtilLEDOff},
	"RESTART":         {Kind: Utility, Utility: UtilRestart},
}

// ParseCommand translates a wire command string into a Command. Matching is
// exact and case-sensitive after trimming surrounding whitespace.
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)

	if tapKeys[s] {
		return Command{Kind: KeyTap, Key: s}, nil
	}
	if cmd, ok := namedCombos[s]; ok {
		cmd.Mods = append([]string(nil), cmd.Mods...)
		return cmd, nil
	}
	if cmd, ok := simpleCommands[s]; ok {
		return cmd, nil
	}

	switch {
	case s == "JIGGLE_ON" || strings.HasPrefix(s, "JIGGLE_ON "):
		return parseJiggleOn(s)
	case strings.HasPrefix(s, "TYPELN:"):
		return Command{Kind: TypeText, Text: s[len("TYPELN:"):], Newline: true}, nil
	case strings.HasPrefix(s, "TYPE:"):
		return Command{Kind: TypeText, Text: s[len("TYPE:"):]}, nil
	case strings.HasPrefix(s, "KEY_PRESS:"):
		return keyCommand(KeyPress, s[len("KEY_PRESS:"):])
	case strings.HasPrefix(s, "KEY_RELEASE:"):
		return keyCommand(KeyRelease, s[len("KEY_RELEASE:"):])
	case strings.HasPrefix(s, "COMBO:"):
		return parseCombo(s[len("COMBO:"):])
	case strings.HasPrefix(s, "GUI_"):
		key := s[len("GUI_"):]
		if key == "" {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		return Command{Kind: KeyCombo, Mods: []string{ModGUI}, Key: key}, nil
	case strings.HasPrefix(s, "CTRL_"):
		return singleCharCombo(ModCtrl, s, len("CTRL_"))
	case strings.HasPrefix(s, "ALT_"):
		return singleCharCombo(ModAlt, s, len("ALT_"))
	case strings.HasPrefix(s, "MOUSE_MOVE:"):
		x, y, ok := strings.Cut(s[len("MOUSE_MOVE:"):], ",")
		if !ok {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		dx, errX := strconv.Atoi(strings.TrimSpace(x))
		dy, errY := strconv.Atoi(strings.TrimSpace(y))
		if errX != nil || errY != nil {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		return Command{Kind: MouseMove, DX: dx, DY: dy}, nil
	case strings.HasPrefix(s, "SCROLL:"):
		n, err := strconv.Atoi(strings.TrimSpace(s[len("SCROLL:"):]))
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		return Command{Kind: MouseScroll, Wheel: n}, nil
	case strings.HasPrefix(s, "DELAY:"):
		ms, err := strconv.Atoi(strings.TrimSpace(s[len("DELAY:"):]))
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		return Command{Kind: Delay, Delay: Milliseconds(ms)}, nil
	}

	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

func keyCommand(kind Kind, name string) (Command, error) {
	if name == "" {
		return Command{}, fmt.Errorf("%w: empty key name", ErrMalformed)
	}
	return Command{Kind: kind, Key: name}, nil
}

// singleCharCombo takes the character right after the prefix, the way the
// legacy firmware read a fixed offset. A missing character is rejected.
func singleCharCombo(mod, s string, offset int) (Command, error) {
	if len(s) <= offset {
		return Command{}, fmt.Errorf("%w: %q has no key", ErrMalformed, s)
	}
	return Command{Kind: KeyCombo, Mods: []string{mod}, Key: s[offset : offset+1]}, nil
}

// parseCombo reads the generic "COMBO:CTRL+SHIFT+ESC" form.
func parseCombo(spec string) (Command, error) {
	parts := strings.Split(spec, "+")
	if len(parts) < 2 {
		return Command{}, fmt.Errorf("%w: combo %q needs a modifier and a key", ErrMalformed, spec)
	}
	cmd := Command{Kind: KeyCombo, Key: parts[len(parts)-1]}
	for _, m := range parts[:len(parts)-1] {
		m = strings.ToUpper(strings.TrimSpace(m))
		switch m {
		case ModCtrl, ModShift, ModAlt, ModGUI:
			cmd.Mods = append(cmd.Mods, m)
		default:
			return Command{}, fmt.Errorf("%w: unknown modifier %q", ErrMalformed, m)
		}
	}
	if cmd.Key == "" {
		return Command{}, fmt.Errorf("%w: combo %q has no key", ErrMalformed, spec)
	}
	return cmd, nil
}

// parseJiggleOn reads "JIGGLE_ON [type [diameter [intervalMs]]]". Arguments
// that do not parse are left zero and therefore ignored by the dispatcher.
func parseJiggleOn(s string) (Command, error) {
	cmd := Command{Kind: JigglerOn}
	fields := strings.Fields(s)[1:]
	if len(fields) > 0 && fields[0] != "-" {
		cmd.Jiggler.Motion = strings.ToLower(fields[0])
	}
	if len(fields) > 1 {
		if d, err := strconv.Atoi(fields[1]); err == nil {
			cmd.Jiggler.Diameter = d
		}
	}
	if len(fields) > 2 {
		if ms, err := strconv.Atoi(fields[2]); err == nil {
			cmd.Jiggler.Interval = Milliseconds(ms)
		}
	}
	return cmd, nil
}

// String renders c in its wire form. ParseCommand(c.String()) yields an
// equivalent command.
func (c Command) String() string {
	switch c.Kind {
	case KeyTap:
		return c.Key
	case KeyCombo:
		return c.comboString()
	case KeyPress:
		return "KEY_PRESS:" + c.Key
	case KeyRelease:
		return "KEY_RELEASE:" + c.Key
	case TypeText:
		if c.Newline {
			return "TYPELN:" + c.Text
		}
		return "TYPE:" + c.Text
	case MouseMove:
		return fmt.Sprintf("MOUSE_MOVE:%d,%d", c.DX, c.DY)
	case MouseScroll:
		return fmt.Sprintf("SCROLL:%d", c.Wheel)
	case Delay:
		return fmt.Sprintf("DELAY:%d", c.Delay.Milliseconds())
	case JigglerOn:
		return c.jiggleString()
	}
	for wire, cmd := range simpleCommands {
		if cmd.Kind == c.Kind && cmd.Button == c.Button && cmd.Utility == c.Utility {
			return wire
		}
	}
	return "UNKNOWN"
}

func (c Command) comboString() string {
	mods := strings.Join(c.Mods, "_")
	switch mods {
	case ModGUI:
		switch c.Key {
		case "r", "d", "h", "w", "R", "D", "H", "W", "SPACE", "TAB":
			return "GUI_" + strings.ToUpper(c.Key)
		}
		return "GUI_" + c.Key
	case ModGUI + "_" + ModAlt:
		if c.Key == "SPACE" {
			return "GUI_ALT_SPACE"
		}
	case ModAlt:
		if c.Key == "TAB" || c.Key == "F4" || len(c.Key) == 1 {
			return "ALT_" + c.Key
		}
	case ModCtrl + "_" + ModAlt:
		switch c.Key {
		case "DELETE":
			return "CTRL_ALT_DEL"
		case "t", "T":
			return "CTRL_ALT_T"
		}
	case ModCtrl:
		if len(c.Key) == 1 {
			return "CTRL_" + c.Key
		}
	}
	return "COMBO:" + strings.Join(append(append([]string(nil), c.Mods...), c.Key), "+")
}

func (c Command) jiggleString() string {
	p := c.Jiggler
	if p.Motion == "" && p.Diameter == 0 && p.Interval == 0 {
		return "JIGGLE_ON"
	}
	motion := p.Motion
	if motion == "" {
		motion = "-"
	}
	if p.Diameter == 0 && p.Interval == 0 {
		return "JIGGLE_ON " + motion
	}
	if p.Interval == 0 {
		return fmt.Sprintf("JIGGLE_ON %s %d", motion, p.Diameter)
	}
	return fmt.Sprintf("JIGGLE_ON %s %d %d", motion, p.Diameter, p.Interval.Milliseconds())
}
