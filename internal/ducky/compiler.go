// Package ducky compiles Ducky Script macros into commands.
package ducky

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/core"
	"wifihid-agent/internal/keys"
)

var (
	// ErrEmpty marks blank and comment lines.
	ErrEmpty        = errors.New("empty line")
	ErrUnrecognized = errors.New("unrecognized line")
	ErrMalformed    = errors.New("malformed line")
)

// Whole-line forms. None of them starts with a prefix rule below, so checking
// them first keeps the first-match order of the grammar.
var exactLines = map[string]core.Command{
	"ENTER":           tap("ENTER"),
	"ESC":             tap("ESC"),
	"TAB":             tap("TAB"),
	"BACKSPACE":       tap("BACKSPACE"),
	"DELETE":          tap("DELETE"),
	"GUI":             tap("GUI"),
	"ALT TAB":         combo("TAB", core.ModAlt),
	"CTRL ALT DELETE": combo("DELETE", core.ModCtrl, core.ModAlt),
	"CTRL ALT T":      combo("t", core.ModCtrl, core.ModAlt),
	"UP":              tap("UP"),
	"DOWN":            tap("DOWN"),
	"LEFT":            tap("LEFT"),
	"RIGHT":           tap("RIGHT"),
}

func init() {
	for i := 1; i <= 12; i++ {
		name := "F" + strconv.Itoa(i)
		exactLines[name] = tap(name)
	}
}

// Named GUI sub-keys; both cases are accepted where listed.
var guiKeys = map[string]string{
	"r": "r", "R": "r",
	"d": "d", "D": "d",
	"h": "h", "H": "h",
	"w": "w", "W": "w",
	"tab": "TAB", "TAB": "TAB",
	"SPACE": "SPACE",
}

func tap(key string) core.Command {
	return core.Command{Kind: core.KeyTap, Key: key}
}

func combo(key string, mods ...string) core.Command {
	return core.Command{Kind: core.KeyCombo, Mods: mods, Key: key}
}

// ParseLine compiles one script line. Blank and comment lines return ErrEmpty.
func ParseLine(line string) (core.Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "//") {
		return core.Command{}, ErrEmpty
	}

	if cmd, ok := exactLines[line]; ok {
		cmd.Mods = append([]string(nil), cmd.Mods...)
		return cmd, nil
	}

	switch {
	case strings.HasPrefix(line, "DELAY "):
		ms, err := strconv.Atoi(strings.TrimSpace(line[len("DELAY "):]))
		if err != nil {
			return core.Command{}, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		return core.Command{Kind: core.Delay, Delay: core.Milliseconds(ms)}, nil

	case strings.HasPrefix(line, "STRING "):
		return core.Command{Kind: core.TypeText, Text: line[len("STRING "):]}, nil

	case strings.HasPrefix(line, "GUI "):
		key := line[len("GUI "):]
		if named, ok := guiKeys[key]; ok {
			key = named
		}
		return combo(key, core.ModGUI), nil

	case strings.HasPrefix(line, "CTRL "):
		return singleKeyCombo(line, core.ModCtrl)

	case strings.HasPrefix(line, "ALT "):
		return singleKeyCombo(line, core.ModAlt)
	}

	return core.Command{}, fmt.Errorf("%w: %q", ErrUnrecognized, line)
}

// singleKeyCombo reads the key after "CTRL " or "ALT ": a named key such as F4
// or DELETE, otherwise the first character.
func singleKeyCombo(line, mod string) (core.Command, error) {
	rest := strings.TrimSpace(line[len(mod)+1:])
	if rest == "" {
		return core.Command{}, fmt.Errorf("%w: %q has no key", ErrMalformed, line)
	}
	if len(rest) > 1 {
		if _, ok := keys.Resolve(rest); ok {
			return combo(strings.ToUpper(rest), mod), nil
		}
	}
	return combo(rest[:1], mod), nil
}

// Skipped is a line that produced no command.
type Skipped struct {
	Line int
	Text string
	Err  error
}

// Program is a compiled script.
type Program struct {
	Commands []core.Command
	Skipped  []Skipped
}

// Compile parses every line of script. Blank and comment lines are dropped
// silently; unrecognized and malformed lines are listed in Skipped.
func Compile(script string) Program {
	var p Program
	for i, line := range strings.Split(script, "\n") {
		cmd, err := ParseLine(line)
		switch {
		case errors.Is(err, ErrEmpty):
		case err != nil:
			p.Skipped = append(p.Skipped, Skipped{Line: i + 1, Text: strings.TrimSpace(line), Err: err})
		default:
			p.Commands = append(p.Commands, cmd)
		}
	}
	return p
}

// Executor runs a single command.
type Executor interface {
	Dispatch(cmd core.Command) core.Result
}

// Run parses and executes script one line at a time: each recognized line is
// dispatched before the next one is read. Cancellation is checked between lines.
func Run(ctx context.Context, script string, exec Executor) core.Result {
	var res core.Result
	for i, line := range strings.Split(script, "\n") {
		if err := ctx.Err(); err != nil {
			log.Printf("[Ducky] Script stopped at line %d: %v", i+1, err)
			break
		}

		cmd, err := ParseLine(line)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			log.Warnf("[Ducky] Line %d skipped: %v", i+1, err)
			res.Skipped++
			continue
		}

		if exec.Dispatch(cmd).Executed {
			res.Commands++
		} else {
			res.Skipped++
		}
	}
	res.Executed = res.Commands > 0
	log.Printf("[Ducky] Script finished: %d executed, %d skipped", res.Commands, res.Skipped)
	return res
}
