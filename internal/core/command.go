package core

import (
	"context"
	"math"
	"time"
)

// Kind tags the variant held by a Command.
type Kind int

const (
	KindUnknown Kind = iota
	KeyTap
	KeyCombo
	KeyPress
	KeyRelease
	KeyReleaseAll
	TypeText
	MouseMove
	MouseClick
	MouseDoubleClick
	MousePress
	MouseRelease
	MouseScroll
	Delay
	JigglerOn
	JigglerOff
	Utility
)

var kindNames = map[Kind]string{
	KeyTap:           "KeyTap",
	KeyCombo:         "KeyCombo",
	KeyPress:         "KeyPress",
	KeyRelease:       "KeyRelease",
	KeyReleaseAll:    "KeyReleaseAll",
	TypeText:         "TypeText",
	MouseMove:        "MouseMove",
	MouseClick:       "MouseClick",
	MouseDoubleClick: "MouseDoubleClick",
	MousePress:       "MousePress",
	MouseRelease:     "MouseRelease",
	MouseScroll:      "MouseScroll",
	Delay:            "Delay",
	JigglerOn:        "JigglerOn",
	JigglerOff:       "JigglerOff",
	Utility:          "Utility",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Modifier names used in KeyCombo.
const (
	ModCtrl  = "CTRL"
	ModShift = "SHIFT"
	ModAlt   = "ALT"
	ModGUI   = "GUI"
)

// Button is a mouse button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

// UtilityOp is a diagnostic action with no HID output.
type UtilityOp int

const (
	UtilPing UtilityOp = iota
	UtilStatus
	UtilLEDOn
	UtilLEDOff
	UtilRestart
)

// JigglerParams carries the optional JIGGLE_ON arguments. Zero values mean
// "not given"; range checks happen when the dispatcher applies them.
type JigglerParams struct {
	Motion   string
	Diameter int
	Interval time.Duration
}

// Milliseconds converts a parsed millisecond count to a Duration, saturating
// instead of wrapping so huge inputs stay out of every accepted range.
func Milliseconds(ms int) time.Duration {
	const limit = math.MaxInt64 / int64(time.Millisecond)
	switch {
	case int64(ms) > limit:
		return math.MaxInt64
	case int64(ms) < -limit:
		return math.MinInt64
	}
	return time.Duration(ms) * time.Millisecond
}

// Command is a single semantic action.
type Command struct {
	Kind Kind

	// Key is a key name resolvable by keys.Resolve ("ENTER", "r", "F4").
	Key  string
	Mods []string

	Text    string
	Newline bool

	DX, DY, Wheel int
	Button        Button

	Delay   time.Duration
	Jiggler JigglerParams
	Utility UtilityOp
}

// Result is what the dispatch loop reports back to a transport.
type Result struct {
	Executed bool   `json:"executed"`
	Reply    string `json:"reply,omitempty"`

	// Script runs only.
	Commands int `json:"commands,omitempty"`
	Skipped  int `json:"skipped,omitempty"`
}

// Request is the envelope submitted to the agent's dispatch loop. Exactly one of
// Command or Script is set.
type Request struct {
	ID      string
	Source  string
	Command *Command
	Script  string
	Reply   chan Result
}

// RequestChannel is the single channel the agent's dispatch loop listens to.
type RequestChannel chan Request

// Submit queues req and waits for its result.
func (ch RequestChannel) Submit(ctx context.Context, req Request) (Result, error) {
	req.Reply = make(chan Result, 1)
	select {
	case ch <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-req.Reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Submitter accepts requests for the dispatch loop. RequestChannel is the
// production implementation.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Result, error)
}

// SubmitLine parses a wire command and submits it through s. Unparseable input
// is answered with the firmware's unknown command reply and the parse error.
func SubmitLine(ctx context.Context, s Submitter, source, line string) (Result, error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return Result{Reply: "ERROR: Unknown command"}, err
	}
	return s.Submit(ctx, Request{Source: source, Command: &cmd})
}

// SubmitScript submits a Ducky Script through s.
func SubmitScript(ctx context.Context, s Submitter, source, script string) (Result, error) {
	return s.Submit(ctx, Request{Source: source, Script: script})
}
