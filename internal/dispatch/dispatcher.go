// Package dispatch executes commands against a HID actuator and runs the mouse jiggler.
package dispatch

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/core"
	"wifihid-agent/internal/hid"
	"wifihid-agent/internal/keys"
)

// Timings used around key and button sequences.
const (
	ComboGuard     = 50 * time.Millisecond
	DoubleClickGap = 50 * time.Millisecond
	MaxDelay       = 10 * time.Second
)

// LEDSetter is a status LED.
type LEDSetter interface {
	Set(on bool) error
}

var buttonBits = map[core.Button]byte{
	core.ButtonLeft:   keys.ButtonLeft,
	core.ButtonRight:  keys.ButtonRight,
	core.ButtonMiddle: keys.ButtonMiddle,
}

// Kinds that produce HID output and therefore need an available actuator.
var hidKinds = map[core.Kind]bool{
	core.KeyTap: true, core.KeyCombo: true, core.KeyPress: true, core.KeyRelease: true,
	core.KeyReleaseAll: true, core.TypeText: true, core.MouseMove: true, core.MouseClick: true,
	core.MouseDoubleClick: true, core.MousePress: true, core.MouseRelease: true, core.MouseScroll: true,
}

// Dispatcher executes one command at a time. It is not safe for concurrent use:
// callers serialize Dispatch and Tick on a single goroutine.
type Dispatcher struct {
	act     hid.Actuator
	jiggler *Jiggler
	led     LEDSetter

	now       func() time.Time
	sleep     func(time.Duration)
	rand      *rand.Rand
	onRestart func()
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now and time.Sleep.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(d *Dispatcher) {
		d.now = now
		d.sleep = sleep
	}
}

// WithRand sets the source used by the random jiggler.
func WithRand(r *rand.Rand) Option {
	return func(d *Dispatcher) { d.rand = r }
}

// WithLED wires LED_ON and LED_OFF to a real LED.
func WithLED(led LEDSetter) Option {
	return func(d *Dispatcher) { d.led = led }
}

// WithRestart sets the action run by RESTART.
func WithRestart(fn func()) Option {
	return func(d *Dispatcher) { d.onRestart = fn }
}

// New creates a Dispatcher. A nil actuator behaves like an unavailable one.
func New(act hid.Actuator, opts ...Option) *Dispatcher {
	if act == nil {
		act = hid.Nop{}
	}
	d := &Dispatcher{
		act:     act,
		jiggler: NewJiggler(),
		now:     time.Now,
		sleep:   time.Sleep,
		rand:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Jiggler returns a snapshot of the jiggler state.
func (d *Dispatcher) Jiggler() core.JigglerSnapshot {
	return d.jiggler.Snapshot()
}

// DispatchString parses a wire command and dispatches it.
func (d *Dispatcher) DispatchString(s string) core.Result {
	cmd, err := core.ParseCommand(s)
	if err != nil {
		log.Warnf("[Dispatcher] ERROR: Unknown command - %s (%v)", s, err)
		return core.Result{Reply: "ERROR: Unknown command"}
	}
	return d.Dispatch(cmd)
}

// Dispatch executes cmd. Failures are logged and reported through Result;
// Dispatch never panics on bad input or a missing backend.
func (d *Dispatcher) Dispatch(cmd core.Command) core.Result {
	if hidKinds[cmd.Kind] && !d.act.Available() {
		log.Debugf("[Dispatcher] HID unavailable, skipping %s", cmd)
		return core.Result{}
	}

	switch cmd.Kind {
	case core.TypeText:
		err := d.act.TypeText(cmd.Text)
		if err == nil && cmd.Newline {
			err = d.tap(keys.Enter)
		}
		return d.report(cmd, err)

	case core.KeyTap:
		code, ok := keys.Resolve(cmd.Key)
		if !ok {
			return d.unresolved(cmd, cmd.Key)
		}
		return d.report(cmd, d.tap(code))

	case core.KeyCombo:
		return d.combo(cmd)

	case core.KeyPress, core.KeyRelease:
		code, ok := keys.Resolve(cmd.Key)
		if !ok {
			return d.unresolved(cmd, cmd.Key)
		}
		if cmd.Kind == core.KeyPress {
			return d.report(cmd, d.act.PressKey(code))
		}
		return d.report(cmd, d.act.ReleaseKey(code))

	case core.KeyReleaseAll:
		return d.report(cmd, d.act.ReleaseAll())

	case core.MouseMove:
		return d.report(cmd, d.act.MoveMouse(cmd.DX, cmd.DY, 0))

	case core.MouseScroll:
		return d.report(cmd, d.act.MoveMouse(0, 0, cmd.Wheel))

	case core.MouseClick:
		return d.report(cmd, d.act.ClickButton(buttonBits[cmd.Button]))

	case core.MouseDoubleClick:
		b := buttonBits[cmd.Button]
		err := d.act.ClickButton(b)
		if err == nil {
			d.sleep(DoubleClickGap)
			err = d.act.ClickButton(b)
		}
		return d.report(cmd, err)

	case core.MousePress:
		return d.report(cmd, d.act.PressButton(buttonBits[cmd.Button]))

	case core.MouseRelease:
		return d.report(cmd, d.act.ReleaseButton(buttonBits[cmd.Button]))

	case core.Delay:
		if cmd.Delay <= 0 || cmd.Delay > MaxDelay {
			log.Warnf("[Dispatcher] Delay %v outside (0, %v], ignored", cmd.Delay, MaxDelay)
			return core.Result{}
		}
		d.sleep(cmd.Delay)
		return core.Result{Executed: true}

	case core.JigglerOn:
		if ignored := d.jiggler.apply(cmd.Jiggler); len(ignored) > 0 {
			log.Warnf("[Dispatcher] Jiggler kept previous %s", strings.Join(ignored, ", "))
		}
		d.jiggler.Enabled = true
		d.jiggler.lastFire = d.now()
		log.Printf("[Dispatcher] Jiggler enabled (type=%s, diameter=%d, delay=%v)", d.jiggler.Motion, d.jiggler.Diameter, d.jiggler.Interval)
		return core.Result{Executed: true}

	case core.JigglerOff:
		d.jiggler.Enabled = false
		log.Println("[Dispatcher] Jiggler disabled")
		return core.Result{Executed: true}

	case core.Utility:
		return d.utility(cmd)
	}

	log.Warnf("[Dispatcher] ERROR: Unknown command kind %v", cmd.Kind)
	return core.Result{Reply: "ERROR: Unknown command"}
}

func (d *Dispatcher) utility(cmd core.Command) core.Result {
	switch cmd.Utility {
	case core.UtilPing:
		return core.Result{Executed: true, Reply: "PONG"}
	case core.UtilStatus:
		return core.Result{Executed: true, Reply: d.jiggler.Snapshot().StatusLine(d.act.Available())}
	case core.UtilLEDOn, core.UtilLEDOff:
		if d.led == nil {
			return core.Result{}
		}
		return d.report(cmd, d.led.Set(cmd.Utility == core.UtilLEDOn))
	case core.UtilRestart:
		if d.onRestart == nil {
			log.Warn("[Dispatcher] RESTART requested but no restart handler is set")
			return core.Result{}
		}
		d.onRestart()
		return core.Result{Executed: true, Reply: "RESTARTING"}
	}
	return core.Result{Reply: "ERROR: Unknown command"}
}

// tap presses and releases a single key. Modifiers are held for ComboGuard so
// the host registers a lone GUI press.
func (d *Dispatcher) tap(code keys.Code) error {
	if err := d.act.PressKey(code); err != nil {
		return err
	}
	if code.IsModifier() {
		d.sleep(ComboGuard)
	}
	return d.act.ReleaseKey(code)
}

// combo presses every modifier, then the key, and always ends with ReleaseAll.
func (d *Dispatcher) combo(cmd core.Command) core.Result {
	codes := make([]keys.Code, 0, len(cmd.Mods)+1)
	for _, name := range append(append([]string(nil), cmd.Mods...), cmd.Key) {
		code, ok := keys.Resolve(name)
		if !ok {
			return d.unresolved(cmd, name)
		}
		codes = append(codes, code)
	}

	var errs []error
	for _, code := range codes[:len(codes)-1] {
		errs = append(errs, d.act.PressKey(code))
	}
	d.sleep(ComboGuard)
	errs = append(errs, d.act.PressKey(codes[len(codes)-1]))
	d.sleep(ComboGuard)
	errs = append(errs, d.act.ReleaseAll())

	return d.report(cmd, errors.Join(errs...))
}

// Tick fires the jiggler when its interval has elapsed. It must run on the same
// goroutine as Dispatch.
func (d *Dispatcher) Tick(now time.Time) {
	j := d.jiggler
	if !j.due(now) {
		return
	}
	j.lastFire = now

	if !d.act.Available() {
		return
	}

	var err error
	switch j.Motion {
	case MotionCircles:
		for i := 0; i < circleSteps && err == nil; i++ {
			dx, dy := circlePoint(j.Diameter, i)
			err = d.act.MoveMouse(dx, dy, 0)
			d.sleep(circleStepDelay)
		}
	case MotionRandom:
		dx := d.rand.IntN(2*j.Diameter+1) - j.Diameter
		dy := d.rand.IntN(2*j.Diameter+1) - j.Diameter
		err = d.act.MoveMouse(dx, dy, 0)
	default:
		err = d.act.MoveMouse(j.Diameter*j.direction, 0, 0)
		j.direction = -j.direction
	}
	if err != nil {
		log.Printf("[Dispatcher] Jiggle failed: %v", err)
	}
}

func (d *Dispatcher) report(cmd core.Command, err error) core.Result {
	if err != nil {
		log.Printf("[Dispatcher] %s failed: %v", cmd, err)
		return core.Result{}
	}
	log.Debugf("[Dispatcher] %s", cmd)
	return core.Result{Executed: true}
}

func (d *Dispatcher) unresolved(cmd core.Command, name string) core.Result {
	log.Warnf("[Dispatcher] %s: unresolved key %q, skipped", cmd, name)
	return core.Result{}
}
