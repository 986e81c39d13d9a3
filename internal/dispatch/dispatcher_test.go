package dispatch

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"wifihid-agent/internal/core"
	"wifihid-agent/internal/keys"
)

// fakeActuator records every call in order.
type fakeActuator struct {
	calls       []string
	unavailable bool
	failPress   bool
}

func (f *fakeActuator) Available() bool { return !f.unavailable }

func (f *fakeActuator) PressKey(c keys.Code) error {
	f.calls = append(f.calls, "press:"+c.String())
	if f.failPress {
		return errors.New("press failed")
	}
	return nil
}

func (f *fakeActuator) ReleaseKey(c keys.Code) error {
	f.calls = append(f.calls, "release:"+c.String())
	return nil
}

func (f *fakeActuator) ReleaseAll() error {
	f.calls = append(f.calls, "releaseAll")
	return nil
}

func (f *fakeActuator) TypeText(s string) error {
	f.calls = append(f.calls, "type:"+s)
	return nil
}

func (f *fakeActuator) MoveMouse(dx, dy, wheel int) error {
	f.calls = append(f.calls, fmt.Sprintf("move:%d,%d,%d", dx, dy, wheel))
	return nil
}

func (f *fakeActuator) ClickButton(b byte) error {
	f.calls = append(f.calls, fmt.Sprintf("click:%d", b))
	return nil
}

func (f *fakeActuator) PressButton(b byte) error {
	f.calls = append(f.calls, fmt.Sprintf("buttonDown:%d", b))
	return nil
}

func (f *fakeActuator) ReleaseButton(b byte) error {
	f.calls = append(f.calls, fmt.Sprintf("buttonUp:%d", b))
	return nil
}

// fakeClock advances only when slept on.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

func newTestDispatcher() (*Dispatcher, *fakeActuator, *fakeClock) {
	act := &fakeActuator{}
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := New(act, WithClock(clock.now, clock.sleep), WithRand(rand.New(rand.NewPCG(1, 2))))
	return d, act, clock
}

func TestDispatchKeys(t *testing.T) {
	tests := []struct {
		cmd    string
		calls  []string
		sleeps []time.Duration
	}{
		{"ENTER", []string{"press:ENTER", "release:ENTER"}, nil},
		{"F5", []string{"press:F5", "release:F5"}, nil},
		{"GUI", []string{"press:GUI", "release:GUI"}, []time.Duration{ComboGuard}},
		{"TYPE:hello", []string{"type:hello"}, nil},
		{"TYPELN:ls", []string{"type:ls", "press:ENTER", "release:ENTER"}, nil},
		{"GUI_R", []string{"press:GUI", "press:r", "releaseAll"}, []time.Duration{ComboGuard, ComboGuard}},
		{"CTRL_ALT_DEL", []string{"press:CTRL", "press:ALT", "press:DELETE", "releaseAll"}, []time.Duration{ComboGuard, ComboGuard}},
		{"ALT_F4", []string{"press:ALT", "press:F4", "releaseAll"}, []time.Duration{ComboGuard, ComboGuard}},
		{"GUI_x", []string{"press:GUI", "press:x", "releaseAll"}, []time.Duration{ComboGuard, ComboGuard}},
		{"KEY_PRESS:shift", []string{"press:SHIFT"}, nil},
		{"KEY_RELEASE:a", []string{"release:a"}, nil},
		{"KEY_RELEASE_ALL", []string{"releaseAll"}, nil},
		{"MOUSE_MOVE:5,-7", []string{"move:5,-7,0"}, nil},
		{"SCROLL:-2", []string{"move:0,0,-2"}, nil},
		{"MOUSE_RIGHT", []string{"click:2"}, nil},
		{"MOUSE_DOUBLE", []string{"click:1", "click:1"}, []time.Duration{DoubleClickGap}},
		{"MOUSE_PRESS", []string{"buttonDown:1"}, nil},
		{"MOUSE_RELEASE", []string{"buttonUp:1"}, nil},
	}

	for _, tt := range tests {
		d, act, clock := newTestDispatcher()
		res := d.DispatchString(tt.cmd)
		if !res.Executed {
			t.Errorf("%s: expected executed", tt.cmd)
		}
		if diff := cmp.Diff(tt.calls, act.calls); diff != "" {
			t.Errorf("%s: actuator calls mismatch (-want +got):\n%s", tt.cmd, diff)
		}
		if diff := cmp.Diff(tt.sleeps, clock.sleeps); diff != "" {
			t.Errorf("%s: sleeps mismatch (-want +got):\n%s", tt.cmd, diff)
		}
	}
}

func TestComboReleasesAfterFailedPress(t *testing.T) {
	d, act, _ := newTestDispatcher()
	act.failPress = true

	res := d.DispatchString("CTRL_c")
	if res.Executed {
		t.Error("Expected failed combo to report not executed")
	}
	if n := len(act.calls); n == 0 || act.calls[n-1] != "releaseAll" {
		t.Errorf("Expected combo to end with releaseAll, got %v", act.calls)
	}
}

func TestComboWithUnresolvedKeyPressesNothing(t *testing.T) {
	d, act, _ := newTestDispatcher()
	res := d.DispatchString("GUI_NOTAKEY")
	if res.Executed || len(act.calls) != 0 {
		t.Errorf("Expected no actuator calls, got %v (executed=%v)", act.calls, res.Executed)
	}
}

func TestUnknownCommandIsObservableNoop(t *testing.T) {
	d, act, _ := newTestDispatcher()
	res := d.DispatchString("FOO_BAR")
	if res.Executed {
		t.Error("Expected unknown command to be not executed")
	}
	if res.Reply != "ERROR: Unknown command" {
		t.Errorf("Unexpected reply %q", res.Reply)
	}
	if len(act.calls) != 0 {
		t.Errorf("Expected no actuator calls, got %v", act.calls)
	}
}

func TestDelay(t *testing.T) {
	tests := []struct {
		cmd      string
		executed bool
		sleeps   []time.Duration
	}{
		{"DELAY:500", true, []time.Duration{500 * time.Millisecond}},
		{"DELAY:10000", true, []time.Duration{10 * time.Second}},
		{"DELAY:20000", false, nil},
		{"DELAY:0", false, nil},
		{"DELAY:-5", false, nil},
		{"DELAY:18446744073710", false, nil},
		{"DELAY:-18446744073710", false, nil},
	}
	for _, tt := range tests {
		d, _, clock := newTestDispatcher()
		if res := d.DispatchString(tt.cmd); res.Executed != tt.executed {
			t.Errorf("%s: expected executed=%v, got %v", tt.cmd, tt.executed, res.Executed)
		}
		if diff := cmp.Diff(tt.sleeps, clock.sleeps); diff != "" {
			t.Errorf("%s: sleeps mismatch (-want +got):\n%s", tt.cmd, diff)
		}
	}
}

func TestUtilities(t *testing.T) {
	d, act, _ := newTestDispatcher()

	if res := d.DispatchString("PING"); res.Reply != "PONG" {
		t.Errorf("Expected PONG, got %q", res.Reply)
	}
	if res := d.DispatchString("STATUS"); res.Reply != "STATUS:Jiggler=OFF,USB=ENABLED" {
		t.Errorf("Unexpected status %q", res.Reply)
	}
	d.DispatchString("JIGGLE_ON")
	act.unavailable = true
	if res := d.DispatchString("STATUS"); res.Reply != "STATUS:Jiggler=ON,USB=DISABLED" {
		t.Errorf("Unexpected status %q", res.Reply)
	}

	restarted := false
	d2 := New(&fakeActuator{}, WithRestart(func() { restarted = true }))
	if res := d2.DispatchString("RESTART"); !res.Executed || !restarted {
		t.Error("Expected RESTART to run the restart handler")
	}
}

type fakeLED struct{ on []bool }

func (l *fakeLED) Set(on bool) error {
	l.on = append(l.on, on)
	return nil
}

func TestLED(t *testing.T) {
	led := &fakeLED{}
	d := New(&fakeActuator{}, WithLED(led))
	d.DispatchString("LED_ON")
	d.DispatchString("LED_OFF")
	if diff := cmp.Diff([]bool{true, false}, led.on); diff != "" {
		t.Errorf("LED mismatch (-want +got):\n%s", diff)
	}
}

func TestUnavailableActuatorIsNoop(t *testing.T) {
	for _, d := range []*Dispatcher{New(nil), New(&fakeActuator{unavailable: true})} {
		for _, cmd := range []string{"ENTER", "GUI_R", "TYPE:x", "MOUSE_MOVE:1,1", "MOUSE_DOUBLE"} {
			if res := d.DispatchString(cmd); res.Executed {
				t.Errorf("%s: expected no-op without a backend", cmd)
			}
		}
		if res := d.DispatchString("JIGGLE_ON"); !res.Executed {
			t.Error("Expected jiggler control to work without a backend")
		}
		d.Tick(time.Now().Add(time.Hour))
	}
}

func TestJigglerDefaults(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.DispatchString("JIGGLE_ON")

	want := core.JigglerSnapshot{Enabled: true, Motion: "simple", Diameter: 2, Interval: 2 * time.Second}
	if diff := cmp.Diff(want, d.Jiggler()); diff != "" {
		t.Errorf("jiggler mismatch (-want +got):\n%s", diff)
	}
}

func TestJigglerSettingsSurviveDisable(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.DispatchString("JIGGLE_ON circles 5 3000")
	d.DispatchString("JIGGLE_OFF")
	d.DispatchString("JIGGLE_OFF")

	want := core.JigglerSnapshot{Enabled: false, Motion: "circles", Diameter: 5, Interval: 3 * time.Second}
	if diff := cmp.Diff(want, d.Jiggler()); diff != "" {
		t.Errorf("jiggler mismatch (-want +got):\n%s", diff)
	}
}

func TestJigglerPartialApplication(t *testing.T) {
	tests := []struct {
		cmds []string
		want core.JigglerSnapshot
	}{
		{
			[]string{"JIGGLE_ON random 7 1500", "JIGGLE_ON simple 500 2500"},
			core.JigglerSnapshot{Enabled: true, Motion: "simple", Diameter: 7, Interval: 2500 * time.Millisecond},
		},
		{
			[]string{"JIGGLE_ON circles 5 3000", "JIGGLE_ON wobble 0 50"},
			core.JigglerSnapshot{Enabled: true, Motion: "circles", Diameter: 5, Interval: 3 * time.Second},
		},
		{
			[]string{"JIGGLE_ON circles 5 3000", "JIGGLE_ON random"},
			core.JigglerSnapshot{Enabled: true, Motion: "random", Diameter: 5, Interval: 3 * time.Second},
		},
		{
			[]string{"JIGGLE_ON RANDOM 100 60000"},
			core.JigglerSnapshot{Enabled: true, Motion: "random", Diameter: 100, Interval: time.Minute},
		},
		{
			[]string{"JIGGLE_ON simple 101 60001"},
			core.JigglerSnapshot{Enabled: true, Motion: "simple", Diameter: 2, Interval: 2 * time.Second},
		},
		{
			[]string{"JIGGLE_ON circles 5 3000", "JIGGLE_ON simple 4 18446744073710"},
			core.JigglerSnapshot{Enabled: true, Motion: "simple", Diameter: 4, Interval: 3 * time.Second},
		},
	}

	for _, tt := range tests {
		d, _, _ := newTestDispatcher()
		for _, cmd := range tt.cmds {
			d.DispatchString(cmd)
		}
		if diff := cmp.Diff(tt.want, d.Jiggler()); diff != "" {
			t.Errorf("%v: jiggler mismatch (-want +got):\n%s", tt.cmds, diff)
		}
	}
}

func TestJigglerSimpleAlternates(t *testing.T) {
	d, act, clock := newTestDispatcher()
	d.DispatchString("JIGGLE_ON simple 3 1000")

	start := clock.now()
	d.Tick(start.Add(500 * time.Millisecond))
	if len(act.calls) != 0 {
		t.Fatalf("Expected no jiggle before the interval, got %v", act.calls)
	}
	for i := 1; i <= 3; i++ {
		d.Tick(start.Add(time.Duration(i) * time.Second))
	}

	want := []string{"move:3,0,0", "move:-3,0,0", "move:3,0,0"}
	if diff := cmp.Diff(want, act.calls); diff != "" {
		t.Errorf("jiggle moves mismatch (-want +got):\n%s", diff)
	}
}

func TestJigglerDisabledDoesNotMove(t *testing.T) {
	d, act, clock := newTestDispatcher()
	d.Tick(clock.now().Add(time.Hour))
	d.DispatchString("JIGGLE_ON")
	d.DispatchString("JIGGLE_OFF")
	d.Tick(clock.now().Add(time.Hour))
	if len(act.calls) != 0 {
		t.Errorf("Expected no moves, got %v", act.calls)
	}
}

func TestJigglerCircles(t *testing.T) {
	d, act, clock := newTestDispatcher()
	d.DispatchString("JIGGLE_ON circles 10 1000")
	d.Tick(clock.now().Add(time.Second))

	if len(act.calls) != circleSteps {
		t.Fatalf("Expected %d moves, got %d", circleSteps, len(act.calls))
	}
	if act.calls[0] != "move:10,0,0" || act.calls[9] != "move:0,10,0" || act.calls[18] != "move:-10,0,0" || act.calls[27] != "move:0,-10,0" {
		t.Errorf("Unexpected circle points: %v", act.calls)
	}
	if len(clock.sleeps) != circleSteps || clock.sleeps[0] != circleStepDelay {
		t.Errorf("Expected %d sleeps of %v, got %v", circleSteps, circleStepDelay, clock.sleeps)
	}
}

func TestJigglerRandomStaysInRange(t *testing.T) {
	d, act, clock := newTestDispatcher()
	d.DispatchString("JIGGLE_ON random 4 100")

	for i := 1; i <= 200; i++ {
		d.Tick(clock.now().Add(time.Duration(i) * 100 * time.Millisecond))
	}
	if len(act.calls) != 200 {
		t.Fatalf("Expected 200 moves, got %d", len(act.calls))
	}
	for _, call := range act.calls {
		var dx, dy, w int
		if _, err := fmt.Sscanf(call, "move:%d,%d,%d", &dx, &dy, &w); err != nil {
			t.Fatal(err)
		}
		if dx < -4 || dx > 4 || dy < -4 || dy > 4 {
			t.Errorf("Move %s outside diameter 4", call)
		}
	}
}
