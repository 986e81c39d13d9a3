package ducky

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"wifihid-agent/internal/core"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want core.Command
	}{
		{"DELAY 500", core.Command{Kind: core.Delay, Delay: 500 * time.Millisecond}},
		{"STRING notepad", core.Command{Kind: core.TypeText, Text: "notepad"}},
		{"STRING  two spaces", core.Command{Kind: core.TypeText, Text: " two spaces"}},
		{"ENTER", tap("ENTER")},
		{"  TAB  ", tap("TAB")},
		{"GUI", tap("GUI")},
		{"GUI r", combo("r", core.ModGUI)},
		{"GUI R", combo("r", core.ModGUI)},
		{"GUI SPACE", combo("SPACE", core.ModGUI)},
		{"GUI space", combo("space", core.ModGUI)},
		{"GUI tab", combo("TAB", core.ModGUI)},
		{"GUI x", combo("x", core.ModGUI)},
		{"ALT TAB", combo("TAB", core.ModAlt)},
		{"CTRL ALT DELETE", combo("DELETE", core.ModCtrl, core.ModAlt)},
		{"CTRL ALT T", combo("t", core.ModCtrl, core.ModAlt)},
		{"CTRL c", combo("c", core.ModCtrl)},
		{"ALT f4", combo("F4", core.ModAlt)},
		{"ALT F4", combo("F4", core.ModAlt)},
		{"CTRL DELETE", combo("DELETE", core.ModCtrl)},
		{"CTRL cx", combo("c", core.ModCtrl)},
		{"DELAY 18446744073710", core.Command{Kind: core.Delay, Delay: math.MaxInt64}},
		{"LEFT", tap("LEFT")},
		{"F12", tap("F12")},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine(%q) returned error: %v", tt.line, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseLine(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", ErrEmpty},
		{"   ", ErrEmpty},
		{"// open notepad", ErrEmpty},
		{"REM old style", ErrUnrecognized},
		{"F13", ErrUnrecognized},
		{"enter", ErrUnrecognized},
		{"DELAY soon", ErrMalformed},
		{"CTRL ", ErrMalformed},
		{"ALT   ", ErrMalformed},
	}

	for _, tt := range tests {
		if _, err := ParseLine(tt.line); !errors.Is(err, tt.want) {
			t.Errorf("ParseLine(%q): expected %v, got %v", tt.line, tt.want, err)
		}
	}
}

func TestParseLineDoesNotShareMods(t *testing.T) {
	first, _ := ParseLine("CTRL ALT T")
	first.Mods[0] = "SHIFT"

	second, _ := ParseLine("CTRL ALT T")
	if second.Mods[0] != core.ModCtrl {
		t.Errorf("Expected %s, got %s", core.ModCtrl, second.Mods[0])
	}
}

func TestCompile(t *testing.T) {
	got := Compile("GUI r\nDELAY 500\nSTRING notepad\nENTER")
	want := []core.Command{
		combo("r", core.ModGUI),
		{Kind: core.Delay, Delay: 500 * time.Millisecond},
		{Kind: core.TypeText, Text: "notepad"},
		tap("ENTER"),
	}
	if diff := cmp.Diff(want, got.Commands); diff != "" {
		t.Errorf("Compile mismatch (-want +got):\n%s", diff)
	}
	if len(got.Skipped) != 0 {
		t.Errorf("Expected no skipped lines, got %v", got.Skipped)
	}
}

func TestCompileBlankLines(t *testing.T) {
	got := Compile("ENTER\n\n\nTAB")
	if diff := cmp.Diff([]core.Command{tap("ENTER"), tap("TAB")}, got.Commands); diff != "" {
		t.Errorf("Compile mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileEmpty(t *testing.T) {
	for _, script := range []string{"", "\n\n", "// only\n// comments"} {
		got := Compile(script)
		if len(got.Commands) != 0 || len(got.Skipped) != 0 {
			t.Errorf("Compile(%q): expected nothing, got %+v", script, got)
		}
	}
}

func TestCompileSkipped(t *testing.T) {
	got := Compile("ENTER\nJUMP\nDELAY x\nTAB")
	if len(got.Commands) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(got.Commands))
	}
	if len(got.Skipped) != 2 {
		t.Fatalf("Expected 2 skipped lines, got %d", len(got.Skipped))
	}
	if got.Skipped[0].Line != 2 || got.Skipped[0].Text != "JUMP" {
		t.Errorf("Unexpected first skipped line: %+v", got.Skipped[0])
	}
	if !errors.Is(got.Skipped[1].Err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", got.Skipped[1].Err)
	}
}

func TestCompileIdempotent(t *testing.T) {
	script := "// launch\nGUI r\nDELAY 500\nSTRING cmd\nENTER\nALT f4\nBOGUS"
	if diff := cmp.Diff(Compile(script), Compile(script), cmp.Comparer(func(a, b error) bool {
		return errors.Is(a, b) || a.Error() == b.Error()
	})); diff != "" {
		t.Errorf("Compile is not repeatable (-first +second):\n%s", diff)
	}
}

type recordingExecutor struct {
	got  []core.Command
	fail map[core.Kind]bool
}

func (r *recordingExecutor) Dispatch(cmd core.Command) core.Result {
	r.got = append(r.got, cmd)
	return core.Result{Executed: !r.fail[cmd.Kind]}
}

func TestRun(t *testing.T) {
	exec := &recordingExecutor{}
	res := Run(t.Context(), "GUI r\nDELAY 500\nnonsense\nSTRING notepad\nENTER", exec)

	if res.Commands != 4 || res.Skipped != 1 || !res.Executed {
		t.Errorf("Unexpected result: %+v", res)
	}
	if len(exec.got) != 4 {
		t.Fatalf("Expected 4 dispatched commands, got %d", len(exec.got))
	}
	if exec.got[2].Text != "notepad" {
		t.Errorf("Expected notepad, got %q", exec.got[2].Text)
	}
}

func TestRunCountsFailures(t *testing.T) {
	exec := &recordingExecutor{fail: map[core.Kind]bool{core.KeyTap: true}}
	res := Run(t.Context(), "STRING a\nENTER", exec)

	if res.Commands != 1 || res.Skipped != 1 {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	exec := &recordingExecutor{}
	res := Run(ctx, "ENTER\nTAB", exec)
	if len(exec.got) != 0 || res.Executed {
		t.Errorf("Expected nothing to run, got %v (%+v)", exec.got, res)
	}
}

func TestQuickScript(t *testing.T) {
	tests := []struct {
		name, os, want string
	}{
		{"editor", OSWindows, "GUI r\nDELAY 500\nSTRING notepad\nENTER"},
		{"browser", OSMacOS, "GUI SPACE\nDELAY 500\nSTRING safari\nENTER"},
		{"editor", OSLinux, "CTRL ALT T\nDELAY 1000\nSTRING gedit\nENTER"},
		{"terminal", OSLinux, "CTRL ALT T"},
		{"calculator", OSLinux, "GUI\nDELAY 500\nSTRING calc\nENTER"},
		{"editor", "Haiku", ""},
		{"music", OSWindows, ""},
	}

	for _, tt := range tests {
		if got := QuickScript(tt.name, tt.os); got != tt.want {
			t.Errorf("QuickScript(%q, %q): expected %q, got %q", tt.name, tt.os, tt.want, got)
		}
	}
}

func TestQuickScriptsCompileCleanly(t *testing.T) {
	for _, os := range []string{OSWindows, OSMacOS, OSLinux} {
		names := QuickScriptNames(os)
		if diff := cmp.Diff([]string{"browser", "calculator", "editor", "terminal"}, names); diff != "" {
			t.Errorf("QuickScriptNames(%q) mismatch (-want +got):\n%s", os, diff)
		}
		for _, name := range names {
			if p := Compile(QuickScript(name, os)); len(p.Skipped) != 0 {
				t.Errorf("%s/%s has skipped lines: %+v", os, name, p.Skipped)
			}
		}
	}
	if BuiltinOS("Haiku") {
		t.Error("Expected Haiku not to be built in")
	}
}
