package lua

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"wifihid-agent/internal/core"
)

var buttons = map[string]core.Button{
	"left":   core.ButtonLeft,
	"right":  core.ButtonRight,
	"middle": core.ButtonMiddle,
}

// registerGoFunctions exposes the HID bindings to the given Lua state. Every
// binding goes through the dispatch loop, so macros interleave with other
// transports one command at a time.
func (e *Engine) registerGoFunctions(L *lua.LState, ctx context.Context) {
	fns := map[string]lua.LGFunction{
		"print":        luaPrint,
		"sleep":        func(L *lua.LState) int { return luaSleep(ctx, L) },
		"should_stop":  func(L *lua.LState) int { return luaShouldStop(ctx, L) },
		"type_text":    e.bind(ctx, luaTypeText(false)),
		"type_line":    e.bind(ctx, luaTypeText(true)),
		"tap":          e.bind(ctx, luaKey(core.KeyTap)),
		"press":        e.bind(ctx, luaKey(core.KeyPress)),
		"release":      e.bind(ctx, luaKey(core.KeyRelease)),
		"release_all":  e.bind(ctx, func(*lua.LState) core.Command { return core.Command{Kind: core.KeyReleaseAll} }),
		"combo":        e.bind(ctx, luaCombo),
		"move":         e.bind(ctx, luaMove),
		"scroll":       e.bind(ctx, luaScroll),
		"click":        e.bind(ctx, luaButton(core.MouseClick)),
		"double_click": e.bind(ctx, luaButton(core.MouseDoubleClick)),
		"ducky":        func(L *lua.LState) int { return e.luaDucky(ctx, L) },
		"command":      func(L *lua.LState) int { return e.luaCommand(ctx, L) },
	}
	for name, fn := range fns {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

// bind turns a command builder into a Lua function returning whether the
// command was executed.
func (e *Engine) bind(ctx context.Context, build func(*lua.LState) core.Command) lua.LGFunction {
	return func(L *lua.LState) int {
		cmd := build(L)
		if ctx.Err() != nil {
			L.Push(lua.LFalse)
			return 1
		}
		res, err := e.requests.Submit(ctx, core.Request{Source: "lua", Command: &cmd})
		if err != nil {
			log.Debugf("[Lua] %s not submitted: %v", cmd, err)
		}
		L.Push(lua.LBool(res.Executed))
		return 1
	}
}

func luaPrint(L *lua.LState) int {
	log.Printf("[LUA] %s", L.ToString(1))
	return 0
}

// cancellableSleep sleeps for d unless ctx ends first. It reports whether ctx
// was cancelled.
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-ctx.Done():
		return true
	}
}

func luaSleep(ctx context.Context, L *lua.LState) int {
	cancellableSleep(ctx, time.Duration(L.CheckInt(1))*time.Millisecond)
	return 0
}

func luaShouldStop(ctx context.Context, L *lua.LState) int {
	L.Push(lua.LBool(ctx.Err() != nil))
	return 1
}

func luaTypeText(newline bool) func(*lua.LState) core.Command {
	return func(L *lua.LState) core.Command {
		return core.Command{Kind: core.TypeText, Text: L.CheckString(1), Newline: newline}
	}
}

func luaKey(kind core.Kind) func(*lua.LState) core.Command {
	return func(L *lua.LState) core.Command {
		return core.Command{Kind: kind, Key: L.CheckString(1)}
	}
}

// luaCombo takes modifiers followed by the key: combo("CTRL", "ALT", "DELETE").
func luaCombo(L *lua.LState) core.Command {
	n := L.GetTop()
	if n < 2 {
		L.ArgError(1, "combo needs at least one modifier and a key")
	}
	cmd := core.Command{Kind: core.KeyCombo, Key: L.CheckString(n)}
	for i := 1; i < n; i++ {
		cmd.Mods = append(cmd.Mods, strings.ToUpper(L.CheckString(i)))
	}
	return cmd
}

func luaMove(L *lua.LState) core.Command {
	return core.Command{Kind: core.MouseMove, DX: L.CheckInt(1), DY: L.CheckInt(2)}
}

func luaScroll(L *lua.LState) core.Command {
	return core.Command{Kind: core.MouseScroll, Wheel: L.CheckInt(1)}
}

func luaButton(kind core.Kind) func(*lua.LState) core.Command {
	return func(L *lua.LState) core.Command {
		name := strings.ToLower(L.OptString(1, "left"))
		b, ok := buttons[name]
		if !ok {
			L.ArgError(1, "button must be left, right or middle")
		}
		return core.Command{Kind: kind, Button: b}
	}
}

// luaDucky runs a Ducky Script and returns the executed and skipped counts.
func (e *Engine) luaDucky(ctx context.Context, L *lua.LState) int {
	res, err := core.SubmitScript(ctx, e.requests, "lua", L.CheckString(1))
	if err != nil {
		log.Debugf("[Lua] Script not submitted: %v", err)
	}
	L.Push(lua.LNumber(res.Commands))
	L.Push(lua.LNumber(res.Skipped))
	return 2
}

// luaCommand sends a raw wire command and returns executed and the reply.
func (e *Engine) luaCommand(ctx context.Context, L *lua.LState) int {
	res, err := core.SubmitLine(ctx, e.requests, "lua", L.CheckString(1))
	if err != nil {
		log.Debugf("[Lua] Command failed: %v", err)
	}
	L.Push(lua.LBool(res.Executed))
	L.Push(lua.LString(res.Reply))
	return 2
}
