// Package lua runs Lua keyboard and mouse macros against the dispatch loop.
package lua

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"wifihid-agent/internal/core"
)

// cmdType defines the type of engine command.
type cmdType int

const (
	cmdRunFile cmdType = iota
	cmdRunString
	cmdStop
)

// engineCmd represents a command sent to the Lua engine.
type engineCmd struct {
	kind cmdType
	name string
	code string
}

// Engine runs one macro at a time on a single worker goroutine. Starting a
// macro cancels the one in progress.
type Engine struct {
	requests  core.Submitter
	macrosDir string
	eventBus  *core.EventBus

	cmdChan chan engineCmd
	mu      sync.Mutex
	running string
	closed  chan struct{}
}

// NewEngine creates a new Lua engine and starts its background worker.
func NewEngine(requests core.Submitter, macrosDir string, eb *core.EventBus) *Engine {
	e := &Engine{
		requests:  requests,
		macrosDir: macrosDir,
		eventBus:  eb,
		cmdChan:   make(chan engineCmd, 10),
		closed:    make(chan struct{}),
	}

	go e.runLoop()

	return e
}

// runLoop processes engine commands sequentially.
func (e *Engine) runLoop() {
	defer close(e.closed)

	var currentCancel context.CancelFunc
	var scriptDone chan struct{}

	stopCurrent := func() {
		if currentCancel == nil {
			return
		}
		currentCancel()
		select {
		case <-scriptDone:
		case <-time.After(2 * time.Second):
			log.Println("[Lua] Timeout waiting for macro to stop")
		}
		currentCancel = nil
		scriptDone = nil
	}
	defer stopCurrent()

	for cmd := range e.cmdChan {
		stopCurrent()

		if cmd.kind == cmdStop {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		currentCancel = cancel
		scriptDone = make(chan struct{})

		go func(cmd engineCmd, ctx context.Context, done chan struct{}) {
			defer close(done)
			switch cmd.kind {
			case cmdRunFile:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoFile(cmd.code) })
			case cmdRunString:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoString(cmd.code) })
			}
		}(cmd, ctx, scriptDone)
	}
}

// Close stops the running macro and the worker.
func (e *Engine) Close() {
	close(e.cmdChan)
	<-e.closed
}

// StopCurrentMacro stops the currently running macro if any.
func (e *Engine) StopCurrentMacro() {
	select {
	case e.cmdChan <- engineCmd{kind: cmdStop}:
	default:
		log.Println("[Lua] Command channel full, could not send stop command")
	}
}

// RunMacro starts the stored macro name.
func (e *Engine) RunMacro(name string) error {
	path, err := e.macroPath(name)
	if err != nil {
		return err
	}
	e.cmdChan <- engineCmd{kind: cmdRunFile, name: name, code: path}
	return nil
}

// ExecuteString runs a one-off chunk of Lua.
func (e *Engine) ExecuteString(code string) {
	e.cmdChan <- engineCmd{kind: cmdRunString, name: "inline", code: code}
}

// Running returns the name of the macro in progress, or "".
func (e *Engine) Running() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) setRunning(name string) {
	e.mu.Lock()
	e.running = name
	e.mu.Unlock()

	if e.eventBus != nil {
		e.eventBus.Publish(core.Event{
			Type:    core.MacroChangedEvent,
			Payload: map[string]interface{}{"running": name},
		})
	}
}

// execute runs Lua code in a fresh state bound to ctx.
func (e *Engine) execute(ctx context.Context, name string, run func(*lua.LState) error) {
	log.Printf("[Lua] Starting macro '%s'...", name)
	e.setRunning(name)
	defer func() {
		log.Printf("[Lua] Macro '%s' finished.", name)
		e.setRunning("")
	}()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	e.registerGoFunctions(L, ctx)

	if err := run(L); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Printf("[Lua] Macro '%s' execution was canceled.", name)
		} else {
			log.Printf("[Lua] Error executing macro '%s': %v", name, err)
		}
	}
}
