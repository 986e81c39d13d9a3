package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wifihid-agent/internal/config"
	"wifihid-agent/internal/core"
	"wifihid-agent/internal/dispatch"
	"wifihid-agent/internal/ducky"
	"wifihid-agent/internal/hid"
	"wifihid-agent/internal/lua"
	"wifihid-agent/internal/mqtt"
	"wifihid-agent/internal/scheduler"
	"wifihid-agent/internal/server"
	"wifihid-agent/internal/storage"
)

// ErrRestart is returned by Run after a RESTART command.
var ErrRestart = errors.New("restart requested")

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	done   chan struct{}

	state    *core.State
	eventBus *core.EventBus
	requests core.RequestChannel

	actuator   hid.Actuator
	hidCloser  io.Closer
	dispatcher *dispatch.Dispatcher
	store      *storage.Store
	luaEngine  *lua.Engine
	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client

	restart atomic.Bool
}

func NewAgent(cfg *config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		done:     make(chan struct{}),
		eventBus: core.NewEventBus(),
		requests: make(core.RequestChannel, 32),
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		cancel()
		return nil, err
	}
	a.store = store

	a.actuator, a.hidCloser = openActuator(ctx, cfg)
	a.state = core.NewState(cfg.HID.Backend, a.actuator.Available())

	a.dispatcher = dispatch.New(a.actuator,
		dispatch.WithLED(hid.NewLED(cfg.HID.LEDPath)),
		dispatch.WithRestart(a.requestRestart),
	)
	a.state.SetJiggler(a.dispatcher.Jiggler())

	a.luaEngine = lua.NewEngine(a.requests, cfg.MacrosDir, a.eventBus)
	a.scheduler = scheduler.NewScheduler(a.requests, a.store, a.luaEngine, a.eventBus, cfg.SchedulesFile)

	a.server = server.NewServer(
		a.requests,
		a.store,
		a.state,
		a.eventBus,
		a.scheduler.GetAll,
		a.luaEngine.MacroList,
		server.Options{
			Port:           cfg.Server.Port,
			StaticFilesDir: cfg.Server.WebFilesDir,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AuthUser:       cfg.Server.AuthUser,
			AuthPassword:   cfg.Server.AuthPassword,
		},
	)
	a.server.SetHandler(NewCommandHandler(a.requests, a.luaEngine, a.scheduler))

	// nil when disabled
	a.mqttClient = mqtt.NewClient(cfg, a.requests, a.luaEngine, a.eventBus)

	return a, nil
}

// openActuator picks the HID backend. A backend that cannot be opened leaves
// the agent running with USB disabled.
func openActuator(ctx context.Context, cfg *config.Config) (hid.Actuator, io.Closer) {
	h := cfg.HID
	switch h.Backend {
	case config.BackendGadget:
		g, err := hid.OpenGadget(ctx, h.KeyboardDev, h.MouseDev, h.RateLimit, h.RateBurst)
		if err == nil {
			return g, g
		}
		log.Warnf("[Agent] USB gadget unavailable, HID disabled: %v", err)
	case config.BackendBridge:
		b, err := hid.OpenBridge(ctx, h.BridgePort, h.BridgeBaud, h.RateLimit, h.RateBurst)
		if err == nil {
			return b, b
		}
		log.Warnf("[Agent] Serial bridge unavailable, HID disabled: %v", err)
	default:
		log.Println("[Agent] HID backend disabled by config")
	}
	return hid.Nop{}, nil
}

// requestRestart runs on the dispatch loop when RESTART is executed.
func (a *Agent) requestRestart() {
	log.Warn("[Agent] Restart requested, shutting down")
	a.restart.Store(true)
	a.eventBus.Publish(core.Event{Type: core.RestartRequestedEvent})
	a.cancel()
}

// Run starts every service and blocks until Shutdown, a RESTART command or a
// fatal service error.
func (a *Agent) Run() error {
	defer close(a.done)

	g, ctx := errgroup.WithContext(a.ctx)

	g.Go(func() error {
		a.dispatchLoop(ctx)
		return nil
	})
	g.Go(func() error {
		a.listenEvents(ctx)
		return nil
	})
	g.Go(func() error {
		if err := a.server.Run(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.mqttClient != nil {
		g.Go(func() error {
			// A broker problem should not take the HID service down.
			if err := a.mqttClient.Run(ctx); err != nil {
				log.Printf("[Agent] MQTT Setup Error: %v", err)
			}
			return nil
		})
	}

	a.scheduler.Start()
	log.Println("[Agent] Orchestrator ready.")

	err := g.Wait()

	a.scheduler.Stop()
	a.luaEngine.Close()
	if a.hidCloser != nil {
		if cerr := a.hidCloser.Close(); cerr != nil {
			log.Printf("[Agent] Closing HID backend: %v", cerr)
		}
	}

	if a.restart.Load() {
		return ErrRestart
	}
	return err
}

// dispatchLoop is the only goroutine that touches the dispatcher. Requests
// from every transport and the jiggler ticks are serialized here.
func (a *Agent) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Agent] Dispatch loop shutting down...")
			return
		case req := <-a.requests:
			a.handleRequest(ctx, req)
		case now := <-ticker.C:
			a.dispatcher.Tick(now)
			a.state.SetUSBEnabled(a.actuator.Available())
		}
	}
}

func (a *Agent) handleRequest(ctx context.Context, req core.Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var res core.Result
	if req.Command != nil {
		cmd := *req.Command
		log.Debugf("[Agent] %s request %s: %s", req.Source, req.ID, cmd)
		res = a.dispatcher.Dispatch(cmd)
		a.afterCommand(req, cmd, res)
	} else {
		log.Printf("[Agent] %s request %s: script", req.Source, req.ID)
		res = ducky.Run(ctx, req.Script, a.dispatcher)
		a.state.SetUSBEnabled(a.actuator.Available())
		a.eventBus.Publish(core.Event{
			Type: core.ScriptFinishedEvent,
			Payload: map[string]interface{}{
				"id": req.ID, "source": req.Source, "commands": res.Commands, "skipped": res.Skipped,
			},
		})
	}

	if req.Reply != nil {
		select {
		case req.Reply <- res:
		default:
		}
	}
}

// afterCommand mirrors the dispatcher into State and publishes events.
func (a *Agent) afterCommand(req core.Request, cmd core.Command, res core.Result) {
	a.state.SetUSBEnabled(a.actuator.Available())
	if res.Executed {
		a.state.SetLastCommand(cmd.String(), time.Now())
	}

	switch {
	case cmd.Kind == core.JigglerOn || cmd.Kind == core.JigglerOff:
		j := a.dispatcher.Jiggler()
		a.state.SetJiggler(j)
		a.eventBus.Publish(core.Event{Type: core.JigglerChangedEvent, Payload: j})
	case cmd.Kind == core.Utility && res.Executed && (cmd.Utility == core.UtilLEDOn || cmd.Utility == core.UtilLEDOff):
		a.state.SetLED(cmd.Utility == core.UtilLEDOn)
	}

	a.eventBus.Publish(core.Event{
		Type: core.CommandExecutedEvent,
		Payload: map[string]interface{}{
			"id":       req.ID,
			"source":   req.Source,
			"command":  cmd.String(),
			"executed": res.Executed,
			"reply":    res.Reply,
		},
	})
}

func (a *Agent) listenEvents(ctx context.Context) {
	sub := a.eventBus.Subscribe(core.MacroChangedEvent)
	defer a.eventBus.Unsubscribe(sub, core.MacroChangedEvent)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub:
			if payload, ok := event.Payload.(map[string]interface{}); ok {
				if name, ok := payload["running"].(string); ok {
					a.state.SetRunningMacro(name)
				}
			}
		}
	}
}

// Submit queues a request for the dispatch loop.
func (a *Agent) Submit(ctx context.Context, req core.Request) (core.Result, error) {
	return a.requests.Submit(ctx, req)
}

// State returns a snapshot of the agent state.
func (a *Agent) State() core.State {
	return a.state.Clone()
}

// Shutdown stops the agent and waits for Run to return.
func (a *Agent) Shutdown() {
	a.cancel()
	<-a.done
}
