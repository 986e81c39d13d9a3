package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/core"
	"wifihid-agent/internal/scheduler"
	"wifihid-agent/internal/server"
)

// MacroEngine is the part of the Lua engine reachable from the web UI.
type MacroEngine interface {
	RunMacro(name string) error
	StopCurrentMacro()
	ExecuteString(code string)
	MacroCode(name string) (string, error)
	SaveMacroCode(name, code string) error
	DeleteMacro(name string) error
	MacroList() ([]string, error)
}

// Schedules manages cron entries.
type Schedules interface {
	Add(spec, command string) (int, error)
	Remove(id int) bool
	GetAll() []scheduler.Schedule
}

// CommandHandler answers WebSocket messages. HID work goes through the
// dispatch loop like every other transport.
type CommandHandler struct {
	requests  core.Submitter
	luaEngine MacroEngine
	scheduler Schedules
	timeout   time.Duration
}

func NewCommandHandler(requests core.Submitter, le MacroEngine, s Schedules) *CommandHandler {
	return &CommandHandler{
		requests:  requests,
		luaEngine: le,
		scheduler: s,
		timeout:   time.Minute,
	}
}

func (h *CommandHandler) Handle(msg server.Message, hub *server.Hub) {
	var cmd server.Command
	if err := json.Unmarshal(msg.Raw, &cmd); err != nil {
		log.Printf("[WS] Error unmarshalling command: %v", err)
		return
	}

	switch cmd.Type {

	case "command":
		line, _ := cmd.Payload["cmd"].(string)
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		res, err := core.SubmitLine(ctx, h.requests, "ws", line)
		if err != nil {
			log.Printf("[WS] Command '%s' failed: %v", line, err)
		}
		hub.Broadcast(server.NewMessage("command_result", map[string]interface{}{
			"cmd": line, "executed": res.Executed, "reply": res.Reply,
		}))

	case "script":
		script, _ := cmd.Payload["script"].(string)
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		res, err := core.SubmitScript(ctx, h.requests, "ws", script)
		if err != nil {
			log.Printf("[WS] Script failed: %v", err)
			return
		}
		hub.Broadcast(server.NewMessage("script_result", res))

	case "runMacro":
		name, _ := cmd.Payload["name"].(string)
		if err := h.luaEngine.RunMacro(name); err != nil {
			h.sendError(hub, fmt.Sprintf("cannot run macro '%s': %v", name, err))
		}

	case "runLua":
		if code, ok := cmd.Payload["code"].(string); ok {
			h.luaEngine.ExecuteString(code)
		}

	case "stopMacro":
		h.luaEngine.StopCurrentMacro()

	case "getMacroCode":
		if name, ok := cmd.Payload["name"].(string); ok {
			content, err := h.luaEngine.MacroCode(name)
			if err != nil {
				log.Printf("[WS] Error getting macro code: %v", err)
				h.sendError(hub, err.Error())
				return
			}
			hub.Broadcast(server.NewMessage("macro_code", map[string]string{"name": name, "code": content}))
		}

	case "saveMacroCode":
		name, nameOk := cmd.Payload["name"].(string)
		code, codeOk := cmd.Payload["code"].(string)
		if nameOk && codeOk {
			if err := h.luaEngine.SaveMacroCode(name, code); err != nil {
				log.Printf("[WS] Error saving macro: %v", err)
				h.sendError(hub, err.Error())
				return
			}
			h.broadcastMacros(hub)
		}

	case "deleteMacro":
		if name, ok := cmd.Payload["name"].(string); ok {
			if err := h.luaEngine.DeleteMacro(name); err != nil {
				log.Printf("[WS] Error deleting macro: %v", err)
				h.sendError(hub, err.Error())
				return
			}
			h.broadcastMacros(hub)
		}

	case "addSchedule":
		spec, _ := cmd.Payload["spec"].(string)
		command, _ := cmd.Payload["command"].(string)
		if _, err := h.scheduler.Add(spec, command); err != nil {
			h.sendError(hub, err.Error())
			return
		}
		hub.Broadcast(server.NewMessage("schedule_list", h.scheduler.GetAll()))

	case "removeSchedule":
		id, ok := scheduleID(cmd.Payload["id"])
		if !ok {
			return
		}
		h.scheduler.Remove(id)
		hub.Broadcast(server.NewMessage("schedule_list", h.scheduler.GetAll()))

	default:
		log.Printf("[WS] Unknown command type: %s", cmd.Type)
	}
}

func (h *CommandHandler) broadcastMacros(hub *server.Hub) {
	macros, err := h.luaEngine.MacroList()
	if err != nil {
		log.Printf("[WS] Error listing macros: %v", err)
		return
	}
	hub.Broadcast(server.NewMessage("macro_list", macros))
}

func (h *CommandHandler) sendError(hub *server.Hub, msg string) {
	hub.Broadcast(server.NewMessage("error", map[string]string{"message": msg}))
}

// scheduleID accepts the id as a JSON number or a string.
func scheduleID(v interface{}) (int, bool) {
	switch id := v.(type) {
	case float64:
		return int(id), true
	case string:
		n, err := strconv.Atoi(id)
		return n, err == nil
	}
	return 0, false
}
