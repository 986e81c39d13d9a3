package server

import "wifihid-agent/internal/core"

// Command represents an incoming JSON command from a WebSocket client.
type Command struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Message represents an outgoing JSON message sent to WebSocket clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	Raw     []byte      `json:"-"` // incoming frame, see CommandHandler
}

// NewMessage creates a new structured Message for broadcasting to clients.
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}

// Event types forwarded to WebSocket clients and their message names.
var forwardedEvents = map[core.EventType]string{
	core.CommandExecutedEvent: "command_executed",
	core.ScriptFinishedEvent:  "script_finished",
	core.MacroChangedEvent:    "macro_status",
	core.JigglerChangedEvent:  "jiggler_status",
	core.ScheduleChangedEvent: "schedule_list",
	core.StorageChangedEvent:  "storage_changed",
}
