package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/config"
	"wifihid-agent/internal/core"
)

// submitTimeout bounds how long a broker message waits for the dispatch loop.
const submitTimeout = time.Minute

// MacroRunner starts and stops Lua macros.
type MacroRunner interface {
	RunMacro(name string) error
	StopCurrentMacro()
}

type Client struct {
	client   mqtt.Client
	cfg      *config.Config
	requests core.Submitter
	macros   MacroRunner
	eventBus *core.EventBus
	prefix   string
}

// NewClient створює клієнта з покращеною логікою реконекту. Returns nil when
// MQTT is disabled.
func NewClient(cfg *config.Config, requests core.Submitter, macros MacroRunner, eb *core.EventBus) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	c := newClient(cfg, requests, macros, eb)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	// KeepAlive: частота пінгування брокера
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// ConnectRetry: не падати при старті, якщо брокер ще не піднявся
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	// Commands are serialized by the dispatch loop anyway.
	opts.SetOrderMatters(false)

	// LWT: брокер сам опублікує offline, якщо ми зникнемо
	opts.SetWill(c.prefix+"/availability", "offline", 1, true)

	opts.SetOnConnectHandler(c.onConnect)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v. Retrying in background...", err)
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Println("[MQTT] Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)

	return c
}

func newClient(cfg *config.Config, requests core.Submitter, macros MacroRunner, eb *core.EventBus) *Client {
	return &Client{
		cfg:      cfg,
		requests: requests,
		macros:   macros,
		eventBus: eb,
		prefix:   strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/"),
	}
}

// Connect ініціює підключення.
func (c *Client) Connect() error {
	if c.client == nil {
		return nil
	}
	log.Printf("[MQTT] Starting connection loop to %s...", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	// With ConnectRetry an error here is a configuration problem, not an
	// unreachable broker.
	if token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Initial connection error: %v", token.Error())
		return token.Error()
	}

	return nil
}

// Run connects and mirrors agent events to state topics until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Connect(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer c.Disconnect()

	types := []core.EventType{core.JigglerChangedEvent, core.CommandExecutedEvent, core.MacroChangedEvent}
	sub := c.eventBus.Subscribe(types...)
	defer c.eventBus.Unsubscribe(sub, types...)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub:
			c.publishEvent(ev)
		}
	}
}

func (c *Client) publishEvent(ev core.Event) {
	switch ev.Type {
	case core.JigglerChangedEvent:
		if j, ok := ev.Payload.(core.JigglerSnapshot); ok {
			c.Publish("jiggler/state", onOff(j.Enabled), true)
			if data, err := json.Marshal(j); err == nil {
				c.Publish("jiggler/attributes", string(data), true)
			}
		}
	case core.CommandExecutedEvent:
		if p, ok := ev.Payload.(map[string]interface{}); ok {
			c.Publish("last_command", p["command"], true)
		}
	case core.MacroChangedEvent:
		if p, ok := ev.Payload.(map[string]interface{}); ok {
			c.Publish("macro/state", p["running"], true)
		}
	}
}

// Disconnect спочатку надсилає offline статус, потім закриває сокет.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")

		token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
		if token.WaitTimeout(2 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Warning: failed to publish offline status: %v", token.Error())
			}
		} else {
			log.Println("[MQTT] Warning: timed out publishing offline status")
		}

		c.client.Disconnect(250)
		log.Println("[MQTT] Disconnected.")
	}
}

func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	msg := fmt.Sprintf("%v", payload)

	token := c.client.Publish(topic, 0, retained, msg)

	// Не блокуємо основний потік, але і не допускаємо витоку горутин
	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Publish error to %s: %v", topic, token.Error())
			}
		} else {
			log.Printf("[MQTT] Timeout publishing to %s", topic)
		}
	}()
}

func (c *Client) handlers() map[string]mqtt.MessageHandler {
	return map[string]mqtt.MessageHandler{
		"command/set": c.handleCommand,
		"script/run":  c.handleScript,
		"jiggler/set": c.handleJiggler,
		"macro/run":   c.handleMacroRun,
		"macro/stop":  c.handleMacroStop,
	}
}

// onConnect викликається бібліотекою Paho у внутрішній горутині обробки подій.
func (c *Client) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected to broker.")

	for sub, handler := range c.handlers() {
		topic := fmt.Sprintf("%s/%s", c.prefix, sub)
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] Subscribed to %s", topic)
		}
	}

	// Discovery sleeps, so keep it off the paho callback goroutine.
	go func() {
		c.Publish("availability", "online", true)
		if c.cfg.MQTT.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
	}()
}

func (c *Client) safeID() string {
	id := strings.ReplaceAll(c.cfg.MQTT.ClientID, " ", "_")
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return -1
	}, id)
}

// discoveryConfigs returns the Home Assistant config payloads keyed by topic.
func (c *Client) discoveryConfigs() map[string]map[string]interface{} {
	id := c.safeID()
	device := map[string]interface{}{
		"identifiers":  []string{id},
		"name":         "WiFi HID Agent",
		"manufacturer": "wifihid",
		"model":        "USB HID Gadget",
	}
	availability := []map[string]string{{
		"topic":                 c.prefix + "/availability",
		"payload_available":     "online",
		"payload_not_available": "offline",
	}}

	return map[string]map[string]interface{}{
		fmt.Sprintf("%s/switch/%s/jiggler/config", c.cfg.MQTT.HADiscoveryPrefix, id): {
			"name":                  "Mouse Jiggler",
			"unique_id":             id + "_jiggler",
			"icon":                  "mdi:mouse-move-vertical",
			"command_topic":         c.prefix + "/jiggler/set",
			"state_topic":           c.prefix + "/jiggler/state",
			"json_attributes_topic": c.prefix + "/jiggler/attributes",
			"payload_on":            "ON",
			"payload_off":           "OFF",
			"availability":          availability,
			"device":                device,
		},
		fmt.Sprintf("%s/sensor/%s/last_command/config", c.cfg.MQTT.HADiscoveryPrefix, id): {
			"name":         "Last Command",
			"unique_id":    id + "_last_command",
			"icon":         "mdi:keyboard",
			"state_topic":  c.prefix + "/last_command",
			"availability": availability,
			"device":       device,
		},
	}
}

// PublishHADiscovery надсилає конфігурацію для Home Assistant
func (c *Client) PublishHADiscovery() {
	// Даємо трохи часу, щоб підписки пройшли
	time.Sleep(1 * time.Second)

	for topic, payload := range c.discoveryConfigs() {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("[MQTT] Could not encode discovery for %s: %v", topic, err)
			continue
		}
		c.client.Publish(topic, 0, true, data)
		log.Printf("[MQTT] HA Discovery sent to %s", topic)
	}
}

// --- Handlers ---

func (c *Client) submitCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), submitTimeout)
}

// handleCommand runs a wire command and publishes the outcome to command/result.
func (c *Client) handleCommand(client mqtt.Client, msg mqtt.Message) {
	ctx, cancel := c.submitCtx()
	defer cancel()

	res, err := core.SubmitLine(ctx, c.requests, "mqtt", string(msg.Payload()))
	if err != nil {
		log.Printf("[MQTT] Command '%s' failed: %v", msg.Payload(), err)
	}
	reply := res.Reply
	if reply == "" {
		reply = okOrFail(res.Executed)
	}
	c.Publish("command/result", reply, false)
}

func (c *Client) handleScript(client mqtt.Client, msg mqtt.Message) {
	ctx, cancel := c.submitCtx()
	defer cancel()

	res, err := core.SubmitScript(ctx, c.requests, "mqtt", string(msg.Payload()))
	if err != nil {
		log.Printf("[MQTT] Script failed: %v", err)
		return
	}
	c.Publish("script/result", fmt.Sprintf("%d,%d", res.Commands, res.Skipped), false)
}

// handleJiggler accepts ON/OFF like the Home Assistant switch, or a full
// JIGGLE_ON argument list such as "circles 5 1000".
func (c *Client) handleJiggler(client mqtt.Client, msg mqtt.Message) {
	payload := strings.TrimSpace(string(msg.Payload()))
	var line string
	switch strings.ToLower(payload) {
	case "on", "true", "1":
		line = "JIGGLE_ON"
	case "off", "false", "0":
		line = "JIGGLE_OFF"
	case "":
		return
	default:
		line = "JIGGLE_ON " + payload
	}

	ctx, cancel := c.submitCtx()
	defer cancel()
	if _, err := core.SubmitLine(ctx, c.requests, "mqtt", line); err != nil {
		log.Printf("[MQTT] Jiggler '%s' failed: %v", payload, err)
	}
}

func (c *Client) handleMacroRun(client mqtt.Client, msg mqtt.Message) {
	if c.macros == nil {
		return
	}
	if err := c.macros.RunMacro(string(msg.Payload())); err != nil {
		log.Printf("[MQTT] Could not run macro '%s': %v", msg.Payload(), err)
	}
}

func (c *Client) handleMacroStop(client mqtt.Client, msg mqtt.Message) {
	if c.macros != nil {
		c.macros.StopCurrentMacro()
	}
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func okOrFail(b bool) string {
	if b {
		return "OK"
	}
	return "FAILED"
}
