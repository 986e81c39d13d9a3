package hid

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/keys"
)

// Bridge forwards HID actions as newline-terminated command lines to a second
// microcontroller that owns the USB port (the two-chip board layout).
type Bridge struct {
	port   io.Writer
	closer io.Closer
	writer *frameWriter
}

// NewBridge builds a bridge on an already opened link.
func NewBridge(ctx context.Context, port io.Writer, ratePerSec float64, burst int) *Bridge {
	return &Bridge{
		port:   port,
		writer: newFrameWriter(ctx, ratePerSec, burst),
	}
}

// OpenBridge opens and configures the serial device at path.
func OpenBridge(ctx context.Context, path string, baud int, ratePerSec float64, burst int) (*Bridge, error) {
	port, err := openSerial(path, baud)
	if err != nil {
		return nil, fmt.Errorf("open bridge %s: %w", path, err)
	}
	log.Printf("[HID] Serial bridge ready on %s at %d baud", path, baud)
	b := NewBridge(ctx, port, ratePerSec, burst)
	b.closer = port
	go b.readLoop(port)
	return b, nil
}

// readLoop logs what the HID chip echoes back.
func (b *Bridge) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debugf("[Bridge] <- %s", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Debugf("[Bridge] Read loop stopped: %v", err)
	}
}

func (b *Bridge) line(s string) error {
	return b.writer.send(b.port, []byte(s+"\n"))
}

func (b *Bridge) Available() bool {
	return b.writer.available()
}

func (b *Bridge) PressKey(c keys.Code) error {
	return b.line("KEY_PRESS:" + c.String())
}

func (b *Bridge) ReleaseKey(c keys.Code) error {
	return b.line("KEY_RELEASE:" + c.String())
}

func (b *Bridge) ReleaseAll() error {
	return b.line("KEY_RELEASE_ALL")
}

// TypeText sends embedded newlines as TYPELN so they never split a command line.
func (b *Bridge) TypeText(s string) error {
	parts := strings.Split(s, "\n")
	for i, part := range parts {
		if i < len(parts)-1 {
			if err := b.line("TYPELN:" + part); err != nil {
				return err
			}
			continue
		}
		if part != "" || len(parts) == 1 {
			return b.line("TYPE:" + part)
		}
	}
	return nil
}

func (b *Bridge) MoveMouse(dx, dy, wheel int) error {
	if dx != 0 || dy != 0 {
		if err := b.line(fmt.Sprintf("MOUSE_MOVE:%d,%d", dx, dy)); err != nil {
			return err
		}
	}
	if wheel != 0 {
		return b.line(fmt.Sprintf("SCROLL:%d", wheel))
	}
	return nil
}

var bridgeClicks = map[byte]string{
	keys.ButtonLeft:   "MOUSE_LEFT",
	keys.ButtonRight:  "MOUSE_RIGHT",
	keys.ButtonMiddle: "MOUSE_MIDDLE",
}

func (b *Bridge) ClickButton(buttons byte) error {
	cmd, ok := bridgeClicks[buttons]
	if !ok {
		return fmt.Errorf("bridge cannot click buttons 0x%02X", buttons)
	}
	return b.line(cmd)
}

// PressButton and ReleaseButton only support the left button on the bridge.
func (b *Bridge) PressButton(buttons byte) error {
	if buttons != keys.ButtonLeft {
		return fmt.Errorf("bridge cannot hold buttons 0x%02X", buttons)
	}
	return b.line("MOUSE_PRESS")
}

func (b *Bridge) ReleaseButton(buttons byte) error {
	if buttons != keys.ButtonLeft {
		return fmt.Errorf("bridge cannot release buttons 0x%02X", buttons)
	}
	return b.line("MOUSE_RELEASE")
}

func (b *Bridge) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}
