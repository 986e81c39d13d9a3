package core

import (
	"sync"
	"time"
)

// JigglerSnapshot is a read-only copy of the jiggler configuration.
type JigglerSnapshot struct {
	Enabled  bool          `json:"enabled"`
	Motion   string        `json:"motion"`
	Diameter int           `json:"diameter"`
	Interval time.Duration `json:"interval"`
}

// State holds what the transports show about the device. The dispatcher owns the
// authoritative jiggler state; State mirrors it from JigglerChangedEvent.
type State struct {
	mu            sync.RWMutex
	Backend       string
	USBEnabled    bool
	LEDOn         bool
	Jiggler       JigglerSnapshot
	LastCommand   string
	LastCommandAt time.Time
	RunningMacro  string
}

// NewState creates a new State instance.
func NewState(backend string, usbEnabled bool) *State {
	return &State{Backend: backend, USBEnabled: usbEnabled}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Backend:       s.Backend,
		USBEnabled:    s.USBEnabled,
		LEDOn:         s.LEDOn,
		Jiggler:       s.Jiggler,
		LastCommand:   s.LastCommand,
		LastCommandAt: s.LastCommandAt,
		RunningMacro:  s.RunningMacro,
	}
}

// SetJiggler updates the mirrored jiggler state.
func (s *State) SetJiggler(j JigglerSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Jiggler = j
}

// SetUSBEnabled records whether HID output currently reaches the host.
func (s *State) SetUSBEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.USBEnabled = on
}

// SetLED updates the LED state.
func (s *State) SetLED(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LEDOn = on
}

// SetLastCommand records the most recently executed command.
func (s *State) SetLastCommand(cmd string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastCommand = cmd
	s.LastCommandAt = at
}

// SetRunningMacro updates the name of the Lua macro in progress.
func (s *State) SetRunningMacro(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningMacro = name
}

// StatusLine renders the STATUS reply.
func (j JigglerSnapshot) StatusLine(usbEnabled bool) string {
	status := "STATUS:Jiggler=OFF"
	if j.Enabled {
		status = "STATUS:Jiggler=ON"
	}
	if usbEnabled {
		return status + ",USB=ENABLED"
	}
	return status + ",USB=DISABLED"
}
