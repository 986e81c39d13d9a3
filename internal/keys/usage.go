package keys

// Keyboard modifier bits, first byte of the boot keyboard report.
const (
	ModLeftCtrl   = 1 << 0
	ModLeftShift  = 1 << 1
	ModLeftAlt    = 1 << 2
	ModLeftGUI    = 1 << 3
	ModRightCtrl  = 1 << 4
	ModRightShift = 1 << 5
	ModRightAlt   = 1 << 6
	ModRightGUI   = 1 << 7
)

// Keyboard usage IDs (HID usage page 0x07).
const (
	UsageNone       = 0x00
	UsageA          = 0x04
	UsageZ          = 0x1D
	Usage1          = 0x1E
	Usage0          = 0x27
	UsageEnter      = 0x28
	UsageEscape     = 0x29
	UsageBackspace  = 0x2A
	UsageTab        = 0x2B
	UsageSpace      = 0x2C
	UsageMinus      = 0x2D
	UsageEqual      = 0x2E
	UsageLeftBrace  = 0x2F
	UsageRightBrace = 0x30
	UsageBackslash  = 0x31
	UsageSemicolon  = 0x33
	UsageQuote      = 0x34
	UsageGrave      = 0x35
	UsageComma      = 0x36
	UsageDot        = 0x37
	UsageSlash      = 0x38
	UsageCapsLock   = 0x39
	UsageF1         = 0x3A
	UsageF12        = 0x45
	UsageInsert     = 0x49
	UsageHome       = 0x4A
	UsagePageUp     = 0x4B
	UsageDelete     = 0x4C
	UsageEnd        = 0x4D
	UsagePageDown   = 0x4E
	UsageRight      = 0x4F
	UsageLeft       = 0x50
	UsageDown       = 0x51
	UsageUp         = 0x52
)

// Mouse button bits, first byte of the boot mouse report.
const (
	ButtonLeft   = 1 << 0
	ButtonRight  = 1 << 1
	ButtonMiddle = 1 << 2
)
