package mirror

import "strings"

// Android key codes used by the shell bindings.
const (
	KeyCodeHome       uint32 = 3
	KeyCodeBack       uint32 = 4
	KeyCode0          uint32 = 7
	KeyCodeVolumeUp   uint32 = 24
	KeyCodeVolumeDown uint32 = 25
	KeyCodePower      uint32 = 26
	KeyCodeA          uint32 = 29
	KeyCodeTab        uint32 = 61
	KeyCodeSpace      uint32 = 62
	KeyCodeEnter      uint32 = 66
	KeyCodeDel        uint32 = 67
	KeyCodeEscape     uint32 = 111
	KeyCodeAppSwitch  uint32 = 187
)

// MetaShiftOn is the Android shift modifier bit.
const MetaShiftOn uint32 = 0x1

var punctuation = map[byte]uint32{
	'`':  68,
	'-':  69,
	'=':  70,
	'[':  71,
	']':  72,
	'\\': 73,
	';':  74,
	'\'': 75,
	'/':  76,
	',':  55,
	'.':  56,
}

// KeyForByte maps a byte read from a raw terminal to a key code and
// modifier state.
func KeyForByte(b byte) (code, meta uint32, ok bool) {
	switch {
	case b >= 'a' && b <= 'z':
		return KeyCodeA + uint32(b-'a'), 0, true
	case b >= 'A' && b <= 'Z':
		return KeyCodeA + uint32(b-'A'), MetaShiftOn, true
	case b >= '0' && b <= '9':
		return KeyCode0 + uint32(b-'0'), 0, true
	}
	switch b {
	case '\r', '\n':
		return KeyCodeEnter, 0, true
	case 0x7f, 0x08:
		return KeyCodeDel, 0, true
	case '\t':
		return KeyCodeTab, 0, true
	case ' ':
		return KeyCodeSpace, 0, true
	case 0x1b:
		return KeyCodeEscape, 0, true
	}
	if code, ok := punctuation[b]; ok {
		return code, 0, true
	}
	return 0, 0, false
}

var namedKeys = map[string]uint32{
	"home":    KeyCodeHome,
	"back":    KeyCodeBack,
	"volup":   KeyCodeVolumeUp,
	"voldown": KeyCodeVolumeDown,
	"power":   KeyCodePower,
	"tab":     KeyCodeTab,
	"space":   KeyCodeSpace,
	"enter":   KeyCodeEnter,
	"del":     KeyCodeDel,
	"escape":  KeyCodeEscape,
	"recents": KeyCodeAppSwitch,
}

// KeyForName returns the key code for a shell key name such as "home".
func KeyForName(name string) (uint32, bool) {
	code, ok := namedKeys[strings.ToLower(name)]
	return code, ok
}
