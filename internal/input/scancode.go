package input

import "github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"

// extendedFlag marks an MS-RDPBCGR "extended" scancode (the E0-prefixed PS/2
// Set 1 codes: arrows, navigation cluster, right-side modifiers, the Windows
// keys). The wire's Scancode is a single uint16, so extended codes are
// represented here with the flag folded into the lookup key rather than as
// a second byte, since rdpwire.KeyEvent carries only one Scancode field.
const extendedFlag rdpwire.Scancode = 0x0100

// rdpScancodeToEvdev maps MS-RDPBCGR scancodes to Linux evdev keycodes, in
// the same map-literal style as vk_evdev.go's vkToEvdev: a flat
// map[uint16]int with 0 as the "unmapped" sentinel. The values differ from
// vkToEvdev's (these key on PS/2 Set 1 derived codes, not Windows VK codes),
// but most of the non-extended range is numerically identical to evdev
// already, since evdev's base keycodes were themselves derived from PS/2
// Set 1.
var rdpScancodeToEvdev = map[rdpwire.Scancode]int{
	0x01: 1,  // ESC
	0x02: 2,  // 1
	0x03: 3,  // 2
	0x04: 4,  // 3
	0x05: 5,  // 4
	0x06: 6,  // 5
	0x07: 7,  // 6
	0x08: 8,  // 7
	0x09: 9,  // 8
	0x0A: 10, // 9
	0x0B: 11, // 0
	0x0C: 12, // -
	0x0D: 13, // =
	0x0E: 14, // backspace
	0x0F: 15, // tab
	0x10: 16, // Q
	0x11: 17, // W
	0x12: 18, // E
	0x13: 19, // R
	0x14: 20, // T
	0x15: 21, // Y
	0x16: 22, // U
	0x17: 23, // I
	0x18: 24, // O
	0x19: 25, // P
	0x1A: 26, // [
	0x1B: 27, // ]
	0x1C: 28, // enter
	0x1D: 29, // left ctrl
	0x1E: 30, // A
	0x1F: 31, // S
	0x20: 32, // D
	0x21: 33, // F
	0x22: 34, // G
	0x23: 35, // H
	0x24: 36, // J
	0x25: 37, // K
	0x26: 38, // L
	0x27: 39, // ;
	0x28: 40, // '
	0x29: 41, // `
	0x2A: 42, // left shift
	0x2B: 43, // backslash
	0x2C: 44, // Z
	0x2D: 45, // X
	0x2E: 46, // C
	0x2F: 47, // V
	0x30: 48, // B
	0x31: 49, // N
	0x32: 50, // M
	0x33: 51, // ,
	0x34: 52, // .
	0x35: 53, // /
	0x36: 54, // right shift
	0x37: 55, // keypad *
	0x38: 56, // left alt
	0x39: 57, // space
	0x3A: 58, // capslock
	0x3B: 59, // F1
	0x3C: 60, // F2
	0x3D: 61, // F3
	0x3E: 62, // F4
	0x3F: 63, // F5
	0x40: 64, // F6
	0x41: 65, // F7
	0x42: 66, // F8
	0x43: 67, // F9
	0x44: 68, // F10
	0x45: 69, // numlock
	0x46: 70, // scrolllock
	0x47: 71, // keypad 7
	0x48: 72, // keypad 8
	0x49: 73, // keypad 9
	0x4A: 74, // keypad -
	0x4B: 75, // keypad 4
	0x4C: 76, // keypad 5
	0x4D: 77, // keypad 6
	0x4E: 78, // keypad +
	0x4F: 79, // keypad 1
	0x50: 80, // keypad 2
	0x51: 81, // keypad 3
	0x52: 82, // keypad 0
	0x53: 83, // keypad .
	0x57: 87, // F11
	0x58: 88, // F12

	// Extended (E0-prefixed) codes.
	extendedFlag | 0x1C: 96,  // keypad enter
	extendedFlag | 0x1D: 97,  // right ctrl
	extendedFlag | 0x35: 98,  // keypad /
	extendedFlag | 0x38: 100, // right alt
	extendedFlag | 0x47: 102, // home
	extendedFlag | 0x48: 103, // up
	extendedFlag | 0x49: 104, // pageup
	extendedFlag | 0x4B: 105, // left
	extendedFlag | 0x4D: 106, // right
	extendedFlag | 0x4F: 107, // end
	extendedFlag | 0x50: 108, // down
	extendedFlag | 0x51: 109, // pagedown
	extendedFlag | 0x52: 110, // insert
	extendedFlag | 0x53: 111, // delete
	extendedFlag | 0x5B: 125, // left meta
	extendedFlag | 0x5C: 126, // right meta
	extendedFlag | 0x5D: 127, // menu/compose
}

// ScancodeToEvdev converts an MS-RDPBCGR scancode to a Linux evdev keycode.
// rdpwire.KeyEvent carries the extended (E0-prefixed) indicator folded into
// the high byte of Code by the external library, matching extendedFlag's
// encoding here, so the lookup needs no separate extended argument. Returns
// 0 if no mapping exists, mirroring vk_evdev.go's VKToEvdev.
func ScancodeToEvdev(code rdpwire.Scancode) int {
	if evdev, ok := rdpScancodeToEvdev[code]; ok {
		return evdev
	}
	return 0
}
