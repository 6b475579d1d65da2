package input

import (
	"testing"

	"github.com/lamco-admin/wayland-rdp-sub008/internal/rdpwire"
)

func TestScancodeToEvdevBaseRange(t *testing.T) {
	cases := map[rdpwire.Scancode]int{
		0x01: 1,  // ESC
		0x1C: 28, // enter
		0x39: 57, // space
	}
	for code, want := range cases {
		if got := ScancodeToEvdev(code); got != want {
			t.Errorf("ScancodeToEvdev(%#x) = %d, want %d", code, got, want)
		}
	}
}

func TestScancodeToEvdevExtended(t *testing.T) {
	left := extendedFlag | 0x4B
	if got := ScancodeToEvdev(left); got != 105 {
		t.Errorf("extended left arrow = %d, want 105", got)
	}
}

func TestScancodeToEvdevUnmapped(t *testing.T) {
	if got := ScancodeToEvdev(0xFF); got != 0 {
		t.Errorf("unmapped scancode should return 0, got %d", got)
	}
}
