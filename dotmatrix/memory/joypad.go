package memory

import "github.com/valerio/dotmatrix/dotmatrix/bit"

// JoypadKey represents a key on the Gameboy joypad.
// The values are stable: hosts pass them across the API boundary.
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// Joypad models the P1/JOYP register and the button matrix behind it.
//
// In real hw, P1 is just a selector (bits 4-5) that controls which set of
// buttons the low bits (0-3) are mapped to:
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Select, Start
//   - if both are selected, hw does an AND of both button sets
//   - if neither, the low nibble floats high (0x0F)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
type Joypad struct {
	buttons uint8 // A/B/Select/Start state, low 4 bits, inverse logic
	dpad    uint8 // d-pad state, low 4 bits, inverse logic
	selects uint8 // last written selection bits (4-5)

	// IRQ requester callback
	JoypadInterruptHandler func()
}

// Reset restores the joypad to power-on state (nothing pressed).
func (j *Joypad) Reset() {
	j.buttons = 0x0F
	j.dpad = 0x0F
	j.selects = 0x30
}

// Read returns the JOYP register value for the current selection.
func (j *Joypad) Read() uint8 {
	result := uint8(0b1100_0000) // bits 6-7 always read as 1
	result |= j.selects & 0b0011_0000

	selectDpad := !bit.IsSet(4, j.selects)
	selectButtons := !bit.IsSet(5, j.selects)

	switch {
	case selectButtons && !selectDpad:
		result |= j.buttons & 0x0F
	case selectDpad && !selectButtons:
		result |= j.dpad & 0x0F
	case selectButtons && selectDpad:
		result |= j.buttons & j.dpad & 0x0F
	default:
		result |= 0x0F
	}

	return result
}

// Write stores the selection bits; everything else in JOYP is read-only.
func (j *Joypad) Write(value uint8) {
	j.selects = value & 0b0011_0000
}

// Press clears the matrix bit for the key and requests the joypad
// interrupt on the high-to-low transition.
func (j *Joypad) Press(key JoypadKey) {
	before := j.buttons & j.dpad

	switch key {
	case JoypadRight:
		j.dpad = bit.Reset(0, j.dpad)
	case JoypadLeft:
		j.dpad = bit.Reset(1, j.dpad)
	case JoypadUp:
		j.dpad = bit.Reset(2, j.dpad)
	case JoypadDown:
		j.dpad = bit.Reset(3, j.dpad)
	case JoypadA:
		j.buttons = bit.Reset(0, j.buttons)
	case JoypadB:
		j.buttons = bit.Reset(1, j.buttons)
	case JoypadSelect:
		j.buttons = bit.Reset(2, j.buttons)
	case JoypadStart:
		j.buttons = bit.Reset(3, j.buttons)
	}

	if before != j.buttons&j.dpad && j.JoypadInterruptHandler != nil {
		j.JoypadInterruptHandler()
	}
}

// Release sets the matrix bit for the key.
func (j *Joypad) Release(key JoypadKey) {
	switch key {
	case JoypadRight:
		j.dpad = bit.Set(0, j.dpad)
	case JoypadLeft:
		j.dpad = bit.Set(1, j.dpad)
	case JoypadUp:
		j.dpad = bit.Set(2, j.dpad)
	case JoypadDown:
		j.dpad = bit.Set(3, j.dpad)
	case JoypadA:
		j.buttons = bit.Set(0, j.buttons)
	case JoypadB:
		j.buttons = bit.Set(1, j.buttons)
	case JoypadSelect:
		j.buttons = bit.Set(2, j.buttons)
	case JoypadStart:
		j.buttons = bit.Set(3, j.buttons)
	}
}
