// Package dotmatrix implements a cycle-accurate DMG/CGB emulation core.
//
// A Machine is an exclusively-owned aggregate with no internal locking: the
// host drives it from one goroutine via StepCycles and reads the completed
// frame and audio buffers between calls.
package dotmatrix

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/valerio/dotmatrix/dotmatrix/cpu"
	"github.com/valerio/dotmatrix/dotmatrix/memory"
)

// FrameCycles is the length of one full PPU frame in T-cycles.
const FrameCycles = 70224

// ClockRate is the DMG master clock in T-cycles per second.
const ClockRate = 4194304

// Button identifies one of the eight joypad inputs. The values are stable
// across releases: Right=0, Left=1, Up=2, Down=3, A=4, B=5, Select=6,
// Start=7.
type Button = memory.JoypadKey

const (
	ButtonRight  = memory.JoypadRight
	ButtonLeft   = memory.JoypadLeft
	ButtonUp     = memory.JoypadUp
	ButtonDown   = memory.JoypadDown
	ButtonA      = memory.JoypadA
	ButtonB      = memory.JoypadB
	ButtonSelect = memory.JoypadSelect
	ButtonStart  = memory.JoypadStart
)

// Machine is one emulated Game Boy. Create with New, feed it a ROM with
// LoadROM and drive it with StepCycles.
type Machine struct {
	cpu *cpu.CPU
	mmu *memory.MMU

	cyclesSinceRun int
	frameCarry     int
	frameCount     uint64
}

// New creates a machine with no cartridge inserted.
func New() *Machine {
	m := &Machine{}
	m.mmu = memory.New()
	m.cpu = cpu.New(m)
	return m
}

// NewWithFile creates a machine and loads the ROM file at path into it.
func NewWithFile(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	m := New()
	if err := m.LoadROM(data); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, nil
}

// Reset restores power-on state and drops the loaded cartridge. Allocated
// buffers are kept; their contents are cleared.
func (m *Machine) Reset() {
	m.mmu.Reset()
	m.cpu.Reset()
	m.cyclesSinceRun = 0
	m.frameCarry = 0
	m.frameCount = 0
}

// LoadROM decodes the cartridge header, configures the matching bank
// controller and resets execution state. When a boot ROM has been installed
// execution starts at 0x0000 with the overlay mapped; otherwise the machine
// starts in post-boot state at 0x0100.
func (m *Machine) LoadROM(data []byte) error {
	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return err
	}
	if err := m.mmu.LoadCartridge(cart); err != nil {
		return err
	}

	if cart.IsCGB() {
		m.cpu.ResetCGB()
	} else {
		m.cpu.Reset()
	}
	if !m.BootROMFinished() {
		m.cpu.SetPC(0x0000)
	}
	return nil
}

// SetBootROM installs a boot ROM image (256 bytes on DMG, 2KB with a hole
// at 0x100-0x1FF on CGB). Takes effect on the next LoadROM.
func (m *Machine) SetBootROM(data []byte) {
	m.mmu.SetBootROM(data)
}

// BootROMFinished reports whether the boot ROM overlay has been retired.
func (m *Machine) BootROMFinished() bool {
	return !m.mmu.BootROMActive()
}

// ROMTitle returns the cartridge title (up to 15 ASCII characters,
// truncated at the first NUL), or the empty string with no cartridge.
func (m *Machine) ROMTitle() string {
	cart := m.mmu.Cartridge()
	if cart == nil {
		return ""
	}
	return cart.Title()
}

// SupportsSaving reports whether the cartridge has battery-backed RAM.
func (m *Machine) SupportsSaving() bool {
	cart := m.mmu.Cartridge()
	return cart != nil && cart.HasBattery()
}

// BatteryBackedRAM returns the live save RAM backing store (the raw MBC RAM
// bytes, or the 512-nibble MBC2 on-chip RAM), or nil when the cartridge has
// none. The host persists these bytes as-is.
func (m *Machine) BatteryBackedRAM() []byte {
	if !m.SupportsSaving() {
		return nil
	}
	return m.mmu.BatteryRAM()
}

// SetBatteryBackedRAM copies a previously saved RAM image back in.
func (m *Machine) SetBatteryBackedRAM(data []byte) {
	ram := m.mmu.BatteryRAM()
	if ram == nil {
		return
	}
	copy(ram, data)
}

// SetRumbleFunc installs the callback invoked when an MBC5-rumble cartridge
// toggles the rumble line. Must be called before LoadROM.
func (m *Machine) SetRumbleFunc(f func(bool)) {
	m.mmu.SetRumbleFunc(f)
}

// SetSerialFunc installs a callback receiving every byte the guest writes
// to the link port. Used by test harnesses capturing Blargg ROM output.
func (m *Machine) SetSerialFunc(f func(byte)) {
	m.mmu.Serial.OnByte = f
}

// StepCycles runs whole CPU instructions until at least n T-cycles have
// elapsed. The return value is n minus the consumed cycles: zero or
// negative, its magnitude the overshoot for the host to carry into the next
// call.
func (m *Machine) StepCycles(n int) int {
	remaining := n
	for remaining > 0 {
		remaining -= m.cpu.Step()
	}
	return remaining
}

// RunFrame advances by one frame worth of T-cycles, carrying the overshoot
// across calls so long-run frame pacing stays exact.
func (m *Machine) RunFrame() {
	m.frameCarry = m.StepCycles(FrameCycles + m.frameCarry)
	m.frameCount++
}

// FrameCount returns the number of completed RunFrame calls.
func (m *Machine) FrameCount() uint64 {
	return m.frameCount
}

// Pixels returns the 160x144 RGBA front buffer. The slice contents are
// stable between V-blank boundaries; the host must not write to it.
func (m *Machine) Pixels() []byte {
	return m.mmu.PPU.FrameBuffer().Front()
}

// ButtonPress presses a joypad button and raises the joypad interrupt.
func (m *Machine) ButtonPress(b Button) {
	m.mmu.Joypad.Press(b)
}

// ButtonRelease releases a joypad button.
func (m *Machine) ButtonRelease(b Button) {
	m.mmu.Joypad.Release(b)
}

// ReadLeftAudio pops up to len(dst) samples from the left channel ring and
// returns how many were written.
func (m *Machine) ReadLeftAudio(dst []float32) int {
	return m.mmu.APU.ReadLeft(dst)
}

// ReadRightAudio pops up to len(dst) samples from the right channel ring.
func (m *Machine) ReadRightAudio(dst []float32) int {
	return m.mmu.APU.ReadRight(dst)
}

// cpu.Bus implementation. Every Read/Write/Tick advances the whole machine
// by one M-cycle before the bus operation completes, so an instruction that
// reads IF after a cycle boundary observes interrupts raised on that
// boundary.

func (m *Machine) Read(address uint16) byte {
	m.Tick()
	return m.mmu.Read(address)
}

func (m *Machine) Write(address uint16, value byte) {
	m.Tick()
	m.mmu.Write(address, value)
}

func (m *Machine) Peek(address uint16) byte {
	return m.mmu.Read(address)
}

func (m *Machine) Poke(address uint16, value byte) {
	m.mmu.Write(address, value)
}

// Tick advances the PPU, APU, timer and serial by one M-cycle. The CPU and
// everything fed from its clock run double rate after a CGB speed switch;
// the PPU always advances four dots per machine cycle of its own clock.
func (m *Machine) Tick() {
	t := 4
	if m.mmu.DoubleSpeed() {
		t = 8
	}
	m.cyclesSinceRun += t
	m.mmu.Tick(t)
	m.mmu.APU.Tick(t)
	m.mmu.PPU.Tick(4)
}

// ConsumeCycles returns the T-cycles elapsed since the last call.
func (m *Machine) ConsumeCycles() int {
	n := m.cyclesSinceRun
	m.cyclesSinceRun = 0
	return n
}

// ToggleSpeed forwards the CGB speed switch from STOP.
func (m *Machine) ToggleSpeed() bool {
	return m.mmu.ToggleSpeed()
}

// CGB reports whether the loaded cartridge runs in Color mode.
func (m *Machine) CGB() bool {
	return m.mmu.IsCGB()
}

var _ cpu.Bus = (*Machine)(nil)
