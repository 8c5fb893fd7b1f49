package cpu

import (
	"github.com/valerio/dotmatrix/dotmatrix/addr"
	"github.com/valerio/dotmatrix/dotmatrix/bit"
)

// Bus is the memory interface the CPU drives.
//
// Read and Write advance the rest of the machine by one M-cycle before the
// bus operation completes, which is what keeps the PPU, APU and timer in
// lock-step with instruction execution. Tick burns an internal M-cycle with
// no bus operation. Peek and Poke bypass the clock entirely; they exist for
// interrupt polling, which observes the bus without consuming time.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	Peek(address uint16) byte
	Poke(address uint16, value byte)
	Tick()
	// ConsumeCycles returns the T-cycles elapsed since the last call.
	ConsumeCycles() int
	// ToggleSpeed performs the CGB speed switch if one is armed via KEY1.
	ToggleSpeed() bool
}

// Flag is one of the 4 flags in the flag register (low byte of AF).
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// CPU is the Sharp LR35902 core.
//
// The register file is six 16-bit words; the eight 8-bit names are views
// into their halves. Writes into AF always force the low nibble of F to
// zero, so the invariant holds no matter which view performed the write.
type CPU struct {
	bus Bus

	af, bc, de, hl uint16
	sp, pc         uint16

	ime     bool
	halted  bool
	haltBug bool
	eiDelay uint8

	currentOpcode uint8
}

// New returns a CPU in DMG post-boot state.
func New(bus Bus) *CPU {
	c := &CPU{bus: bus}
	c.Reset()
	return c
}

// Reset restores DMG post-boot register values.
func (c *CPU) Reset() {
	c.af = 0x01B0
	c.bc = 0x0013
	c.de = 0x00D8
	c.hl = 0x014D
	c.sp = 0xFFFE
	c.pc = 0x0100
	c.ime = false
	c.halted = false
	c.haltBug = false
	c.eiDelay = 0
}

// ResetCGB restores CGB post-boot register values. Guests detect Color
// hardware by A holding 0x11 at entry.
func (c *CPU) ResetCGB() {
	c.Reset()
	c.af = 0x1180
	c.bc = 0x0000
	c.de = 0xFF56
	c.hl = 0x000D
}

// SetPC sets the program counter; used when starting from a boot ROM.
func (c *CPU) SetPC(pc uint16) { c.pc = pc }

// GetPC returns the current program counter.
func (c *CPU) GetPC() uint16 { return c.pc }

// 8-bit register views. Only the AF accessors need masking; the rest are
// plain half-word reads and writes.

func (c *CPU) a() uint8     { return bit.High(c.af) }
func (c *CPU) setA(v uint8) { c.af = uint16(v)<<8 | c.af&0x00F0 }
func (c *CPU) f() uint8     { return uint8(c.af) & 0xF0 }

func (c *CPU) b() uint8     { return bit.High(c.bc) }
func (c *CPU) setB(v uint8) { c.bc = uint16(v)<<8 | c.bc&0x00FF }
func (c *CPU) cReg() uint8  { return bit.Low(c.bc) }
func (c *CPU) setC(v uint8) { c.bc = c.bc&0xFF00 | uint16(v) }

func (c *CPU) d() uint8     { return bit.High(c.de) }
func (c *CPU) setD(v uint8) { c.de = uint16(v)<<8 | c.de&0x00FF }
func (c *CPU) e() uint8     { return bit.Low(c.de) }
func (c *CPU) setE(v uint8) { c.de = c.de&0xFF00 | uint16(v) }

func (c *CPU) h() uint8     { return bit.High(c.hl) }
func (c *CPU) setH(v uint8) { c.hl = uint16(v)<<8 | c.hl&0x00FF }
func (c *CPU) l() uint8     { return bit.Low(c.hl) }
func (c *CPU) setL(v uint8) { c.hl = c.hl&0xFF00 | uint16(v) }

func (c *CPU) setAF(v uint16) { c.af = v & 0xFFF0 }

// flag helpers

func (c *CPU) setFlag(flag Flag) {
	c.af = c.af | uint16(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.af = c.af &^ uint16(flag)
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.af&uint16(flag) != 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

// bus access helpers; every call through read/write/internal costs one
// M-cycle, which is how instruction timing is accounted.

func (c *CPU) read(address uint16) byte {
	return c.bus.Read(address)
}

func (c *CPU) write(address uint16, value byte) {
	c.bus.Write(address, value)
}

func (c *CPU) internal() {
	c.bus.Tick()
}

// fetch reads the byte at PC and advances it. A pending halt bug makes the
// fetch not advance PC, so the byte is decoded twice.
func (c *CPU) fetch() byte {
	v := c.read(c.pc)
	c.pc++
	if c.haltBug {
		c.pc--
		c.haltBug = false
	}
	return v
}

func (c *CPU) fetchWord() uint16 {
	low := c.fetch()
	high := c.fetch()
	return bit.Combine(high, low)
}

func (c *CPU) pushStack(value uint16) {
	c.internal()
	c.sp--
	c.write(c.sp, bit.High(value))
	c.sp--
	c.write(c.sp, bit.Low(value))
}

func (c *CPU) popStack() uint16 {
	low := c.read(c.sp)
	c.sp++
	high := c.read(c.sp)
	c.sp++
	return bit.Combine(high, low)
}

// Step runs one instruction or one interrupt service and returns the number
// of T-cycles consumed.
func (c *CPU) Step() int {
	if c.serviceInterrupts() {
		return c.bus.ConsumeCycles()
	}

	if c.halted {
		c.internal()
		return c.bus.ConsumeCycles()
	}

	c.currentOpcode = c.fetch()
	c.execute(c.currentOpcode)

	if c.eiDelay > 0 {
		c.eiDelay--
		if c.eiDelay == 0 {
			c.ime = true
		}
	}

	return c.bus.ConsumeCycles()
}

// serviceInterrupts checks the five sources in priority order. A pending
// interrupt always clears the halted state; it is only dispatched when IME
// is set, and only one interrupt is serviced per step.
func (c *CPU) serviceInterrupts() bool {
	enabled := c.bus.Peek(addr.IE)
	requested := c.bus.Peek(addr.IF)
	pending := enabled & requested & 0x1F
	if pending == 0 {
		return false
	}

	c.halted = false
	if !c.ime {
		return false
	}

	for i := uint8(0); i < 5; i++ {
		if !bit.IsSet(i, pending) {
			continue
		}

		c.bus.Poke(addr.IF, bit.Reset(i, requested))
		c.ime = false
		c.eiDelay = 0
		c.internal()
		c.internal()
		if c.haltBug {
			// a halt bug still pending from HALT is resolved by the
			// dispatch: the return address is the HALT itself
			c.haltBug = false
			c.pc--
		}
		c.pushStack(c.pc)
		c.pc = 0x0040 + uint16(i)*8
		return true
	}

	return false
}

// halt implements the HALT instruction including the hardware bug: entering
// HALT with IME clear while an interrupt is already pending makes the next
// opcode fetch not advance PC.
func (c *CPU) halt() {
	pending := c.bus.Peek(addr.IE)&c.bus.Peek(addr.IF)&0x1F != 0
	if !c.ime && pending {
		c.haltBug = true
		return
	}
	c.halted = true
}

// stop implements STOP: on CGB it performs an armed speed switch, otherwise
// it is a NOP for this machine's scope.
func (c *CPU) stop() {
	c.bus.ToggleSpeed()
}
