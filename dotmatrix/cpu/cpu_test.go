package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/dotmatrix/dotmatrix/addr"
)

// testBus is a flat 64KB memory with teacher-free cycle accounting: every
// bus operation costs 4 T-cycles, like a machine in normal speed.
type testBus struct {
	mem    [0x10000]byte
	cycles int
}

func (b *testBus) Read(address uint16) byte {
	b.cycles += 4
	return b.mem[address]
}

func (b *testBus) Write(address uint16, value byte) {
	b.cycles += 4
	b.mem[address] = value
}

func (b *testBus) Peek(address uint16) byte        { return b.mem[address] }
func (b *testBus) Poke(address uint16, value byte) { b.mem[address] = value }
func (b *testBus) Tick()                           { b.cycles += 4 }
func (b *testBus) ToggleSpeed() bool               { return false }

func (b *testBus) ConsumeCycles() int {
	n := b.cycles
	b.cycles = 0
	return n
}

func newTestCPU(program ...byte) (*CPU, *testBus) {
	bus := &testBus{}
	c := New(bus)
	copy(bus.mem[0x0100:], program)
	return c, bus
}

func TestRegisterViews(t *testing.T) {
	c, _ := newTestCPU()

	c.setA(0x12)
	assert.Equal(t, uint8(0x12), c.a())

	c.setB(0xAB)
	c.setC(0xCD)
	assert.Equal(t, uint16(0xABCD), c.bc)

	c.de = 0x1234
	assert.Equal(t, uint8(0x12), c.d())
	assert.Equal(t, uint8(0x34), c.e())
}

func TestFlagRegisterLowNibbleAlwaysZero(t *testing.T) {
	c, _ := newTestCPU()

	c.setAF(0x12FF)
	assert.Equal(t, uint16(0x12F0), c.af)
	assert.Equal(t, uint8(0xF0), c.f())

	// POP AF must also mask
	c, bus := newTestCPU(0xF1) // POP AF
	c.sp = 0xC000
	bus.mem[0xC000] = 0x5F // flags byte with garbage in the low nibble
	bus.mem[0xC001] = 0x42
	c.Step()
	assert.Equal(t, uint16(0x4250), c.af)
}

func TestArithmeticFlags(t *testing.T) {
	tests := []struct {
		name    string
		run     func(c *CPU)
		a       uint8
		wantA   uint8
		wantF   uint8
	}{
		{"add no flags", func(c *CPU) { c.addToA(0x01) }, 0x10, 0x11, 0x00},
		{"add half carry", func(c *CPU) { c.addToA(0x01) }, 0x0F, 0x10, 0x20},
		{"add carry and zero", func(c *CPU) { c.addToA(0x01) }, 0xFF, 0x00, 0xB0},
		{"sub to zero", func(c *CPU) { c.sub(0x42) }, 0x42, 0x00, 0xC0},
		{"sub borrow", func(c *CPU) { c.sub(0x01) }, 0x00, 0xFF, 0x70},
		{"and sets H", func(c *CPU) { c.and(0x0F) }, 0xF0, 0x00, 0xA0},
		{"xor clears all but Z", func(c *CPU) { c.xor(0xFF) }, 0xFF, 0x00, 0x80},
		{"cp leaves A", func(c *CPU) { c.cp(0x01) }, 0x05, 0x05, 0x40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCPU()
			c.setAF(0)
			c.setA(tt.a)
			tt.run(c)
			assert.Equal(t, tt.wantA, c.a(), "A")
			assert.Equal(t, tt.wantF, c.f(), "F")
		})
	}
}

func TestADCWithCarryChain(t *testing.T) {
	c, _ := newTestCPU()
	c.setAF(0)
	c.setA(0xFF)
	c.setFlag(carryFlag)
	c.adc(0x00)
	assert.Equal(t, uint8(0x00), c.a())
	assert.True(t, c.isSetFlag(zeroFlag))
	assert.True(t, c.isSetFlag(carryFlag))
	assert.True(t, c.isSetFlag(halfCarryFlag))
}

func TestSBCBorrowChain(t *testing.T) {
	c, _ := newTestCPU()
	c.setAF(0)
	c.setA(0x00)
	c.setFlag(carryFlag)
	c.sbc(0x00)
	assert.Equal(t, uint8(0xFF), c.a())
	assert.True(t, c.isSetFlag(carryFlag))
	assert.True(t, c.isSetFlag(halfCarryFlag))
	assert.True(t, c.isSetFlag(subFlag))
}

func TestDAA(t *testing.T) {
	tests := []struct {
		name  string
		a, b  uint8
		wantA uint8
	}{
		{"15 + 27 = 42", 0x15, 0x27, 0x42},
		{"09 + 01 = 10", 0x09, 0x01, 0x10},
		{"90 + 10 = 00 carry", 0x90, 0x10, 0x00},
		{"99 + 01 = 00 carry", 0x99, 0x01, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCPU()
			c.setAF(0)
			c.setA(tt.a)
			c.addToA(tt.b)
			c.daa()
			assert.Equal(t, tt.wantA, c.a())
		})
	}
}

func TestDAAAfterSubtraction(t *testing.T) {
	c, _ := newTestCPU()
	c.setAF(0)
	c.setA(0x42)
	c.sub(0x15)
	c.daa()
	assert.Equal(t, uint8(0x27), c.a())
}

func TestAddToHLHalfCarryBit11(t *testing.T) {
	c, _ := newTestCPU()
	c.setAF(0)
	c.hl = 0x0FFF
	c.addToHL(0x0001)
	assert.Equal(t, uint16(0x1000), c.hl)
	assert.True(t, c.isSetFlag(halfCarryFlag))
	assert.False(t, c.isSetFlag(carryFlag))
}

func TestInstructionCycles(t *testing.T) {
	tests := []struct {
		name    string
		program []byte
		setup   func(c *CPU)
		cycles  int
	}{
		{"NOP", []byte{0x00}, nil, 4},
		{"LD B, n", []byte{0x06, 0x42}, nil, 8},
		{"LD B, C", []byte{0x41}, nil, 4},
		{"LD B, (HL)", []byte{0x46}, nil, 8},
		{"LD (HL), B", []byte{0x70}, nil, 8},
		{"INC BC", []byte{0x03}, nil, 8},
		{"INC (HL)", []byte{0x34}, func(c *CPU) { c.hl = 0xC000 }, 12},
		{"LD BC, nn", []byte{0x01, 0x34, 0x12}, nil, 12},
		{"LD (nn), SP", []byte{0x08, 0x00, 0xC0}, nil, 20},
		{"ADD HL, DE", []byte{0x19}, nil, 8},
		{"JR taken", []byte{0x18, 0x05}, nil, 12},
		{"JR NZ untaken", []byte{0x20, 0x05}, func(c *CPU) { c.setFlag(zeroFlag) }, 8},
		{"JP", []byte{0xC3, 0x00, 0xC0}, nil, 16},
		{"JP NZ untaken", []byte{0xC2, 0x00, 0xC0}, func(c *CPU) { c.setFlag(zeroFlag) }, 12},
		{"JP (HL)", []byte{0xE9}, nil, 4},
		{"CALL", []byte{0xCD, 0x00, 0xC0}, func(c *CPU) { c.sp = 0xD000 }, 24},
		{"CALL NC untaken", []byte{0xD4, 0x00, 0xC0}, func(c *CPU) { c.setFlag(carryFlag) }, 12},
		{"RET", []byte{0xC9}, func(c *CPU) { c.sp = 0xD000 }, 16},
		{"RET Z taken", []byte{0xC8}, func(c *CPU) { c.sp = 0xD000; c.setFlag(zeroFlag) }, 20},
		{"RET Z untaken", []byte{0xC8}, func(c *CPU) { c.resetFlag(zeroFlag) }, 8},
		{"RETI", []byte{0xD9}, func(c *CPU) { c.sp = 0xD000 }, 16},
		{"PUSH BC", []byte{0xC5}, func(c *CPU) { c.sp = 0xD000 }, 16},
		{"POP BC", []byte{0xC1}, func(c *CPU) { c.sp = 0xD000 }, 12},
		{"RST 38", []byte{0xFF}, func(c *CPU) { c.sp = 0xD000 }, 16},
		{"ADD SP, n", []byte{0xE8, 0x01}, nil, 16},
		{"LD HL, SP+n", []byte{0xF8, 0x01}, nil, 12},
		{"LD SP, HL", []byte{0xF9}, nil, 8},
		{"LDH (n), A", []byte{0xE0, 0x80}, nil, 12},
		{"LDH A, (n)", []byte{0xF0, 0x80}, nil, 12},
		{"LD A, (nn)", []byte{0xFA, 0x00, 0xC0}, nil, 16},
		{"EI", []byte{0xFB}, nil, 4},
		{"ADD A, n", []byte{0xC6, 0x01}, nil, 8},
		{"CB RLC B", []byte{0xCB, 0x00}, nil, 8},
		{"CB BIT 0, (HL)", []byte{0xCB, 0x46}, nil, 12},
		{"CB SET 0, (HL)", []byte{0xCB, 0xC6}, func(c *CPU) { c.hl = 0xC000 }, 16},
		{"illegal 0xD3", []byte{0xD3}, nil, 4},
		{"illegal 0xED", []byte{0xED}, nil, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCPU(tt.program...)
			if tt.setup != nil {
				tt.setup(c)
			}
			got := c.Step()
			assert.Equal(t, tt.cycles, got, "cycle count")
		})
	}
}

func TestLoadFamilyMoves(t *testing.T) {
	// LD D, E
	c, _ := newTestCPU(0x53)
	c.setE(0x99)
	c.Step()
	assert.Equal(t, uint8(0x99), c.d())

	// LD (HL), A then LD C, (HL)
	c, bus := newTestCPU(0x77, 0x4E)
	c.hl = 0xC123
	c.setA(0x42)
	c.Step()
	assert.Equal(t, uint8(0x42), bus.mem[0xC123])
	c.Step()
	assert.Equal(t, uint8(0x42), c.cReg())
}

func TestStackRoundTrip(t *testing.T) {
	c, _ := newTestCPU(0xC5, 0xD1) // PUSH BC; POP DE
	c.sp = 0xD000
	c.bc = 0x1234
	c.Step()
	assert.Equal(t, uint16(0xCFFE), c.sp)
	c.Step()
	assert.Equal(t, uint16(0x1234), c.de)
	assert.Equal(t, uint16(0xD000), c.sp)
}

func TestInterruptDispatch(t *testing.T) {
	c, bus := newTestCPU(0x00)
	c.sp = 0xD000
	c.ime = true
	bus.mem[addr.IE] = 0x01 // V-blank enabled
	bus.mem[addr.IF] = 0x01 // V-blank requested

	cycles := c.Step()

	assert.Equal(t, 20, cycles)
	assert.Equal(t, uint16(0x0040), c.pc)
	assert.False(t, c.ime)
	assert.Equal(t, uint8(0x00), bus.mem[addr.IF]&0x01, "IF bit should be acknowledged")
	// the old PC was pushed
	assert.Equal(t, uint8(0x01), bus.mem[0xCFFF])
	assert.Equal(t, uint8(0x00), bus.mem[0xCFFE])
}

func TestInterruptPriorityOrder(t *testing.T) {
	c, bus := newTestCPU(0x00)
	c.sp = 0xD000
	c.ime = true
	bus.mem[addr.IE] = 0x1F
	bus.mem[addr.IF] = 0x14 // timer (bit 2) and joypad (bit 4)

	c.Step()

	assert.Equal(t, uint16(0x0050), c.pc, "timer outranks joypad")
	assert.Equal(t, uint8(0x10), bus.mem[addr.IF]&0x1F, "only the serviced bit clears")
}

func TestInterruptMaskedByIME(t *testing.T) {
	c, bus := newTestCPU(0x00)
	c.ime = false
	bus.mem[addr.IE] = 0x01
	bus.mem[addr.IF] = 0x01

	cycles := c.Step()

	assert.Equal(t, 4, cycles, "the NOP runs instead")
	assert.Equal(t, uint16(0x0101), c.pc)
}

func TestHaltedStepConsumesOneMachineCycle(t *testing.T) {
	c, _ := newTestCPU(0x76) // HALT
	c.Step()
	assert.True(t, c.halted)

	cycles := c.Step()
	assert.Equal(t, 4, cycles)
	assert.True(t, c.halted)
}

func TestHaltWakesOnPendingWithoutIME(t *testing.T) {
	c, bus := newTestCPU(0x76, 0x00) // HALT; NOP
	c.Step()
	assert.True(t, c.halted)

	bus.mem[addr.IE] = 0x04
	bus.mem[addr.IF] = 0x04

	c.Step() // wakes and executes the NOP without dispatching
	assert.False(t, c.halted)
	assert.Equal(t, uint16(0x0102), c.pc)
	assert.Equal(t, uint8(0x04), bus.mem[addr.IF]&0x1F, "IF stays set")
}

func TestHaltBug(t *testing.T) {
	// HALT with IME clear and an interrupt already pending: the byte after
	// HALT is fetched twice. LD A, n reads its own opcode as the operand.
	c, bus := newTestCPU(0x76, 0x3E, 0x11) // HALT; LD A, n
	c.ime = false
	bus.mem[addr.IE] = 0x01
	bus.mem[addr.IF] = 0x01

	c.Step() // HALT does not halt, arms the bug
	assert.False(t, c.halted)

	c.Step()
	assert.Equal(t, uint8(0x3E), c.a(), "operand is the re-fetched opcode byte")
	assert.Equal(t, uint16(0x0102), c.pc, "PC lands after the doubled byte")
}

func TestHaltBugNotArmedWhenNothingPending(t *testing.T) {
	c, _ := newTestCPU(0x76)
	c.ime = false
	c.Step()
	assert.True(t, c.halted)
	assert.False(t, c.haltBug)
}

func TestEIDelay(t *testing.T) {
	c, bus := newTestCPU(0xFB, 0x00, 0x00) // EI; NOP; NOP
	c.sp = 0xD000
	bus.mem[addr.IE] = 0x01
	bus.mem[addr.IF] = 0x01

	c.Step() // EI
	assert.False(t, c.ime, "IME not yet set after EI")

	c.Step() // NOP; IME becomes true after it
	assert.True(t, c.ime)

	c.Step() // now the interrupt dispatches
	assert.Equal(t, uint16(0x0040), c.pc)
}

func TestDICancelsPendingEI(t *testing.T) {
	c, _ := newTestCPU(0xFB, 0xF3, 0x00) // EI; DI; NOP
	c.Step()
	c.Step()
	c.Step()
	assert.False(t, c.ime)
}

func TestCBDecode(t *testing.T) {
	// SWAP A
	c, _ := newTestCPU(0xCB, 0x37)
	c.setA(0xF1)
	c.Step()
	assert.Equal(t, uint8(0x1F), c.a())

	// BIT 7, H sets Z when clear
	c, _ = newTestCPU(0xCB, 0x7C)
	c.setH(0x00)
	c.Step()
	assert.True(t, c.isSetFlag(zeroFlag))

	// SET 3, (HL)
	c, bus := newTestCPU(0xCB, 0xDE)
	c.hl = 0xC000
	c.Step()
	assert.Equal(t, uint8(0x08), bus.mem[0xC000])

	// RES 0, B
	c, _ = newTestCPU(0xCB, 0x80)
	c.setB(0xFF)
	c.Step()
	assert.Equal(t, uint8(0xFE), c.b())
}

func TestRotatesThroughCarry(t *testing.T) {
	c, _ := newTestCPU()
	c.setAF(0)

	// RLCA wraps bit 7 around and clears Z
	c.setA(0x80)
	c.setA(c.rlc(c.a(), false))
	assert.Equal(t, uint8(0x01), c.a())
	assert.True(t, c.isSetFlag(carryFlag))
	assert.False(t, c.isSetFlag(zeroFlag))

	// CB RLC of zero sets Z
	v := c.rlc(0x00, true)
	assert.Equal(t, uint8(0x00), v)
	assert.True(t, c.isSetFlag(zeroFlag))

	// RRA pulls the carry into bit 7
	c.setAF(0)
	c.setFlag(carryFlag)
	c.setA(0x00)
	c.setA(c.rr(c.a(), false))
	assert.Equal(t, uint8(0x80), c.a())
	assert.False(t, c.isSetFlag(carryFlag))
}

func TestADDSPSignedOffsets(t *testing.T) {
	c, _ := newTestCPU(0xE8, 0xFE) // ADD SP, -2
	c.sp = 0xD000
	c.Step()
	assert.Equal(t, uint16(0xCFFE), c.sp)

	c, _ = newTestCPU(0xF8, 0x02) // LD HL, SP+2
	c.sp = 0xFFFD
	c.Step()
	assert.Equal(t, uint16(0xFFFF), c.hl)
	assert.False(t, c.isSetFlag(zeroFlag))
}

func TestPCWrapsAt64K(t *testing.T) {
	c, bus := newTestCPU()
	bus.mem[0xFFFF] = 0x00 // NOP at the top of memory (also IE, harmless here)
	c.pc = 0xFFFF
	c.Step()
	assert.Equal(t, uint16(0x0000), c.pc)
}
