package cpu

import "github.com/valerio/dotmatrix/dotmatrix/bit"

// reg8 reads the 8-bit operand encoded by the low three opcode bits.
// Index 6 is (HL) and costs a memory cycle.
func (c *CPU) reg8(index uint8) uint8 {
	switch index & 0x07 {
	case 0:
		return c.b()
	case 1:
		return c.cReg()
	case 2:
		return c.d()
	case 3:
		return c.e()
	case 4:
		return c.h()
	case 5:
		return c.l()
	case 6:
		return c.read(c.hl)
	default:
		return c.a()
	}
}

// setReg8 writes the 8-bit operand encoded by an opcode register index.
func (c *CPU) setReg8(index uint8, value uint8) {
	switch index & 0x07 {
	case 0:
		c.setB(value)
	case 1:
		c.setC(value)
	case 2:
		c.setD(value)
	case 3:
		c.setE(value)
	case 4:
		c.setH(value)
	case 5:
		c.setL(value)
	case 6:
		c.write(c.hl, value)
	default:
		c.setA(value)
	}
}

// execute runs one decoded base opcode. The regular LD and ALU families
// (0x40-0xBF) are decoded by register index; everything else is a flat
// per-opcode dispatch.
func (c *CPU) execute(opcode uint8) {
	// LD r, r' / LD r, (HL) / LD (HL), r
	if opcode >= 0x40 && opcode <= 0x7F {
		if opcode == 0x76 {
			c.halt()
			return
		}
		c.setReg8(opcode>>3, c.reg8(opcode))
		return
	}

	// ALU A, r
	if opcode >= 0x80 && opcode <= 0xBF {
		value := c.reg8(opcode)
		c.alu(opcode>>3&0x07, value)
		return
	}

	switch opcode {
	case 0x00: // NOP
	case 0x01: // LD BC, nn
		c.bc = c.fetchWord()
	case 0x02: // LD (BC), A
		c.write(c.bc, c.a())
	case 0x03: // INC BC
		c.bc++
		c.internal()
	case 0x04: // INC B
		c.setB(c.inc(c.b()))
	case 0x05: // DEC B
		c.setB(c.dec(c.b()))
	case 0x06: // LD B, n
		c.setB(c.fetch())
	case 0x07: // RLCA
		c.setA(c.rlc(c.a(), false))
	case 0x08: // LD (nn), SP
		target := c.fetchWord()
		c.write(target, bit.Low(c.sp))
		c.write(target+1, bit.High(c.sp))
	case 0x09: // ADD HL, BC
		c.addToHL(c.bc)
	case 0x0A: // LD A, (BC)
		c.setA(c.read(c.bc))
	case 0x0B: // DEC BC
		c.bc--
		c.internal()
	case 0x0C: // INC C
		c.setC(c.inc(c.cReg()))
	case 0x0D: // DEC C
		c.setC(c.dec(c.cReg()))
	case 0x0E: // LD C, n
		c.setC(c.fetch())
	case 0x0F: // RRCA
		c.setA(c.rrc(c.a(), false))
	case 0x10: // STOP
		c.stop()
	case 0x11: // LD DE, nn
		c.de = c.fetchWord()
	case 0x12: // LD (DE), A
		c.write(c.de, c.a())
	case 0x13: // INC DE
		c.de++
		c.internal()
	case 0x14: // INC D
		c.setD(c.inc(c.d()))
	case 0x15: // DEC D
		c.setD(c.dec(c.d()))
	case 0x16: // LD D, n
		c.setD(c.fetch())
	case 0x17: // RLA
		c.setA(c.rl(c.a(), false))
	case 0x18: // JR n
		c.jr(true)
	case 0x19: // ADD HL, DE
		c.addToHL(c.de)
	case 0x1A: // LD A, (DE)
		c.setA(c.read(c.de))
	case 0x1B: // DEC DE
		c.de--
		c.internal()
	case 0x1C: // INC E
		c.setE(c.inc(c.e()))
	case 0x1D: // DEC E
		c.setE(c.dec(c.e()))
	case 0x1E: // LD E, n
		c.setE(c.fetch())
	case 0x1F: // RRA
		c.setA(c.rr(c.a(), false))
	case 0x20: // JR NZ, n
		c.jr(!c.isSetFlag(zeroFlag))
	case 0x21: // LD HL, nn
		c.hl = c.fetchWord()
	case 0x22: // LD (HL+), A
		c.write(c.hl, c.a())
		c.hl++
	case 0x23: // INC HL
		c.hl++
		c.internal()
	case 0x24: // INC H
		c.setH(c.inc(c.h()))
	case 0x25: // DEC H
		c.setH(c.dec(c.h()))
	case 0x26: // LD H, n
		c.setH(c.fetch())
	case 0x27: // DAA
		c.daa()
	case 0x28: // JR Z, n
		c.jr(c.isSetFlag(zeroFlag))
	case 0x29: // ADD HL, HL
		c.addToHL(c.hl)
	case 0x2A: // LD A, (HL+)
		c.setA(c.read(c.hl))
		c.hl++
	case 0x2B: // DEC HL
		c.hl--
		c.internal()
	case 0x2C: // INC L
		c.setL(c.inc(c.l()))
	case 0x2D: // DEC L
		c.setL(c.dec(c.l()))
	case 0x2E: // LD L, n
		c.setL(c.fetch())
	case 0x2F: // CPL
		c.setA(^c.a())
		c.setFlag(subFlag)
		c.setFlag(halfCarryFlag)
	case 0x30: // JR NC, n
		c.jr(!c.isSetFlag(carryFlag))
	case 0x31: // LD SP, nn
		c.sp = c.fetchWord()
	case 0x32: // LD (HL-), A
		c.write(c.hl, c.a())
		c.hl--
	case 0x33: // INC SP
		c.sp++
		c.internal()
	case 0x34: // INC (HL)
		c.write(c.hl, c.inc(c.read(c.hl)))
	case 0x35: // DEC (HL)
		c.write(c.hl, c.dec(c.read(c.hl)))
	case 0x36: // LD (HL), n
		c.write(c.hl, c.fetch())
	case 0x37: // SCF
		c.resetFlag(subFlag)
		c.resetFlag(halfCarryFlag)
		c.setFlag(carryFlag)
	case 0x38: // JR C, n
		c.jr(c.isSetFlag(carryFlag))
	case 0x39: // ADD HL, SP
		c.addToHL(c.sp)
	case 0x3A: // LD A, (HL-)
		c.setA(c.read(c.hl))
		c.hl--
	case 0x3B: // DEC SP
		c.sp--
		c.internal()
	case 0x3C: // INC A
		c.setA(c.inc(c.a()))
	case 0x3D: // DEC A
		c.setA(c.dec(c.a()))
	case 0x3E: // LD A, n
		c.setA(c.fetch())
	case 0x3F: // CCF
		c.resetFlag(subFlag)
		c.resetFlag(halfCarryFlag)
		c.setFlagToCondition(carryFlag, !c.isSetFlag(carryFlag))
	case 0xC0: // RET NZ
		c.ret(!c.isSetFlag(zeroFlag), true)
	case 0xC1: // POP BC
		c.bc = c.popStack()
	case 0xC2: // JP NZ, nn
		c.jp(!c.isSetFlag(zeroFlag))
	case 0xC3: // JP nn
		c.jp(true)
	case 0xC4: // CALL NZ, nn
		c.call(!c.isSetFlag(zeroFlag))
	case 0xC5: // PUSH BC
		c.pushStack(c.bc)
	case 0xC6: // ADD A, n
		c.addToA(c.fetch())
	case 0xC7: // RST 00H
		c.rst(0x00)
	case 0xC8: // RET Z
		c.ret(c.isSetFlag(zeroFlag), true)
	case 0xC9: // RET
		c.ret(true, false)
	case 0xCA: // JP Z, nn
		c.jp(c.isSetFlag(zeroFlag))
	case 0xCB: // CB prefix
		c.executeCB(c.fetch())
	case 0xCC: // CALL Z, nn
		c.call(c.isSetFlag(zeroFlag))
	case 0xCD: // CALL nn
		c.call(true)
	case 0xCE: // ADC A, n
		c.adc(c.fetch())
	case 0xCF: // RST 08H
		c.rst(0x08)
	case 0xD0: // RET NC
		c.ret(!c.isSetFlag(carryFlag), true)
	case 0xD1: // POP DE
		c.de = c.popStack()
	case 0xD2: // JP NC, nn
		c.jp(!c.isSetFlag(carryFlag))
	case 0xD4: // CALL NC, nn
		c.call(!c.isSetFlag(carryFlag))
	case 0xD5: // PUSH DE
		c.pushStack(c.de)
	case 0xD6: // SUB n
		c.sub(c.fetch())
	case 0xD7: // RST 10H
		c.rst(0x10)
	case 0xD8: // RET C
		c.ret(c.isSetFlag(carryFlag), true)
	case 0xD9: // RETI
		c.ret(true, false)
		c.ime = true
	case 0xDA: // JP C, nn
		c.jp(c.isSetFlag(carryFlag))
	case 0xDC: // CALL C, nn
		c.call(c.isSetFlag(carryFlag))
	case 0xDE: // SBC A, n
		c.sbc(c.fetch())
	case 0xDF: // RST 18H
		c.rst(0x18)
	case 0xE0: // LDH (n), A
		c.write(0xFF00+uint16(c.fetch()), c.a())
	case 0xE1: // POP HL
		c.hl = c.popStack()
	case 0xE2: // LD (C), A
		c.write(0xFF00+uint16(c.cReg()), c.a())
	case 0xE5: // PUSH HL
		c.pushStack(c.hl)
	case 0xE6: // AND n
		c.and(c.fetch())
	case 0xE7: // RST 20H
		c.rst(0x20)
	case 0xE8: // ADD SP, n
		c.sp = c.addSPOffset()
		c.internal()
		c.internal()
	case 0xE9: // JP (HL)
		c.pc = c.hl
	case 0xEA: // LD (nn), A
		c.write(c.fetchWord(), c.a())
	case 0xEE: // XOR n
		c.xor(c.fetch())
	case 0xEF: // RST 28H
		c.rst(0x28)
	case 0xF0: // LDH A, (n)
		c.setA(c.read(0xFF00 + uint16(c.fetch())))
	case 0xF1: // POP AF
		c.setAF(c.popStack())
	case 0xF2: // LD A, (C)
		c.setA(c.read(0xFF00 + uint16(c.cReg())))
	case 0xF3: // DI
		c.ime = false
		c.eiDelay = 0
	case 0xF5: // PUSH AF
		c.pushStack(c.af)
	case 0xF6: // OR n
		c.or(c.fetch())
	case 0xF7: // RST 30H
		c.rst(0x30)
	case 0xF8: // LD HL, SP+n
		c.hl = c.addSPOffset()
		c.internal()
	case 0xF9: // LD SP, HL
		c.sp = c.hl
		c.internal()
	case 0xFA: // LD A, (nn)
		c.setA(c.read(c.fetchWord()))
	case 0xFB: // EI
		c.eiDelay = 2
	case 0xFE: // CP n
		c.cp(c.fetch())
	case 0xFF: // RST 38H
		c.rst(0x38)
	default:
		// illegal opcodes (0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC,
		// 0xED, 0xF4, 0xFC, 0xFD): the fetch is consumed, nothing happens
	}
}

// alu dispatches the 0x80-0xBF family by the operation index in bits 5-3.
func (c *CPU) alu(operation, value uint8) {
	switch operation {
	case 0:
		c.addToA(value)
	case 1:
		c.adc(value)
	case 2:
		c.sub(value)
	case 3:
		c.sbc(value)
	case 4:
		c.and(value)
	case 5:
		c.xor(value)
	case 6:
		c.or(value)
	default:
		c.cp(value)
	}
}
