package cpu

import "github.com/valerio/dotmatrix/dotmatrix/bit"

// executeCB runs one CB-prefixed opcode. The CB page is completely regular:
// bits 7-6 select the group, bits 5-3 the operation or bit index, bits 2-0
// the register operand.
func (c *CPU) executeCB(opcode uint8) {
	index := opcode >> 3 & 0x07
	reg := opcode & 0x07

	switch opcode >> 6 {
	case 0: // rotates and shifts
		value := c.reg8(reg)
		var result uint8
		switch index {
		case 0: // RLC
			result = c.rlc(value, true)
		case 1: // RRC
			result = c.rrc(value, true)
		case 2: // RL
			result = c.rl(value, true)
		case 3: // RR
			result = c.rr(value, true)
		case 4: // SLA
			result = c.sla(value)
		case 5: // SRA
			result = c.sra(value)
		case 6: // SWAP
			result = c.swap(value)
		default: // SRL
			result = c.srl(value)
		}
		c.setReg8(reg, result)
	case 1: // BIT b, r
		c.bitTest(index, c.reg8(reg))
	case 2: // RES b, r
		c.setReg8(reg, bit.Reset(index, c.reg8(reg)))
	default: // SET b, r
		c.setReg8(reg, bit.Set(index, c.reg8(reg)))
	}
}
