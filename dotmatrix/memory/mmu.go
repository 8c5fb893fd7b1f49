package memory

import (
	"fmt"
	"log/slog"

	"github.com/valerio/dotmatrix/dotmatrix/addr"
	"github.com/valerio/dotmatrix/dotmatrix/audio"
	"github.com/valerio/dotmatrix/dotmatrix/bit"
	"github.com/valerio/dotmatrix/dotmatrix/video"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionIO
)

// MMU owns the address decoder and the memory the SoC keeps on-die: work
// RAM, HRAM and the interrupt registers. Everything else is routed to the
// component that owns it (cartridge/MBC, PPU, APU, timer, joypad, serial).
type MMU struct {
	cart *Cartridge
	mbc  MBC

	PPU    *video.PPU
	APU    *audio.APU
	Timer  Timer
	Joypad Joypad
	Serial Serial

	wram  [8][0x1000]byte
	hram  [127]byte
	ifReg byte
	ieReg byte
	svbk  byte
	cgb   bool

	bootROM         []byte
	bootROMFinished bool

	// KEY1 speed switch state (CGB)
	speedSwitchArmed bool
	doubleSpeed      bool

	dmaReg byte
	hdma   [4]byte

	rumbleFunc func(bool)

	regionMap [256]memRegion
}

// New creates a memory unit with no cartridge loaded, equivalent to turning
// on a Game Boy with nothing inserted.
func New() *MMU {
	m := &MMU{
		PPU: video.NewPPU(),
		APU: audio.New(),
	}
	m.PPU.InterruptHandler = m.RequestInterrupt
	m.Timer.TimerInterruptHandler = func() { m.RequestInterrupt(addr.TimerInterrupt) }
	m.Joypad.JoypadInterruptHandler = func() { m.RequestInterrupt(addr.JoypadInterrupt) }
	m.Serial.SerialInterruptHandler = func() { m.RequestInterrupt(addr.SerialInterrupt) }
	m.initRegionMap()
	m.Reset()
	return m
}

// Reset restores power-on state and drops the loaded cartridge.
func (m *MMU) Reset() {
	m.cart = nil
	m.mbc = nil
	m.cgb = false
	m.wram = [8][0x1000]byte{}
	m.hram = [127]byte{}
	m.ifReg = 0xE1
	m.ieReg = 0
	m.svbk = 0
	m.bootROMFinished = true
	m.speedSwitchArmed = false
	m.doubleSpeed = false
	m.dmaReg = 0
	m.hdma = [4]byte{}
	m.Timer.Reset()
	m.Joypad.Reset()
	m.Serial.Reset()
	m.APU.Reset()
	m.PPU.Reset(false)
}

// SetRumbleFunc installs the callback invoked on MBC5 rumble edges.
// Must be set before LoadCartridge to take effect.
func (m *MMU) SetRumbleFunc(f func(bool)) {
	m.rumbleFunc = f
}

// SetBootROM installs a boot ROM image; the overlay stays mapped until the
// guest writes to 0xFF50.
func (m *MMU) SetBootROM(data []byte) {
	m.bootROM = data
	m.bootROMFinished = len(data) == 0
}

// LoadCartridge installs a cartridge and builds its bank controller.
func (m *MMU) LoadCartridge(cart *Cartridge) error {
	switch cart.mbcKind {
	case NoMBCKind:
		m.mbc = NewNoMBC(cart.data)
	case MBC1Kind:
		m.mbc = NewMBC1(cart.data, cart.ramBankCount)
	case MBC2Kind:
		m.mbc = NewMBC2(cart.data)
	case MBC3Kind:
		m.mbc = NewMBC3(cart.data, cart.ramBankCount, cart.hasRTC)
	case MBC5Kind:
		m.mbc = NewMBC5(cart.data, cart.ramBankCount, cart.hasRumble, m.rumbleFunc)
	default:
		return fmt.Errorf("unsupported MBC kind: %d", cart.mbcKind)
	}

	m.cart = cart
	m.cgb = cart.IsCGB()
	m.PPU.Reset(m.cgb)
	if len(m.bootROM) > 0 {
		m.bootROMFinished = false
	}
	return nil
}

// BootROMActive reports whether the boot ROM overlay is still mapped.
func (m *MMU) BootROMActive() bool {
	return !m.bootROMFinished
}

// Cartridge returns the loaded cartridge, or nil.
func (m *MMU) Cartridge() *Cartridge {
	return m.cart
}

// BatteryRAM exposes the external RAM backing store, or nil when the
// cartridge has none.
func (m *MMU) BatteryRAM() []byte {
	if m.mbc == nil {
		return nil
	}
	return m.mbc.RAM()
}

// IsCGB reports whether the machine runs in Color Game Boy mode.
func (m *MMU) IsCGB() bool {
	return m.cgb
}

// DoubleSpeed reports whether the CGB CPU is in double-speed mode.
func (m *MMU) DoubleSpeed() bool {
	return m.doubleSpeed
}

// ToggleSpeed performs the speed switch if one is armed via KEY1.
// Called by the CPU when executing STOP on CGB.
func (m *MMU) ToggleSpeed() bool {
	if !m.cgb || !m.speedSwitchArmed {
		return false
	}
	m.speedSwitchArmed = false
	m.doubleSpeed = !m.doubleSpeed
	slog.Debug("CPU speed switched", "double", m.doubleSpeed)
	return true
}

// Tick advances any i/o that needs it.
func (m *MMU) Tick(cycles int) {
	m.Timer.Tick(cycles)
	m.Serial.Tick(cycles)
}

func (m *MMU) initRegionMap() {
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	m.regionMap[0xFE] = regionOAM
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the matching bit in the IF register.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	m.ifReg |= byte(interrupt)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

// bootROMRead returns the overlay byte when the address falls inside the
// mapped boot ROM window.
func (m *MMU) bootROMRead(address uint16) (byte, bool) {
	if m.bootROMFinished {
		return 0, false
	}
	if address < 0x100 && int(address) < len(m.bootROM) {
		return m.bootROM[address], true
	}
	// the CGB boot ROM has a hole at 0x100-0x1FF where the header lives
	if m.cgb && address >= 0x200 && address < 0x900 && int(address) < len(m.bootROM) {
		return m.bootROM[address], true
	}
	return 0, false
}

func (m *MMU) Read(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM:
		if b, ok := m.bootROMRead(address); ok {
			return b
		}
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.PPU.ReadVRAM(address)
	case regionExtRAM:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionWRAM:
		return m.wram[m.wramBank(address)][address&0x0FFF]
	case regionEcho:
		return m.wram[m.wramBank(address-0x2000)][address&0x0FFF]
	case regionOAM:
		if address <= addr.OAMEnd {
			return m.PPU.ReadOAM(address)
		}
		// not usable area
		return 0x00
	case regionIO:
		return m.readIO(address)
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.PPU.WriteVRAM(address, value)
	case regionExtRAM:
		if m.mbc == nil {
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.wram[m.wramBank(address)][address&0x0FFF] = value
	case regionEcho:
		m.wram[m.wramBank(address-0x2000)][address&0x0FFF] = value
	case regionOAM:
		if address <= addr.OAMEnd {
			m.PPU.WriteOAM(address, value)
		}
	case regionIO:
		m.writeIO(address, value)
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

// wramBank resolves the bank for an address in 0xC000-0xDFFF.
func (m *MMU) wramBank(address uint16) int {
	if address < 0xD000 {
		return 0
	}
	if !m.cgb {
		return 1
	}
	bank := int(m.svbk & 0x07)
	if bank == 0 {
		bank = 1
	}
	return bank
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.P1:
		return m.Joypad.Read()
	case address == addr.SB || address == addr.SC:
		return m.Serial.Read(address)
	case address >= addr.DIV && address <= addr.TAC:
		return m.Timer.Read(address)
	case address == addr.IF:
		// the upper 3 bits are unused and always read as 1
		return m.ifReg | 0xE0
	case address >= addr.AudioStart && address <= addr.WaveRAMEnd:
		return m.APU.ReadRegister(address)
	case address == addr.DMA:
		return m.dmaReg
	case address >= addr.LCDC && address <= addr.WX:
		return m.PPU.Read(address)
	case address == addr.KEY1:
		if !m.cgb {
			return 0xFF
		}
		v := byte(0x7E)
		if m.doubleSpeed {
			v |= 0x80
		}
		if m.speedSwitchArmed {
			v |= 0x01
		}
		return v
	case address == addr.VBK:
		return m.PPU.Read(address)
	case address >= addr.HDMA1 && address <= addr.HDMA5:
		// VRAM DMA completes within the triggering write
		return 0xFF
	case address >= addr.BCPS && address <= addr.OCPD:
		return m.PPU.Read(address)
	case address == addr.SVBK:
		if !m.cgb {
			return 0xFF
		}
		return m.svbk | 0xF8
	case address == addr.IE:
		return m.ieReg
	case address >= 0xFF80:
		return m.hram[address-0xFF80]
	default:
		// unmapped I/O reads as all ones
		return 0xFF
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		m.Joypad.Write(value)
	case address == addr.SB || address == addr.SC:
		m.Serial.Write(address, value)
	case address >= addr.DIV && address <= addr.TAC:
		m.Timer.Write(address, value)
	case address == addr.IF:
		m.ifReg = value & 0x1F
	case address >= addr.AudioStart && address <= addr.WaveRAMEnd:
		m.APU.WriteRegister(address, value)
	case address == addr.DMA:
		m.dmaReg = value
		m.doOAMDMA(uint16(value) << 8)
	case address >= addr.LCDC && address <= addr.WX:
		m.PPU.Write(address, value)
	case address == addr.KEY1:
		if m.cgb {
			m.speedSwitchArmed = value&0x01 != 0
		}
	case address == addr.VBK:
		m.PPU.Write(address, value)
	case address == addr.BANK:
		if value != 0 {
			m.bootROMFinished = true
		}
	case address >= addr.HDMA1 && address <= addr.HDMA4:
		if m.cgb {
			m.hdma[address-addr.HDMA1] = value
		}
	case address == addr.HDMA5:
		if m.cgb {
			m.doVRAMDMA(value)
		}
	case address >= addr.BCPS && address <= addr.OCPD:
		m.PPU.Write(address, value)
	case address == addr.SVBK:
		if m.cgb {
			m.svbk = value & 0x07
		}
	case address == addr.IE:
		m.ieReg = value
	case address >= 0xFF80:
		m.hram[address-0xFF80] = value
	default:
		// writes to unimplemented I/O have no effect
	}
}

// doOAMDMA copies 160 bytes from source to OAM in one burst.
func (m *MMU) doOAMDMA(source uint16) {
	for i := uint16(0); i < 160; i++ {
		m.PPU.WriteOAM(addr.OAMStart+i, m.Read(source+i))
	}
}

// doVRAMDMA performs the CGB HDMA transfer. Both the general-purpose and
// the H-blank form run to completion within the triggering write.
func (m *MMU) doVRAMDMA(control byte) {
	length := (int(control&0x7F) + 1) * 0x10
	source := (uint16(m.hdma[0])<<8 | uint16(m.hdma[1])) & 0xFFF0
	dest := 0x8000 | (uint16(m.hdma[2])<<8|uint16(m.hdma[3]))&0x1FF0

	for i := 0; i < length; i++ {
		m.PPU.WriteVRAM(dest+uint16(i), m.Read(source+uint16(i)))
	}
}
