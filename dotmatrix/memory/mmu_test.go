package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/dotmatrix/dotmatrix/addr"
)

func newLoadedMMU(t *testing.T, rom []byte) *MMU {
	t.Helper()
	m := New()
	cart, err := NewCartridgeWithData(rom)
	require.NoError(t, err)
	require.NoError(t, m.LoadCartridge(cart))
	return m
}

func TestWRAMAndEchoRAM(t *testing.T) {
	m := New()

	m.Write(0xC123, 0x42)
	assert.Equal(t, byte(0x42), m.Read(0xC123))
	assert.Equal(t, byte(0x42), m.Read(0xE123), "echo mirrors 0xC000")

	m.Write(0xE456, 0x99)
	assert.Equal(t, byte(0x99), m.Read(0xC456), "echo writes land in WRAM")
}

func TestWRAMBankingCGB(t *testing.T) {
	rom := makeROM("TEST", 0x00, 0, true)
	m := newLoadedMMU(t, rom)

	m.Write(addr.SVBK, 2)
	m.Write(0xD000, 0x22)

	m.Write(addr.SVBK, 3)
	m.Write(0xD000, 0x33)

	m.Write(addr.SVBK, 2)
	assert.Equal(t, byte(0x22), m.Read(0xD000))

	// bank select 0 acts as bank 1
	m.Write(addr.SVBK, 1)
	m.Write(0xD000, 0x11)
	m.Write(addr.SVBK, 0)
	assert.Equal(t, byte(0x11), m.Read(0xD000))

	// bank 0 at 0xC000 is never remapped
	m.Write(0xC000, 0x55)
	m.Write(addr.SVBK, 5)
	assert.Equal(t, byte(0x55), m.Read(0xC000))
}

func TestSVBKIgnoredOnDMG(t *testing.T) {
	m := newLoadedMMU(t, makeROM("TEST", 0x00, 0, false))

	assert.Equal(t, byte(0xFF), m.Read(addr.SVBK))

	m.Write(addr.SVBK, 3)
	m.Write(0xD000, 0x42)
	assert.Equal(t, byte(0x42), m.Read(0xD000), "single fixed high bank")
}

func TestNotUsableRegionReadsZero(t *testing.T) {
	m := New()
	m.Write(0xFEA0, 0x42)
	assert.Equal(t, byte(0x00), m.Read(0xFEA0))
	assert.Equal(t, byte(0x00), m.Read(0xFEFF))
}

func TestUnmappedIOReadsAllOnes(t *testing.T) {
	m := New()
	assert.Equal(t, byte(0xFF), m.Read(0xFF03))
	assert.Equal(t, byte(0xFF), m.Read(0xFF7F))
}

func TestIFUpperBitsReadOne(t *testing.T) {
	m := New()
	m.Write(addr.IF, 0x00)
	assert.Equal(t, byte(0xE0), m.Read(addr.IF))

	m.RequestInterrupt(addr.TimerInterrupt)
	assert.Equal(t, byte(0xE4), m.Read(addr.IF))
}

func TestHRAMAndIE(t *testing.T) {
	m := New()
	m.Write(0xFF80, 0x12)
	m.Write(0xFFFE, 0x34)
	m.Write(addr.IE, 0x1F)
	assert.Equal(t, byte(0x12), m.Read(0xFF80))
	assert.Equal(t, byte(0x34), m.Read(0xFFFE))
	assert.Equal(t, byte(0x1F), m.Read(addr.IE))
}

func TestOAMDMACopies160Bytes(t *testing.T) {
	m := New()
	for i := uint16(0); i < 160; i++ {
		m.Write(0xC000+i, byte(i))
	}

	m.Write(addr.DMA, 0xC0)

	for i := uint16(0); i < 160; i++ {
		assert.Equal(t, byte(i), m.Read(0xFE00+i), "OAM[%d]", i)
	}
	assert.Equal(t, byte(0xC0), m.Read(addr.DMA), "DMA register reads back")
}

func TestVRAMDMAGeneralPurpose(t *testing.T) {
	m := newLoadedMMU(t, makeROM("TEST", 0x00, 0, true))

	for i := uint16(0); i < 0x20; i++ {
		m.Write(0xC100+i, byte(0xA0+i))
	}

	m.Write(addr.HDMA1, 0xC1)
	m.Write(addr.HDMA2, 0x00)
	m.Write(addr.HDMA3, 0x00)
	m.Write(addr.HDMA4, 0x40)
	m.Write(addr.HDMA5, 0x01) // (1+1)*0x10 = 0x20 bytes

	for i := uint16(0); i < 0x20; i++ {
		assert.Equal(t, byte(0xA0+i), m.Read(0x8040+i))
	}
	assert.Equal(t, byte(0xFF), m.Read(addr.HDMA5), "transfer reports done")
}

func TestVRAMBankSwitching(t *testing.T) {
	m := newLoadedMMU(t, makeROM("TEST", 0x00, 0, true))

	m.Write(addr.VBK, 0)
	m.Write(0x8000, 0x11)
	m.Write(addr.VBK, 1)
	m.Write(0x8000, 0x22)

	m.Write(addr.VBK, 0)
	assert.Equal(t, byte(0x11), m.Read(0x8000))
	m.Write(addr.VBK, 1)
	assert.Equal(t, byte(0x22), m.Read(0x8000))
	assert.Equal(t, byte(0xFF), m.Read(addr.VBK), "unused bits read as 1")

	m.Write(addr.VBK, 0)
	assert.Equal(t, byte(0xFE), m.Read(addr.VBK))
}

func TestJoypadThroughP1(t *testing.T) {
	m := New()

	// select d-pad (clear bit 4), everything released
	m.Write(addr.P1, 0x20)
	assert.Equal(t, byte(0xEF), m.Read(addr.P1))

	m.Joypad.Press(JoypadLeft)
	assert.Equal(t, byte(0xED), m.Read(addr.P1))

	// select buttons instead; Left is a d-pad key so it is invisible
	m.Write(addr.P1, 0x10)
	assert.Equal(t, byte(0xDF), m.Read(addr.P1))
}

func TestJoypadInterruptOnPress(t *testing.T) {
	m := New()
	m.Write(addr.IF, 0)

	m.Joypad.Press(JoypadA)
	assert.NotZero(t, m.Read(addr.IF)&byte(addr.JoypadInterrupt))

	m.Write(addr.IF, 0)
	m.Joypad.Press(JoypadA) // already pressed, no edge
	assert.Zero(t, m.Read(addr.IF)&byte(addr.JoypadInterrupt))
}

func TestBootROMOverlay(t *testing.T) {
	rom := makeROM("TEST", 0x00, 0, false)
	rom[0x0000] = 0x42

	m := New()
	boot := make([]byte, 0x100)
	boot[0x0000] = 0x99
	m.SetBootROM(boot)

	cart, err := NewCartridgeWithData(rom)
	require.NoError(t, err)
	require.NoError(t, m.LoadCartridge(cart))

	assert.True(t, m.BootROMActive())
	assert.Equal(t, byte(0x99), m.Read(0x0000), "boot ROM overlays low ROM")
	assert.Equal(t, rom[0x0150], m.Read(0x0150), "past the overlay the cartridge shows through")

	m.Write(addr.BANK, 0x01)
	assert.False(t, m.BootROMActive())
	assert.Equal(t, byte(0x42), m.Read(0x0000), "cartridge visible after retirement")
}

func TestSerialTransferRaisesInterrupt(t *testing.T) {
	m := New()
	var sent []byte
	m.Serial.OnByte = func(b byte) { sent = append(sent, b) }
	m.Write(addr.IF, 0)

	m.Write(addr.SB, 'P')
	m.Write(addr.SC, 0x81)
	m.Tick(512)

	assert.Equal(t, []byte{'P'}, sent)
	assert.NotZero(t, m.Read(addr.IF)&byte(addr.SerialInterrupt))
	assert.Equal(t, byte(0xFF), m.Read(addr.SB), "no peer shifts in 0xFF")
}

func TestBatteryRAMExposed(t *testing.T) {
	m := newLoadedMMU(t, makeROM("TEST", 0x03, 0x02, false)) // MBC1+RAM+battery, 1 bank

	ram := m.BatteryRAM()
	require.NotNil(t, ram)
	assert.Len(t, ram, 0x2000)

	// writes through the bus land in the exposed slice
	m.Write(0x0000, 0x0A) // RAM enable
	m.Write(0xA000, 0x77)
	assert.Equal(t, byte(0x77), ram[0])
}

func TestKEY1SpeedSwitch(t *testing.T) {
	m := newLoadedMMU(t, makeROM("TEST", 0x00, 0, true))

	assert.False(t, m.DoubleSpeed())
	assert.False(t, m.ToggleSpeed(), "no switch armed")

	m.Write(addr.KEY1, 0x01)
	assert.Equal(t, byte(0x7F), m.Read(addr.KEY1), "armed bit visible")

	assert.True(t, m.ToggleSpeed())
	assert.True(t, m.DoubleSpeed())
	assert.Equal(t, byte(0xFE), m.Read(addr.KEY1), "speed bit set, arm cleared")

	// switching back
	m.Write(addr.KEY1, 0x01)
	assert.True(t, m.ToggleSpeed())
	assert.False(t, m.DoubleSpeed())
}

func TestKEY1UnavailableOnDMG(t *testing.T) {
	m := newLoadedMMU(t, makeROM("TEST", 0x00, 0, false))
	assert.Equal(t, byte(0xFF), m.Read(addr.KEY1))
	m.Write(addr.KEY1, 0x01)
	assert.False(t, m.ToggleSpeed())
}

func TestResetDropsCartridge(t *testing.T) {
	m := newLoadedMMU(t, makeROM("TEST", 0x03, 0x02, false))
	m.Write(0xC000, 0x42)

	m.Reset()

	assert.Nil(t, m.Cartridge())
	assert.Nil(t, m.BatteryRAM())
	assert.Equal(t, byte(0x00), m.Read(0xC000), "WRAM cleared")
	assert.Equal(t, byte(0xFF), m.Read(0x0100), "ROM reads open bus")
}
