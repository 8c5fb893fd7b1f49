package video

import (
	"github.com/valerio/dotmatrix/dotmatrix/addr"
	"github.com/valerio/dotmatrix/dotmatrix/bit"
)

// Mode represents the PPU's current rendering stage.
// These values match the STAT register bits 1-0.
type Mode int

const (
	// hblankMode (Mode 0): Horizontal blank period
	hblankMode Mode = 0
	// vblankMode (Mode 1): Vertical blank period
	vblankMode Mode = 1
	// oamScanMode (Mode 2): PPU is scanning OAM
	oamScanMode Mode = 2
	// vramReadMode (Mode 3): PPU is reading VRAM and drawing
	vramReadMode Mode = 3
)

const (
	oamScanDots  = 80
	vramReadDots = 172
	lineDots     = 456
	linesVisible = 144
	linesTotal   = 154
)

// LCD Stat (Status) Register bit indexes
// Bit 6 - LYC interrupt select
// Bit 5 - Mode 2 (OAM scan) interrupt select
// Bit 4 - Mode 1 (V-blank) interrupt select
// Bit 3 - Mode 0 (H-blank) interrupt select
// Bit 2 - LYC == LY comparison result
// Bits 1-0 - current mode
const (
	statLycIrq       = 6
	statOamIrq       = 5
	statVblankIrq    = 4
	statHblankIrq    = 3
	statLycCondition = 2
)

// LCDC (LCD Control) Register bit indexes
// Bit 7 - LCD Display Enable
// Bit 6 - Window Tile Map Select (0=9800, 1=9C00)
// Bit 5 - Window Display Enable
// Bit 4 - BG & Window Tile Data Select (0=8800 signed, 1=8000 unsigned)
// Bit 3 - BG Tile Map Select (0=9800, 1=9C00)
// Bit 2 - OBJ Size (0=8x8, 1=8x16)
// Bit 1 - OBJ Display Enable
// Bit 0 - BG/Window enable on DMG, BG priority master on CGB
const (
	lcdDisplayEnable       = 7
	windowTileMapSelect    = 6
	windowDisplayEnable    = 5
	bgWindowTileDataSelect = 4
	bgTileMapSelect        = 3
	spriteSize             = 2
	spriteDisplayEnable    = 1
	bgDisplay              = 0
)

// PPU owns VRAM, OAM, the LCD register file and the CGB palette RAMs, and
// turns them into frames. The MMU routes all accesses to those regions here;
// the CPU's tick drives Tick with the elapsed dots.
type PPU struct {
	framebuffer *FrameBuffer
	cgb         bool

	vram [2][0x2000]byte
	oam  [160]byte

	lcdc, stat      byte
	scy, scx        byte
	ly, lyc         byte
	bgp, obp0, obp1 byte
	wy, wx          byte
	vbk             byte
	bcps, ocps      byte
	bgPaletteRAM    [64]byte
	objPaletteRAM   [64]byte

	mode       Mode
	dots       int // dot counter within the current scanline, always < 456
	windowLine int // internal window line, advances only when the window drew

	// per-line scratch for sprite mixing
	bgIndex    [FramebufferWidth]byte // pre-palette color index of the BG/window pixel
	bgPriority [FramebufferWidth]bool // CGB tile attribute bit 7

	// IRQ requester callback
	InterruptHandler func(addr.Interrupt)
}

func NewPPU() *PPU {
	p := &PPU{
		framebuffer: NewFrameBuffer(),
	}
	p.Reset(false)
	return p
}

// Reset restores post-boot register state and clears all video memory.
func (p *PPU) Reset(cgb bool) {
	p.cgb = cgb
	p.vram[0] = [0x2000]byte{}
	p.vram[1] = [0x2000]byte{}
	p.oam = [160]byte{}
	p.lcdc = 0x91
	p.stat = 0
	p.scy, p.scx = 0, 0
	p.ly, p.lyc = 0, 0
	p.bgp = 0xFC
	p.obp0, p.obp1 = 0xFF, 0xFF
	p.wy, p.wx = 0, 0
	p.vbk = 0
	p.bcps, p.ocps = 0, 0
	p.bgPaletteRAM = [64]byte{}
	p.objPaletteRAM = [64]byte{}
	p.setMode(oamScanMode)
	p.dots = 0
	p.windowLine = 0
	p.framebuffer.Clear()
}

// FrameBuffer returns the double-buffered display output.
func (p *PPU) FrameBuffer() *FrameBuffer {
	return p.framebuffer
}

// Tick advances the PPU by the given number of dots.
func (p *PPU) Tick(cycles int) {
	if !bit.IsSet(lcdDisplayEnable, p.lcdc) {
		return
	}

	for i := 0; i < cycles; i++ {
		p.stepDot()
	}
}

func (p *PPU) stepDot() {
	p.dots++

	switch p.mode {
	case oamScanMode:
		if p.dots == oamScanDots {
			p.setMode(vramReadMode)
		}
	case vramReadMode:
		if p.dots == oamScanDots+vramReadDots {
			p.drawScanline()
			p.setMode(hblankMode)
			if bit.IsSet(statHblankIrq, p.stat) {
				p.requestInterrupt(addr.LCDSTATInterrupt)
			}
		}
	case hblankMode:
		if p.dots == lineDots {
			p.dots = 0
			p.setLY(p.ly + 1)

			if p.ly == linesVisible {
				p.setMode(vblankMode)
				p.framebuffer.Swap()
				p.requestInterrupt(addr.VBlankInterrupt)
				if bit.IsSet(statVblankIrq, p.stat) {
					p.requestInterrupt(addr.LCDSTATInterrupt)
				}
			} else {
				p.enterOAMScan()
			}
		}
	case vblankMode:
		if p.dots == lineDots {
			p.dots = 0
			if p.ly == linesTotal-1 {
				p.setLY(0)
				p.windowLine = 0
				p.enterOAMScan()
			} else {
				p.setLY(p.ly + 1)
			}
		}
	}
}

func (p *PPU) enterOAMScan() {
	p.setMode(oamScanMode)
	if bit.IsSet(statOamIrq, p.stat) {
		p.requestInterrupt(addr.LCDSTATInterrupt)
	}
}

func (p *PPU) requestInterrupt(irq addr.Interrupt) {
	if p.InterruptHandler != nil {
		p.InterruptHandler(irq)
	}
}

// setMode sets the two low bits of STAT according to the selected mode.
func (p *PPU) setMode(mode Mode) {
	p.mode = mode
	p.stat = p.stat&0xFC | byte(mode)
}

// setLY updates the current scanline and re-runs the LY/LYC comparison.
func (p *PPU) setLY(line byte) {
	p.ly = line
	p.compareLYToLYC()
}

func (p *PPU) compareLYToLYC() {
	if p.ly == p.lyc {
		wasSet := bit.IsSet(statLycCondition, p.stat)
		p.stat = bit.Set(statLycCondition, p.stat)
		if !wasSet && bit.IsSet(statLycIrq, p.stat) {
			p.requestInterrupt(addr.LCDSTATInterrupt)
		}
	} else {
		p.stat = bit.Reset(statLycCondition, p.stat)
	}
}

// Read handles the LCD register file (0xFF40-0xFF4B plus the CGB video
// registers). Unused bits read as 1.
func (p *PPU) Read(address uint16) byte {
	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		return p.stat | 0x80
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.ly
	case addr.LYC:
		return p.lyc
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	case addr.VBK:
		if !p.cgb {
			return 0xFF
		}
		return p.vbk | 0xFE
	case addr.BCPS:
		if !p.cgb {
			return 0xFF
		}
		return p.bcps | 0x40
	case addr.BCPD:
		if !p.cgb {
			return 0xFF
		}
		return p.bgPaletteRAM[p.bcps&0x3F]
	case addr.OCPS:
		if !p.cgb {
			return 0xFF
		}
		return p.ocps | 0x40
	case addr.OCPD:
		if !p.cgb {
			return 0xFF
		}
		return p.objPaletteRAM[p.ocps&0x3F]
	default:
		return 0xFF
	}
}

// Write handles the LCD register file. Read-only bits are preserved.
func (p *PPU) Write(address uint16, value byte) {
	switch address {
	case addr.LCDC:
		wasEnabled := bit.IsSet(lcdDisplayEnable, p.lcdc)
		p.lcdc = value
		enabled := bit.IsSet(lcdDisplayEnable, p.lcdc)
		if wasEnabled && !enabled {
			// turning the LCD off resets the scan position
			p.ly = 0
			p.dots = 0
			p.windowLine = 0
			p.setMode(hblankMode)
		} else if !wasEnabled && enabled {
			p.setMode(oamScanMode)
			p.compareLYToLYC()
		}
	case addr.STAT:
		// bits 2-0 are read-only
		p.stat = (value & 0x78) | (p.stat & 0x07)
	case addr.SCY:
		p.scy = value
	case addr.SCX:
		p.scx = value
	case addr.LY:
		// read-only
	case addr.LYC:
		p.lyc = value
		p.compareLYToLYC()
	case addr.BGP:
		p.bgp = value
	case addr.OBP0:
		p.obp0 = value
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
	case addr.WX:
		p.wx = value
	case addr.VBK:
		if p.cgb {
			p.vbk = value & 0x01
		}
	case addr.BCPS:
		if p.cgb {
			p.bcps = value & 0xBF
		}
	case addr.BCPD:
		if p.cgb {
			p.bgPaletteRAM[p.bcps&0x3F] = value
			if bit.IsSet(7, p.bcps) {
				p.bcps = 0x80 | ((p.bcps + 1) & 0x3F)
			}
		}
	case addr.OCPS:
		if p.cgb {
			p.ocps = value & 0xBF
		}
	case addr.OCPD:
		if p.cgb {
			p.objPaletteRAM[p.ocps&0x3F] = value
			if bit.IsSet(7, p.ocps) {
				p.ocps = 0x80 | ((p.ocps + 1) & 0x3F)
			}
		}
	}
}

// ReadVRAM reads through the currently selected VRAM bank.
func (p *PPU) ReadVRAM(address uint16) byte {
	return p.vram[p.vbk][address&0x1FFF]
}

// WriteVRAM writes through the currently selected VRAM bank.
func (p *PPU) WriteVRAM(address uint16, value byte) {
	p.vram[p.vbk][address&0x1FFF] = value
}

// ReadOAM reads an OAM byte. The caller guarantees 0xFE00-0xFE9F.
func (p *PPU) ReadOAM(address uint16) byte {
	return p.oam[address&0xFF]
}

// WriteOAM writes an OAM byte; used both by the CPU and by OAM DMA.
func (p *PPU) WriteOAM(address uint16, value byte) {
	p.oam[address&0xFF] = value
}

// readVRAMBank reads from an explicit bank, regardless of VBK.
func (p *PPU) readVRAMBank(bank int, address uint16) byte {
	return p.vram[bank][address&0x1FFF]
}
