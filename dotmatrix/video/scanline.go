package video

import (
	"sort"

	"github.com/valerio/dotmatrix/dotmatrix/bit"
)

// tileAttributes is the CGB per-tile byte from VRAM bank 1.
// Bits: 7 priority | 6 y-flip | 5 x-flip | 3 bank | 2-0 palette
type tileAttributes byte

func (a tileAttributes) palette() int   { return int(a & 0x07) }
func (a tileAttributes) bank() int      { return int(a>>3) & 1 }
func (a tileAttributes) xFlip() bool    { return a&0x20 != 0 }
func (a tileAttributes) yFlip() bool    { return a&0x40 != 0 }
func (a tileAttributes) priority() bool { return a&0x80 != 0 }

// drawScanline rasterises line LY into the back buffer. It runs once per
// line, at the end of the VRAM-read mode.
func (p *PPU) drawScanline() {
	if int(p.ly) >= linesVisible {
		return
	}

	p.drawBackgroundAndWindow()
	p.drawSprites()
}

// drawBackgroundAndWindow produces the 160 BG/window pixels of the line and
// records their pre-palette index for sprite mixing.
func (p *PPU) drawBackgroundAndWindow() {
	y := int(p.ly)

	// On DMG, LCDC bit 0 blanks the BG and window entirely. On CGB it only
	// demotes BG priority, handled during sprite mixing.
	if !p.cgb && !bit.IsSet(bgDisplay, p.lcdc) {
		for x := 0; x < FramebufferWidth; x++ {
			p.bgIndex[x] = 0
			p.bgPriority[x] = false
			p.framebuffer.SetPixel(x, y, ByteToColor(p.bgp&0x03))
		}
		return
	}

	windowEnabled := bit.IsSet(windowDisplayEnable, p.lcdc) && int(p.wy) <= y
	windowStartX := int(p.wx) - 7
	windowDrawn := false

	for x := 0; x < FramebufferWidth; x++ {
		var mapBase uint16
		var pixelX, pixelY int

		inWindow := windowEnabled && x >= windowStartX
		if inWindow {
			mapBase = p.tileMapBase(windowTileMapSelect)
			pixelX = (x - windowStartX) & 0xFF
			pixelY = p.windowLine & 0xFF
			windowDrawn = true
		} else {
			mapBase = p.tileMapBase(bgTileMapSelect)
			pixelX = (x + int(p.scx)) & 0xFF
			pixelY = (y + int(p.scy)) & 0xFF
		}

		mapIndex := uint16((pixelY/8)*32 + pixelX/8)
		tileID := p.readVRAMBank(0, mapBase+mapIndex)

		var attrs tileAttributes
		if p.cgb {
			attrs = tileAttributes(p.readVRAMBank(1, mapBase+mapIndex))
		}

		tileY := pixelY % 8
		if attrs.yFlip() {
			tileY = 7 - tileY
		}

		dataAddr := p.tileDataAddress(tileID) + uint16(tileY*2)
		low := p.readVRAMBank(attrs.bank(), dataAddr)
		high := p.readVRAMBank(attrs.bank(), dataAddr+1)

		bitIndex := uint8(7 - pixelX%8)
		if attrs.xFlip() {
			bitIndex = uint8(pixelX % 8)
		}

		index := bit.GetBitValue(bitIndex, low) | bit.GetBitValue(bitIndex, high)<<1

		p.bgIndex[x] = index
		p.bgPriority[x] = attrs.priority()

		if p.cgb {
			p.framebuffer.SetPixel(x, y, p.cgbColor(p.bgPaletteRAM[:], attrs.palette(), index))
		} else {
			shade := (p.bgp >> (index * 2)) & 0x03
			p.framebuffer.SetPixel(x, y, ByteToColor(shade))
		}
	}

	if windowDrawn {
		p.windowLine++
	}
}

// sprite is one OAM entry plus its index, decoded for the current line.
type sprite struct {
	oamIndex int
	x, y     int // raw OAM values
	tileID   byte
	flags    byte
}

// visibleSprites walks OAM top to bottom and returns up to 10 objects that
// cover the current line, in drawing priority order (highest priority first).
func (p *PPU) visibleSprites() []sprite {
	height := 8
	if bit.IsSet(spriteSize, p.lcdc) {
		height = 16
	}

	line := int(p.ly) + 16
	var visible []sprite
	for i := 0; i < 40 && len(visible) < 10; i++ {
		o := sprite{
			oamIndex: i,
			y:        int(p.oam[i*4]),
			x:        int(p.oam[i*4+1]),
			tileID:   p.oam[i*4+2],
			flags:    p.oam[i*4+3],
		}
		if o.x == 0 {
			continue
		}
		if o.y > line || o.y+height <= line {
			continue
		}
		visible = append(visible, o)
	}

	// DMG resolves overlap by ascending X (stable on OAM order);
	// CGB keeps plain OAM order.
	if !p.cgb {
		sort.SliceStable(visible, func(a, b int) bool {
			return visible[a].x < visible[b].x
		})
	}

	return visible
}

func (p *PPU) drawSprites() {
	if !bit.IsSet(spriteDisplayEnable, p.lcdc) {
		return
	}

	height := 8
	if bit.IsSet(spriteSize, p.lcdc) {
		height = 16
	}

	y := int(p.ly)
	visible := p.visibleSprites()

	// Draw back to front so higher priority sprites overwrite lower ones.
	for i := len(visible) - 1; i >= 0; i-- {
		o := visible[i]

		tileID := o.tileID
		if height == 16 {
			tileID &= 0xFE
		}

		rowInSprite := y + 16 - o.y
		if bit.IsSet(6, o.flags) { // y-flip
			rowInSprite = height - 1 - rowInSprite
		}

		bank := 0
		if p.cgb {
			bank = int(o.flags>>3) & 1
		}

		dataAddr := uint16(tileID)*16 + uint16(rowInSprite*2)
		low := p.readVRAMBank(bank, 0x8000+dataAddr)
		high := p.readVRAMBank(bank, 0x8000+dataAddr+1)

		for px := 0; px < 8; px++ {
			screenX := o.x - 8 + px
			if screenX < 0 || screenX >= FramebufferWidth {
				continue
			}

			bitIndex := uint8(7 - px)
			if bit.IsSet(5, o.flags) { // x-flip
				bitIndex = uint8(px)
			}

			index := bit.GetBitValue(bitIndex, low) | bit.GetBitValue(bitIndex, high)<<1
			if index == 0 {
				continue // color 0 is transparent
			}

			if !p.spriteWins(o, screenX) {
				continue
			}

			if p.cgb {
				pal := int(o.flags & 0x07)
				p.framebuffer.SetPixel(screenX, y, p.cgbColor(p.objPaletteRAM[:], pal, index))
			} else {
				palette := p.obp0
				if bit.IsSet(4, o.flags) {
					palette = p.obp1
				}
				shade := (palette >> (index * 2)) & 0x03
				p.framebuffer.SetPixel(screenX, y, ByteToColor(shade))
			}
		}
	}
}

// spriteWins decides whether the object pixel beats the BG/window pixel.
func (p *PPU) spriteWins(o sprite, x int) bool {
	objAbove := !bit.IsSet(7, o.flags)

	if p.bgIndex[x] == 0 {
		return true
	}
	if p.cgb {
		if !bit.IsSet(bgDisplay, p.lcdc) {
			return true // master priority off: objects always win
		}
		return !p.bgPriority[x] && objAbove
	}
	return objAbove
}

func (p *PPU) tileMapBase(selectBit uint8) uint16 {
	if bit.IsSet(selectBit, p.lcdc) {
		return 0x9C00
	}
	return 0x9800
}

// tileDataAddress resolves a tile ID through the LCDC addressing mode:
// unsigned from 0x8000, or signed from 0x9000.
func (p *PPU) tileDataAddress(tileID byte) uint16 {
	if bit.IsSet(bgWindowTileDataSelect, p.lcdc) {
		return 0x8000 + uint16(tileID)*16
	}
	return uint16(0x9000 + int(int8(tileID))*16)
}

// cgbColor decodes an RGB555 entry from palette RAM into RGBA.
// Each 5-bit component expands to 8 bits by c<<3 | c>>2.
func (p *PPU) cgbColor(paletteRAM []byte, palette int, index byte) GBColor {
	offset := palette*8 + int(index)*2
	raw := uint16(paletteRAM[offset]) | uint16(paletteRAM[offset+1])<<8

	r := byte(raw & 0x1F)
	g := byte((raw >> 5) & 0x1F)
	b := byte((raw >> 10) & 0x1F)

	r = r<<3 | r>>2
	g = g<<3 | g>>2
	b = b<<3 | b>>2

	return GBColor(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | 0xFF)
}
