package video

// GBColor is a packed RGBA pixel (R in the high byte).
type GBColor uint32

const (
	FramebufferWidth  = 160
	FramebufferHeight = 144
	FramebufferSize   = FramebufferWidth * FramebufferHeight
)

// The four DMG greyscale shades, from lightest (palette value 0) to darkest.
const (
	WhiteColor     GBColor = 0xFFFFFFFF
	LightGreyColor GBColor = 0xAAAAAAFF
	DarkGreyColor  GBColor = 0x555555FF
	BlackColor     GBColor = 0x000000FF
)

// ByteToColor maps a DMG palette value (0-3) to its greyscale shade.
func ByteToColor(value byte) GBColor {
	switch value {
	case 0:
		return WhiteColor
	case 1:
		return LightGreyColor
	case 2:
		return DarkGreyColor
	case 3:
		return BlackColor
	}

	return BlackColor
}

// FrameBuffer holds the double-buffered 160x144 RGBA output.
// The PPU writes the back buffer only; the front buffer is replaced in one
// block when a frame completes, so readers never observe a torn frame.
type FrameBuffer struct {
	front []byte
	back  []byte
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		front: make([]byte, FramebufferSize*4),
		back:  make([]byte, FramebufferSize*4),
	}
}

// SetPixel writes a pixel into the back buffer.
func (fb *FrameBuffer) SetPixel(x, y int, color GBColor) {
	i := (y*FramebufferWidth + x) * 4
	fb.back[i] = byte(color >> 24)
	fb.back[i+1] = byte(color >> 16)
	fb.back[i+2] = byte(color >> 8)
	fb.back[i+3] = byte(color)
}

// Swap publishes the back buffer as the new front buffer.
func (fb *FrameBuffer) Swap() {
	fb.front, fb.back = fb.back, fb.front
	copy(fb.back, fb.front)
}

// Front returns the last completed frame as RGBA bytes.
// The slice is stable until the next V-blank boundary.
func (fb *FrameBuffer) Front() []byte {
	return fb.front
}

// Clear resets both buffers to white (LCD off).
func (fb *FrameBuffer) Clear() {
	for i := range fb.back {
		fb.back[i] = 0xFF
	}
	copy(fb.front, fb.back)
}
