// Package terminal is a small tcell front-end used as a development
// harness: it presents the front buffer with half-block characters and maps
// a handful of keys onto the joypad. Hosts embedding the engine are
// expected to bring their own presentation layer.
package terminal

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/valerio/dotmatrix/dotmatrix"
	"github.com/valerio/dotmatrix/dotmatrix/video"
)

const frameTime = time.Second / 60

// keyHoldFrames is how long a keypress stays held: terminals only deliver
// press events, so releases are synthesized after a short hold.
const keyHoldFrames = 8

type Viewer struct {
	screen  tcell.Screen
	machine *dotmatrix.Machine
	running bool
	held    map[dotmatrix.Button]int
	events  chan tcell.Event
}

func NewViewer(m *dotmatrix.Machine) (*Viewer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %v", err)
	}

	return &Viewer{
		screen:  screen,
		machine: m,
		running: true,
		held:    map[dotmatrix.Button]int{},
		events:  make(chan tcell.Event, 16),
	}, nil
}

func (v *Viewer) Run() error {
	defer v.screen.Fini()

	v.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack))
	v.screen.Clear()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for v.running {
			v.events <- v.screen.PollEvent()
		}
	}()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	for v.running {
		select {
		case <-ticker.C:
			v.machine.RunFrame()
			v.releaseExpiredKeys()
			v.draw()
			v.screen.Show()
		case ev := <-v.events:
			v.handleEvent(ev)
		case <-signals:
			v.running = false
		}
	}

	return nil
}

func (v *Viewer) handleEvent(ev tcell.Event) {
	key, ok := ev.(*tcell.EventKey)
	if !ok {
		return
	}

	switch key.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		v.running = false
		return
	case tcell.KeyUp:
		v.press(dotmatrix.ButtonUp)
	case tcell.KeyDown:
		v.press(dotmatrix.ButtonDown)
	case tcell.KeyLeft:
		v.press(dotmatrix.ButtonLeft)
	case tcell.KeyRight:
		v.press(dotmatrix.ButtonRight)
	case tcell.KeyEnter:
		v.press(dotmatrix.ButtonStart)
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		v.press(dotmatrix.ButtonSelect)
	case tcell.KeyRune:
		switch key.Rune() {
		case 'z', 'Z':
			v.press(dotmatrix.ButtonA)
		case 'x', 'X':
			v.press(dotmatrix.ButtonB)
		}
	}
}

func (v *Viewer) press(b dotmatrix.Button) {
	if _, held := v.held[b]; !held {
		v.machine.ButtonPress(b)
	}
	v.held[b] = keyHoldFrames
}

func (v *Viewer) releaseExpiredKeys() {
	for b, frames := range v.held {
		frames--
		if frames <= 0 {
			v.machine.ButtonRelease(b)
			delete(v.held, b)
			continue
		}
		v.held[b] = frames
	}
}

// draw renders the frame two pixel rows per text row using the upper
// half-block, foreground colored by the top pixel and background by the
// bottom one.
func (v *Viewer) draw() {
	pixels := v.machine.Pixels()

	for textRow := 0; textRow < video.FramebufferHeight/2; textRow++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			top := pixelColor(pixels, x, textRow*2)
			bottom := pixelColor(pixels, x, textRow*2+1)
			style := tcell.StyleDefault.Foreground(top).Background(bottom)
			v.screen.SetContent(x, textRow, '▀', nil, style)
		}
	}
}

func pixelColor(pixels []byte, x, y int) tcell.Color {
	i := (y*video.FramebufferWidth + x) * 4
	return tcell.NewRGBColor(int32(pixels[i]), int32(pixels[i+1]), int32(pixels[i+2]))
}
