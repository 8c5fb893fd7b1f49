package audio

import (
	"math"

	"github.com/valerio/dotmatrix/dotmatrix/addr"
	"github.com/valerio/dotmatrix/dotmatrix/bit"
)

// hpfChargeFactor is the per-sample decay of the output high-pass filter:
// 0.998943 per T-cycle, raised to the cycles between samples.
var hpfChargeFactor = float32(math.Pow(0.998943, cyclesPerSample))

// APU is the audio processing unit: four generator channels mixed into two
// 65536 Hz sample streams.
//
// This is basically a bunch of counters and timers that tick at certain
// frequency steps. The frame sequencer divides the master clock down to
// 512 Hz and distributes length (256 Hz), sweep (128 Hz) and envelope
// (64 Hz) clocks to the channels; independently every 64 T-cycles one
// stereo sample is mixed and pushed to the output rings.
type APU struct {
	enabled bool

	ch1 squareChannel
	ch2 squareChannel
	ch3 waveChannel
	ch4 noiseChannel

	nr50, nr51 byte
	waveRAM    [waveRAMSize]byte

	// raw register copies for readback; the channels hold decoded state
	nr10, nr11, nr12, nr13, nr14 byte
	nr21, nr22, nr23, nr24       byte
	nr30, nr31, nr32, nr33, nr34 byte
	nr41, nr42, nr43, nr44       byte

	// frame sequencer: 13-bit clock, 3-bit step
	seqClock uint16
	seqStep  uint8

	sampleClock int
	capLeft     float32
	capRight    float32

	left  sampleRing
	right sampleRing
}

func New() *APU {
	a := &APU{}
	a.Reset()
	return a
}

// Reset restores power-on state and drops all buffered samples.
func (a *APU) Reset() {
	*a = APU{
		ch1: newSquareChannel(true),
		ch2: newSquareChannel(false),
		ch3: newWaveChannel(),
		ch4: newNoiseChannel(),
	}
	// post-boot register state
	a.WriteRegister(addr.NR52, 0xF1)
	a.WriteRegister(addr.NR10, 0x80)
	a.WriteRegister(addr.NR11, 0xBF)
	a.WriteRegister(addr.NR12, 0xF3)
	a.WriteRegister(addr.NR14, 0xBF)
	a.WriteRegister(addr.NR21, 0x3F)
	a.WriteRegister(addr.NR24, 0xBF)
	a.WriteRegister(addr.NR30, 0x7F)
	a.WriteRegister(addr.NR31, 0xFF)
	a.WriteRegister(addr.NR32, 0x9F)
	a.WriteRegister(addr.NR34, 0xBF)
	a.WriteRegister(addr.NR41, 0xFF)
	a.WriteRegister(addr.NR44, 0xBF)
	a.WriteRegister(addr.NR50, 0x77)
	a.WriteRegister(addr.NR51, 0xF3)
	a.ch1.on = false
	a.ch2.on = false
	a.ch3.on = false
	a.ch4.on = false
}

// Tick advances the APU by CPU T-cycles.
func (a *APU) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		if a.enabled {
			a.ch1.tick()
			a.ch2.tick()
			a.ch3.tick()
			a.ch4.tick()

			a.seqClock = (a.seqClock + 1) & 0x1FFF
			if a.seqClock == 0 {
				a.clockSequencer()
			}
		}

		a.sampleClock++
		if a.sampleClock >= cyclesPerSample {
			a.sampleClock = 0
			a.mixSample()
		}
	}
}

// clockSequencer advances one frame sequencer step.
//
//	Step | Length (256Hz) | Sweep (128Hz) | Envelope (64Hz)
//	------------------------------------------------------
//	0    | yes            | -             | -
//	2    | yes            | yes           | -
//	4    | yes            | -             | -
//	6    | yes            | yes           | -
//	7    | -              | -             | yes
func (a *APU) clockSequencer() {
	switch a.seqStep {
	case 0, 4:
		a.clockLengths()
	case 2, 6:
		a.clockLengths()
		a.ch1.clockSweep()
	case 7:
		a.ch1.envelope.clock()
		a.ch2.envelope.clock()
		a.ch4.envelope.clock()
	}

	a.seqStep = (a.seqStep + 1) & 0x07
}

func (a *APU) clockLengths() {
	if a.ch1.length.clock() {
		a.ch1.on = false
	}
	if a.ch2.length.clock() {
		a.ch2.on = false
	}
	if a.ch3.length.clock() {
		a.ch3.on = false
	}
	if a.ch4.length.clock() {
		a.ch4.on = false
	}
}

// anyDACOn reports whether any channel DAC is powered; the high-pass filter
// only runs in that case.
func (a *APU) anyDACOn() bool {
	return a.ch1.envelope.dacEnabled() ||
		a.ch2.envelope.dacEnabled() ||
		a.ch3.dacOn ||
		a.ch4.envelope.dacEnabled()
}

// mixSample converts the four DAC inputs to analog levels, pans them per
// NR51, averages, scales by the NR50 master volume and pushes one sample to
// each output ring.
func (a *APU) mixSample() {
	inputs := [4]uint8{
		a.ch1.dacInput(),
		a.ch2.dacInput(),
		a.ch3.dacInput(a.waveRAM[:]),
		a.ch4.dacInput(),
	}

	var left, right float32
	for i, in := range inputs {
		level := float32(in)/7.5 - 1.0
		if bit.IsSet(uint8(i+4), a.nr51) {
			left += level
		}
		if bit.IsSet(uint8(i), a.nr51) {
			right += level
		}
	}
	left /= 4
	right /= 4

	volLeft := float32(bit.ExtractBits(a.nr50, 6, 4)) / 7
	volRight := float32(bit.ExtractBits(a.nr50, 2, 0)) / 7
	left *= volLeft
	right *= volRight

	if a.anyDACOn() {
		outLeft := left - a.capLeft
		a.capLeft = left - outLeft*hpfChargeFactor
		left = outLeft

		outRight := right - a.capRight
		a.capRight = right - outRight*hpfChargeFactor
		right = outRight
	} else {
		left, right = 0, 0
	}

	a.left.Push(left)
	a.right.Push(right)
}

// ReadLeft pops up to len(dst) samples from the left channel.
func (a *APU) ReadLeft(dst []float32) int {
	return a.left.Pop(dst)
}

// ReadRight pops up to len(dst) samples from the right channel.
func (a *APU) ReadRight(dst []float32) int {
	return a.right.Pop(dst)
}

// ReadRegister returns masked register values.
// Note: write-only and unused bits are fixed to 1 when reading.
func (a *APU) ReadRegister(address uint16) uint8 {
	switch address {
	case addr.NR10:
		return a.nr10 | 0b1000_0000
	case addr.NR11:
		return a.nr11 | 0b0011_1111
	case addr.NR12:
		return a.nr12
	case addr.NR13:
		return 0xFF // write-only reg
	case addr.NR14:
		return a.nr14 | 0b1011_1111
	case addr.NR21:
		return a.nr21 | 0b0011_1111
	case addr.NR22:
		return a.nr22
	case addr.NR23:
		return 0xFF // write-only reg
	case addr.NR24:
		return a.nr24 | 0b1011_1111
	case addr.NR30:
		return a.nr30 | 0b0111_1111
	case addr.NR31:
		return 0xFF // write-only reg
	case addr.NR32:
		return a.nr32 | 0b1001_1111
	case addr.NR33:
		return 0xFF // write-only reg
	case addr.NR34:
		return a.nr34 | 0b1011_1111
	case addr.NR41:
		return 0xFF // write-only reg
	case addr.NR42:
		return a.nr42
	case addr.NR43:
		return a.nr43
	case addr.NR44:
		return a.nr44 | 0b1011_1111
	case addr.NR50:
		return a.nr50
	case addr.NR51:
		return a.nr51
	case addr.NR52:
		// bit 7 = power, bits 6-4 always 1, bits 3-0 = channel status
		status := uint8(0b0111_0000)
		if a.enabled {
			status = bit.Set(7, status)
		}
		if a.ch1.on {
			status = bit.Set(0, status)
		}
		if a.ch2.on {
			status = bit.Set(1, status)
		}
		if a.ch3.on {
			status = bit.Set(2, status)
		}
		if a.ch4.on {
			status = bit.Set(3, status)
		}
		return status
	}
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		return a.waveRAM[address-addr.WaveRAMStart]
	}
	return 0xFF
}

// WriteRegister stores the value of the given register, then updates the
// decoded channel state.
func (a *APU) WriteRegister(address uint16, value uint8) {
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		// wave RAM survives power-off and is always writable
		a.waveRAM[address-addr.WaveRAMStart] = value
		return
	}

	if !a.enabled && address != addr.NR52 && !isLengthRegister(address) {
		// registers are read-only while the APU is powered off
		return
	}

	switch address {
	case addr.NR10:
		a.nr10 = value
		a.ch1.sweepPace = bit.ExtractBits(value, 6, 4)
		a.ch1.sweepDown = bit.IsSet(3, value)
		a.ch1.sweepStep = bit.ExtractBits(value, 2, 0)
	case addr.NR11:
		a.nr11 = value
		a.ch1.duty = value >> 6
		a.ch1.length.load(uint16(value & 0x3F))
	case addr.NR12:
		a.nr12 = value
		a.ch1.envelope.load(value)
		if !a.ch1.envelope.dacEnabled() {
			a.ch1.on = false
		}
	case addr.NR13:
		a.nr13 = value
		a.ch1.frequency = (a.ch1.frequency & 0x700) | uint16(value)
	case addr.NR14:
		a.nr14 = value & 0x7F
		a.ch1.frequency = (a.ch1.frequency & 0xFF) | (uint16(value&0x07) << 8)
		a.ch1.length.enabled = bit.IsSet(6, value)
		if bit.IsSet(7, value) {
			a.ch1.trigger()
		}
	case addr.NR21:
		a.nr21 = value
		a.ch2.duty = value >> 6
		a.ch2.length.load(uint16(value & 0x3F))
	case addr.NR22:
		a.nr22 = value
		a.ch2.envelope.load(value)
		if !a.ch2.envelope.dacEnabled() {
			a.ch2.on = false
		}
	case addr.NR23:
		a.nr23 = value
		a.ch2.frequency = (a.ch2.frequency & 0x700) | uint16(value)
	case addr.NR24:
		a.nr24 = value & 0x7F
		a.ch2.frequency = (a.ch2.frequency & 0xFF) | (uint16(value&0x07) << 8)
		a.ch2.length.enabled = bit.IsSet(6, value)
		if bit.IsSet(7, value) {
			a.ch2.trigger()
		}
	case addr.NR30:
		a.nr30 = value
		a.ch3.dacOn = bit.IsSet(7, value)
		if !a.ch3.dacOn {
			a.ch3.on = false
		}
	case addr.NR31:
		a.nr31 = value
		a.ch3.length.load(uint16(value))
	case addr.NR32:
		a.nr32 = value
		a.ch3.volumeCode = bit.ExtractBits(value, 6, 5)
	case addr.NR33:
		a.nr33 = value
		a.ch3.frequency = (a.ch3.frequency & 0x700) | uint16(value)
	case addr.NR34:
		a.nr34 = value & 0x7F
		a.ch3.frequency = (a.ch3.frequency & 0xFF) | (uint16(value&0x07) << 8)
		a.ch3.length.enabled = bit.IsSet(6, value)
		if bit.IsSet(7, value) {
			a.ch3.trigger()
		}
	case addr.NR41:
		a.nr41 = value
		a.ch4.length.load(uint16(value & 0x3F))
	case addr.NR42:
		a.nr42 = value
		a.ch4.envelope.load(value)
		if !a.ch4.envelope.dacEnabled() {
			a.ch4.on = false
		}
	case addr.NR43:
		a.nr43 = value
		a.ch4.clockShift = value >> 4
		a.ch4.width7 = bit.IsSet(3, value)
		a.ch4.divider = value & 0x07
	case addr.NR44:
		a.nr44 = value & 0x7F
		a.ch4.length.enabled = bit.IsSet(6, value)
		if bit.IsSet(7, value) {
			a.ch4.trigger()
		}
	case addr.NR50:
		a.nr50 = value
	case addr.NR51:
		a.nr51 = value
	case addr.NR52:
		// bits 3-0 are read-only channel status; only bit 7 matters
		wasEnabled := a.enabled
		a.enabled = bit.IsSet(7, value)
		if wasEnabled && !a.enabled {
			a.powerOff()
		} else if !wasEnabled && a.enabled {
			a.seqClock = 0
			a.seqStep = 0
		}
	}
}

// isLengthRegister reports whether writes are still accepted while the APU
// is powered off (length counters remain loadable on DMG).
func isLengthRegister(address uint16) bool {
	switch address {
	case addr.NR11, addr.NR21, addr.NR31, addr.NR41:
		return true
	}
	return false
}

// powerOff clears every control register but preserves wave RAM and the
// length counters.
func (a *APU) powerOff() {
	wave := a.waveRAM
	lengths := [4]lengthCounter{a.ch1.length, a.ch2.length, a.ch3.length, a.ch4.length}
	left, right := a.left, a.right
	capL, capR := a.capLeft, a.capRight

	*a = APU{
		ch1: newSquareChannel(true),
		ch2: newSquareChannel(false),
		ch3: newWaveChannel(),
		ch4: newNoiseChannel(),
	}
	a.waveRAM = wave
	a.ch1.length, a.ch2.length, a.ch3.length, a.ch4.length = lengths[0], lengths[1], lengths[2], lengths[3]
	a.left, a.right = left, right
	a.capLeft, a.capRight = capL, capR
}
