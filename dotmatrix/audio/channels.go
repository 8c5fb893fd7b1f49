package audio

// envelope is the shared volume envelope unit of channels 1, 2 and 4.
type envelope struct {
	initial uint8 // NRx2 bits 7-4
	up      bool  // NRx2 bit 3
	pace    uint8 // NRx2 bits 2-0
	timer   uint8
	value   uint8
}

func (e *envelope) load(reg uint8) {
	e.initial = reg >> 4
	e.up = reg&0x08 != 0
	e.pace = reg & 0x07
}

// dacEnabled is true when NRx2 bits 7-3 are not all zero.
func (e *envelope) dacEnabled() bool {
	return e.initial > 0 || e.up
}

func (e *envelope) trigger() {
	e.value = e.initial
	e.timer = e.pace
}

// clock runs at 64 Hz (frame sequencer step 7).
func (e *envelope) clock() {
	if e.pace == 0 {
		return
	}
	if e.timer > 0 {
		e.timer--
	}
	if e.timer > 0 {
		return
	}
	e.timer = e.pace
	if e.up {
		if e.value < 15 {
			e.value++
		}
	} else {
		if e.value > 0 {
			e.value--
		}
	}
}

// lengthCounter gates a channel off after a programmed duration.
// modulus is 64 for channels 1/2/4 and 256 for channel 3.
type lengthCounter struct {
	enabled bool
	timer   uint16
	modulus uint16
}

func (l *lengthCounter) load(value uint16) {
	l.timer = l.modulus - value
}

// trigger reloads a zero timer to the full modulus.
func (l *lengthCounter) trigger() {
	if l.timer == 0 {
		l.timer = l.modulus
	}
}

// clock runs at 256 Hz; returns true when the channel should switch off.
func (l *lengthCounter) clock() bool {
	if !l.enabled || l.timer == 0 {
		return false
	}
	l.timer--
	return l.timer == 0
}

// dutyPatterns are the four square waveforms, one bit per 1/8 period.
var dutyPatterns = [4][8]uint8{
	{0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 0},
}

// squareChannel implements channels 1 and 2. Channel 1 additionally carries
// the frequency sweep unit.
type squareChannel struct {
	on        bool
	duty      uint8
	frequency uint16 // 11-bit period value
	freqTimer int
	position  uint8 // index into the duty pattern
	length    lengthCounter
	envelope  envelope

	// sweep, channel 1 only
	hasSweep     bool
	sweepPace    uint8 // NR10 bits 6-4
	sweepDown    bool  // NR10 bit 3
	sweepStep    uint8 // NR10 bits 2-0
	sweepEnabled bool
	sweepTimer   uint8
}

func newSquareChannel(hasSweep bool) squareChannel {
	return squareChannel{
		hasSweep: hasSweep,
		length:   lengthCounter{modulus: 64},
	}
}

func (c *squareChannel) periodCycles() int {
	return (2048 - int(c.frequency)) * 4
}

// tick advances the waveform by one T-cycle.
func (c *squareChannel) tick() {
	c.freqTimer--
	if c.freqTimer <= 0 {
		c.freqTimer = c.periodCycles()
		c.position = (c.position + 1) & 0x07
	}
}

// dacInput is the 0-15 value fed to the DAC.
func (c *squareChannel) dacInput() uint8 {
	if !c.on || !c.envelope.dacEnabled() {
		return 0
	}
	if dutyPatterns[c.duty][c.position] == 0 {
		return 0
	}
	return c.envelope.value
}

func (c *squareChannel) trigger() {
	if c.envelope.dacEnabled() {
		c.on = true
	}
	c.freqTimer = c.periodCycles()
	c.envelope.trigger()
	c.length.trigger()
	if c.hasSweep {
		c.triggerSweep()
	}
}

func (c *squareChannel) triggerSweep() {
	c.sweepEnabled = c.sweepPace > 0 || c.sweepStep > 0
	c.sweepTimer = c.sweepPace
	if c.sweepTimer == 0 {
		c.sweepTimer = 8
	}
	if c.sweepStep > 0 {
		if _, overflow := c.sweepTarget(); overflow {
			c.on = false
		}
	}
}

// sweepTarget computes the trial frequency and whether it overflows 2047.
func (c *squareChannel) sweepTarget() (uint16, bool) {
	delta := c.frequency >> c.sweepStep
	if c.sweepDown {
		return c.frequency - delta, false
	}
	target := c.frequency + delta
	return target, target > 2047
}

// clockSweep runs at 128 Hz (frame sequencer steps 2 and 6).
func (c *squareChannel) clockSweep() {
	if !c.hasSweep {
		return
	}
	if c.sweepTimer > 0 {
		c.sweepTimer--
	}
	if c.sweepTimer > 0 {
		return
	}
	c.sweepTimer = c.sweepPace
	if c.sweepTimer == 0 {
		c.sweepTimer = 8
	}
	if !c.sweepEnabled || c.sweepPace == 0 {
		return
	}

	target, overflow := c.sweepTarget()
	if overflow {
		c.on = false
		return
	}
	if c.sweepStep == 0 {
		return
	}
	// write back the trial frequency, then check overflow a second time
	// against the newly written value
	c.frequency = target & 0x7FF
	if _, overflow := c.sweepTarget(); overflow {
		c.on = false
	}
}

// waveChannel implements channel 3: 32 four-bit samples played from wave
// pattern RAM, with a coarse volume shift instead of an envelope.
type waveChannel struct {
	on         bool
	dacOn      bool  // NR30 bit 7
	volumeCode uint8 // NR32 bits 6-5
	frequency  uint16
	freqTimer  int
	position   uint8 // 0-31 index into wave RAM nibbles
	length     lengthCounter
}

func newWaveChannel() waveChannel {
	return waveChannel{
		length: lengthCounter{modulus: 256},
	}
}

func (c *waveChannel) periodCycles() int {
	return (2048 - int(c.frequency)) * 2
}

func (c *waveChannel) tick() {
	c.freqTimer--
	if c.freqTimer <= 0 {
		c.freqTimer = c.periodCycles()
		c.position = (c.position + 1) & 0x1F
	}
}

// dacInput reads the current sample from wave RAM and applies the volume
// shift: 0 mutes, 1..3 shift right by 0..2.
func (c *waveChannel) dacInput(waveRAM []byte) uint8 {
	if !c.on || !c.dacOn {
		return 0
	}
	sample := waveRAM[c.position>>1]
	if c.position&1 == 0 {
		sample >>= 4
	} else {
		sample &= 0x0F
	}
	switch c.volumeCode {
	case 0:
		return 0
	case 1:
		return sample
	case 2:
		return sample >> 1
	default:
		return sample >> 2
	}
}

func (c *waveChannel) trigger() {
	if c.dacOn {
		c.on = true
	}
	c.freqTimer = c.periodCycles()
	c.position = 0
	c.length.trigger()
}

// noiseDivisors maps the NR43 clock divider code to its base period.
var noiseDivisors = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// noiseChannel implements channel 4: a 15-bit LFSR clocked from NR43.
type noiseChannel struct {
	on         bool
	lfsr       uint16
	clockShift uint8 // NR43 bits 7-4
	width7     bool  // NR43 bit 3
	divider    uint8 // NR43 bits 2-0
	freqTimer  int
	length     lengthCounter
	envelope   envelope
}

func newNoiseChannel() noiseChannel {
	return noiseChannel{
		lfsr:   0x7FFF,
		length: lengthCounter{modulus: 64},
	}
}

func (c *noiseChannel) periodCycles() int {
	return noiseDivisors[c.divider] << c.clockShift
}

// tick advances the LFSR by one T-cycle's worth of timer.
// New bit = bit0 XOR bit1, shifted in at bit 14; in 7-bit mode the new bit
// is also copied into bit 6.
func (c *noiseChannel) tick() {
	c.freqTimer--
	if c.freqTimer <= 0 {
		c.freqTimer = c.periodCycles()
		newBit := (c.lfsr ^ (c.lfsr >> 1)) & 1
		c.lfsr = (c.lfsr >> 1) | (newBit << 14)
		if c.width7 {
			c.lfsr = (c.lfsr &^ (1 << 6)) | (newBit << 6)
		}
	}
}

func (c *noiseChannel) dacInput() uint8 {
	if !c.on || !c.envelope.dacEnabled() {
		return 0
	}
	// the LFSR output is inverted before the DAC
	if c.lfsr&1 == 0 {
		return c.envelope.value
	}
	return 0
}

func (c *noiseChannel) trigger() {
	if c.envelope.dacEnabled() {
		c.on = true
	}
	c.lfsr = 0x7FFF
	c.freqTimer = c.periodCycles()
	c.envelope.trigger()
	c.length.trigger()
}
