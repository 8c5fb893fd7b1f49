package audio

const (
	// ClockRate is the DMG master clock in T-cycles per second.
	ClockRate = 4194304
	// SampleRate is the output sample rate. One stereo sample is emitted
	// every ClockRate/SampleRate = 64 T-cycles.
	SampleRate = 65536
	// cyclesPerSample is the emission period in T-cycles.
	cyclesPerSample = ClockRate / SampleRate

	// frameSequencerPeriod is 8192 T-cycles, i.e. 512 Hz.
	frameSequencerPeriod = 8192

	// RingCapacity is the size of each output channel's sample ring.
	RingCapacity = 4096

	waveRAMSize = 16
)
