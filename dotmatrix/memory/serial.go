package memory

import (
	"log/slog"

	"github.com/valerio/dotmatrix/dotmatrix/addr"
	"github.com/valerio/dotmatrix/dotmatrix/bit"
)

// Serial implements the SB/SC link port with no peer attached.
//
// A transfer started with the internal clock completes after a fixed 512
// T-cycles (one bit period of the 8192 Hz clock; the eight bits are not timed
// one by one), shifts in 0xFF and requests the serial
// interrupt. Outgoing bytes are handed to an optional capture callback and
// logged as text lines, which is what the Blargg test ROMs expect.
type Serial struct {
	sb, sc         byte
	transferActive bool
	countdown      int

	// OnByte is invoked for every transmitted byte, if set.
	OnByte func(byte)
	// IRQ requester callback
	SerialInterruptHandler func()

	line []byte
}

// Reset restores the port to power-on state.
func (s *Serial) Reset() {
	s.sb = 0x00
	s.sc = 0x00
	s.transferActive = false
	s.countdown = 0
	s.line = s.line[:0]
}

func (s *Serial) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return s.sb
	case addr.SC:
		return s.sc | 0x7E
	default:
		return 0xFF
	}
}

func (s *Serial) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		s.sb = value
	case addr.SC:
		s.sc = value & 0x81
		s.maybeStartTransfer()
	}
}

// Tick advances an active transfer by the given number of T-cycles.
func (s *Serial) Tick(cycles int) {
	if !s.transferActive {
		return
	}
	s.countdown -= cycles
	if s.countdown <= 0 {
		s.completeTransfer()
	}
}

func (s *Serial) maybeStartTransfer() {
	if s.transferActive {
		return
	}
	// a transfer starts when bit 7 (start) and bit 0 (internal clock) are set;
	// with no peer, an externally clocked transfer never completes.
	if !bit.IsSet(7, s.sc) || !bit.IsSet(0, s.sc) {
		return
	}

	b := s.sb
	if s.OnByte != nil {
		s.OnByte(b)
	}
	if b == 0 || b == '\n' || b == '\r' {
		if len(s.line) > 0 {
			slog.Info("serial", "line", string(s.line))
			s.line = s.line[:0]
		}
	} else {
		s.line = append(s.line, b)
	}

	s.transferActive = true
	s.countdown = 512
}

func (s *Serial) completeTransfer() {
	s.sb = 0xFF
	s.sc = bit.Reset(7, s.sc)
	s.transferActive = false
	s.countdown = 0
	if s.SerialInterruptHandler != nil {
		s.SerialInterruptHandler()
	}
}
