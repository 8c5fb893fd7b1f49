package dotmatrix

import (
	"testing"
)

// BenchmarkRunFrame measures full-machine throughput on a busy loop.
// Real-time play needs ~60 frames/second, so anything above that in
// frames/op is headroom.
func BenchmarkRunFrame(b *testing.B) {
	m := New()
	if err := m.LoadROM(spinROM()); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RunFrame()
	}
}

func BenchmarkStepCycles(b *testing.B) {
	m := New()
	if err := m.LoadROM(spinROM()); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	carry := 0
	for i := 0; i < b.N; i++ {
		carry = m.StepCycles(1000 + carry)
	}
}
