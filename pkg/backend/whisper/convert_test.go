package whisper

import "testing"

func TestPCMToFloat32Mono(t *testing.T) {
	// Samples: 0, 16384 (0.5), -32768 (-1.0).
	pcm := []byte{
		0x00, 0x00,
		0x00, 0x40,
		0x00, 0x80,
	}
	got := pcmToFloat32Mono(pcm)
	want := []float32{0, 0.5, -1.0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPCMToFloat32Mono_OddTrailingByte(t *testing.T) {
	got := pcmToFloat32Mono([]byte{0x00, 0x40, 0xFF})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (trailing byte dropped)", len(got))
	}
}
