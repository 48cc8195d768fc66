package audio

import (
	"math"
	"testing"
)

func TestNewBuffer(t *testing.T) {
	buf := NewBuffer(2, 160, 8000)

	if buf.NumChannels() != 2 {
		t.Errorf("Expected 2 channels, got %d", buf.NumChannels())
	}

	if buf.Len() != 160 {
		t.Errorf("Expected 160 samples, got %d", buf.Len())
	}

	if math.Abs(buf.Duration()-0.02) > 1e-9 {
		t.Errorf("Expected duration 0.02, got %f", buf.Duration())
	}

	if buf.Peak() != 0 {
		t.Errorf("Expected zeroed buffer, got peak %f", buf.Peak())
	}
}

func TestNewBufferClampsShape(t *testing.T) {
	buf := NewBuffer(0, -5, 8000)

	if buf.NumChannels() != 1 {
		t.Errorf("Expected 1 channel, got %d", buf.NumChannels())
	}
	if buf.Len() != 0 {
		t.Errorf("Expected 0 samples, got %d", buf.Len())
	}
}

func TestNewSilence(t *testing.T) {
	tests := []struct {
		duration float64
		rate     int
		expected int
	}{
		{1.0, 16666, 16666},
		{0.25, 44100, 11025},
		{0, 16666, 0},
		{-1, 16666, 0},
	}

	for _, tt := range tests {
		buf := NewSilence(tt.duration, tt.rate)
		if buf.Len() != tt.expected {
			t.Errorf("NewSilence(%v, %d): expected %d samples, got %d", tt.duration, tt.rate, tt.expected, buf.Len())
		}
	}
}

func TestBufferSlice(t *testing.T) {
	buf := constBuffer(100, 8000, 0.5)

	part, err := buf.Slice(10, 30)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if part.Len() != 20 {
		t.Errorf("Expected 20 samples, got %d", part.Len())
	}

	// the slice is a copy
	part.Data[0][0] = -1
	if buf.Data[0][10] != 0.5 {
		t.Error("Expected source buffer to be unchanged")
	}

	invalid := [][2]int{{-1, 10}, {50, 10}, {0, 101}}
	for _, r := range invalid {
		if _, err := buf.Slice(r[0], r[1]); err == nil {
			t.Errorf("Expected error for range %v", r)
		}
	}
}

func TestFloatToInt16(t *testing.T) {
	tests := []struct {
		in       float32
		expected int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{0.5, 16384},
		{1.5, 32767},
		{-7, -32767},
		{float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		if got := FloatToInt16(tt.in); got != tt.expected {
			t.Errorf("FloatToInt16(%v): expected %d, got %d", tt.in, tt.expected, got)
		}
	}
}

func TestInt16ToFloat(t *testing.T) {
	got := Int16ToFloat([]int16{0, 32767, -32767, -32768, 16384})
	expected := []float32{0, 1, -1, -1, 16384.0 / 32767}

	for i := range expected {
		if math.Abs(float64(got[i]-expected[i])) > 1e-7 {
			t.Errorf("Sample %d: expected %f, got %f", i, expected[i], got[i])
		}
	}
}

func TestSecondsToSamples(t *testing.T) {
	if n := SecondsToSamples(3.0, 16666); n != 49998 {
		t.Errorf("Expected 49998 samples, got %d", n)
	}
	if n := SecondsToSamples(0.5, 0); n != 0 {
		t.Errorf("Expected 0 samples for zero rate, got %d", n)
	}
	if s := SamplesToSeconds(8000, 16000); s != 0.5 {
		t.Errorf("Expected 0.5 seconds, got %f", s)
	}
}
