package audio

import (
	"fmt"
	"math"
)

// Buffer is a decoded block of PCM audio. Samples are stored per channel as
// floats in the range [-1, 1].
type Buffer struct {
	SampleRate int
	Data       [][]float32 // Data[channel][sample]
}

// NewBuffer allocates a zeroed buffer with the given shape
func NewBuffer(channels, length, sampleRate int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	if length < 0 {
		length = 0
	}

	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, length)
	}

	return &Buffer{SampleRate: sampleRate, Data: data}
}

// NewMonoBuffer wraps a single channel of samples without copying
func NewMonoBuffer(samples []float32, sampleRate int) *Buffer {
	return &Buffer{SampleRate: sampleRate, Data: [][]float32{samples}}
}

// NewSilence returns a mono buffer of round(duration*sampleRate) zero samples.
// A non-positive duration gives an empty buffer.
func NewSilence(duration float64, sampleRate int) *Buffer {
	return NewBuffer(1, SecondsToSamples(duration, sampleRate), sampleRate)
}

// NumChannels returns the number of channels
func (b *Buffer) NumChannels() int {
	return len(b.Data)
}

// Len returns the number of samples per channel
func (b *Buffer) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the buffer length in seconds
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.SampleRate)
}

// Channel returns the samples of channel ch
func (b *Buffer) Channel(ch int) []float32 {
	return b.Data[ch]
}

// Slice returns a copy of the samples in [start, end) for every channel
func (b *Buffer) Slice(start, end int) (*Buffer, error) {
	if start < 0 || end > b.Len() || start > end {
		return nil, fmt.Errorf("invalid slice range: start=%d, end=%d, length=%d", start, end, b.Len())
	}

	out := NewBuffer(b.NumChannels(), end-start, b.SampleRate)
	for ch := range b.Data {
		copy(out.Data[ch], b.Data[ch][start:end])
	}

	return out, nil
}

// Peak returns the largest absolute sample value across all channels
func (b *Buffer) Peak() float32 {
	var peak float32
	for _, channel := range b.Data {
		for _, s := range channel {
			if a := float32(math.Abs(float64(s))); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Int16ToFloat converts PCM-16 samples to floats in [-1, 1], the inverse of
// FloatToInt16 (-32768 clamps to -1).
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = int16ToFloat(int32(s))
	}
	return out
}

func int16ToFloat(n int32) float32 {
	if n <= -32767 {
		return -1
	}
	return float32(n) / 32767
}

// FloatToInt16 quantizes a float sample the way EncodeWAV does:
// round(clamp(x) * 32767). NaN maps to zero.
func FloatToInt16(x float32) int16 {
	v := float64(x)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}

// SecondsToSamples converts a duration to a sample count, rounding to the
// nearest sample. Non-positive durations give zero.
func SecondsToSamples(seconds float64, sampleRate int) int {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(sampleRate)))
}

// SamplesToSeconds converts a sample count to seconds
func SamplesToSeconds(samples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}

// ceilSamples is math.Ceil with a small tolerance so that products which are
// integral up to float error do not gain an extra sample.
func ceilSamples(x float64) int {
	if x <= 0 {
		return 0
	}
	return int(math.Ceil(x - 1e-6))
}
