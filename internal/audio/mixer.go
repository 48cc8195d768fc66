package audio

import (
	"fmt"
	"math"
)

// Mixer renders buffers back-to-back into a single buffer
type Mixer struct{}

// NewMixer creates a new mixer
func NewMixer() *Mixer {
	return &Mixer{}
}

// Combine places buffers one after another, with no gap and no overlap, into
// one buffer at sampleRate. The output lasts the sum of the inputs' native
// durations; buffer i starts at the summed duration of buffers 0..i-1. Each
// input is resampled into the output timeline. The output channel count is the
// largest input channel count; narrower inputs repeat their last channel.
//
// Combine does not skip nil entries: callers drop undecodable segments first.
func (m *Mixer) Combine(buffers []*Buffer, sampleRate int) (*Buffer, error) {
	if len(buffers) == 0 {
		return nil, ErrEmptyInput
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", sampleRate)
	}

	var total float64
	channels := 1
	for _, b := range buffers {
		total += b.Duration()
		if b.NumChannels() > channels {
			channels = b.NumChannels()
		}
	}

	out := NewBuffer(channels, ceilSamples(total*float64(sampleRate)), sampleRate)
	length := out.Len()

	// Segment boundaries are rounded from the running offset, so buffer i
	// fills exactly [start, next) and never touches buffer i+1's samples
	var offset float64
	for _, b := range buffers {
		start := int(math.Round(offset * float64(sampleRate)))
		offset += b.Duration()
		next := min(int(math.Round(offset*float64(sampleRate))), length)

		if next <= start || b.Len() == 0 || b.NumChannels() == 0 || b.SampleRate <= 0 {
			continue
		}

		src := resampleTo(b, sampleRate, next-start)
		for ch := 0; ch < channels; ch++ {
			copy(out.Data[ch][start:next], src.Data[min(ch, src.NumChannels()-1)])
		}
	}

	return out, nil
}

// resampleTo converts buf to sampleRate with exactly length samples. Output
// positions past the last source sample hold that sample.
func resampleTo(buf *Buffer, sampleRate, length int) *Buffer {
	out := NewBuffer(buf.NumChannels(), length, sampleRate)
	step := float64(buf.SampleRate) / float64(sampleRate)
	last := float64(buf.Len() - 1)
	for ch, src := range buf.Data {
		for i := range out.Data[ch] {
			pos := math.Min(float64(i)*step, last)
			idx := int(pos)
			if idx >= len(src)-1 {
				out.Data[ch][i] = src[len(src)-1]
				continue
			}
			frac := float32(pos - float64(idx))
			out.Data[ch][i] = src[idx] + (src[idx+1]-src[idx])*frac
		}
	}
	return out
}
