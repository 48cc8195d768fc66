package audio

import "math"

// Resample converts buf to sampleRate with linear interpolation. Duration is
// kept: the new length is round(len * sampleRate / nativeRate). A buffer that
// is already at sampleRate is copied.
func Resample(buf *Buffer, sampleRate int) *Buffer {
	if sampleRate <= 0 || buf.SampleRate <= 0 || buf.SampleRate == sampleRate {
		out := copyBuffer(buf)
		if sampleRate > 0 {
			out.SampleRate = sampleRate
		}
		return out
	}

	ratio := float64(buf.SampleRate) / float64(sampleRate)
	length := int(math.Round(float64(buf.Len()) / ratio))

	out := NewBuffer(buf.NumChannels(), length, sampleRate)
	for ch, src := range buf.Data {
		interpolate(out.Data[ch], src, ratio)
	}

	return out
}

// Render plays buf back at playbackRate into a buffer of the given length at
// the buffer's own sample rate. A rate above 1 speeds the audio up, shortening
// it and raising the pitch; output samples past the end of the source are
// silent.
func Render(buf *Buffer, playbackRate float64, length int) *Buffer {
	if playbackRate <= 0 {
		playbackRate = 1
	}

	out := NewBuffer(buf.NumChannels(), length, buf.SampleRate)
	for ch, src := range buf.Data {
		interpolate(out.Data[ch], src, playbackRate)
	}

	return out
}

// interpolate fills dst with src read at step source samples per output
// sample
func interpolate(dst, src []float32, step float64) {
	n := len(src)
	if n == 0 {
		return
	}

	for i := range dst {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= n {
			// dst beyond the source stays silent
			return
		}
		if idx == n-1 {
			dst[i] = src[idx]
			continue
		}
		frac := float32(pos - float64(idx))
		dst[i] = src[idx] + (src[idx+1]-src[idx])*frac
	}
}
