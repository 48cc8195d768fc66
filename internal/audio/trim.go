package audio

import "math"

const (
	// DefaultSilenceThreshold is the absolute amplitude below which a sample
	// counts as silence
	DefaultSilenceThreshold = 0.01

	// DefaultTrimPadding is the number of samples kept before the first and
	// after the last loud sample
	DefaultTrimPadding = 2000
)

// TrimSilence cuts leading and trailing silence from buf. The kept range runs
// from padding samples before the first sample louder than threshold to
// padding samples after the last one, inclusive, clamped to the buffer. A
// buffer with no loud sample is returned unchanged.
//
// The returned buffer is a copy; buf is not modified.
func TrimSilence(buf *Buffer, threshold float32, padding int) *Buffer {
	length := buf.Len()
	if length == 0 {
		return copyBuffer(buf)
	}
	if padding < 0 {
		padding = 0
	}

	first, last := -1, -1
	for i := 0; i < length; i++ {
		if loudAt(buf, i, threshold) {
			first = i
			break
		}
	}
	if first < 0 {
		return copyBuffer(buf)
	}
	for i := length - 1; i >= first; i-- {
		if loudAt(buf, i, threshold) {
			last = i
			break
		}
	}

	start := first - padding
	if start < 0 {
		start = 0
	}
	end := last + padding
	if end > length-1 {
		end = length - 1
	}

	out, _ := buf.Slice(start, end+1)
	return out
}

// loudAt reports whether any channel at sample i exceeds threshold
func loudAt(buf *Buffer, i int, threshold float32) bool {
	for _, channel := range buf.Data {
		if float32(math.Abs(float64(channel[i]))) > threshold {
			return true
		}
	}
	return false
}

func copyBuffer(buf *Buffer) *Buffer {
	out, _ := buf.Slice(0, buf.Len())
	return out
}
