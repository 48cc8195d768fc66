package audio

import "math"

// sineBuffer generates a mono sine wave of the given duration
func sineBuffer(duration float64, sampleRate int, frequency float64, amplitude float32) *Buffer {
	n := SecondsToSamples(duration, sampleRate)
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = amplitude * float32(math.Sin(2*math.Pi*frequency*t))
	}
	return NewMonoBuffer(samples, sampleRate)
}

// constBuffer generates a mono buffer filled with value
func constBuffer(length, sampleRate int, value float32) *Buffer {
	buf := NewBuffer(1, length, sampleRate)
	for i := range buf.Data[0] {
		buf.Data[0][i] = value
	}
	return buf
}

func mustEncode(buf *Buffer) []byte {
	data, err := EncodeWAV(buf, buf.SampleRate)
	if err != nil {
		panic(err)
	}
	return data
}
