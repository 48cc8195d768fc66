package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 8kHz
	sampleRate := 8000
	buf := sineBuffer(0.1, sampleRate, 440, 0.5)

	wavData, err := EncodeWAV(buf, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := WAVHeaderSize + buf.Len()*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(wavData), binary.LittleEndian, &header); err != nil {
		t.Fatalf("Failed to read header: %v", err)
	}

	dataSize := uint32(buf.Len() * 2)
	checks := []struct {
		name     string
		got      uint32
		expected uint32
	}{
		{"ChunkSize", header.ChunkSize, 36 + dataSize},
		{"Subchunk1Size", header.Subchunk1Size, 16},
		{"AudioFormat", uint32(header.AudioFormat), 1},
		{"NumChannels", uint32(header.NumChannels), 1},
		{"SampleRate", header.SampleRate, uint32(sampleRate)},
		{"ByteRate", header.ByteRate, uint32(sampleRate) * 2},
		{"BlockAlign", uint32(header.BlockAlign), 2},
		{"BitsPerSample", uint32(header.BitsPerSample), 16},
		{"Subchunk2Size", header.Subchunk2Size, dataSize},
	}
	for _, c := range checks {
		if c.got != c.expected {
			t.Errorf("%s: expected %d, got %d", c.name, c.expected, c.got)
		}
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	expectedDuration := float64(buf.Len()) / float64(sampleRate)
	if math.Abs(info.Duration-expectedDuration) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", expectedDuration, info.Duration)
	}
}

func TestEncodeWAVDeterministic(t *testing.T) {
	buf := sineBuffer(0.25, 16666, 300, 0.8)

	first, err := EncodeWAV(buf, 16666)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	second, err := EncodeWAV(buf, 16666)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("Expected identical output for identical input")
	}
}

func TestEncodeWAVInterleavesChannels(t *testing.T) {
	buf := NewBuffer(2, 2, 8000)
	buf.Data[0][0], buf.Data[0][1] = 1, 0.5
	buf.Data[1][0], buf.Data[1][1] = -1, -0.5

	wavData, err := EncodeWAV(buf, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	pcm := make([]int16, 4)
	if err := binary.Read(bytes.NewReader(wavData[WAVHeaderSize:]), binary.LittleEndian, pcm); err != nil {
		t.Fatalf("Failed to read PCM: %v", err)
	}

	expected := []int16{32767, -32767, 16384, -16384}
	for i := range expected {
		if pcm[i] != expected[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, expected[i], pcm[i])
		}
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.Channels != 2 || info.NumSamples != 2 {
		t.Errorf("Expected 2 channels and 2 frames, got %d and %d", info.Channels, info.NumSamples)
	}
}

func TestEncodeWAVClampsSamples(t *testing.T) {
	buf := NewMonoBuffer([]float32{2, -3, float32(math.NaN()), 0}, 8000)

	wavData, err := EncodeWAV(buf, 8000)
	if err != nil {
		t.Fatalf("Expected clamp-and-continue, got error: %v", err)
	}

	pcm := make([]int16, 4)
	if err := binary.Read(bytes.NewReader(wavData[WAVHeaderSize:]), binary.LittleEndian, pcm); err != nil {
		t.Fatalf("Failed to read PCM: %v", err)
	}

	expected := []int16{32767, -32767, 0, 0}
	for i := range expected {
		if pcm[i] != expected[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, expected[i], pcm[i])
		}
	}
}

func TestEncodeWAVInvalid(t *testing.T) {
	tests := []struct {
		name       string
		buf        *Buffer
		sampleRate int
	}{
		{"nil buffer", nil, 8000},
		{"no channels", &Buffer{SampleRate: 8000}, 8000},
		{"zero sample rate", NewBuffer(1, 10, 8000), 0},
		{"negative sample rate", NewBuffer(1, 10, 8000), -1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeWAV(tt.buf, tt.sampleRate)
			if !errors.Is(err, ErrEncode) {
				t.Errorf("Expected ErrEncode, got %v", err)
			}
		})
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	wavData, err := EncodeWAV(NewBuffer(1, 0, 8000), 8000)
	if err != nil {
		t.Fatalf("Expected empty buffer to encode, got %v", err)
	}
	if len(wavData) != WAVHeaderSize {
		t.Errorf("Expected header-only WAV of %d bytes, got %d", WAVHeaderSize, len(wavData))
	}

	buf, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected 0 samples, got %d", buf.Len())
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sampleRates := []int{8000, 16666, 44100}

	for _, sampleRate := range sampleRates {
		samples := make([]float32, 1000)
		for i := range samples {
			samples[i] = rng.Float32()*2 - 1
		}
		samples[0], samples[1] = 1, -1
		original := NewMonoBuffer(samples, sampleRate)

		decoded, err := DecodeWAV(mustEncode(original))
		if err != nil {
			t.Fatalf("DecodeWAV failed at %d Hz: %v", sampleRate, err)
		}

		if decoded.SampleRate != sampleRate {
			t.Errorf("Expected sample rate %d, got %d", sampleRate, decoded.SampleRate)
		}

		if math.Abs(decoded.Duration()-original.Duration()) >= 1/float64(sampleRate) {
			t.Errorf("Duration drifted: expected %.6f, got %.6f", original.Duration(), decoded.Duration())
		}

		step := 1.0 / 32767
		for i := range samples {
			if diff := math.Abs(float64(decoded.Data[0][i] - samples[i])); diff > step {
				t.Errorf("%d Hz sample %d: expected %.6f, got %.6f", sampleRate, i, samples[i], decoded.Data[0][i])
				break
			}
		}
	}
}

func TestDecodeWAVStereo(t *testing.T) {
	buf := NewBuffer(2, 100, 8000)
	for i := 0; i < 100; i++ {
		buf.Data[0][i] = 0.25
		buf.Data[1][i] = -0.75
	}

	decoded, err := DecodeWAV(mustEncode(buf))
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decoded.NumChannels() != 2 {
		t.Fatalf("Expected 2 channels, got %d", decoded.NumChannels())
	}
	if math.Abs(float64(decoded.Data[0][50]-0.25)) > 1e-4 || math.Abs(float64(decoded.Data[1][50]+0.75)) > 1e-4 {
		t.Errorf("Channels were not deinterleaved: got %.4f, %.4f", decoded.Data[0][50], decoded.Data[1][50])
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte{1, 2, 3}},
		{"not audio", []byte("this is definitely not a wav file, just some text padding it out")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(tt.data)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestSilenceWAV(t *testing.T) {
	tests := []struct {
		name            string
		duration        float64
		sampleRate      int
		expectedSamples int
		expectedRate    int
	}{
		{"one second at output rate", 1.0, 16666, 16666, 16666},
		{"fractional duration", 0.5, 44100, 22050, 44100},
		{"rounded sample count", 0.10003, 16666, 1667, 16666},
		{"zero duration", 0, 16666, 0, 16666},
		{"negative duration", -2, 16666, 0, 16666},
		{"default rate", 1.0, 0, 44100, DefaultSilenceSampleRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wavData := SilenceWAV(tt.duration, tt.sampleRate)

			info, err := GetWAVInfo(wavData)
			if err != nil {
				t.Fatalf("GetWAVInfo failed: %v", err)
			}
			if int(info.NumSamples) != tt.expectedSamples {
				t.Errorf("Expected %d samples, got %d", tt.expectedSamples, info.NumSamples)
			}
			if int(info.SampleRate) != tt.expectedRate {
				t.Errorf("Expected rate %d, got %d", tt.expectedRate, info.SampleRate)
			}

			buf, err := DecodeWAV(wavData)
			if err != nil {
				t.Fatalf("DecodeWAV failed: %v", err)
			}
			if tt.duration > 0 && math.Abs(buf.Duration()-tt.duration) >= 1/float64(tt.expectedRate) {
				t.Errorf("Expected duration %.5f, got %.5f", tt.duration, buf.Duration())
			}
			if buf.Peak() != 0 {
				t.Errorf("Expected silence, got peak %.4f", buf.Peak())
			}
		})
	}
}

func TestWAVDecoder(t *testing.T) {
	var decoder Decoder = WAVDecoder{}

	buf, err := decoder.Decode(SilenceWAV(0.5, 8000))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if buf.Len() != 4000 {
		t.Errorf("Expected 4000 samples, got %d", buf.Len())
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}

	if err := ValidateWAV(SilenceWAV(0.1, 8000)); err != nil {
		t.Errorf("Expected valid WAV, got %v", err)
	}
}

func TestGetWAVDuration(t *testing.T) {
	duration, err := GetWAVDuration(mustEncode(sineBuffer(1.0, 8000, 440, 0.3)))
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", duration)
	}
}
