package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cryptix/wav"
)

const (
	// WAVHeaderSize is the size of the canonical RIFF/WAVE header
	WAVHeaderSize = 44

	// DefaultSilenceSampleRate is used for synthesized silence when no rate is given
	DefaultSilenceSampleRate = 44100

	// MIMEType is the content type of every blob produced by this package
	MIMEType = "audio/wav"
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Decoder turns an encoded audio blob into a PCM buffer
type Decoder interface {
	Decode(data []byte) (*Buffer, error)
}

// WAVDecoder is the default Decoder, backed by DecodeWAV
type WAVDecoder struct{}

// Decode implements Decoder
func (WAVDecoder) Decode(data []byte) (*Buffer, error) {
	return DecodeWAV(data)
}

// EncodeWAV serializes a buffer as 16-bit PCM WAV at the given sample rate.
// The encoder does not resample: sampleRate is written to the header as is.
// Samples are clamped to [-1, 1] and scaled by 32767; channels are interleaved.
func EncodeWAV(buf *Buffer, sampleRate int) ([]byte, error) {
	if buf == nil || buf.NumChannels() == 0 {
		return nil, fmt.Errorf("%w: buffer has no channels", ErrEncode)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrEncode, sampleRate)
	}

	numChannels := uint16(buf.NumChannels())
	bitsPerSample := uint16(16)
	numSamples := buf.Len()
	dataSize := uint32(numSamples * int(numChannels) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	pcm := make([]int16, numSamples*int(numChannels))
	for ch, channel := range buf.Data {
		for i, s := range channel {
			pcm[i*int(numChannels)+ch] = FloatToInt16(s)
		}
	}

	out := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+int(dataSize)))

	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("%w: failed to write WAV header: %v", ErrEncode, err)
	}

	if err := binary.Write(out, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("%w: failed to write audio data: %v", ErrEncode, err)
	}

	return out.Bytes(), nil
}

// SilenceWAV synthesizes round(duration*sampleRate) zero samples as a mono
// 16-bit WAV. A non-positive duration gives a valid WAV with an empty data
// chunk; a non-positive rate falls back to DefaultSilenceSampleRate.
func SilenceWAV(duration float64, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSilenceSampleRate
	}

	data, err := EncodeWAV(NewSilence(duration, sampleRate), sampleRate)
	if err != nil {
		// unreachable: the buffer has one channel and the rate is positive
		panic(err)
	}
	return data
}

// DecodeWAV decodes a WAV container into a float buffer. Canonical 16-bit PCM
// files (everything EncodeWAV writes) are read directly; other layouts (extra
// chunks, 8/24/32-bit samples) go through cryptix/wav. Every failure wraps
// ErrDecode.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: data too short: %d bytes", ErrDecode, len(data))
	}

	if header, err := readHeader(data); err == nil && isCanonicalPCM16(header, len(data)) {
		return decodeCanonical(header, data[WAVHeaderSize:WAVHeaderSize+int(header.Subchunk2Size)])
	}

	r, err := wav.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	file := r.GetFile()
	channels := int(file.Channels)
	bits := int(file.SignificantBits)
	sampleRate := int(file.SampleRate)

	if channels < 1 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid format: channels=%d, sample_rate=%d", ErrDecode, channels, sampleRate)
	}

	switch bits {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth: %d", ErrDecode, bits)
	}

	var interleaved []float32
	for {
		sample, err := r.ReadSample()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("%w: reading sample: %v", ErrDecode, err)
		}
		interleaved = append(interleaved, normalizeSample(sample, bits))
	}

	length := len(interleaved) / channels
	buf := NewBuffer(channels, length, sampleRate)
	for i := 0; i < length; i++ {
		for ch := 0; ch < channels; ch++ {
			buf.Data[ch][i] = interleaved[i*channels+ch]
		}
	}

	return buf, nil
}

func isCanonicalPCM16(h *WAVHeader, size int) bool {
	return h.AudioFormat == 1 &&
		h.BitsPerSample == 16 &&
		h.Subchunk1Size == 16 &&
		WAVHeaderSize+int(h.Subchunk2Size) <= size
}

func decodeCanonical(h *WAVHeader, pcm []byte) (*Buffer, error) {
	channels := int(h.NumChannels)
	if channels < 1 || h.SampleRate == 0 {
		return nil, fmt.Errorf("%w: invalid format: channels=%d, sample_rate=%d", ErrDecode, channels, h.SampleRate)
	}

	length := len(pcm) / 2 / channels
	buf := NewBuffer(channels, length, int(h.SampleRate))
	for i := 0; i < length; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			buf.Data[ch][i] = int16ToFloat(int32(int16(binary.LittleEndian.Uint16(pcm[off:]))))
		}
	}

	return buf, nil
}

// normalizeSample maps an integer sample of the given bit depth to [-1, 1].
// Values above the signed range are treated as unsigned two's complement.
func normalizeSample(n int32, bits int) float32 {
	switch bits {
	case 8:
		// 8-bit WAV is unsigned with a 128 midpoint
		if n < 0 {
			return float32(n) / 128
		}
		return float32(n-128) / 128
	case 16:
		if n > 32767 {
			n -= 65536
		}
		return int16ToFloat(n)
	case 24:
		if n > 8388607 {
			n -= 16777216
		}
		return float32(n) / 8388608
	default:
		return float32(float64(n) / 2147483648)
	}
}

// readHeader parses the canonical 44-byte header
func readHeader(data []byte) (*WAVHeader, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	return &header, nil
}

// ValidateWAV validates a canonical WAV header without decoding the audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a canonical 16-bit WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a canonical WAV header
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	frameSize := uint32(header.BitsPerSample) / 8 * uint32(header.NumChannels)
	if frameSize == 0 {
		return nil, fmt.Errorf("invalid frame size: bits=%d, channels=%d", header.BitsPerSample, header.NumChannels)
	}

	numSamples := header.Subchunk2Size / frameSize

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numSamples) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}
