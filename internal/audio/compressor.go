package audio

import (
	"errors"
	"fmt"
	"math"
)

// DefaultOutputSampleRate is the fixed rate of every normalized clip and of
// the merged recording
const DefaultOutputSampleRate = 16666

// Compressor fits a recorded clip to a target duration: it trims silence,
// resamples to OutputSampleRate, then pads with silence or speeds the clip up
// until it lasts exactly the target.
type Compressor struct {
	Decoder          Decoder
	Mixer            *Mixer
	Threshold        float32
	Padding          int
	OutputSampleRate int
}

// NewCompressor creates a compressor with the default threshold, padding and
// output rate
func NewCompressor(decoder Decoder) *Compressor {
	if decoder == nil {
		decoder = WAVDecoder{}
	}
	return &Compressor{
		Decoder:          decoder,
		Mixer:            NewMixer(),
		Threshold:        DefaultSilenceThreshold,
		Padding:          DefaultTrimPadding,
		OutputSampleRate: DefaultOutputSampleRate,
	}
}

// Compress decodes raw, normalizes it to target seconds and returns the result
// as a WAV at OutputSampleRate. Decode failures wrap ErrDecode. Empty or silent
// input yields target seconds of silence.
func (c *Compressor) Compress(raw []byte, target float64) ([]byte, error) {
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, target)
	}

	buf, err := c.decoder().Decode(raw)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	fitted, err := c.Fit(buf, target)
	if err != nil {
		return nil, err
	}

	return EncodeWAV(fitted, c.rate())
}

// Fit runs the trim, resample and duration-matching steps on a decoded buffer
func (c *Compressor) Fit(buf *Buffer, target float64) (*Buffer, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, target)
	}

	rate := c.rate()
	trimmed := TrimSilence(buf, c.Threshold, c.Padding)
	resampled := Resample(trimmed, rate)

	d := resampled.Duration()
	switch {
	case math.Abs(d-target) < 0.5/float64(rate):
		return resampled, nil

	case d < target:
		pad, err := c.decoder().Decode(SilenceWAV(target-d, rate))
		if err != nil {
			return nil, fmt.Errorf("%w: silence padding: %v", ErrDecode, err)
		}
		return c.mixer().Combine([]*Buffer{resampled, pad}, rate)

	default:
		playbackRate := d / target
		length := ceilSamples(float64(resampled.Len()) / playbackRate)
		return Render(resampled, playbackRate, length), nil
	}
}

func (c *Compressor) decoder() Decoder {
	if c.Decoder == nil {
		return WAVDecoder{}
	}
	return c.Decoder
}

func (c *Compressor) mixer() *Mixer {
	if c.Mixer == nil {
		return NewMixer()
	}
	return c.Mixer
}

func (c *Compressor) rate() int {
	if c.OutputSampleRate <= 0 {
		return DefaultOutputSampleRate
	}
	return c.OutputSampleRate
}
