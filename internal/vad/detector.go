package vad

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/skypro1111/dubbing-merge-service/internal/audio"
)

const (
	// DefaultThreshold is the window RMS that counts as voice
	DefaultThreshold = 0.02

	// DefaultWindow is the analysis window length
	DefaultWindow = 30 * time.Millisecond

	// DefaultMinSpeech is the shortest voiced span reported as speech
	DefaultMinSpeech = 90 * time.Millisecond
)

// Config contains detector configuration
type Config struct {
	Threshold float32       // window RMS in (0, 1)
	Window    time.Duration // analysis window
	MinSpeech time.Duration // shorter voiced spans are ignored
}

// Detector finds speech in audio buffers. It is safe for concurrent use.
type Detector struct {
	threshold float32
	window    time.Duration
	minSpeech time.Duration

	// Statistics
	totalWindows    uint64
	voiceWindows    uint64
	analyzed        uint64
	silentRecording uint64
	lastProcessed   time.Time

	mu sync.RWMutex
}

// Segment is a voiced span, in seconds from the start of the buffer
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the voice activity of one buffer
type Result struct {
	Duration float64   `json:"duration_seconds"`
	Voiced   float64   `json:"voiced_seconds"`
	Ratio    float64   `json:"voiced_ratio"`
	PeakRMS  float32   `json:"peak_rms"`
	Segments []Segment `json:"segments"`
}

// HasSpeech reports whether any voiced span was found
func (r Result) HasSpeech() bool {
	return len(r.Segments) > 0
}

// DetectorStats represents detector statistics
type DetectorStats struct {
	Analyzed        uint64    `json:"analyzed"`
	SilentRecording uint64    `json:"silent_recordings"`
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
}

// NewDetector creates a detector. Zero fields take their defaults.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinSpeech == 0 {
		cfg.MinSpeech = DefaultMinSpeech
	}

	if cfg.Threshold < 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.Threshold)
	}

	if cfg.Window < 0 {
		return nil, fmt.Errorf("window must be positive, got %v", cfg.Window)
	}

	if cfg.MinSpeech < 0 {
		return nil, fmt.Errorf("minimum speech duration must not be negative, got %v", cfg.MinSpeech)
	}

	return &Detector{
		threshold: cfg.Threshold,
		window:    cfg.Window,
		minSpeech: cfg.MinSpeech,
	}, nil
}

// Analyze measures the voice activity of buf. Channels are averaged first.
func (d *Detector) Analyze(buf *audio.Buffer) Result {
	var result Result
	if buf == nil || buf.Len() == 0 || buf.SampleRate <= 0 {
		d.record(0, 0, false)
		return result
	}

	mono := mixdown(buf)
	windowSize := int(math.Round(d.window.Seconds() * float64(buf.SampleRate)))
	if windowSize < 1 {
		windowSize = 1
	}

	result.Duration = buf.Duration()
	minSpeech := d.minSpeech.Seconds()

	var windows, voiced uint64
	var current *Segment
	closeSegment := func(end float64) {
		if current == nil {
			return
		}
		current.End = end
		if current.End-current.Start >= minSpeech-1e-9 {
			result.Segments = append(result.Segments, *current)
			result.Voiced += current.End - current.Start
		}
		current = nil
	}

	for start := 0; start < len(mono); start += windowSize {
		end := start + windowSize
		if end > len(mono) {
			end = len(mono)
		}

		level := rms(mono[start:end])
		if level > result.PeakRMS {
			result.PeakRMS = level
		}
		windows++

		startSec := audio.SamplesToSeconds(start, buf.SampleRate)
		if level >= d.threshold {
			voiced++
			if current == nil {
				current = &Segment{Start: startSec}
			}
		} else {
			closeSegment(startSec)
		}
	}
	closeSegment(result.Duration)

	if result.Duration > 0 {
		result.Ratio = result.Voiced / result.Duration
	}

	d.record(windows, voiced, result.HasSpeech())

	return result
}

func (d *Detector) record(windows, voiced uint64, speech bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.analyzed++
	d.totalWindows += windows
	d.voiceWindows += voiced
	if !speech {
		d.silentRecording++
	}
	d.lastProcessed = time.Now()
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	voicePercentage := float64(0)
	if d.totalWindows > 0 {
		voicePercentage = float64(d.voiceWindows) / float64(d.totalWindows) * 100
	}

	return DetectorStats{
		Analyzed:        d.analyzed,
		SilentRecording: d.silentRecording,
		TotalWindows:    d.totalWindows,
		VoiceWindows:    d.voiceWindows,
		VoicePercentage: voicePercentage,
		LastProcessed:   d.lastProcessed,
		Threshold:       d.threshold,
	}
}

// GetThreshold returns the voice threshold
func (d *Detector) GetThreshold() float32 {
	return d.threshold
}

func mixdown(buf *audio.Buffer) []float32 {
	if buf.NumChannels() == 1 {
		return buf.Channel(0)
	}

	out := make([]float32, buf.Len())
	scale := 1 / float32(buf.NumChannels())
	for _, channel := range buf.Data {
		for i, s := range channel {
			out[i] += s * scale
		}
	}
	return out
}

func rms(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return float32(math.Sqrt(energy / float64(len(samples))))
}
