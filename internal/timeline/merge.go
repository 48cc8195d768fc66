package timeline

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/dubbing-merge-service/internal/audio"
)

// Result is a merged recording with a summary of how it was built
type Result struct {
	Data       []byte
	SampleRate int
	Duration   float64
	Segments   int

	// Recorded lists sentences whose recording made it into the output
	Recorded []int
	// Substituted lists sentences whose recording could not be used and was
	// replaced by silence
	Substituted []int
}

// Merger builds merged recordings. It holds no state between calls and is
// safe for concurrent use.
type Merger struct {
	decoder    audio.Decoder
	compressor *audio.Compressor
	mixer      *audio.Mixer
	sampleRate int
	logger     *slog.Logger
}

// NewMerger creates a merger that outputs audio.DefaultOutputSampleRate.
// A nil decoder means audio.WAVDecoder; a nil logger means slog.Default().
func NewMerger(decoder audio.Decoder, logger *slog.Logger) *Merger {
	if decoder == nil {
		decoder = audio.WAVDecoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Merger{
		decoder:    decoder,
		compressor: audio.NewCompressor(decoder),
		mixer:      audio.NewMixer(),
		sampleRate: audio.DefaultOutputSampleRate,
		logger:     logger,
	}
}

// MergerConfig holds the audio parameters of a Merger
type MergerConfig struct {
	SampleRate       int // output rate; non-positive means audio.DefaultOutputSampleRate
	SilenceThreshold float32
	TrimPadding      int // samples
}

// NewMergerWithConfig creates a merger with explicit audio parameters
func NewMergerWithConfig(decoder audio.Decoder, cfg MergerConfig, logger *slog.Logger) *Merger {
	m := NewMerger(decoder, logger)
	if cfg.SampleRate > 0 {
		m.sampleRate = cfg.SampleRate
	}
	m.compressor.OutputSampleRate = m.sampleRate
	m.compressor.Threshold = cfg.SilenceThreshold
	m.compressor.Padding = cfg.TrimPadding
	return m
}

// SampleRate returns the output sample rate
func (m *Merger) SampleRate() int {
	return m.sampleRate
}

// Merge builds the merged recording for sentences. Each valid recording is
// compressed to its sentence's duration; every other slot and gap becomes
// silence. A segment that cannot be compressed or decoded is replaced by
// silence of the same duration, so later segments keep their position.
// Merge fails with audio.ErrNoValidAudio only when no segment decodes.
func (m *Merger) Merge(sentences []Sentence, recordings RecordingMap, full Sentence) (*Result, error) {
	segments, err := Plan(sentences, recordings, full)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SampleRate: m.sampleRate,
		Segments:   len(segments),
	}

	blobs := make([][]byte, len(segments))
	for i, seg := range segments {
		if seg.Kind != SegmentRecording {
			blobs[i] = audio.SilenceWAV(seg.Duration, m.sampleRate)
			continue
		}

		compressed, err := m.compressor.Compress(seg.Recording.Data, seg.Duration)
		if err != nil {
			m.logger.Warn("Failed to compress recording, using silence",
				slog.Int("sentence_id", seg.SentenceID),
				slog.Float64("duration", seg.Duration),
				slog.String("error", err.Error()),
			)
			blobs[i] = audio.SilenceWAV(seg.Duration, m.sampleRate)
			result.Substituted = append(result.Substituted, seg.SentenceID)
			continue
		}

		blobs[i] = compressed
		result.Recorded = append(result.Recorded, seg.SentenceID)
	}

	buffers := make([]*audio.Buffer, len(segments))
	decoded := 0
	for i, seg := range segments {
		buf, err := m.decoder.Decode(blobs[i])
		if err != nil {
			m.logger.Warn("Failed to decode segment, substituting silence",
				slog.Int("segment", i),
				slog.String("kind", seg.Kind.String()),
				slog.Int("sentence_id", seg.SentenceID),
				slog.Float64("duration", seg.Duration),
				slog.String("error", err.Error()),
			)
			buffers[i] = audio.NewSilence(seg.Duration, m.sampleRate)
			if seg.Kind == SegmentRecording {
				result.moveToSubstituted(seg.SentenceID)
			}
			continue
		}

		buffers[i] = buf
		decoded++
	}

	if decoded == 0 {
		return nil, audio.ErrNoValidAudio
	}

	combined, err := m.mixer.Combine(buffers, m.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to combine segments: %w", err)
	}

	data, err := audio.EncodeWAV(combined, m.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged recording: %w", err)
	}

	result.Data = data
	result.Duration = combined.Duration()

	m.logger.Debug("Merged recording",
		slog.Int("segments", len(segments)),
		slog.Int("recorded", len(result.Recorded)),
		slog.Int("substituted", len(result.Substituted)),
		slog.Float64("duration", result.Duration),
	)

	return result, nil
}

func (r *Result) moveToSubstituted(id int) {
	for i, rec := range r.Recorded {
		if rec == id {
			r.Recorded = append(r.Recorded[:i], r.Recorded[i+1:]...)
			break
		}
	}
	r.Substituted = append(r.Substituted, id)
}

// BuildMergedRecording merges with a default Merger and returns the WAV blob
func BuildMergedRecording(sentences []Sentence, recordings RecordingMap, full Sentence) ([]byte, error) {
	result, err := NewMerger(nil, nil).Merge(sentences, recordings, full)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
