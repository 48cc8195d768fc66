package timeline

import "fmt"

// SegmentKind tells what fills a timeline segment
type SegmentKind int

const (
	// SegmentGap is silence before, between or after sentences
	SegmentGap SegmentKind = iota
	// SegmentRecording is a sentence slot filled by its recording
	SegmentRecording
	// SegmentMissing is a sentence slot with no usable recording
	SegmentMissing
)

// String returns a string representation of the segment kind
func (k SegmentKind) String() string {
	switch k {
	case SegmentGap:
		return "gap"
	case SegmentRecording:
		return "recording"
	case SegmentMissing:
		return "missing"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Segment is one contiguous span of the merged timeline
type Segment struct {
	Kind       SegmentKind
	SentenceID int // FullUtteranceID for gaps
	Start      float64
	Duration   float64
	Recording  *Recording
}

// Plan lays out the segments covering [full.Start, full.End]: a leading gap
// if the first sentence starts after full.Start, one slot per sentence, a gap
// wherever the next sentence starts after the current one ends, and a trailing
// gap up to full.End. Segment durations sum to full.End - full.Start.
func Plan(sentences []Sentence, recordings RecordingMap, full Sentence) ([]Segment, error) {
	if err := ValidateSentences(sentences, full); err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, 2*len(sentences)+1)
	gap := func(from, to float64) {
		if to-from > 0 {
			segments = append(segments, Segment{
				Kind:       SegmentGap,
				SentenceID: FullUtteranceID,
				Start:      from,
				Duration:   to - from,
			})
		}
	}

	gap(full.Start, sentences[0].Start)

	for i, s := range sentences {
		seg := Segment{
			Kind:       SegmentMissing,
			SentenceID: s.ID,
			Start:      s.Start,
			Duration:   s.Duration(),
		}
		if rec := recordings[s.ID]; rec.Valid() {
			seg.Kind = SegmentRecording
			seg.Recording = rec
		}
		segments = append(segments, seg)

		if i+1 < len(sentences) {
			gap(s.End, sentences[i+1].Start)
		}
	}

	gap(sentences[len(sentences)-1].End, full.End)

	return segments, nil
}
