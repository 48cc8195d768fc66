package timeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// FullUtteranceID is the sentence ID reserved for the span of the whole utterance
const FullUtteranceID = -1

// boundsTolerance absorbs float noise in caller-supplied timings
const boundsTolerance = 1e-6

var (
	// ErrNoSentences is returned when a timeline has no sentences.
	ErrNoSentences = errors.New("timeline has no sentences")
	// ErrInvalidSentence is returned for sentences with bad timing or order.
	ErrInvalidSentence = errors.New("invalid sentence")
)

// Sentence is a timed text span of a lesson, in seconds
type Sentence struct {
	ID        int     `json:"id"`
	Text      string  `json:"text"`
	Translate string  `json:"translate,omitempty"`
	Phonetic  string  `json:"phonetic,omitempty"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Duration returns End - Start
func (s Sentence) Duration() float64 {
	return s.End - s.Start
}

// Recording is a recorded clip for one sentence
type Recording struct {
	Data     []byte
	MIMEType string
}

// Valid reports whether the recording is non-empty and audio-typed.
// A nil recording is not valid.
func (r *Recording) Valid() bool {
	if r == nil || len(r.Data) == 0 {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.MIMEType)), "audio/")
}

// RecordingMap maps sentence IDs to their recordings. A missing or nil entry
// means the sentence has not been recorded.
type RecordingMap map[int]*Recording

// Recorded returns how many sentences have a valid recording
func (m RecordingMap) Recorded(sentences []Sentence) int {
	n := 0
	for _, s := range sentences {
		if m[s.ID].Valid() {
			n++
		}
	}
	return n
}

// ValidateSentences checks that there is at least one sentence, that every
// sentence ends after it starts, that sentences are in chronological order
// without overlap or duplicate IDs, and that full spans all of them.
func ValidateSentences(sentences []Sentence, full Sentence) error {
	if len(sentences) == 0 {
		return ErrNoSentences
	}

	if !finite(full.Start) || !finite(full.End) || full.End <= full.Start {
		return fmt.Errorf("%w: full utterance span [%v, %v]", ErrInvalidSentence, full.Start, full.End)
	}

	seen := make(map[int]struct{}, len(sentences))
	for i, s := range sentences {
		if !finite(s.Start) || !finite(s.End) || s.End <= s.Start {
			return fmt.Errorf("%w: sentence %d has span [%v, %v]", ErrInvalidSentence, s.ID, s.Start, s.End)
		}

		if s.ID == FullUtteranceID {
			return fmt.Errorf("%w: sentence ID %d is reserved", ErrInvalidSentence, FullUtteranceID)
		}

		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate sentence ID %d", ErrInvalidSentence, s.ID)
		}
		seen[s.ID] = struct{}{}

		if i > 0 && s.Start < sentences[i-1].End-boundsTolerance {
			return fmt.Errorf("%w: sentence %d starts at %v before sentence %d ends at %v",
				ErrInvalidSentence, s.ID, s.Start, sentences[i-1].ID, sentences[i-1].End)
		}
	}

	first, last := sentences[0], sentences[len(sentences)-1]
	if first.Start < full.Start-boundsTolerance || last.End > full.End+boundsTolerance {
		return fmt.Errorf("%w: sentences [%v, %v] exceed full utterance [%v, %v]",
			ErrInvalidSentence, first.Start, last.End, full.Start, full.End)
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
