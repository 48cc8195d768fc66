package timeline

import (
	"math"
	"testing"
)

func TestPlan(t *testing.T) {
	sentences := []Sentence{
		{ID: 0, Start: 1, End: 3},
		{ID: 1, Start: 3, End: 4.5},
		{ID: 2, Start: 5, End: 6},
	}
	full := Sentence{ID: FullUtteranceID, Start: 0, End: 7}
	recordings := RecordingMap{
		1: {Data: []byte{1, 2, 3}, MIMEType: "audio/webm;codecs=opus"},
	}

	segments, err := Plan(sentences, recordings, full)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	expected := []struct {
		kind     SegmentKind
		id       int
		duration float64
	}{
		{SegmentGap, FullUtteranceID, 1},
		{SegmentMissing, 0, 2},
		{SegmentRecording, 1, 1.5},
		{SegmentGap, FullUtteranceID, 0.5},
		{SegmentMissing, 2, 1},
		{SegmentGap, FullUtteranceID, 1},
	}

	if len(segments) != len(expected) {
		t.Fatalf("Expected %d segments, got %d", len(expected), len(segments))
	}

	var total float64
	for i, e := range expected {
		seg := segments[i]
		if seg.Kind != e.kind || seg.SentenceID != e.id || math.Abs(seg.Duration-e.duration) > 1e-9 {
			t.Errorf("Segment %d: expected %s/%d/%.2f, got %s/%d/%.2f",
				i, e.kind, e.id, e.duration, seg.Kind, seg.SentenceID, seg.Duration)
		}
		total += seg.Duration
	}

	if math.Abs(total-7) > 1e-9 {
		t.Errorf("Expected segments to cover 7 s, got %f", total)
	}
	if segments[2].Recording != recordings[1] {
		t.Error("Expected recording segment to carry its recording")
	}
}

func TestPlanWithoutGaps(t *testing.T) {
	sentences := []Sentence{{ID: 7, Start: 0, End: 2}}
	segments, err := Plan(sentences, nil, Sentence{ID: FullUtteranceID, Start: 0, End: 2})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(segments) != 1 || segments[0].Kind != SegmentMissing {
		t.Errorf("Expected a single missing slot, got %+v", segments)
	}
}

func TestRecordingValid(t *testing.T) {
	tests := []struct {
		name     string
		rec      *Recording
		expected bool
	}{
		{"nil", nil, false},
		{"empty", &Recording{MIMEType: "audio/wav"}, false},
		{"wav", &Recording{Data: []byte{1}, MIMEType: "audio/wav"}, true},
		{"webm with codec", &Recording{Data: []byte{1}, MIMEType: "audio/webm;codecs=opus"}, true},
		{"upper case", &Recording{Data: []byte{1}, MIMEType: "Audio/OGG"}, true},
		{"video", &Recording{Data: []byte{1}, MIMEType: "video/mp4"}, false},
		{"no type", &Recording{Data: []byte{1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Valid(); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRecordingMapRecorded(t *testing.T) {
	m := RecordingMap{
		0: {Data: []byte{1}, MIMEType: "audio/wav"},
		1: nil,
		9: {Data: []byte{1}, MIMEType: "audio/wav"},
	}
	sentences := []Sentence{{ID: 0}, {ID: 1}, {ID: 2}}

	if n := m.Recorded(sentences); n != 1 {
		t.Errorf("Expected 1 recorded sentence, got %d", n)
	}
}
