package capture

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/skypro1111/dubbing-merge-service/internal/audio"
)

const testSessionID = "3f2b8c1e-6a4d-4e8f-9b7a-1c2d3e4f5a6b"

// frame returns count PCM-16 LE samples all set to value
func frame(count int, value int16) []byte {
	data := make([]byte, count*2)
	for i := 0; i < count; i++ {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(value))
	}
	return data
}

func TestNewTake(t *testing.T) {
	take := NewTake(12345, testSessionID, 2, 16000, 0)

	if take.ID() != 12345 {
		t.Errorf("Expected take ID 12345, got %d", take.ID())
	}
	if take.SessionID() != testSessionID {
		t.Errorf("Expected session %q, got %q", testSessionID, take.SessionID())
	}
	if take.SentenceID() != 2 {
		t.Errorf("Expected sentence 2, got %d", take.SentenceID())
	}
	if take.SampleRate() != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", take.SampleRate())
	}
	if take.Size() != 0 {
		t.Errorf("Expected initial size 0, got %d", take.Size())
	}
	if take.IsStopped() {
		t.Error("Expected new take to be running")
	}
}

func TestAddFrame(t *testing.T) {
	take := NewTake(1, testSessionID, 0, 8000, 0)
	initialTime := take.GetLastUpdate()

	time.Sleep(10 * time.Millisecond)

	if err := take.AddFrame(100, frame(160, 1000)); err != nil {
		t.Fatalf("Failed to add frame: %v", err)
	}

	if take.GetLastSequence() != 100 {
		t.Errorf("Expected sequence 100, got %d", take.GetLastSequence())
	}
	if !take.GetLastUpdate().After(initialTime) {
		t.Error("Expected last update time to be updated")
	}
	if take.Size() != 160 {
		t.Errorf("Expected 160 samples, got %d", take.Size())
	}
	if math.Abs(take.Duration()-0.02) > 1e-9 {
		t.Errorf("Expected 0.02 s, got %f", take.Duration())
	}

	if err := take.AddFrame(101, []byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd frame length")
	}
}

func TestSequenceOrdering(t *testing.T) {
	take := NewTake(1, testSessionID, 0, 8000, 0)

	// Add frames out of order: 1, 3, 2, 4
	if err := take.AddFrame(1, frame(80, 1)); err != nil {
		t.Fatalf("Failed to add frame 1: %v", err)
	}
	if err := take.AddFrame(3, frame(80, 3)); err != nil {
		t.Fatalf("Failed to add frame 3: %v", err)
	}

	// frame 3 waits for frame 2
	if take.Size() != 80 {
		t.Errorf("Expected 80 samples after frames 1,3, got %d", take.Size())
	}

	if err := take.AddFrame(2, frame(80, 2)); err != nil {
		t.Fatalf("Failed to add frame 2: %v", err)
	}
	if take.Size() != 240 {
		t.Errorf("Expected 240 samples after reordering, got %d", take.Size())
	}
	if take.GetLastSequence() != 3 {
		t.Errorf("Expected last sequence 3, got %d", take.GetLastSequence())
	}

	if err := take.AddFrame(4, frame(80, 4)); err != nil {
		t.Fatalf("Failed to add frame 4: %v", err)
	}

	wav, err := take.WAV()
	if err != nil {
		t.Fatalf("WAV failed: %v", err)
	}
	buf, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if buf.Len() != 320 {
		t.Fatalf("Expected 320 samples, got %d", buf.Len())
	}

	// frames must come out in sequence order
	for i, expected := range []int16{1, 2, 3, 4} {
		if got := audio.FloatToInt16(buf.Data[0][i*80]); got != expected {
			t.Errorf("Frame %d: expected value %d, got %d", i+1, expected, got)
		}
	}
}

func TestDuplicateFrameRejected(t *testing.T) {
	take := NewTake(1, testSessionID, 0, 8000, 0)

	take.AddFrame(5, frame(10, 0))
	take.AddFrame(6, frame(10, 0))

	if err := take.AddFrame(5, frame(10, 0)); err == nil {
		t.Error("Expected duplicate frame to be rejected")
	}
	if take.Size() != 20 {
		t.Errorf("Expected 20 samples, got %d", take.Size())
	}
}

func TestPacketLossDetection(t *testing.T) {
	take := NewTake(1, testSessionID, 0, 8000, 0)
	data := frame(80, 0)

	take.AddFrame(1, data)

	// a gap larger than maxGap gives up on frames 2-29
	take.AddFrame(30, data)

	stats := take.GetStats()
	if stats.LostPackets != 28 {
		t.Errorf("Expected 28 lost packets, got %d", stats.LostPackets)
	}
	if stats.LossRate == 0 {
		t.Error("Expected non-zero loss rate")
	}
	if take.Size() != 160 {
		t.Errorf("Expected frame 30 to be appended, got %d samples", take.Size())
	}
	if take.GetLastSequence() != 30 {
		t.Errorf("Expected last sequence 30, got %d", take.GetLastSequence())
	}
}

func TestStopFlushesPending(t *testing.T) {
	take := NewTake(1, testSessionID, 0, 8000, 0)

	take.AddFrame(1, frame(10, 1))
	take.AddFrame(4, frame(10, 4))
	take.AddFrame(3, frame(10, 3))

	if take.Size() != 10 {
		t.Fatalf("Expected frames 3 and 4 to wait for frame 2, got %d samples", take.Size())
	}

	take.Stop()

	if take.Size() != 30 {
		t.Errorf("Expected 30 samples after stop, got %d", take.Size())
	}
	stats := take.GetStats()
	if stats.LostPackets != 1 {
		t.Errorf("Expected frame 2 counted as lost, got %d", stats.LostPackets)
	}
	if stats.PendingSeqs != 0 || !stats.Stopped {
		t.Errorf("Expected stopped take with nothing pending, got %+v", stats)
	}

	if err := take.AddFrame(5, frame(10, 5)); !errors.Is(err, ErrTakeStopped) {
		t.Errorf("Expected ErrTakeStopped, got %v", err)
	}

	// stopping twice is harmless
	take.Stop()
}

func TestTakeMaxDuration(t *testing.T) {
	take := NewTake(1, testSessionID, 0, 8000, 100*time.Millisecond)

	var err error
	for seq := uint32(0); seq < 10 && err == nil; seq++ {
		err = take.AddFrame(seq, frame(160, 0))
	}

	if !errors.Is(err, ErrTakeTooLong) {
		t.Fatalf("Expected ErrTakeTooLong, got %v", err)
	}
	if take.Size() != 800 {
		t.Errorf("Expected take capped at 800 samples, got %d", take.Size())
	}
	if !take.IsStopped() {
		t.Error("Expected take to stop at its limit")
	}
}

func TestTakeWAV(t *testing.T) {
	take := NewTake(1, testSessionID, 0, 16000, 0)
	for seq := uint32(0); seq < 50; seq++ {
		take.AddFrame(seq, frame(320, 16384))
	}
	take.Stop()

	wav, err := take.WAV()
	if err != nil {
		t.Fatalf("WAV failed: %v", err)
	}

	info, err := audio.GetWAVInfo(wav)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.NumSamples != 16000 {
		t.Errorf("Unexpected WAV info: %+v", info)
	}
	if math.Abs(info.Duration-1.0) > 1e-9 {
		t.Errorf("Expected 1 s, got %f", info.Duration)
	}
}
