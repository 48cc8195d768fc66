package capture

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skypro1111/dubbing-merge-service/internal/audio"
)

var (
	// ErrTakeStopped is returned when frames arrive after Stop.
	ErrTakeStopped = errors.New("take already stopped")
	// ErrTakeTooLong is returned when a take exceeds its maximum duration.
	ErrTakeTooLong = errors.New("take exceeds maximum duration")
)

// Take collects the PCM-16 little-endian mono frames of one sentence
// recording, ordered by sequence number
type Take struct {
	id         uint32
	sessionID  string
	sentenceID int
	sampleRate int

	pcm      []byte
	maxBytes int

	// Sequence tracking
	initialized bool
	lastSeq     uint32            // Last appended sequence number
	expectedSeq uint32            // Next expected sequence number
	pending     map[uint32][]byte // Out-of-order frames

	// Packet loss tracking
	lost   map[uint32]bool
	maxGap uint32 // Maximum sequence gap to wait for

	startTime    time.Time
	lastUpdate   time.Time
	totalPackets uint32
	lostCount    uint32
	stopped      bool

	mu sync.RWMutex
}

// TakeStats represents take statistics for monitoring
type TakeStats struct {
	TakeID       uint32  `json:"take_id"`
	SessionID    string  `json:"session_id"`
	SentenceID   int     `json:"sentence_id"`
	SampleRate   int     `json:"sample_rate"`
	TotalPackets uint32  `json:"total_packets"`
	LostPackets  uint32  `json:"lost_packets"`
	LossRate     float64 `json:"loss_rate"`
	Samples      int     `json:"samples"`
	Duration     float64 `json:"duration_seconds"`
	PendingSeqs  int     `json:"pending_sequences"`
	LastSequence uint32  `json:"last_sequence"`
	Stopped      bool    `json:"stopped"`
}

// NewTake creates a take. maxDuration bounds the accumulated audio; zero
// means unbounded.
func NewTake(id uint32, sessionID string, sentenceID, sampleRate int, maxDuration time.Duration) *Take {
	now := time.Now()
	t := &Take{
		id:         id,
		sessionID:  sessionID,
		sentenceID: sentenceID,
		sampleRate: sampleRate,
		pcm:        make([]byte, 0, sampleRate*4), // 2 seconds of 16-bit samples
		pending:    make(map[uint32][]byte),
		lost:       make(map[uint32]bool),
		maxGap:     20, // Wait for up to 20 missing packets
		startTime:  now,
		lastUpdate: now,
	}
	if maxDuration > 0 {
		t.maxBytes = int(maxDuration.Seconds()*float64(sampleRate)) * 2
	}
	return t
}

// AddFrame adds a frame of PCM data with its sequence number
func (t *Take) AddFrame(sequence uint32, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrTakeStopped
	}

	if len(data)%2 != 0 {
		return fmt.Errorf("audio data length must be even (got %d bytes)", len(data))
	}

	t.lastUpdate = time.Now()
	t.totalPackets++

	if err := t.addWithSequence(sequence, data); err != nil {
		return err
	}

	if t.maxBytes > 0 && len(t.pcm) > t.maxBytes {
		t.pcm = t.pcm[:t.maxBytes]
		t.stopped = true
		return ErrTakeTooLong
	}

	return nil
}

// addWithSequence handles sequence-ordered addition of frames
func (t *Take) addWithSequence(sequence uint32, data []byte) error {
	if !t.initialized {
		t.initialized = true
		t.expectedSeq = sequence
		t.lastSeq = sequence - 1
	}

	switch {
	case sequence == t.expectedSeq:
		t.pcm = append(t.pcm, data...)
		t.lastSeq = sequence
		t.expectedSeq = sequence + 1
		t.flushPending()

	case sequence > t.expectedSeq:
		t.pending[sequence] = append([]byte(nil), data...)

		// Give up on missing frames once the gap is too large
		if sequence-t.expectedSeq > t.maxGap {
			t.markMissingAsLost(t.expectedSeq, sequence-1)
			t.expectedSeq = t.firstPending()
			t.flushPending()
		}

	default:
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, lastSeq=%d", sequence, t.lastSeq)
	}

	t.cleanupOldLost()
	return nil
}

// flushPending appends buffered frames that are now in order
func (t *Take) flushPending() {
	for {
		data, exists := t.pending[t.expectedSeq]
		if !exists {
			break
		}

		t.pcm = append(t.pcm, data...)
		delete(t.pending, t.expectedSeq)
		delete(t.lost, t.expectedSeq)

		t.lastSeq = t.expectedSeq
		t.expectedSeq++
	}
}

// firstPending returns the lowest buffered sequence number
func (t *Take) firstPending() uint32 {
	first := t.expectedSeq
	found := false
	for seq := range t.pending {
		if !found || seq < first {
			first = seq
			found = true
		}
	}
	return first
}

// markMissingAsLost marks a range of sequence numbers as lost
func (t *Take) markMissingAsLost(start, end uint32) {
	for seq := start; seq <= end; seq++ {
		if _, buffered := t.pending[seq]; !buffered && !t.lost[seq] {
			t.lost[seq] = true
			t.lostCount++
		}
	}
}

// cleanupOldLost drops loss tracking for sequences far behind the head
func (t *Take) cleanupOldLost() {
	if t.lastSeq < 100 {
		return
	}
	cutoff := t.lastSeq - 100
	for seq := range t.lost {
		if seq < cutoff {
			delete(t.lost, seq)
		}
	}
}

// Stop closes the take. Frames still waiting for a missing predecessor are
// appended in sequence order and the gaps are counted as lost.
func (t *Take) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true

	if len(t.pending) == 0 {
		return
	}

	seqs := make([]uint32, 0, len(t.pending))
	for seq := range t.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	for _, seq := range seqs {
		if seq > t.expectedSeq {
			t.markMissingAsLost(t.expectedSeq, seq-1)
		}
		t.pcm = append(t.pcm, t.pending[seq]...)
		delete(t.pending, seq)
		t.lastSeq = seq
		t.expectedSeq = seq + 1
	}

	if t.maxBytes > 0 && len(t.pcm) > t.maxBytes {
		t.pcm = t.pcm[:t.maxBytes]
	}
}

// WAV returns the accumulated audio as a mono 16-bit WAV at the take's
// sample rate
func (t *Take) WAV() ([]byte, error) {
	t.mu.RLock()
	samples := make([]int16, len(t.pcm)/2)
	for i := range samples {
		samples[i] = int16(t.pcm[2*i]) | int16(t.pcm[2*i+1])<<8
	}
	sampleRate := t.sampleRate
	t.mu.RUnlock()

	return audio.EncodeWAV(audio.NewMonoBuffer(audio.Int16ToFloat(samples), sampleRate), sampleRate)
}

// GetStats returns current take statistics
func (t *Take) GetStats() TakeStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	lossRate := float64(0)
	if t.totalPackets > 0 {
		lossRate = float64(t.lostCount) / float64(t.totalPackets) * 100
	}

	return TakeStats{
		TakeID:       t.id,
		SessionID:    t.sessionID,
		SentenceID:   t.sentenceID,
		SampleRate:   t.sampleRate,
		TotalPackets: t.totalPackets,
		LostPackets:  t.lostCount,
		LossRate:     lossRate,
		Samples:      len(t.pcm) / 2,
		Duration:     t.durationLocked(),
		PendingSeqs:  len(t.pending),
		LastSequence: t.lastSeq,
		Stopped:      t.stopped,
	}
}

func (t *Take) durationLocked() float64 {
	return audio.SamplesToSeconds(len(t.pcm)/2, t.sampleRate)
}

// ID returns the take ID
func (t *Take) ID() uint32 {
	return t.id
}

// SessionID returns the session the take belongs to
func (t *Take) SessionID() string {
	return t.sessionID
}

// SentenceID returns the sentence being recorded
func (t *Take) SentenceID() int {
	return t.sentenceID
}

// SampleRate returns the capture sample rate
func (t *Take) SampleRate() int {
	return t.sampleRate
}

// Duration returns the length of the accumulated audio in seconds
func (t *Take) Duration() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.durationLocked()
}

// Size returns the current number of samples in the take
func (t *Take) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pcm) / 2
}

// GetLastSequence returns the last appended sequence number
func (t *Take) GetLastSequence() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSeq
}

// GetLastUpdate returns the time of the last frame
func (t *Take) GetLastUpdate() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastUpdate
}

// IsStopped reports whether Stop has been called
func (t *Take) IsStopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}
