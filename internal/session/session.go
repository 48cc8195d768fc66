package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/skypro1111/dubbing-merge-service/internal/assessment"
	"github.com/skypro1111/dubbing-merge-service/internal/capture"
	"github.com/skypro1111/dubbing-merge-service/internal/timeline"
	"github.com/skypro1111/dubbing-merge-service/internal/vad"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownSentence is returned for sentence IDs not in the session.
	ErrUnknownSentence = errors.New("unknown sentence")
	// ErrInvalidRecording is returned for empty or non-audio recordings.
	ErrInvalidRecording = errors.New("invalid recording")
	// ErrTakeNotFound is returned for frames of a take that was never started.
	ErrTakeNotFound = errors.New("take not found")
	// ErrIncomplete is returned by Merge when sentences are still unrecorded
	// and every sentence must be recorded first.
	ErrIncomplete = errors.New("not all sentences are recorded")
)

// LessonInfo identifies the lesson and learner a session belongs to
type LessonInfo struct {
	CourseID string `json:"course_id"`
	LessonID string `json:"lesson_id"`
	UserName string `json:"user_name"`
	Language string `json:"language,omitempty"`
}

// Session is one learner's pass through a lesson
type Session struct {
	ID        string
	Lesson    LessonInfo
	CreatedAt time.Time

	sentences []timeline.Sentence
	full      timeline.Sentence
	index     map[int]int // sentence ID -> position in sentences

	lastActivity time.Time
	recordings   timeline.RecordingMap
	assessments  map[int]*assessment.Result
	activity     map[int]vad.Result
	takes        map[uint32]*capture.Take
	lastMerge    string // hash of the last merged recording

	mu sync.RWMutex
}

// SessionInfo represents session information for monitoring and API responses
type SessionInfo struct {
	ID            string             `json:"id"`
	Lesson        LessonInfo         `json:"lesson"`
	Sentences     int                `json:"sentences"`
	Duration      float64            `json:"duration_seconds"`
	Recorded      []int              `json:"recorded"`
	Missing       []int              `json:"missing"`
	Silent        []int              `json:"silent,omitempty"` // recorded, but no speech detected
	AllRecorded   bool               `json:"all_recorded"`
	ActiveTakes   int                `json:"active_takes"`
	Assessment    assessment.Summary `json:"assessment"`
	LastMergeHash string             `json:"last_merge_hash,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	LastActivity  time.Time          `json:"last_activity"`
}

func newSession(id string, lesson LessonInfo, sentences []timeline.Sentence, full timeline.Sentence) *Session {
	now := time.Now()

	s := &Session{
		ID:           id,
		Lesson:       lesson,
		CreatedAt:    now,
		sentences:    append([]timeline.Sentence(nil), sentences...),
		full:         full,
		index:        make(map[int]int, len(sentences)),
		lastActivity: now,
		recordings:   make(timeline.RecordingMap, len(sentences)),
		assessments:  make(map[int]*assessment.Result),
		activity:     make(map[int]vad.Result),
		takes:        make(map[uint32]*capture.Take),
	}

	for i, sentence := range s.sentences {
		s.index[sentence.ID] = i
	}

	return s
}

// Sentences returns a copy of the session's sentences
func (s *Session) Sentences() []timeline.Sentence {
	return append([]timeline.Sentence(nil), s.sentences...)
}

// Full returns the span of the whole utterance
func (s *Session) Full() timeline.Sentence {
	return s.full
}

// Sentence looks up a sentence by ID
func (s *Session) Sentence(id int) (timeline.Sentence, bool) {
	i, ok := s.index[id]
	if !ok {
		return timeline.Sentence{}, false
	}
	return s.sentences[i], true
}

// RecordingMap returns a snapshot of the current recordings
func (s *Session) RecordingMap() timeline.RecordingMap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(timeline.RecordingMap, len(s.recordings))
	for id, rec := range s.recordings {
		snapshot[id] = rec
	}
	return snapshot
}

// AllRecorded reports whether every sentence has a valid recording
func (s *Session) AllRecorded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.recordings.Recorded(s.sentences) == len(s.sentences)
}

// Assessments returns the assessment results received so far, by sentence ID
func (s *Session) Assessments() map[int]*assessment.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]*assessment.Result, len(s.assessments))
	for id, res := range s.assessments {
		out[id] = res
	}
	return out
}

// AssessmentSummary averages the assessments received so far
func (s *Session) AssessmentSummary() assessment.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.summaryLocked()
}

func (s *Session) summaryLocked() assessment.Summary {
	results := make([]*assessment.Result, 0, len(s.assessments))
	for _, sentence := range s.sentences {
		if res, ok := s.assessments[sentence.ID]; ok {
			results = append(results, res)
		}
	}
	return assessment.Summarize(results)
}

// LastActivity returns the time of the last recording, frame or merge
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastActivity
}

// Info returns a summary of the session state
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recorded := make([]int, 0, len(s.sentences))
	missing := make([]int, 0)
	var silent []int
	for _, sentence := range s.sentences {
		if s.recordings[sentence.ID].Valid() {
			recorded = append(recorded, sentence.ID)
			if act, ok := s.activity[sentence.ID]; ok && !act.HasSpeech() {
				silent = append(silent, sentence.ID)
			}
		} else {
			missing = append(missing, sentence.ID)
		}
	}

	return SessionInfo{
		ID:            s.ID,
		Lesson:        s.Lesson,
		Sentences:     len(s.sentences),
		Duration:      s.full.Duration(),
		Recorded:      recorded,
		Missing:       missing,
		Silent:        silent,
		AllRecorded:   len(missing) == 0,
		ActiveTakes:   len(s.takes),
		Assessment:    s.summaryLocked(),
		LastMergeHash: s.lastMerge,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.lastActivity,
	}
}

// setRecording stores rec for a sentence, dropping any assessment of the
// previous recording
func (s *Session) setRecording(sentenceID int, rec *timeline.Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordings[sentenceID] = rec
	delete(s.assessments, sentenceID)
	delete(s.activity, sentenceID)
	s.lastActivity = time.Now()
}

// setAssessment stores res unless the sentence was re-recorded meanwhile
func (s *Session) setAssessment(sentenceID int, rec *timeline.Recording, res *assessment.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordings[sentenceID] != rec {
		return false
	}
	s.assessments[sentenceID] = res
	return true
}

// setVoiceActivity stores act unless the sentence was re-recorded meanwhile
func (s *Session) setVoiceActivity(sentenceID int, rec *timeline.Recording, act vad.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordings[sentenceID] != rec {
		return false
	}
	s.activity[sentenceID] = act
	return true
}

func (s *Session) setLastMerge(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastMerge = hash
	s.lastActivity = time.Now()
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()
}

// takeIDs returns the IDs of takes still in progress
func (s *Session) takeIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint32, 0, len(s.takes))
	for id := range s.takes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
