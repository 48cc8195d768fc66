package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/dubbing-merge-service/internal/assessment"
	"github.com/skypro1111/dubbing-merge-service/internal/audio"
	"github.com/skypro1111/dubbing-merge-service/internal/capture"
	"github.com/skypro1111/dubbing-merge-service/internal/events"
	"github.com/skypro1111/dubbing-merge-service/internal/metrics"
	"github.com/skypro1111/dubbing-merge-service/internal/store"
	"github.com/skypro1111/dubbing-merge-service/internal/timeline"
	"github.com/skypro1111/dubbing-merge-service/internal/vad"
)

// RecordingStore persists merged recordings
type RecordingStore interface {
	Save(courseID, lessonID, hash string, data []byte) (string, error)
}

// ShareRepository records stored merged recordings
type ShareRepository interface {
	CreateShare(ctx context.Context, s store.Share) (store.Share, bool, error)
}

// EventPublisher announces merged recordings
type EventPublisher interface {
	PublishRecordingMerged(ctx context.Context, event events.RecordingMerged) error
}

// Config contains configuration for the session manager
type Config struct {
	Timeout            time.Duration // idle time before a session is removed
	CleanupInterval    time.Duration
	CaptureSampleRate  int // default rate of streamed takes
	MaxTakeDuration    time.Duration
	RequireAllRecorded bool
}

// Dependencies are the collaborators of the manager. Only Merger is
// required; nil collaborators are skipped.
type Dependencies struct {
	Merger    *timeline.Merger
	Assessor  assessment.Assessor
	Files     RecordingStore
	Shares    ShareRepository
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Detector  *vad.Detector // flags recordings without speech
}

// MergeResult is a stored merged recording
type MergeResult struct {
	SessionID   string             `json:"session_id"`
	Hash        string             `json:"hash"`
	Path        string             `json:"path,omitempty"`
	ShareID     int64              `json:"share_id,omitempty"`
	Duration    float64            `json:"duration_seconds"`
	SampleRate  int                `json:"sample_rate"`
	Recorded    []int              `json:"recorded"`
	Substituted []int              `json:"substituted"`
	Assessment  assessment.Summary `json:"assessment"`
	Data        []byte             `json:"-"`
}

// Manager manages all open recording sessions
type Manager struct {
	sessions  map[string]*Session
	takeIndex map[uint32]string // take ID -> session ID
	mu        sync.RWMutex
	logger    *slog.Logger
	config    Config

	merger    *timeline.Merger
	assessor  assessment.Assessor
	files     RecordingStore
	shares    ShareRepository
	publisher EventPublisher
	metrics   *metrics.Metrics
	detector  *vad.Detector

	// Background work
	ctx      context.Context
	cancel   context.CancelFunc
	cleanup  chan struct{}
	assessWG sync.WaitGroup
	assessMu sync.Mutex
	stopped  bool // guarded by assessMu; no assessments start once set
	stopOnce sync.Once
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config Config, deps Dependencies) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if config.Timeout <= 0 {
		config.Timeout = time.Hour
	}

	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	if config.CaptureSampleRate <= 0 {
		config.CaptureSampleRate = 16000
	}

	if config.MaxTakeDuration <= 0 {
		config.MaxTakeDuration = time.Minute
	}

	if deps.Merger == nil {
		deps.Merger = timeline.NewMerger(nil, logger)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetricsWith(prometheus.NewRegistry())
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		sessions:  make(map[string]*Session),
		takeIndex: make(map[uint32]string),
		logger:    logger,
		config:    config,
		merger:    deps.Merger,
		assessor:  deps.Assessor,
		files:     deps.Files,
		shares:    deps.Shares,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		detector:  deps.Detector,
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}

	go m.startCleanupRoutine()

	return m
}

// CreateSession opens a session for a lesson after validating its timeline
func (m *Manager) CreateSession(lesson LessonInfo, sentences []timeline.Sentence, full timeline.Sentence) (*Session, error) {
	if err := timeline.ValidateSentences(sentences, full); err != nil {
		return nil, err
	}

	s := newSession(uuid.NewString(), lesson, sentences, full)

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(count)

	m.logger.Info("Created recording session",
		slog.String("session_id", s.ID),
		slog.String("course_id", lesson.CourseID),
		slog.String("lesson_id", lesson.LessonID),
		slog.String("user_name", lesson.UserName),
		slog.Int("sentences", len(sentences)),
		slog.Float64("duration", full.Duration()),
	)

	return s, nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// GetActiveSessionCount returns the number of open sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// ListSessions returns information about all open sessions, oldest first
func (m *Manager) ListSessions() []SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	return infos
}

// RemoveSession closes a session, discarding its takes in progress
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	delete(m.sessions, id)
	for _, takeID := range s.takeIDs() {
		delete(m.takeIndex, takeID)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	s.mu.Lock()
	for _, take := range s.takes {
		take.Stop()
	}
	s.takes = make(map[uint32]*capture.Take)
	s.mu.Unlock()

	lifetime := time.Since(s.CreatedAt)
	m.metrics.RecordSessionDestroyed(lifetime.Seconds())
	m.metrics.SetActiveSessions(count)

	m.logger.Info("Recording session removed",
		slog.String("session_id", id),
		slog.Duration("lifetime", lifetime),
	)

	return true
}

// PutRecording stores an uploaded recording for a sentence, replacing any
// previous one
func (m *Manager) PutRecording(sessionID string, sentenceID int, data []byte, mimeType string) error {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return m.putRecording(s, sentenceID, data, mimeType, "upload")
}

func (m *Manager) putRecording(s *Session, sentenceID int, data []byte, mimeType, source string) error {
	sentence, ok := s.Sentence(sentenceID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSentence, sentenceID)
	}

	rec := &timeline.Recording{
		Data:     append([]byte(nil), data...),
		MIMEType: mimeType,
	}
	if !rec.Valid() {
		return fmt.Errorf("%w: %d bytes of %q", ErrInvalidRecording, len(data), mimeType)
	}

	s.setRecording(sentenceID, rec)
	m.metrics.RecordRecordingStored(source, len(rec.Data))

	m.logger.Debug("Stored sentence recording",
		slog.String("session_id", s.ID),
		slog.Int("sentence_id", sentenceID),
		slog.String("source", source),
		slog.Int("size", len(rec.Data)),
	)

	m.analyzeVoice(s, sentenceID, rec)
	m.requestAssessment(s, sentence, rec)
	return nil
}

// analyzeVoice records whether rec contains speech. Recordings that do not
// decode are left for the merger to substitute.
func (m *Manager) analyzeVoice(s *Session, sentenceID int, rec *timeline.Recording) {
	if m.detector == nil {
		return
	}

	buf, err := audio.DecodeWAV(rec.Data)
	if err != nil {
		m.logger.Debug("Skipping voice analysis of undecodable recording",
			slog.String("session_id", s.ID),
			slog.Int("sentence_id", sentenceID),
			slog.String("error", err.Error()),
		)
		return
	}

	act := m.detector.Analyze(buf)
	if !s.setVoiceActivity(sentenceID, rec, act) {
		return
	}

	if !act.HasSpeech() {
		m.logger.Warn("No speech detected in recording",
			slog.String("session_id", s.ID),
			slog.Int("sentence_id", sentenceID),
			slog.Float64("duration", act.Duration),
			slog.Float64("peak_rms", float64(act.PeakRMS)),
		)
	}
}

// requestAssessment scores rec in the background when an assessor is configured
func (m *Manager) requestAssessment(s *Session, sentence timeline.Sentence, rec *timeline.Recording) {
	if m.assessor == nil {
		return
	}

	m.assessMu.Lock()
	if m.stopped {
		m.assessMu.Unlock()
		return
	}
	m.assessWG.Add(1)
	m.assessMu.Unlock()

	go func() {
		defer m.assessWG.Done()

		m.metrics.RecordAssessmentRequest()
		start := time.Now()

		result, err := m.assessor.Assess(m.ctx, &assessment.Request{
			SessionID:     s.ID,
			SentenceID:    sentence.ID,
			ReferenceText: sentence.Text,
			Language:      s.Lesson.Language,
			Audio:         rec.Data,
			MIMEType:      rec.MIMEType,
		})
		if err != nil {
			m.metrics.RecordAssessmentFailure(time.Since(start).Seconds())
			m.logger.Warn("Pronunciation assessment failed",
				slog.String("session_id", s.ID),
				slog.Int("sentence_id", sentence.ID),
				slog.String("error", err.Error()),
			)
			return
		}

		m.metrics.RecordAssessmentSuccess(time.Since(start).Seconds())

		if !s.setAssessment(sentence.ID, rec, result) {
			m.logger.Debug("Discarding assessment of replaced recording",
				slog.String("session_id", s.ID),
				slog.Int("sentence_id", sentence.ID),
			)
			return
		}

		m.logger.Info("Pronunciation assessed",
			slog.String("session_id", s.ID),
			slog.Int("sentence_id", sentence.ID),
			slog.String("pronunciation_score", result.PronunciationScore.String()),
		)
	}()
}

// StartTake begins a streamed capture take for a sentence. A sampleRate of
// zero uses the configured capture rate. An existing take with the same ID
// is discarded.
func (m *Manager) StartTake(sessionID string, takeID uint32, sentenceID, sampleRate int) error {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if _, ok := s.Sentence(sentenceID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSentence, sentenceID)
	}

	if sampleRate <= 0 {
		sampleRate = m.config.CaptureSampleRate
	}

	m.discardTake(takeID)

	take := capture.NewTake(takeID, sessionID, sentenceID, sampleRate, m.config.MaxTakeDuration)

	// Both indexes change under m.mu so a concurrent RemoveSession either
	// sees the take or the session is already gone
	m.mu.Lock()
	if m.sessions[sessionID] != s {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	m.takeIndex[takeID] = sessionID
	s.mu.Lock()
	s.takes[takeID] = take
	s.lastActivity = time.Now()
	s.mu.Unlock()
	m.mu.Unlock()

	m.metrics.RecordTakeStarted()

	m.logger.Debug("Capture take started",
		slog.String("session_id", sessionID),
		slog.Uint64("take_id", uint64(takeID)),
		slog.Int("sentence_id", sentenceID),
		slog.Int("sample_rate", sampleRate),
	)

	return nil
}

// AddFrame appends a PCM frame to a take. A take that reaches its maximum
// duration is stored as it is and capture.ErrTakeTooLong is returned.
func (m *Manager) AddFrame(takeID, sequence uint32, data []byte) error {
	s, take, err := m.lookupTake(takeID)
	if err != nil {
		return err
	}

	err = take.AddFrame(sequence, data)
	s.touch()

	if errors.Is(err, capture.ErrTakeTooLong) {
		if _, stopErr := m.StopTake(takeID); stopErr != nil {
			return fmt.Errorf("%w; storing truncated take: %v", err, stopErr)
		}
		return err
	}

	return err
}

// StopTake finishes a take and stores it as the sentence's recording
func (m *Manager) StopTake(takeID uint32) (capture.TakeStats, error) {
	s, take, err := m.lookupTake(takeID)
	if err != nil {
		return capture.TakeStats{}, err
	}

	m.forgetTake(s, takeID)

	take.Stop()
	stats := take.GetStats()
	m.metrics.RecordTakeCompleted(uint64(stats.TotalPackets), uint64(stats.LostPackets))

	m.logger.Info("Capture take finished",
		slog.String("session_id", s.ID),
		slog.Uint64("take_id", uint64(takeID)),
		slog.Int("sentence_id", stats.SentenceID),
		slog.Float64("duration", stats.Duration),
		slog.Uint64("lost_packets", uint64(stats.LostPackets)),
	)

	if take.Size() == 0 {
		return stats, fmt.Errorf("%w: take %d captured no audio", ErrInvalidRecording, takeID)
	}

	data, err := take.WAV()
	if err != nil {
		return stats, fmt.Errorf("failed to encode take %d: %w", takeID, err)
	}

	if err := m.putRecording(s, take.SentenceID(), data, audio.MIMEType, "capture"); err != nil {
		return stats, err
	}

	return stats, nil
}

func (m *Manager) lookupTake(takeID uint32) (*Session, *capture.Take, error) {
	m.mu.RLock()
	sessionID, ok := m.takeIndex[takeID]
	var s *Session
	if ok {
		s, ok = m.sessions[sessionID]
	}
	m.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrTakeNotFound, takeID)
	}

	s.mu.RLock()
	take, ok := s.takes[takeID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrTakeNotFound, takeID)
	}

	return s, take, nil
}

func (m *Manager) forgetTake(s *Session, takeID uint32) {
	m.mu.Lock()
	delete(m.takeIndex, takeID)
	m.mu.Unlock()

	s.mu.Lock()
	delete(s.takes, takeID)
	s.mu.Unlock()
}

func (m *Manager) discardTake(takeID uint32) {
	s, take, err := m.lookupTake(takeID)
	if err != nil {
		return
	}

	m.forgetTake(s, takeID)
	take.Stop()

	m.logger.Warn("Discarding unfinished take with reused ID",
		slog.String("session_id", s.ID),
		slog.Uint64("take_id", uint64(takeID)),
	)
}

// Merge builds the merged recording of a session, stores it and announces it
func (m *Manager) Merge(ctx context.Context, sessionID string) (*MergeResult, error) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if m.config.RequireAllRecorded && !s.AllRecorded() {
		info := s.Info()
		return nil, fmt.Errorf("%w: missing sentences %v", ErrIncomplete, info.Missing)
	}

	start := time.Now()

	merged, err := m.merger.Merge(s.Sentences(), s.RecordingMap(), s.Full())
	if err != nil {
		m.metrics.RecordMergeFailure(time.Since(start).Seconds())
		m.logger.Error("Failed to merge recordings",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to merge session %s: %w", sessionID, err)
	}

	result := &MergeResult{
		SessionID:   sessionID,
		Hash:        store.Blake3HashBytes(merged.Data),
		Duration:    merged.Duration,
		SampleRate:  merged.SampleRate,
		Recorded:    merged.Recorded,
		Substituted: merged.Substituted,
		Assessment:  s.AssessmentSummary(),
		Data:        merged.Data,
	}

	if err := m.persist(ctx, s, result); err != nil {
		m.metrics.RecordMergeFailure(time.Since(start).Seconds())
		return nil, err
	}

	s.setLastMerge(result.Hash)
	m.metrics.RecordMergeSuccess(time.Since(start).Seconds(), result.Duration, len(result.Substituted))

	m.logger.Info("Merged recording ready",
		slog.String("session_id", sessionID),
		slog.String("hash", result.Hash),
		slog.Float64("duration", result.Duration),
		slog.Int("recorded", len(result.Recorded)),
		slog.Int("substituted", len(result.Substituted)),
		slog.Duration("processing_time", time.Since(start)),
	)

	return result, nil
}

// persist saves the merged recording and its share record, then publishes
// an event. Publishing failures are logged only.
func (m *Manager) persist(ctx context.Context, s *Session, result *MergeResult) error {
	if m.files != nil {
		path, err := m.files.Save(s.Lesson.CourseID, s.Lesson.LessonID, result.Hash, result.Data)
		if err != nil {
			return fmt.Errorf("failed to store merged recording: %w", err)
		}
		result.Path = path
	}

	if m.shares != nil {
		share := store.Share{
			Hash:       result.Hash,
			CourseID:   s.Lesson.CourseID,
			LessonID:   s.Lesson.LessonID,
			UserName:   s.Lesson.UserName,
			Path:       result.Path,
			DurationMs: int64(result.Duration*1000 + 0.5),
			SampleRate: result.SampleRate,
		}
		if result.Assessment.Sentences > 0 {
			share.Score.Decimal = result.Assessment.PronunciationScore
			share.Score.Valid = true
		}

		stored, _, err := m.shares.CreateShare(ctx, share)
		if err != nil {
			return fmt.Errorf("failed to record share: %w", err)
		}
		result.ShareID = stored.ID
	}

	if m.publisher != nil {
		event := events.RecordingMerged{
			SessionID:   s.ID,
			CourseID:    s.Lesson.CourseID,
			LessonID:    s.Lesson.LessonID,
			UserName:    s.Lesson.UserName,
			Hash:        result.Hash,
			Path:        result.Path,
			DurationMs:  int64(result.Duration*1000 + 0.5),
			SampleRate:  result.SampleRate,
			Recorded:    result.Recorded,
			Substituted: result.Substituted,
			MergedAt:    time.Now().UTC(),
		}

		if err := m.publisher.PublishRecordingMerged(ctx, event); err != nil {
			m.logger.Warn("Failed to publish merge event",
				slog.String("session_id", s.ID),
				slog.String("hash", result.Hash),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Stop stops the cleanup routine, waits for pending assessments and closes
// all sessions
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("Stopping session manager...")

		m.assessMu.Lock()
		m.stopped = true
		m.assessMu.Unlock()

		m.cancel()
		<-m.cleanup
		m.assessWG.Wait()

		m.mu.RLock()
		ids := make([]string, 0, len(m.sessions))
		for id := range m.sessions {
			ids = append(ids, id)
		}
		m.mu.RUnlock()

		for _, id := range ids {
			m.RemoveSession(id)
		}

		m.logger.Info("Session manager stopped",
			slog.Int("sessions_closed", len(ids)),
		)
	})
}

// startCleanupRoutine removes idle sessions until the manager stops
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Debug("Session cleanup routine started",
		slog.Duration("interval", m.config.CleanupInterval),
		slog.Duration("timeout", m.config.Timeout),
	)

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been idle for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.config.Timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.logger.Info("Cleaning up expired sessions",
		slog.Int("expired_count", len(expired)),
	)

	for _, id := range expired {
		m.RemoveSession(id)
	}
}
