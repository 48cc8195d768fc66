package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/dubbing-merge-service/internal/capture"
	"github.com/skypro1111/dubbing-merge-service/internal/config"
	"github.com/skypro1111/dubbing-merge-service/internal/metrics"
	"github.com/skypro1111/dubbing-merge-service/internal/protocol"
)

// CaptureSink receives the takes carried by capture packets
type CaptureSink interface {
	StartTake(sessionID string, takeID uint32, sentenceID, sampleRate int) error
	AddFrame(takeID, sequence uint32, data []byte) error
	StopTake(takeID uint32) (capture.TakeStats, error)
}

// UDPServer handles incoming capture packets from recording clients
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.ServerConfig
	logger  *slog.Logger
	sink    CaptureSink
	metrics *metrics.Metrics

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Packet processing; packets of one take always go to the same worker
	// so that start, audio and stop are handled in arrival order
	queues []chan *incomingPacket

	// Basic counters
	packetsReceived  uint64
	packetsProcessed uint64
	packetsDropped   uint64
	parseErrors      uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, sink CaptureSink, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Workers
	if workers < 1 {
		workers = 4
	}

	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1000
	}

	queues := make([]chan *incomingPacket, workers)
	for i := range queues {
		queues[i] = make(chan *incomingPacket, queueSize/workers+1)
	}

	return &UDPServer{
		config:  cfg,
		logger:  logger,
		sink:    sink,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		queues:  queues,
	}
}

// Start begins listening for UDP packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP capture server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("workers", len(s.queues)),
	)

	for i := range s.queues {
		s.wg.Add(1)
		go s.packetProcessor(i)
	}

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the local address the server listens on
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP capture server...")

	s.cancel()

	// Close UDP connection to unblock the receive loop
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	stats := s.GetStatistics()

	// Workers exit once their queue is drained and closed; the receive loop
	// must be gone before the queues close
	s.wg.Wait()

	s.logger.Info("UDP capture server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("packets_dropped", stats.PacketsDropped),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	return nil
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()
	defer func() {
		for _, q := range s.queues {
			close(q)
		}
	}()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// Copy the packet, the buffer is reused
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		s.dispatch(&incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		})
	}
}

// dispatch queues a packet on the worker that owns its take
func (s *UDPServer) dispatch(packet *incomingPacket) {
	header, err := protocol.ParseHeader(packet.data)
	if err != nil {
		s.recordParseError(packet, err, -1)
		return
	}

	worker := int(header.TakeID % uint32(len(s.queues)))

	select {
	case s.queues[worker] <- packet:
		s.metrics.SetQueueSize(s.queueLen())
	default:
		s.mu.Lock()
		s.packetsDropped++
		s.mu.Unlock()

		s.logger.Warn("Packet processing queue full, dropping packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Uint64("take_id", uint64(header.TakeID)),
			slog.Int("packet_size", len(packet.data)),
			slog.Int("worker_id", worker),
		)
	}
}

// packetProcessor processes packets from one worker queue
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.queues[workerID] {
		s.handlePacket(packet, workerID)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket processes a single incoming packet
func (s *UDPServer) handlePacket(packet *incomingPacket, workerID int) {
	parsed, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.recordParseError(packet, err, workerID)
		return
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()
	s.metrics.RecordPacketProcessed()

	switch parsed.Header.PacketType {
	case protocol.PacketTypeStart:
		s.processStartPacket(parsed.Header, parsed.Start, workerID)
	case protocol.PacketTypeAudio:
		s.processAudioPacket(parsed.Header, parsed.Audio, workerID)
	case protocol.PacketTypeStop:
		s.processStopPacket(parsed.Header, workerID)
	}
}

func (s *UDPServer) recordParseError(packet *incomingPacket, err error, workerID int) {
	s.mu.Lock()
	s.parseErrors++
	s.mu.Unlock()
	s.metrics.RecordParseError()

	s.logger.Error("Failed to parse packet",
		slog.String("remote_addr", addrString(packet.remoteAddr)),
		slog.Int("packet_size", len(packet.data)),
		slog.String("error", err.Error()),
		slog.Int("worker_id", workerID),
	)
}

// processStartPacket opens a take for a sentence of a session
func (s *UDPServer) processStartPacket(header *protocol.Header, payload *protocol.StartPayload, workerID int) {
	sessionID := payload.GetSessionID()

	err := s.sink.StartTake(sessionID, header.TakeID, int(payload.SentenceID), int(payload.SampleRate))
	if err != nil {
		s.logger.Error("Failed to start take",
			slog.Uint64("take_id", uint64(header.TakeID)),
			slog.String("session_id", sessionID),
			slog.Int("sentence_id", int(payload.SentenceID)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.logger.Debug("Start packet processed",
		slog.Uint64("take_id", uint64(header.TakeID)),
		slog.String("session_id", sessionID),
		slog.Int("sentence_id", int(payload.SentenceID)),
		slog.Int("worker_id", workerID),
	)
}

// processAudioPacket routes a PCM frame to its take
func (s *UDPServer) processAudioPacket(header *protocol.Header, payload *protocol.AudioPayload, workerID int) {
	if err := s.sink.AddFrame(header.TakeID, payload.Sequence, payload.AudioData); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, capture.ErrTakeTooLong) {
			level = slog.LevelInfo
		}
		s.logger.Log(context.Background(), level, "Failed to add audio frame",
			slog.Uint64("take_id", uint64(header.TakeID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.Int("audio_size", len(payload.AudioData)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
	}
}

// processStopPacket closes a take and stores its recording
func (s *UDPServer) processStopPacket(header *protocol.Header, workerID int) {
	stats, err := s.sink.StopTake(header.TakeID)
	if err != nil {
		s.logger.Error("Failed to stop take",
			slog.Uint64("take_id", uint64(header.TakeID)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.logger.Debug("Stop packet processed",
		slog.Uint64("take_id", uint64(header.TakeID)),
		slog.Int("sentence_id", stats.SentenceID),
		slog.Float64("duration", stats.Duration),
		slog.Int("worker_id", workerID),
	)
}

func (s *UDPServer) queueLen() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	capacity := 0
	for _, q := range s.queues {
		capacity += cap(q)
	}

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		PacketsDropped:   s.packetsDropped,
		ParseErrors:      s.parseErrors,
		QueueSize:        uint64(s.queueLen()),
		QueueCapacity:    uint64(capacity),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	ParseErrors      uint64 `json:"parse_errors"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}

func addrString(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
