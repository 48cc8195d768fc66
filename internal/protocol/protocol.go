package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants
const (
	// Packet types
	PacketTypeStart = 0x01 // opens a take for one sentence
	PacketTypeAudio = 0x02 // carries a sequenced block of PCM-16 LE samples
	PacketTypeStop  = 0x03 // closes a take

	// Version is the only protocol version understood
	Version = 0x01

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	StartPayloadSize       = 48 // 36 + 4 + 4 + 4 bytes
	AudioPayloadHeaderSize = 4  // Sequence number (4 bytes)

	// Field sizes in the start payload
	SessionIDSize  = 36 // canonical textual UUID
	SentenceIDSize = 4
	SampleRateSize = 4
	TimestampSize  = 4

	// MaxPacketSize is the largest packet the length field can describe
	MaxPacketSize = 0xFFFF
)

// Header represents the 8-byte capture frame header
// Layout: [PacketType:1][PacketLen:2][TakeID:4][Version:1]
type Header struct {
	PacketType uint8  // 0x01=Start, 0x02=Audio, 0x03=Stop
	PacketLen  uint16 // Total packet size (header + payload)
	TakeID     uint32 // Client-chosen take identifier
	Version    uint8
}

// StartPayload represents the 48-byte start packet payload
// Layout: [SessionID:36][SentenceID:4][SampleRate:4][Timestamp:4]
type StartPayload struct {
	SessionID  [SessionIDSize]byte // Null-padded string
	SentenceID int32
	SampleRate uint32
	Timestamp  uint32 // Unix timestamp
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][AudioData:N]
type AudioPayload struct {
	Sequence  uint32 // Packet sequence number
	AudioData []byte // PCM-16 little-endian mono samples
}

// ParsedPacket represents a fully parsed capture packet
type ParsedPacket struct {
	Header *Header
	Start  *StartPayload // Only set for start packets
	Audio  *AudioPayload // Only set for audio packets
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		TakeID:     binary.BigEndian.Uint32(data[3:7]),
		Version:    data[7],
	}

	return header, nil
}

// ParseStartPayload parses the 48-byte start packet payload
func ParseStartPayload(data []byte) (*StartPayload, error) {
	if len(data) < StartPayloadSize {
		return nil, fmt.Errorf("start payload too short: expected %d bytes, got %d",
			StartPayloadSize, len(data))
	}

	payload := &StartPayload{}
	copy(payload.SessionID[:], data[0:SessionIDSize])

	offset := SessionIDSize
	payload.SentenceID = int32(binary.BigEndian.Uint32(data[offset : offset+SentenceIDSize]))
	offset += SentenceIDSize
	payload.SampleRate = binary.BigEndian.Uint32(data[offset : offset+SampleRateSize])
	offset += SampleRateSize
	payload.Timestamp = binary.BigEndian.Uint32(data[offset : offset+TimestampSize])

	return payload, nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sequence + audio data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}

	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeStart:
		payload, err := ParseStartPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start payload: %w", err)
		}
		packet.Start = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	case PacketTypeStop:
		// no payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.Version != Version {
		return fmt.Errorf("unsupported version: 0x%02x", header.Version)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeStart:
		if payloadSize != StartPayloadSize {
			return fmt.Errorf("start packet payload size mismatch: expected %d, got %d",
				StartPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
		if (payloadSize-AudioPayloadHeaderSize)%2 != 0 {
			return fmt.Errorf("audio packet has odd PCM length: %d", payloadSize-AudioPayloadHeaderSize)
		}
	case PacketTypeStop:
		if payloadSize != 0 {
			return fmt.Errorf("stop packet must have no payload, got %d bytes", payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeStart || ptype == PacketTypeAudio || ptype == PacketTypeStop
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetSessionID extracts the session ID as a string
func (s *StartPayload) GetSessionID() string {
	return ExtractString(s.SessionID[:])
}

// EncodeStart builds a start packet
func EncodeStart(takeID uint32, sessionID string, sentenceID int32, sampleRate, timestamp uint32) ([]byte, error) {
	if len(sessionID) > SessionIDSize {
		return nil, fmt.Errorf("session ID too long: %d bytes (maximum %d)", len(sessionID), SessionIDSize)
	}

	packet := make([]byte, HeaderSize+StartPayloadSize)
	putHeader(packet, PacketTypeStart, takeID)

	payload := packet[HeaderSize:]
	copy(payload[0:SessionIDSize], sessionID)
	offset := SessionIDSize
	binary.BigEndian.PutUint32(payload[offset:], uint32(sentenceID))
	offset += SentenceIDSize
	binary.BigEndian.PutUint32(payload[offset:], sampleRate)
	offset += SampleRateSize
	binary.BigEndian.PutUint32(payload[offset:], timestamp)

	return packet, nil
}

// EncodeAudio builds an audio packet
func EncodeAudio(takeID, sequence uint32, pcm []byte) ([]byte, error) {
	size := HeaderSize + AudioPayloadHeaderSize + len(pcm)
	if size > MaxPacketSize {
		return nil, fmt.Errorf("audio packet too large: %d bytes (maximum %d)", size, MaxPacketSize)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio data length must be even (got %d bytes)", len(pcm))
	}

	packet := make([]byte, size)
	putHeader(packet, PacketTypeAudio, takeID)
	binary.BigEndian.PutUint32(packet[HeaderSize:], sequence)
	copy(packet[HeaderSize+AudioPayloadHeaderSize:], pcm)

	return packet, nil
}

// EncodeStop builds a stop packet
func EncodeStop(takeID uint32) []byte {
	packet := make([]byte, HeaderSize)
	putHeader(packet, PacketTypeStop, takeID)
	return packet
}

func putHeader(packet []byte, ptype uint8, takeID uint32) {
	packet[0] = ptype
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], takeID)
	packet[7] = Version
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeStart:
		packetType = "Start"
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeStop:
		packetType = "Stop"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, TakeID:%d, Version:%d}",
		packetType, h.PacketLen, h.TakeID, h.Version)
}

// String returns a human-readable representation of the start payload
func (s *StartPayload) String() string {
	return fmt.Sprintf("StartPayload{SessionID:%q, SentenceID:%d, SampleRate:%d, Timestamp:%d}",
		s.GetSessionID(), s.SentenceID, s.SampleRate, s.Timestamp)
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}
