package audio

import "errors"

var (
	// ErrDecode is returned when a blob cannot be decoded as audio.
	ErrDecode = errors.New("audio decode failed")
	// ErrEncode is returned when a buffer cannot be serialized.
	ErrEncode = errors.New("audio encode failed")
	// ErrEmptyInput is returned by the mixer when it receives no buffers.
	ErrEmptyInput = errors.New("no audio buffers to combine")
	// ErrNoValidAudio is returned when every segment of a timeline failed to decode.
	ErrNoValidAudio = errors.New("no valid audio segments")
	// ErrInvalidTarget is returned for a non-positive target duration.
	ErrInvalidTarget = errors.New("target duration must be positive")
)
