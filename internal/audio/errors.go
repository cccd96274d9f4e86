package audio

import (
	"errors"
	"fmt"
)

var (
	// Buffer errors
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	ErrNoChannels        = errors.New("buffer has no channels")
	ErrChannelLength     = errors.New("channel lengths differ")

	// Decoder errors
	ErrDecoderNotInitialized = errors.New("audio decoder is not initialized")
	ErrNotWAV                = errors.New("not a RIFF/WAVE container")
	ErrUnsupportedEncoding   = errors.New("unsupported wav encoding")
	ErrFormatMismatch        = errors.New("chunk format differs from session format")
)

// DecodeError reports a chunk whose bytes could not be turned into a Buffer.
type DecodeError struct {
	Size  int
	Cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d byte chunk: %v", e.Size, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
