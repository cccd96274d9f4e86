package playback

import (
	"errors"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

var (
	// ErrOutputClosed is returned when scheduling on a closed output.
	ErrOutputClosed = errors.New("audio output is closed")
	// ErrFormatUnsupported is returned when the output cannot play a buffer's format.
	ErrFormatUnsupported = errors.New("audio output does not support buffer format")
)

// Output is an audio destination with its own clock. Buffers are scheduled
// against that clock so consecutive buffers can be chained without gaps.
type Output interface {
	// Now returns the output clock. It must be monotonic.
	Now() time.Duration

	// Schedule plays buf starting at clock time at, skipping the first
	// offset of the buffer. onEnded is called once, from any goroutine,
	// when the scheduled region has been fully played.
	Schedule(buf *audio.Buffer, at, offset time.Duration, onEnded func()) (Handle, error)

	// SetVolume sets the output gain in [0, 1].
	SetVolume(v float64)

	// Close releases the device.
	Close() error
}

// Handle is one scheduled buffer.
type Handle interface {
	// Stop truncates playback immediately. onEnded is not called after Stop.
	Stop()
}
