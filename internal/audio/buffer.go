// Package audio holds decoded PCM buffers and the ordered queue that playback
// and export read from.
package audio

import (
	"fmt"
	"time"
)

// Format describes the shape of decoded PCM data.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a compact description such as "24000Hz/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Buffer is an immutable block of decoded audio. Samples are stored per
// channel as float32 values in [-1, 1].
type Buffer struct {
	format   Format
	channels [][]float32
	frames   int
	duration time.Duration
}

// NewBuffer creates a buffer from per-channel sample slices. All channels
// must have the same length. The slices are owned by the buffer afterwards.
func NewBuffer(sampleRate int, channels [][]float32) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	frames := len(channels[0])
	for i, ch := range channels[1:] {
		if len(ch) != frames {
			return nil, fmt.Errorf("%w: channel %d has %d frames, want %d", ErrChannelLength, i+1, len(ch), frames)
		}
	}
	return &Buffer{
		format:   Format{SampleRate: sampleRate, Channels: len(channels)},
		channels: channels,
		frames:   frames,
		duration: FramesToDuration(frames, sampleRate),
	}, nil
}

// Format returns the sample rate and channel count.
func (b *Buffer) Format() Format { return b.format }

// SampleRate returns the sample rate in Hz.
func (b *Buffer) SampleRate() int { return b.format.SampleRate }

// NumChannels returns the number of channels.
func (b *Buffer) NumChannels() int { return b.format.Channels }

// Frames returns the number of sample frames.
func (b *Buffer) Frames() int { return b.frames }

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration { return b.duration }

// Channel returns the samples of channel i. Callers must not modify them.
func (b *Buffer) Channel(i int) []float32 { return b.channels[i] }

// FrameAt returns the frame index that corresponds to offset, clamped to
// [0, Frames()].
func (b *Buffer) FrameAt(offset time.Duration) int {
	if offset <= 0 {
		return 0
	}
	f := int(int64(offset) * int64(b.format.SampleRate) / int64(time.Second))
	if f > b.frames {
		return b.frames
	}
	return f
}

// FramesToDuration converts a frame count at sampleRate to a duration.
func FramesToDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(sampleRate))
}

// FrameStart returns the earliest offset that FrameAt maps to frame at
// sampleRate. Unlike FramesToDuration it rounds up, so the two round-trip.
func FrameStart(frame, sampleRate int) time.Duration {
	if sampleRate <= 0 || frame <= 0 {
		return 0
	}
	sr := int64(sampleRate)
	return time.Duration((int64(frame)*int64(time.Second) + sr - 1) / sr)
}
