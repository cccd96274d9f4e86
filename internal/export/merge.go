// Package export merges the decoded buffer queue into a single WAV file and
// keeps track of the one artifact that is currently downloadable.
package export

import (
	"errors"
	"fmt"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

const (
	bitDepth      = 16
	wavFormatPCM  = 1
	maxSample16   = 32767
	minSample16   = -32768
	wavHeaderSize = 44
)

var (
	// ErrEmptyQueue is returned by MergeAll when there is nothing to merge.
	// Callers skip the merge silently.
	ErrEmptyQueue = &MergeError{Reason: "queue is empty"}

	// ErrMixedFormats is wrapped when buffers disagree on rate or channels.
	ErrMixedFormats = errors.New("buffers have different formats")
)

// MergeError reports a merge that could not produce an artifact.
type MergeError struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("merge: %s: %v", e.Reason, e.Cause)
	}
	return "merge: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *MergeError) Unwrap() error {
	return e.Cause
}

// Source is anything that can hand out an ordered snapshot of buffers.
// *audio.Queue satisfies it.
type Source interface {
	Snapshot() []*audio.Buffer
}

// Merged is the in-memory result of a merge before it is published.
type Merged struct {
	Data     []byte
	Format   audio.Format
	Frames   int
	Duration time.Duration
	Chunks   int
}

// MergeAll concatenates every buffer of src per channel and encodes the
// result as a 16-bit PCM WAV file.
func MergeAll(src Source) (*Merged, error) {
	buffers := src.Snapshot()
	if len(buffers) == 0 {
		return nil, ErrEmptyQueue
	}

	format := buffers[0].Format()
	frames := 0
	for i, b := range buffers {
		if b.Format() != format {
			return nil, &MergeError{
				Reason: fmt.Sprintf("buffer %d is %s, want %s", i, b.Format(), format),
				Cause:  ErrMixedFormats,
			}
		}
		frames += b.Frames()
	}

	data, err := Encode(buffers, format, frames)
	if err != nil {
		return nil, &MergeError{Reason: "encode wav", Cause: err}
	}

	return &Merged{
		Data:     data,
		Format:   format,
		Frames:   frames,
		Duration: audio.FramesToDuration(frames, format.SampleRate),
		Chunks:   len(buffers),
	}, nil
}

// Encode interleaves buffers that share format into a WAV byte stream.
// frames is the total frame count across buffers.
func Encode(buffers []*audio.Buffer, format audio.Format, frames int) ([]byte, error) {
	interleaved := make([]int, 0, frames*format.Channels)
	for _, b := range buffers {
		for f := 0; f < b.Frames(); f++ {
			for c := 0; c < format.Channels; c++ {
				interleaved = append(interleaved, toInt16(b.Channel(c)[f]))
			}
		}
	}

	ws := newWriteSeeker(wavHeaderSize + len(interleaved)*bitDepth/8)
	enc := wav.NewEncoder(ws, format.SampleRate, bitDepth, format.Channels, wavFormatPCM)
	pcm := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		Data:           interleaved,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(pcm); err != nil {
		return nil, fmt.Errorf("write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize header: %w", err)
	}
	return ws.Bytes(), nil
}

func toInt16(s float32) int {
	v := int(math.Round(float64(s) * maxSample16))
	if v > maxSample16 {
		return maxSample16
	}
	if v < minSample16 {
		return minSample16
	}
	return v
}
