package playback

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

const bytesPerSample = 4 // float32 little endian

// mixer renders scheduled regions into an interleaved float32 stream. Its
// clock is the number of frames handed to the device so far, so regions
// chained on frame boundaries play without gaps.
type mixer struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	rendered   int64
	regions    []*region
}

type region struct {
	mix     *mixer
	buf     *audio.Buffer
	atFrame int64
	first   int // first buffer frame to play
	frames  int // frames to play
	onEnded func()
	stopped bool
}

func newMixer(sampleRate, channels int) *mixer {
	return &mixer{sampleRate: sampleRate, channels: channels}
}

func (m *mixer) now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return audio.FramesToDuration(int(m.rendered), m.sampleRate)
}

// toFrames rounds to the nearest frame so durations chained by the
// scheduler land on the exact frame where the previous region ended.
func (m *mixer) toFrames(d time.Duration) int64 {
	return (int64(d)*int64(m.sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

func (m *mixer) schedule(buf *audio.Buffer, at, offset time.Duration, onEnded func()) (*region, error) {
	if buf.SampleRate() != m.sampleRate || buf.NumChannels() != m.channels {
		return nil, ErrFormatUnsupported
	}
	first := buf.FrameAt(offset)
	r := &region{
		mix:     m,
		buf:     buf,
		atFrame: m.toFrames(at),
		first:   first,
		frames:  buf.Frames() - first,
		onEnded: onEnded,
	}
	m.mu.Lock()
	m.regions = append(m.regions, r)
	m.mu.Unlock()
	return r, nil
}

// Read implements io.Reader for the oto player.
func (m *mixer) Read(p []byte) (int, error) {
	frameSize := bytesPerSample * m.channels
	n := len(p) / frameSize
	if n == 0 {
		return 0, nil
	}

	m.mu.Lock()
	start := m.rendered
	end := start + int64(n)
	mixed := make([]float32, n*m.channels)

	var ended []func()
	live := m.regions[:0]
	for _, r := range m.regions {
		if r.stopped {
			continue
		}
		rEnd := r.atFrame + int64(r.frames)
		from := max(start, r.atFrame)
		to := min(end, rEnd)
		for f := from; f < to; f++ {
			src := r.first + int(f-r.atFrame)
			dst := int(f-start) * m.channels
			for c := 0; c < m.channels; c++ {
				mixed[dst+c] += r.buf.Channel(c)[src]
			}
		}
		if rEnd <= end {
			if r.onEnded != nil {
				ended = append(ended, r.onEnded)
			}
			continue
		}
		live = append(live, r)
	}
	m.regions = live
	m.rendered = end
	m.mu.Unlock()

	for i, s := range mixed {
		binary.LittleEndian.PutUint32(p[i*bytesPerSample:], math.Float32bits(s))
	}
	for _, fn := range ended {
		fn()
	}
	return n * frameSize, nil
}

func (r *region) Stop() {
	r.mix.mu.Lock()
	r.stopped = true
	r.mix.mu.Unlock()
}
