package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

// DefaultDeviceBuffer is the oto buffer length. Smaller values reduce the
// gap between the scheduler clock and what is audible.
const DefaultDeviceBuffer = 60 * time.Millisecond

// OtoOutput plays through the system audio device. The device is opened
// lazily with the format of the first scheduled buffer because oto allows
// one context per process and the session format is only known once the
// first chunk is decoded.
type OtoOutput struct {
	mu       sync.Mutex
	bufSize  time.Duration
	ctx      *oto.Context
	player   *oto.Player
	mix      *mixer
	volume   float64
	closed   bool
	logger   *log.Logger
}

// NewOtoOutput returns an unopened device output.
func NewOtoOutput(bufferSize time.Duration, logger *log.Logger) *OtoOutput {
	if bufferSize <= 0 {
		bufferSize = DefaultDeviceBuffer
	}
	if logger == nil {
		logger = log.WithPrefix("oto")
	}
	return &OtoOutput{bufSize: bufferSize, volume: 1, logger: logger}
}

// Now implements Output. The clock is zero until the device opens.
func (o *OtoOutput) Now() time.Duration {
	o.mu.Lock()
	m := o.mix
	o.mu.Unlock()
	if m == nil {
		return 0
	}
	return m.now()
}

// Schedule implements Output.
func (o *OtoOutput) Schedule(buf *audio.Buffer, at, offset time.Duration, onEnded func()) (Handle, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrOutputClosed
	}
	if o.mix == nil {
		if err := o.openLocked(buf.Format()); err != nil {
			o.mu.Unlock()
			return nil, err
		}
	}
	m := o.mix
	o.mu.Unlock()

	r, err := m.schedule(buf, at, offset, onEnded)
	if err != nil {
		return nil, fmt.Errorf("%w: device is %s, buffer is %s", err, audio.Format{SampleRate: m.sampleRate, Channels: m.channels}, buf.Format())
	}
	return r, nil
}

// SetVolume implements Output.
func (o *OtoOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = v
	if o.player != nil {
		o.player.SetVolume(v)
	}
}

// Close implements Output.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if o.player != nil {
		o.player.Pause()
		if err := o.player.Close(); err != nil {
			return fmt.Errorf("close oto player: %w", err)
		}
		o.player = nil
	}
	return nil
}

func (o *OtoOutput) openLocked(f audio.Format) error {
	op := &oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.bufSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("create oto context: %w", err)
	}
	<-ready

	o.ctx = ctx
	o.mix = newMixer(f.SampleRate, f.Channels)
	o.player = ctx.NewPlayer(o.mix)
	o.player.SetVolume(o.volume)
	o.player.Play()
	o.logger.Debug("audio device opened", "format", f, "buffer", o.bufSize)
	return nil
}
