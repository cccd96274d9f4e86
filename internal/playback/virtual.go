package playback

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

// Scheduled records one Schedule call on a VirtualOutput.
type Scheduled struct {
	Buffer  *audio.Buffer
	At      time.Duration
	Offset  time.Duration
	Length  time.Duration
	Stopped bool
	Ended   bool
}

// End returns the clock time at which the scheduled region finishes.
func (s Scheduled) End() time.Duration { return s.At + s.Length }

// VirtualOutput is an Output with a manually driven clock. It produces no
// sound and is used by tests and by headless runs where Run advances the
// clock in real time.
type VirtualOutput struct {
	mu      sync.Mutex
	now     time.Duration
	volume  float64
	closed  bool
	entries []*virtualHandle
}

type virtualHandle struct {
	out     *VirtualOutput
	rec     Scheduled
	onEnded func()
}

// NewVirtualOutput returns an output whose clock starts at zero.
func NewVirtualOutput() *VirtualOutput {
	return &VirtualOutput{volume: 1}
}

// Now implements Output.
func (v *VirtualOutput) Now() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Schedule implements Output.
func (v *VirtualOutput) Schedule(buf *audio.Buffer, at, offset time.Duration, onEnded func()) (Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrOutputClosed
	}
	h := &virtualHandle{
		out: v,
		rec: Scheduled{
			Buffer: buf,
			At:     at,
			Offset: offset,
			Length: buf.Duration() - offset,
		},
		onEnded: onEnded,
	}
	v.entries = append(v.entries, h)
	return h, nil
}

// SetVolume implements Output.
func (v *VirtualOutput) SetVolume(vol float64) {
	v.mu.Lock()
	v.volume = vol
	v.mu.Unlock()
}

// Volume returns the last volume set.
func (v *VirtualOutput) Volume() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.volume
}

// Close implements Output.
func (v *VirtualOutput) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

// Advance moves the clock forward by d and fires the end callbacks of every
// region that finished, in end-time order. Callbacks run on the caller's
// goroutine after the output lock is released.
func (v *VirtualOutput) Advance(d time.Duration) {
	v.mu.Lock()
	v.now += d
	now := v.now
	var due []*virtualHandle
	for _, h := range v.entries {
		if !h.rec.Stopped && !h.rec.Ended && h.rec.End() <= now {
			h.rec.Ended = true
			due = append(due, h)
		}
	}
	v.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].rec.End() < due[j].rec.End() })
	for _, h := range due {
		if h.onEnded != nil {
			h.onEnded()
		}
	}
}

// Run advances the clock in real time every tick until ctx is done.
func (v *VirtualOutput) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			v.Advance(now.Sub(last))
			last = now
		}
	}
}

// History returns every region scheduled so far, in call order.
func (v *VirtualOutput) History() []Scheduled {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Scheduled, len(v.entries))
	for i, h := range v.entries {
		out[i] = h.rec
	}
	return out
}

// Active returns the regions that are neither stopped nor ended.
func (v *VirtualOutput) Active() []Scheduled {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []Scheduled
	for _, h := range v.entries {
		if !h.rec.Stopped && !h.rec.Ended {
			out = append(out, h.rec)
		}
	}
	return out
}

func (h *virtualHandle) Stop() {
	h.out.mu.Lock()
	if !h.rec.Ended {
		h.rec.Stopped = true
	}
	h.out.mu.Unlock()
}
