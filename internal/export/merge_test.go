package export_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
)

func tone(t *testing.T, sampleRate, channels int, d time.Duration, level float32) *audio.Buffer {
	t.Helper()
	frames := int(int64(d) * int64(sampleRate) / int64(time.Second))
	chans := make([][]float32, channels)
	for c := range chans {
		chans[c] = make([]float32, frames)
		for i := range chans[c] {
			chans[c][i] = level
		}
	}
	b, err := audio.NewBuffer(sampleRate, chans)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	return b
}

func TestMergeAllDuration(t *testing.T) {
	q := audio.NewQueue()
	for _, d := range []time.Duration{time.Second, 1500 * time.Millisecond, 2 * time.Second} {
		q.Append(tone(t, 24000, 1, d, 0.25))
	}

	m, err := export.MergeAll(q)
	if err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}
	if m.Duration != 4500*time.Millisecond {
		t.Errorf("Duration = %v, want 4.5s", m.Duration)
	}
	if m.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3", m.Chunks)
	}

	dec := wav.NewDecoder(bytes.NewReader(m.Data))
	if !dec.IsValidFile() {
		t.Fatal("merged data is not a valid wav file")
	}
	if dec.SampleRate != 24000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("wav format = %dHz/%dch/%dbit, want 24000Hz/1ch/16bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}

	back, err := audio.NewDecoder().Decode(m.Data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if back.Duration() != 4500*time.Millisecond {
		t.Errorf("decoded Duration() = %v, want 4.5s", back.Duration())
	}
}

func TestMergeAllIgnoresBuffersBeforeReset(t *testing.T) {
	q := audio.NewQueue()
	q.Append(tone(t, 8000, 1, time.Second, 0.1))
	q.Append(tone(t, 8000, 1, time.Second, 0.1))
	q.Reset()
	q.Append(tone(t, 8000, 1, 500*time.Millisecond, 0.1))

	m, err := export.MergeAll(q)
	if err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}
	if m.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", m.Duration)
	}
}

func TestMergeAllEmptyQueue(t *testing.T) {
	_, err := export.MergeAll(audio.NewQueue())
	if !errors.Is(err, export.ErrEmptyQueue) {
		t.Errorf("MergeAll() error = %v, want %v", err, export.ErrEmptyQueue)
	}
}

func TestMergeAllMixedFormats(t *testing.T) {
	q := audio.NewQueue()
	q.Append(tone(t, 8000, 1, 100*time.Millisecond, 0))
	q.Append(tone(t, 16000, 1, 100*time.Millisecond, 0))

	_, err := export.MergeAll(q)
	if !errors.Is(err, export.ErrMixedFormats) {
		t.Errorf("MergeAll() error = %v, want %v", err, export.ErrMixedFormats)
	}
}

func TestMergeAllPreservesChannelsAndOrder(t *testing.T) {
	q := audio.NewQueue()
	q.Append(tone(t, 1000, 2, 2*time.Millisecond, 0.5))
	q.Append(tone(t, 1000, 2, 2*time.Millisecond, -0.5))

	m, err := export.MergeAll(q)
	if err != nil {
		t.Fatalf("MergeAll() error = %v", err)
	}

	back, err := audio.NewDecoder().Decode(m.Data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if back.NumChannels() != 2 {
		t.Fatalf("NumChannels() = %d, want 2", back.NumChannels())
	}
	want := []float32{0.5, 0.5, -0.5, -0.5}
	for c := 0; c < 2; c++ {
		for i, w := range want {
			got := back.Channel(c)[i]
			if diff := got - w; diff > 0.001 || diff < -0.001 {
				t.Errorf("channel %d frame %d = %v, want ~%v", c, i, got, w)
			}
		}
	}
}
