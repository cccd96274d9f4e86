package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/export"
)

var (
	// ErrEmptyText is returned for generate requests without speakable text.
	ErrEmptyText = errors.New("text must not be empty")
	// ErrUnknownVoice is returned when a voice id is not offered.
	ErrUnknownVoice = errors.New("unknown voice")
)

// Synthesizer renders one chunk of text as a WAV file.
type Synthesizer interface {
	// Voices lists the voices accepted by Synthesize.
	Voices() []Voice
	// Synthesize returns WAV bytes for text spoken with voiceID.
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// DefaultVoices is the catalog offered by the built-in synthesizers.
var DefaultVoices = []Voice{
	{ID: "af_heart", Name: "Heart", Language: "en-us", Gender: "Female", Traits: "❤️", TargetQuality: "A", OverallGrade: "A"},
	{ID: "af_bella", Name: "Bella", Language: "en-us", Gender: "Female", Traits: "🔥", TargetQuality: "A", OverallGrade: "A-"},
	{ID: "am_michael", Name: "Michael", Language: "en-us", Gender: "Male", TargetQuality: "B", OverallGrade: "C+"},
	{ID: "bf_emma", Name: "Emma", Language: "en-gb", Gender: "Female", TargetQuality: "B", OverallGrade: "B-"},
	{ID: "bm_george", Name: "George", Language: "en-gb", Gender: "Male", TargetQuality: "B", OverallGrade: "C"},
}

// ToneSynthesizer produces a deterministic tone per word. It needs no model
// and is used for offline runs and tests.
type ToneSynthesizer struct {
	SampleRate   int
	WordDuration time.Duration
	Gap          time.Duration
	voices       []Voice
}

// NewToneSynthesizer returns a tone synthesizer offering DefaultVoices.
func NewToneSynthesizer(sampleRate int, wordDuration time.Duration) *ToneSynthesizer {
	return &ToneSynthesizer{
		SampleRate:   sampleRate,
		WordDuration: wordDuration,
		Gap:          wordDuration / 4,
		voices:       DefaultVoices,
	}
}

// Voices implements Synthesizer.
func (s *ToneSynthesizer) Voices() []Voice { return s.voices }

// Synthesize implements Synthesizer.
func (s *ToneSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	base, err := s.baseFrequency(voiceID)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	wordFrames := int(int64(s.WordDuration) * int64(s.SampleRate) / int64(time.Second))
	gapFrames := int(int64(s.Gap) * int64(s.SampleRate) / int64(time.Second))
	fade := wordFrames / 10
	samples := make([]float32, 0, len(words)*(wordFrames+gapFrames))

	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.ToLower(w)))
		freq := base * (1 + float64(h.Sum32()%7)/12)
		for i := 0; i < wordFrames; i++ {
			env := 1.0
			if i < fade {
				env = float64(i) / float64(fade)
			} else if i > wordFrames-fade {
				env = float64(wordFrames-i) / float64(fade)
			}
			v := 0.3 * env * math.Sin(2*math.Pi*freq*float64(i)/float64(s.SampleRate))
			samples = append(samples, float32(v))
		}
		samples = append(samples, make([]float32, gapFrames)...)
	}

	return encodeMono(s.SampleRate, samples)
}

func (s *ToneSynthesizer) baseFrequency(voiceID string) (float64, error) {
	for i, v := range s.voices {
		if v.ID == voiceID {
			f := 180.0 + 35*float64(i)
			if v.Gender == "Male" {
				f /= 1.6
			}
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVoice, voiceID)
}

// PiperSynthesizer runs the piper CLI once per chunk and wraps its raw
// 16-bit mono output in a WAV container.
type PiperSynthesizer struct {
	Binary     string
	Model      string
	SampleRate int
	Timeout    time.Duration
	voices     []Voice
}

// NewPiperSynthesizer configures piper with one voice per speaker id.
func NewPiperSynthesizer(binary, model string, sampleRate int, voices []Voice) *PiperSynthesizer {
	if binary == "" {
		binary = "piper"
	}
	if len(voices) == 0 {
		voices = []Voice{{ID: "0", Name: "default", Language: "en", Gender: "Female"}}
	}
	return &PiperSynthesizer{
		Binary:     binary,
		Model:      model,
		SampleRate: sampleRate,
		Timeout:    30 * time.Second,
		voices:     voices,
	}
}

// Voices implements Synthesizer.
func (p *PiperSynthesizer) Voices() []Voice { return p.voices }

// Synthesize implements Synthesizer.
func (p *PiperSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	known := false
	for _, v := range p.voices {
		known = known || v.ID == voiceID
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, voiceID)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := []string{"--model", p.Model, "--output-raw", "--speaker", voiceID}
	cmd := exec.CommandContext(ctx, p.Binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("piper timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("piper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	raw := stdout.Bytes()
	if len(raw) < 2 {
		return nil, fmt.Errorf("piper produced no audio: %s", strings.TrimSpace(stderr.String()))
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return encodeMono(p.SampleRate, samples)
}

func encodeMono(sampleRate int, samples []float32) ([]byte, error) {
	buf, err := audio.NewBuffer(sampleRate, [][]float32{samples})
	if err != nil {
		return nil, err
	}
	return export.Encode([]*audio.Buffer{buf}, buf.Format(), buf.Frames())
}
