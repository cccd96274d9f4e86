package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/go-audio/wav"
)

// WAV format tags.
const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatExtensible = 0xFFFE
)

// Decoder turns encoded WAV chunks into Buffers. The first chunk decoded
// after construction or Reset fixes the session format; later chunks with a
// different sample rate or channel count are rejected.
type Decoder struct {
	mu     sync.Mutex
	format *Format
}

// NewDecoder returns a decoder ready for a new session.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset forgets the session format.
func (d *Decoder) Reset() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.format = nil
	d.mu.Unlock()
}

// SessionFormat returns the format fixed by the first decoded chunk.
func (d *Decoder) SessionFormat() (Format, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.format == nil {
		return Format{}, false
	}
	return *d.format, true
}

// Decode parses raw as an integer PCM or 32-bit IEEE float WAV file,
// including WAVE_FORMAT_EXTENSIBLE headers of either kind. Any failure is
// returned as a *DecodeError.
func (d *Decoder) Decode(raw []byte) (*Buffer, error) {
	if d == nil {
		return nil, &DecodeError{Size: len(raw), Cause: ErrDecoderNotInitialized}
	}

	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, &DecodeError{Size: len(raw), Cause: ErrNotWAV}
	}
	tag := dec.WavAudioFormat
	if tag == wavFormatExtensible {
		sub, ok := extensibleSubFormat(raw)
		if !ok {
			return nil, &DecodeError{Size: len(raw), Cause: fmt.Errorf("%w: extensible header without subformat", ErrUnsupportedEncoding)}
		}
		tag = sub
	}
	if tag != wavFormatPCM && tag != wavFormatFloat {
		return nil, &DecodeError{Size: len(raw), Cause: fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, tag)}
	}
	isFloat := tag == wavFormatFloat
	if isFloat && dec.BitDepth != 32 {
		return nil, &DecodeError{Size: len(raw), Cause: fmt.Errorf("%w: %d-bit float", ErrUnsupportedEncoding, dec.BitDepth)}
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Size: len(raw), Cause: err}
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels <= 0 {
		return nil, &DecodeError{Size: len(raw), Cause: ErrNoChannels}
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, &DecodeError{Size: len(raw), Cause: fmt.Errorf("%w: %d-bit", ErrUnsupportedEncoding, bitDepth)}
	}

	frames := len(pcm.Data) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	scale := float32(int64(1) << (bitDepth - 1))
	for i := 0; i < frames*channels; i++ {
		v := pcm.Data[i]
		if isFloat {
			// go-audio hands back the raw 32 bits as a signed int.
			out[i%channels][i/channels] = math.Float32frombits(uint32(int32(v)))
			continue
		}
		if bitDepth == 8 {
			// 8-bit WAV samples are unsigned.
			v -= 128
		}
		out[i%channels][i/channels] = float32(v) / scale
	}

	buf, err := NewBuffer(int(dec.SampleRate), out)
	if err != nil {
		return nil, &DecodeError{Size: len(raw), Cause: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.format == nil {
		f := buf.Format()
		d.format = &f
	} else if *d.format != buf.Format() {
		return nil, &DecodeError{Size: len(raw), Cause: fmt.Errorf("%w: got %s, want %s", ErrFormatMismatch, buf.Format(), *d.format)}
	}
	return buf, nil
}

// extensibleSubFormat returns the format tag carried in the SubFormat GUID
// of a WAVE_FORMAT_EXTENSIBLE fmt chunk. go-audio skips those bytes.
func extensibleSubFormat(raw []byte) (uint16, bool) {
	const (
		riffHeader = 12
		// cbSize, wValidBitsPerSample and dwChannelMask precede SubFormat.
		subFormatAt = 24
	)
	off := riffHeader
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if id == "fmt " {
			if size < subFormatAt+2 || body+subFormatAt+2 > len(raw) {
				return 0, false
			}
			return binary.LittleEndian.Uint16(raw[body+subFormatAt:]), true
		}
		if size < 0 || body+size < body {
			return 0, false
		}
		off = body + size + size&1
	}
	return 0, false
}
