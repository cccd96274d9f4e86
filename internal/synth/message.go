// Package synth defines the message contract with a speech synthesis worker
// and the transports that carry it: in-process, WebSocket and NATS.
package synth

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request types sent to the worker.
const (
	TypeInitialize = "initialize"
	TypeReinit     = "reinit"
	TypeGenerate   = "generate"
)

// Event statuses sent by the worker.
const (
	StatusReady         = "ready"
	StatusStreamStart   = "stream-start"
	StatusChunkStart    = "chunk-start"
	StatusChunkComplete = "chunk-complete"
	StatusComplete      = "complete"
	StatusError         = "error"
)

// ErrUnknownStatus is returned by DecodeEvent for unrecognised statuses.
var ErrUnknownStatus = errors.New("unknown event status")

// Request is an outbound message.
type Request struct {
	Type          string `json:"type"`
	Device        string `json:"device,omitempty"`
	Text          string `json:"text,omitempty"`
	VoiceID       string `json:"voiceId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Initialize builds an initialize request.
func Initialize(device string) Request {
	return Request{Type: TypeInitialize, Device: device}
}

// Reinit builds a device change request.
func Reinit(device string) Request {
	return Request{Type: TypeReinit, Device: device}
}

// Generate builds a generate request.
func Generate(text, voiceID, correlationID string) Request {
	return Request{Type: TypeGenerate, Text: text, VoiceID: voiceID, CorrelationID: correlationID}
}

// Voice describes one voice offered by the worker.
type Voice struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Language      string `json:"language" yaml:"language"`
	Gender        string `json:"gender" yaml:"gender"`
	Traits        string `json:"traits,omitempty" yaml:"traits,omitempty"`
	TargetQuality string `json:"targetQuality,omitempty" yaml:"targetQuality,omitempty"`
	OverallGrade  string `json:"overallGrade,omitempty" yaml:"overallGrade,omitempty"`
}

// Event is an inbound message. The concrete types below are the only
// implementations.
type Event interface {
	Status() string
	Correlation() string
	isEvent()
}

// Ready reports that the worker finished loading.
type Ready struct {
	Voices []Voice
}

// ChunkStart opens a generation stream. Stream is true for a stream-start
// event, which never knows the chunk count.
type ChunkStart struct {
	CorrelationID string
	TotalChunks   int
	Stream        bool
}

// ChunkComplete carries one encoded audio chunk.
type ChunkComplete struct {
	CorrelationID string
	AudioBytes    []byte
	SourceText    string
	ChunkIndex    int
}

// Complete ends a generation stream.
type Complete struct {
	CorrelationID string
}

// Error reports a failure. CorrelationID is empty for worker-level errors.
type Error struct {
	CorrelationID string
	Message       string
}

func (Ready) Status() string { return StatusReady }
func (e ChunkStart) Status() string {
	if e.Stream {
		return StatusStreamStart
	}
	return StatusChunkStart
}
func (ChunkComplete) Status() string { return StatusChunkComplete }
func (Complete) Status() string      { return StatusComplete }
func (Error) Status() string         { return StatusError }

func (Ready) Correlation() string           { return "" }
func (e ChunkStart) Correlation() string    { return e.CorrelationID }
func (e ChunkComplete) Correlation() string { return e.CorrelationID }
func (e Complete) Correlation() string      { return e.CorrelationID }
func (e Error) Correlation() string         { return e.CorrelationID }

func (Ready) isEvent()         {}
func (ChunkStart) isEvent()    {}
func (ChunkComplete) isEvent() {}
func (Complete) isEvent()      {}
func (Error) isEvent()         {}

// envelope is the JSON wire shape shared by every event.
type envelope struct {
	Status        string  `json:"status"`
	CorrelationID string  `json:"correlationId,omitempty"`
	Voices        []Voice `json:"voices,omitempty"`
	TotalChunks   *int    `json:"totalChunks,omitempty"`
	AudioBytes    []byte  `json:"audioBytes,omitempty"`
	SourceText    string  `json:"sourceText,omitempty"`
	ChunkIndex    *int    `json:"chunkIndex,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// EncodeEvent marshals e to its wire form.
func EncodeEvent(e Event) ([]byte, error) {
	env := envelope{Status: e.Status(), CorrelationID: e.Correlation()}
	switch ev := e.(type) {
	case Ready:
		env.Voices = ev.Voices
	case ChunkStart:
		if !ev.Stream {
			n := ev.TotalChunks
			env.TotalChunks = &n
		}
	case ChunkComplete:
		idx := ev.ChunkIndex
		env.AudioBytes = ev.AudioBytes
		env.SourceText = ev.SourceText
		env.ChunkIndex = &idx
	case Complete:
	case Error:
		env.Message = ev.Message
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownStatus, e)
	}
	return json.Marshal(env)
}

// DecodeEvent parses the wire form into the matching Event type.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch env.Status {
	case StatusReady:
		return Ready{Voices: env.Voices}, nil
	case StatusStreamStart, StatusChunkStart:
		ev := ChunkStart{CorrelationID: env.CorrelationID, Stream: env.Status == StatusStreamStart}
		if env.TotalChunks != nil {
			ev.TotalChunks = *env.TotalChunks
		}
		return ev, nil
	case StatusChunkComplete:
		ev := ChunkComplete{
			CorrelationID: env.CorrelationID,
			AudioBytes:    env.AudioBytes,
			SourceText:    env.SourceText,
		}
		if env.ChunkIndex != nil {
			ev.ChunkIndex = *env.ChunkIndex
		}
		return ev, nil
	case StatusComplete:
		return Complete{CorrelationID: env.CorrelationID}, nil
	case StatusError:
		return Error{CorrelationID: env.CorrelationID, Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, env.Status)
	}
}

// EncodeRequest marshals r to its wire form.
func EncodeRequest(r Request) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest parses a request.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	switch r.Type {
	case TypeInitialize, TypeReinit, TypeGenerate:
		return r, nil
	default:
		return Request{}, fmt.Errorf("unknown request type %q", r.Type)
	}
}
