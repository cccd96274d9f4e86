package synth_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

func TestEventWireForm(t *testing.T) {
	tests := []struct {
		name  string
		event synth.Event
	}{
		{"ready", synth.Ready{Voices: synth.DefaultVoices[:2]}},
		{"chunk start", synth.ChunkStart{CorrelationID: "c1", TotalChunks: 3}},
		{"stream start", synth.ChunkStart{CorrelationID: "c1", Stream: true}},
		{"chunk complete", synth.ChunkComplete{CorrelationID: "c1", AudioBytes: []byte{1, 2, 3}, SourceText: "Hi.", ChunkIndex: 0}},
		{"complete", synth.Complete{CorrelationID: "c1"}},
		{"error", synth.Error{CorrelationID: "c1", Message: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := synth.EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent() error = %v", err)
			}
			got, err := synth.DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.event) {
				t.Errorf("DecodeEvent() = %#v, want %#v", got, tt.event)
			}
			if got.Status() != tt.event.Status() {
				t.Errorf("Status() = %q, want %q", got.Status(), tt.event.Status())
			}
		})
	}
}

func TestDecodeEventUnknownStatus(t *testing.T) {
	_, err := synth.DecodeEvent([]byte(`{"status":"progress"}`))
	if !errors.Is(err, synth.ErrUnknownStatus) {
		t.Errorf("DecodeEvent() error = %v, want ErrUnknownStatus", err)
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    synth.Request
		wantErr bool
	}{
		{"generate", `{"type":"generate","text":"Hi.","voiceId":"af_heart","correlationId":"x"}`, synth.Generate("Hi.", "af_heart", "x"), false},
		{"initialize", `{"type":"initialize","device":"cpu"}`, synth.Initialize("cpu"), false},
		{"unknown", `{"type":"shutdown"}`, synth.Request{}, true},
		{"malformed", `{`, synth.Request{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := synth.DecodeRequest([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DecodeRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
