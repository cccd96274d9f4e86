package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/history"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/playback"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/server"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/session"
	"github.com/Sagarsantra1/text-to-speech-generator/internal/synth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, opts ...server.Option) (*gin.Engine, *session.Session) {
	t.Helper()
	w := synth.NewWorker(synth.NewToneSynthesizer(8000, 20*time.Millisecond))
	ch := synth.NewLocalChannel(w)
	s := session.New(ch, playback.NewVirtualOutput(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = ch.Close()
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := s.WaitReady(waitCtx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	return server.NewHandler(s, opts...).Router(), s
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStatusAndVoices(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", rec.Code)
	}
	var status server.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "ready" || status.Transport != "stopped" {
		t.Errorf("status = %+v", status)
	}
	if status.Format != "" {
		t.Errorf("Format = %q before any audio, want empty", status.Format)
	}

	rec = do(r, http.MethodGet, "/voices", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "af_heart") {
		t.Errorf("GET /voices = %d %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateAndDownload(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(r, http.MethodPost, "/generate", `{"text":"Hello there. General Kenobi.","voice":"af_heart"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /generate = %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Chunks   int                  `json:"chunks"`
		Artifact *server.ArtifactInfo `json:"artifact"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Chunks != 2 || body.Artifact == nil {
		t.Fatalf("generate body = %s", rec.Body.String())
	}

	rec = do(r, http.MethodGet, body.Artifact.URL, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", body.Artifact.URL, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("RIFF")) {
		t.Error("artifact body is not a RIFF file")
	}

	// A second request supersedes the first handle.
	if rec := do(r, http.MethodPost, "/generate", `{"text":"Again.","voice":"af_heart"}`); rec.Code != http.StatusOK {
		t.Fatalf("second POST /generate = %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, body.Artifact.URL, ""); rec.Code != http.StatusGone {
		t.Errorf("GET old artifact = %d, want 410", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/artifact/current", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /artifact/current = %d, want 200", rec.Code)
	}

	var status server.StatusResponse
	if err := json.Unmarshal(do(r, http.MethodGet, "/status", "").Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Format != "8000Hz/1ch" {
		t.Errorf("Format = %q, want 8000Hz/1ch", status.Format)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	r, _ := newRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing voice", `{"text":"Hi."}`},
		{"blank text", `{"text":"   ","voice":"af_heart"}`},
		{"not json", `hello`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(r, http.MethodPost, "/generate", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("POST /generate = %d, want 400", rec.Code)
			}
		})
	}
}

func TestArtifactMissing(t *testing.T) {
	r, _ := newRouter(t)

	if rec := do(r, http.MethodGet, "/artifact/current", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /artifact/current = %d, want 404", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/artifact/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /artifact/nope = %d, want 404", rec.Code)
	}
}

func TestHistoryAndMetrics(t *testing.T) {
	store, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "h.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	now := time.Now()
	_ = store.Record(context.Background(), history.Entry{ID: "one", Mode: "single", StartedAt: now, FinishedAt: now})

	r, _ := newRouter(t, server.WithHistory(store))

	rec := do(r, http.MethodGet, "/history?limit=5", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"one"`) {
		t.Errorf("GET /history = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/history?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /history?limit=x = %d, want 400", rec.Code)
	}

	rec = do(r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ttsgen_") {
		t.Errorf("GET /metrics = %d", rec.Code)
	}
}
