package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"el2mcp/internal/config"
	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/model"
	"el2mcp/internal/store"
)

type stubAPI struct {
	textToSpeech func(ctx context.Context, req elevenlabs.TTSRequest) ([]byte, error)
	transcribe   func(ctx context.Context, req elevenlabs.TranscribeRequest) (*elevenlabs.Transcription, error)
	searchVoices func(ctx context.Context, search, sort, sortDirection string) ([]elevenlabs.Voice, error)
	getVoice     func(ctx context.Context, voiceID string) (*elevenlabs.Voice, error)
}

var errNotConfigured = fmt.Errorf("stub method not configured")

func (a *stubAPI) TextToSpeech(ctx context.Context, req elevenlabs.TTSRequest) ([]byte, error) {
	if a.textToSpeech != nil {
		return a.textToSpeech(ctx, req)
	}
	return nil, errNotConfigured
}

func (a *stubAPI) TextToSpeechStream(ctx context.Context, req elevenlabs.TTSRequest) (io.ReadCloser, error) {
	audio, err := a.TextToSpeech(ctx, req)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(audio)), nil
}

func (a *stubAPI) TextToSoundEffects(context.Context, string, float64, string) ([]byte, error) {
	return nil, errNotConfigured
}

func (a *stubAPI) Transcribe(ctx context.Context, req elevenlabs.TranscribeRequest) (*elevenlabs.Transcription, error) {
	if a.transcribe != nil {
		return a.transcribe(ctx, req)
	}
	return nil, errNotConfigured
}

func (a *stubAPI) SearchVoices(ctx context.Context, search, sort, sortDirection string) ([]elevenlabs.Voice, error) {
	if a.searchVoices != nil {
		return a.searchVoices(ctx, search, sort, sortDirection)
	}
	return nil, errNotConfigured
}

func (a *stubAPI) GetVoice(ctx context.Context, voiceID string) (*elevenlabs.Voice, error) {
	if a.getVoice != nil {
		return a.getVoice(ctx, voiceID)
	}
	return nil, errNotConfigured
}

func (a *stubAPI) CloneVoice(context.Context, string, string, []elevenlabs.CloneFile) (string, error) {
	return "", errNotConfigured
}

func (a *stubAPI) CreateAgent(context.Context, map[string]any) (string, error) {
	return "", errNotConfigured
}

func (a *stubAPI) ListAgents(context.Context, string, int) ([]elevenlabs.AgentSummary, bool, error) {
	return nil, false, errNotConfigured
}

func (a *stubAPI) GetAgent(context.Context, string) (map[string]any, error) {
	return nil, errNotConfigured
}

func newTestHandler(t *testing.T, api API, restKey string) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.APIKey = "vendor-key"
	cfg.RESTAPIKey = restKey
	if api == nil {
		api = &stubAPI{}
	}
	return NewHandler(cfg, api, nil, log.New(io.Discard, "", 0)).Router()
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, nil, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %q", body["status"])
	}
}

func TestAPIKeyRequiredWhenConfigured(t *testing.T) {
	api := &stubAPI{
		searchVoices: func(context.Context, string, string, string) ([]elevenlabs.Voice, error) {
			return nil, nil
		},
	}
	h := newTestHandler(t, api, "secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/voices", nil)
	req.Header.Set("X-Api-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with key = %d, want 200", rec.Code)
	}
}

func TestAPIKeySkippedWhenUnset(t *testing.T) {
	api := &stubAPI{
		searchVoices: func(context.Context, string, string, string) ([]elevenlabs.Voice, error) {
			return nil, nil
		},
	}
	h := newTestHandler(t, api, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTextToSpeech(t *testing.T) {
	audio := []byte("mp3 bytes")
	api := &stubAPI{
		textToSpeech: func(_ context.Context, req elevenlabs.TTSRequest) ([]byte, error) {
			if req.Text != "hello" {
				t.Fatalf("text = %q", req.Text)
			}
			if req.VoiceID == "" {
				t.Fatal("expected default voice id")
			}
			return audio, nil
		},
	}
	h := newTestHandler(t, api, "")

	body := strings.NewReader(`{"text":"hello"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tts", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp["audio_base64"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, audio) {
		t.Fatal("decoded audio does not match")
	}
}

func TestTextToSpeechMissingText(t *testing.T) {
	h := newTestHandler(t, nil, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTextToSpeechStream(t *testing.T) {
	api := &stubAPI{
		textToSpeech: func(context.Context, elevenlabs.TTSRequest) ([]byte, error) {
			return []byte("streamed audio"), nil
		},
	}
	h := newTestHandler(t, api, "")

	body := strings.NewReader(`{"text":"hello"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tts/stream", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %s", ct)
	}
	if rec.Body.String() != "streamed audio" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestVendorStatusPassesThrough(t *testing.T) {
	api := &stubAPI{
		textToSpeech: func(context.Context, elevenlabs.TTSRequest) ([]byte, error) {
			return nil, &model.VendorError{
				Code:       "ELEVENLABS_RATE_LIMIT",
				Message:    "rate limited",
				Retryable:  true,
				StatusCode: http.StatusTooManyRequests,
			}
		},
	}
	h := newTestHandler(t, api, "")

	body := strings.NewReader(`{"text":"hello"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tts", body))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestSpeechToTextMultipart(t *testing.T) {
	api := &stubAPI{
		transcribe: func(_ context.Context, req elevenlabs.TranscribeRequest) (*elevenlabs.Transcription, error) {
			if req.FileName != "sample.mp3" {
				t.Fatalf("filename = %q", req.FileName)
			}
			if !req.Diarize {
				t.Fatal("expected diarize to be set")
			}
			return &elevenlabs.Transcription{
				LanguageCode: "en",
				Text:         "hello there",
			}, nil
		},
	}
	h := newTestHandler(t, api, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "sample.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("audio bytes")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("diarize", "true"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/stt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["text"] != "hello there" {
		t.Fatalf("text = %v", resp["text"])
	}
}

func TestListOutputsFromLedger(t *testing.T) {
	ledger := store.NewLedger(filepath.Join(t.TempDir(), "ledger.db"))
	t.Cleanup(func() {
		_ = ledger.Close()
	})
	ctx := context.Background()
	if err := ledger.Record(ctx, store.Artifact{
		Tool:     "text_to_speech",
		FileName: "tts_hello_20240101_000000.mp3",
		MIMEType: "audio/mpeg",
	}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.APIKey = "vendor-key"
	h := NewHandler(cfg, &stubAPI{}, ledger, log.New(io.Discard, "", 0)).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/outputs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Outputs []map[string]interface{} `json:"outputs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(resp.Outputs))
	}
	if resp.Outputs[0]["file_name"] != "tts_hello_20240101_000000.mp3" {
		t.Fatalf("file_name = %v", resp.Outputs[0]["file_name"])
	}
}

func TestGetVoiceNotFound(t *testing.T) {
	api := &stubAPI{
		getVoice: func(context.Context, string) (*elevenlabs.Voice, error) {
			return nil, fmt.Errorf("%w: voice missing", model.ErrNotFound)
		},
	}
	h := newTestHandler(t, api, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/voices/v123", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
