package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"el2mcp/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("sk_test", server.URL)
}

func vendorErr(t *testing.T, err error) *model.VendorError {
	t.Helper()
	var ve *model.VendorError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VendorError, got %T: %v", err, err)
	}
	return ve
}

func TestTextToSpeech_SendsKeyAndFormat(t *testing.T) {
	var gotKey, gotFormat, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xFF, 0xFB, 0x00})
	})

	audio, err := client.TextToSpeech(context.Background(), TTSRequest{Text: "hello", VoiceID: "v123"})
	if err != nil {
		t.Fatalf("TextToSpeech failed: %v", err)
	}
	if len(audio) != 3 {
		t.Fatalf("unexpected audio length %d", len(audio))
	}
	if gotKey != "sk_test" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotFormat != DefaultOutputFormat {
		t.Errorf("output_format = %q", gotFormat)
	}
	if gotPath != "/v1/text-to-speech/v123" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestTextToSpeech_RequiresTextAndVoice(t *testing.T) {
	client := NewClient("sk_test", "http://127.0.0.1:0")

	if _, err := client.TextToSpeech(context.Background(), TTSRequest{VoiceID: "v"}); err == nil {
		t.Error("empty text accepted")
	}
	if _, err := client.TextToSpeech(context.Background(), TTSRequest{Text: "hi"}); err == nil {
		t.Error("empty voice id accepted")
	}
}

func TestMissingAPIKey(t *testing.T) {
	client := NewClient("", "http://127.0.0.1:0")

	_, err := client.TextToSpeech(context.Background(), TTSRequest{Text: "hi", VoiceID: "v"})
	ve := vendorErr(t, err)
	if ve.Code != "ELEVENLABS_AUTH" {
		t.Fatalf("code = %q, want ELEVENLABS_AUTH", ve.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		wantCode  string
		retryable bool
	}{
		{http.StatusUnauthorized, "ELEVENLABS_AUTH", false},
		{http.StatusForbidden, "ELEVENLABS_AUTH", false},
		{http.StatusTooManyRequests, "ELEVENLABS_RATE_LIMIT", true},
		{http.StatusBadRequest, "ELEVENLABS_FAILED", false},
		{http.StatusUnprocessableEntity, "ELEVENLABS_FAILED", false},
		{http.StatusInternalServerError, "ELEVENLABS_FAILED", true},
		{http.StatusBadGateway, "ELEVENLABS_FAILED", true},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		})
		_, err := client.TextToSpeech(context.Background(), TTSRequest{Text: "hi", VoiceID: "v"})
		ve := vendorErr(t, err)
		if ve.Code != tc.wantCode {
			t.Errorf("status %d: code = %q, want %q", tc.status, ve.Code, tc.wantCode)
		}
		if ve.Retryable != tc.retryable {
			t.Errorf("status %d: retryable = %t, want %t", tc.status, ve.Retryable, tc.retryable)
		}
		if ve.StatusCode != tc.status {
			t.Errorf("status %d: recorded status = %d", tc.status, ve.StatusCode)
		}
	}
}

func TestTranscribe_MultipartFields(t *testing.T) {
	var gotModel, gotDiarize, gotFile string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model_id")
		gotDiarize = r.FormValue("diarize")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			_ = file.Close()
			gotFile = header.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"language_code":"en","text":"hello there"}`))
	})

	tr, err := client.Transcribe(context.Background(), TranscribeRequest{
		FileName: "meeting.mp3",
		Data:     []byte("fake audio"),
		Diarize:  true,
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if tr.Text != "hello there" {
		t.Errorf("text = %q", tr.Text)
	}
	if gotModel != DefaultSTTModel {
		t.Errorf("model_id = %q", gotModel)
	}
	if gotDiarize != "true" {
		t.Errorf("diarize = %q", gotDiarize)
	}
	if gotFile != "meeting.mp3" {
		t.Errorf("filename = %q", gotFile)
	}
}

func TestSearchVoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/voices" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("search") != "narrator" {
			t.Errorf("search = %q", r.URL.Query().Get("search"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Adam"},{"voice_id":"v2","name":"Bella"}]}`))
	})

	voices, err := client.SearchVoices(context.Background(), "narrator", "", "")
	if err != nil {
		t.Fatalf("SearchVoices failed: %v", err)
	}
	if len(voices) != 2 || voices[0].VoiceID != "v1" || voices[1].Name != "Bella" {
		t.Fatalf("unexpected voices: %+v", voices)
	}
}

func TestCreateVoicePreviews(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"previews":[
			{"generated_voice_id":"g1","audio_base_64":"QQ=="},
			{"generated_voice_id":"g2","audio_base_64":"Qg=="},
			{"generated_voice_id":"g3","audio_base_64":"Qw=="}
		],"text":"sample"}`))
	})

	previews, sample, err := client.CreateVoicePreviews(context.Background(), "an old sea captain", "")
	if err != nil {
		t.Fatalf("CreateVoicePreviews failed: %v", err)
	}
	if len(previews) != 3 {
		t.Fatalf("expected 3 previews, got %d", len(previews))
	}
	for i, want := range []string{"g1", "g2", "g3"} {
		if previews[i].GeneratedVoiceID != want {
			t.Errorf("preview %d id = %q, want %q", i, previews[i].GeneratedVoiceID, want)
		}
	}
	if sample != "sample" {
		t.Errorf("sample text = %q", sample)
	}
}

func TestTextToSpeechStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/v1/stream" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte("chunked audio"))
	})

	stream, err := client.TextToSpeechStream(context.Background(), TTSRequest{Text: "hi", VoiceID: "v1"})
	if err != nil {
		t.Fatalf("TextToSpeechStream failed: %v", err)
	}
	defer func() { _ = stream.Close() }()
	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(data) != "chunked audio" {
		t.Fatalf("stream payload = %q", data)
	}
}

func TestDuplicateAgent(t *testing.T) {
	var gotPath string
	var gotBody []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agent_id":"agent_2"}`))
	})

	newID, err := client.DuplicateAgent(context.Background(), "agent_1", "copy of support bot")
	if err != nil {
		t.Fatalf("DuplicateAgent failed: %v", err)
	}
	if newID != "agent_2" {
		t.Fatalf("new agent id = %q", newID)
	}
	if gotPath != "/v1/convai/agents/agent_1/duplicate" {
		t.Fatalf("path = %q", gotPath)
	}
	if !json.Valid(gotBody) || !bytes.Contains(gotBody, []byte("copy of support bot")) {
		t.Fatalf("body = %s", gotBody)
	}
}

func TestDuplicateAgent_RequiresID(t *testing.T) {
	client := NewClient("sk_test", "http://127.0.0.1:0")

	if _, err := client.DuplicateAgent(context.Background(), "  ", ""); err == nil {
		t.Fatal("empty agent id accepted")
	}
}

func TestEditVoice_SendsMultipartFields(t *testing.T) {
	var gotPath, gotName, gotDesc string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotName = r.FormValue("name")
		gotDesc = r.FormValue("description")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if err := client.EditVoice(context.Background(), "v1", "Narrator", "calm"); err != nil {
		t.Fatalf("EditVoice failed: %v", err)
	}
	if gotPath != "/v1/voices/v1/edit" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotName != "Narrator" || gotDesc != "calm" {
		t.Fatalf("form fields = %q %q", gotName, gotDesc)
	}
}

func TestDeleteConversationAndDocument(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	if err := client.DeleteConversation(context.Background(), "conv_1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/convai/conversations/conv_1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}

	if err := client.DeleteKnowledgeBaseDocument(context.Background(), "doc_1"); err != nil {
		t.Fatalf("DeleteKnowledgeBaseDocument failed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/convai/knowledge-base/doc_1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestDeleteAgent(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	if err := client.DeleteAgent(context.Background(), "agent_1"); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/convai/agents/agent_1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}
