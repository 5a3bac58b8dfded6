package elevenlabs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"el2mcp/internal/model"
)

// VoiceSettings tune the synthesis character. Pointer fields are omitted from
// the request when nil so the vendor-side defaults apply.
type VoiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
}

// TTSRequest describes one synthesis call.
type TTSRequest struct {
	Text          string
	VoiceID       string
	ModelID       string
	OutputFormat  string
	LanguageCode  string
	VoiceSettings *VoiceSettings
}

type ttsBody struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	LanguageCode  string         `json:"language_code,omitempty"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

func (r TTSRequest) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "text is required", Retryable: false}
	}
	if strings.TrimSpace(r.VoiceID) == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "voice_id is required", Retryable: false}
	}
	return nil
}

func (r TTSRequest) body() ttsBody {
	modelID := strings.TrimSpace(r.ModelID)
	if modelID == "" {
		modelID = DefaultTTSModel
	}
	return ttsBody{
		Text:          r.Text,
		ModelID:       modelID,
		LanguageCode:  strings.TrimSpace(r.LanguageCode),
		VoiceSettings: r.VoiceSettings,
	}
}

func (r TTSRequest) query() url.Values {
	format := strings.TrimSpace(r.OutputFormat)
	if format == "" {
		format = DefaultOutputFormat
	}
	return url.Values{"output_format": {format}}
}

// TextToSpeech synthesizes speech and returns the full audio payload.
func (c *Client) TextToSpeech(ctx context.Context, req TTSRequest) ([]byte, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	path := "/v1/text-to-speech/" + url.PathEscape(strings.TrimSpace(req.VoiceID))
	return c.postBinary(ctx, path, req.query(), req.body())
}

// TextToSpeechStream synthesizes speech and returns the audio as a stream.
// The caller must close the returned reader.
func (c *Client) TextToSpeechStream(ctx context.Context, req TTSRequest) (io.ReadCloser, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	path := "/v1/text-to-speech/" + url.PathEscape(strings.TrimSpace(req.VoiceID)) + "/stream"
	encoded, err := encodeJSONBody(req.body())
	if err != nil {
		return nil, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path, req.query()), encoded, "application/json")
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	return c.doStream(httpReq)
}

// CharacterAlignment maps synthesized characters to their start and end
// times in the audio.
type CharacterAlignment struct {
	Characters        []string  `json:"characters"`
	StartTimesSeconds []float64 `json:"character_start_times_seconds"`
	EndTimesSeconds   []float64 `json:"character_end_times_seconds"`
}

// TimestampedSpeech is synthesized audio with per-character timing.
type TimestampedSpeech struct {
	AudioBase64         string              `json:"audio_base64"`
	Alignment           *CharacterAlignment `json:"alignment,omitempty"`
	NormalizedAlignment *CharacterAlignment `json:"normalized_alignment,omitempty"`
}

// TextToSpeechWithTimestamps synthesizes speech and returns the audio together
// with character-level timestamps.
func (c *Client) TextToSpeechWithTimestamps(ctx context.Context, req TTSRequest) (*TimestampedSpeech, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	path := "/v1/text-to-speech/" + url.PathEscape(strings.TrimSpace(req.VoiceID)) + "/with-timestamps"
	var out TimestampedSpeech
	if err := c.sendJSON(ctx, http.MethodPost, path, req.query(), req.body(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpeechToSpeech converts the voice in the given audio to the target voice.
func (c *Client) SpeechToSpeech(ctx context.Context, voiceID, filename string, audio []byte) ([]byte, error) {
	if strings.TrimSpace(voiceID) == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "voice_id is required", Retryable: false}
	}
	if len(audio) == 0 {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "audio input is empty", Retryable: false}
	}
	form := newMultipartForm()
	form.file("audio", filename, audio)
	form.field("model_id", DefaultSTSModel)
	path := "/v1/speech-to-speech/" + url.PathEscape(strings.TrimSpace(voiceID))
	return c.postMultipart(ctx, path, url.Values{"output_format": {DefaultOutputFormat}}, form)
}

// TextToSoundEffects generates a sound effect from a text description.
// durationSeconds of zero lets the vendor pick a duration.
func (c *Client) TextToSoundEffects(ctx context.Context, text string, durationSeconds float64, outputFormat string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "text is required", Retryable: false}
	}
	payload := map[string]any{"text": text}
	if durationSeconds > 0 {
		payload["duration_seconds"] = durationSeconds
	}
	format := strings.TrimSpace(outputFormat)
	if format == "" {
		format = DefaultOutputFormat
	}
	return c.postBinary(ctx, "/v1/sound-generation", url.Values{"output_format": {format}}, payload)
}

// AudioIsolation strips background noise, keeping only the voice track.
func (c *Client) AudioIsolation(ctx context.Context, filename string, audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "audio input is empty", Retryable: false}
	}
	form := newMultipartForm()
	form.file("audio", filename, audio)
	return c.postMultipart(ctx, "/v1/audio-isolation", nil, form)
}
