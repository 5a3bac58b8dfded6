package elevenlabs

import (
	"context"
	"strconv"
	"strings"

	"el2mcp/internal/model"
)

// TranscribeRequest describes one speech-to-text call.
type TranscribeRequest struct {
	FileName       string
	Data           []byte
	ModelID        string
	LanguageCode   string
	Diarize        bool
	TagAudioEvents bool
	NumSpeakers    int
}

// Word is one token of a transcript with optional speaker attribution.
type Word struct {
	Text      string  `json:"text"`
	Type      string  `json:"type"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	Start     float64 `json:"start,omitempty"`
	End       float64 `json:"end,omitempty"`
}

// Transcription is the structured result of a speech-to-text call.
type Transcription struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
	Words        []Word `json:"words,omitempty"`
}

// Transcribe converts speech audio to text, optionally with per-speaker
// diarization.
func (c *Client) Transcribe(ctx context.Context, req TranscribeRequest) (*Transcription, error) {
	if len(req.Data) == 0 {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "transcription input is empty", Retryable: false}
	}

	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		modelID = DefaultSTTModel
	}

	form := newMultipartForm()
	form.file("file", req.FileName, req.Data)
	form.field("model_id", modelID)
	form.field("language_code", strings.TrimSpace(req.LanguageCode))
	form.field("diarize", strconv.FormatBool(req.Diarize))
	form.field("tag_audio_events", strconv.FormatBool(req.TagAudioEvents))
	if req.NumSpeakers > 0 {
		form.field("num_speakers", strconv.Itoa(req.NumSpeakers))
	}

	body, err := c.postMultipart(ctx, "/v1/speech-to-text", nil, form)
	if err != nil {
		return nil, err
	}
	var parsed Transcription
	if err := decodeJSON(body, &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Text) == "" && len(parsed.Words) == 0 {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "stt response had no text content", Retryable: false}
	}
	return &parsed, nil
}

// FormatTranscript renders a transcription as plain text. With diarize set
// and speaker ids present, words are grouped into per-speaker paragraphs in
// utterance order; otherwise the flat text is returned.
func FormatTranscript(tr *Transcription, diarize bool) string {
	if tr == nil {
		return ""
	}
	if !diarize || len(tr.Words) == 0 {
		return strings.TrimSpace(tr.Text)
	}

	hasSpeakers := false
	for _, w := range tr.Words {
		if w.SpeakerID != "" {
			hasSpeakers = true
			break
		}
	}
	if !hasSpeakers {
		return strings.TrimSpace(tr.Text)
	}

	var b strings.Builder
	current := ""
	for _, w := range tr.Words {
		if w.Type == "spacing" {
			continue
		}
		if w.SpeakerID != current {
			if current != "" {
				b.WriteString("\n\n")
			}
			b.WriteString(w.SpeakerID)
			b.WriteString(": ")
			current = w.SpeakerID
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(w.Text))
	}
	return b.String()
}
