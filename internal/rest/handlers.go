package rest

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"el2mcp/internal/elevenlabs"
)

const maxUploadBytes = 64 << 20

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "el2mcp",
		"status":  "running",
		"endpoints": []string{
			"GET /health",
			"POST /api/tts",
			"POST /api/tts/stream",
			"POST /api/sfx",
			"POST /api/stt",
			"GET /api/voices",
			"GET /api/voices/{voiceID}",
			"POST /api/voices/clone",
			"GET /api/agents",
			"POST /api/agents",
			"GET /api/agents/{agentID}",
			"GET /api/outputs",
		},
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ttsRequest struct {
	Text         string `json:"text"`
	VoiceID      string `json:"voice_id,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

func (h *Handler) decodeTTSRequest(r *http.Request) (elevenlabs.TTSRequest, string) {
	var body ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return elevenlabs.TTSRequest{}, "invalid request body"
	}
	if strings.TrimSpace(body.Text) == "" {
		return elevenlabs.TTSRequest{}, "text is required"
	}
	voiceID := body.VoiceID
	if voiceID == "" {
		voiceID = h.cfg.VoiceID
	}
	return elevenlabs.TTSRequest{
		Text:         body.Text,
		VoiceID:      voiceID,
		ModelID:      body.ModelID,
		OutputFormat: body.OutputFormat,
		LanguageCode: body.LanguageCode,
	}, ""
}

func (h *Handler) textToSpeech(w http.ResponseWriter, r *http.Request) {
	req, problem := h.decodeTTSRequest(r)
	if problem != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": problem})
		return
	}

	audio, err := h.api.TextToSpeech(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"voice_id":     req.VoiceID,
		"content_type": "audio/mpeg",
		"audio_base64": base64.StdEncoding.EncodeToString(audio),
	})
}

func (h *Handler) textToSpeechStream(w http.ResponseWriter, r *http.Request) {
	req, problem := h.decodeTTSRequest(r)
	if problem != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": problem})
		return
	}

	stream, err := h.api.TextToSpeechStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := io.Copy(w, stream); err != nil {
		h.logger.Printf("rest: stream copy: %v", err)
	}
}

func (h *Handler) soundEffects(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text            string  `json:"text"`
		DurationSeconds float64 `json:"duration_seconds,omitempty"`
		OutputFormat    string  `json:"output_format,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	if body.DurationSeconds != 0 && (body.DurationSeconds < 0.5 || body.DurationSeconds > 22) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration_seconds must be between 0.5 and 22"})
		return
	}

	audio, err := h.api.TextToSoundEffects(r.Context(), body.Text, body.DurationSeconds, body.OutputFormat)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content_type": "audio/mpeg",
		"audio_base64": base64.StdEncoding.EncodeToString(audio),
	})
}

func (h *Handler) speechToText(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload"})
		return
	}

	diarize := r.FormValue("diarize") == "true"
	tr, err := h.api.Transcribe(r.Context(), elevenlabs.TranscribeRequest{
		FileName:     header.Filename,
		Data:         data,
		LanguageCode: r.FormValue("language_code"),
		Diarize:      diarize,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"language_code": tr.LanguageCode,
		"text":          elevenlabs.FormatTranscript(tr, diarize),
	})
}

func (h *Handler) listVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.api.SearchVoices(r.Context(), r.URL.Query().Get("search"), "", "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"voices": voices})
}

func (h *Handler) getVoice(w http.ResponseWriter, r *http.Request) {
	voice, err := h.api.GetVoice(r.Context(), chi.URLParam(r, "voiceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voice)
}

func (h *Handler) cloneVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one audio file is required"})
		return
	}

	samples := make([]elevenlabs.CloneFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to open upload " + header.Filename})
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		_ = file.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read upload " + header.Filename})
			return
		}
		samples = append(samples, elevenlabs.CloneFile{Name: header.Filename, Data: data})
	}

	voiceID, err := h.api.CloneVoice(r.Context(), name, r.FormValue("description"), samples)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"voice_id": voiceID, "name": name})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	pageSize := 30
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "page_size must be an integer between 1 and 100"})
			return
		}
		pageSize = n
	}

	agents, hasMore, err := h.api.ListAgents(r.Context(), r.URL.Query().Get("search"), pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents":   agents,
		"has_more": hasMore,
	})
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var agentConfig map[string]any
	if err := json.NewDecoder(r.Body).Decode(&agentConfig); err != nil || len(agentConfig) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent config"})
		return
	}

	agentID, err := h.api.CreateAgent(r.Context(), agentConfig)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"agent_id": agentID})
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	doc, err := h.api.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) listOutputs(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "generated-file ledger is not configured"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer between 1 and 500"})
			return
		}
		limit = n
	}

	artifacts, err := h.ledger.Recent(r.Context(), r.URL.Query().Get("tool"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	outputs := make([]map[string]interface{}, 0, len(artifacts))
	for _, a := range artifacts {
		outputs = append(outputs, map[string]interface{}{
			"tool":         a.Tool,
			"file_name":    a.FileName,
			"file_path":    a.FilePath,
			"mime_type":    a.MIMEType,
			"size_bytes":   a.SizeBytes,
			"voice_id":     a.VoiceID,
			"created_unix": a.CreatedUnix,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"outputs": outputs})
}
