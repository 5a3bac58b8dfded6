package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"el2mcp/internal/config"
	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/model"
	"el2mcp/internal/store"
)

// API is the slice of the vendor client the REST façade uses.
type API interface {
	TextToSpeech(ctx context.Context, req elevenlabs.TTSRequest) ([]byte, error)
	TextToSpeechStream(ctx context.Context, req elevenlabs.TTSRequest) (io.ReadCloser, error)
	TextToSoundEffects(ctx context.Context, text string, durationSeconds float64, outputFormat string) ([]byte, error)
	Transcribe(ctx context.Context, req elevenlabs.TranscribeRequest) (*elevenlabs.Transcription, error)
	SearchVoices(ctx context.Context, search, sort, sortDirection string) ([]elevenlabs.Voice, error)
	GetVoice(ctx context.Context, voiceID string) (*elevenlabs.Voice, error)
	CloneVoice(ctx context.Context, name, description string, files []elevenlabs.CloneFile) (string, error)
	CreateAgent(ctx context.Context, config map[string]any) (string, error)
	ListAgents(ctx context.Context, search string, pageSize int) ([]elevenlabs.AgentSummary, bool, error)
	GetAgent(ctx context.Context, agentID string) (map[string]any, error)
}

// Handler serves the plain HTTP API in front of the vendor client.
type Handler struct {
	cfg    config.Config
	api    API
	ledger *store.Ledger
	logger *log.Logger
}

func NewHandler(cfg config.Config, api API, ledger *store.Ledger, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{cfg: cfg, api: api, ledger: ledger, logger: logger}
}

// Router assembles the chi route tree with the shared middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: h.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Api-Key"},
	}).Handler)

	r.Get("/", h.root)
	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAPIKey)

		r.Post("/tts", h.textToSpeech)
		r.Post("/tts/stream", h.textToSpeechStream)
		r.Post("/sfx", h.soundEffects)
		r.Post("/stt", h.speechToText)

		r.Get("/voices", h.listVoices)
		r.Get("/voices/{voiceID}", h.getVoice)
		r.Post("/voices/clone", h.cloneVoice)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{agentID}", h.getAgent)

		r.Get("/outputs", h.listOutputs)
	})

	return r
}

// requireAPIKey checks X-Api-Key against the configured key. With no key
// configured the API is open, matching local-development usage.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.RESTAPIKey != "" && r.Header.Get("X-Api-Key") != h.cfg.RESTAPIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain and vendor errors onto HTTP status codes. Vendor
// errors carry the upstream status where one was observed.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var ve *model.VendorError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadGateway
		if ve.StatusCode >= 400 && ve.StatusCode < 600 {
			status = ve.StatusCode
		}
	case errors.Is(err, model.ErrInvalidPath),
		errors.Is(err, model.ErrPathEscape),
		errors.Is(err, model.ErrUnsupportedContent),
		errors.Is(err, model.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrFileNotFound), errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrIOFailure):
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
