package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"el2mcp/internal/config"
	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/store"
)

const (
	serverName      = "el2mcp"
	serverVersion   = "0.4.0"
	protocolVersion = "2025-03-26"

	sessionHeader  = "Mcp-Session-Id"
	maxRequestBody = 32 << 20
)

// Vendor is the upstream API surface the tools call. *elevenlabs.Client
// satisfies it; tests substitute a stub.
type Vendor interface {
	TextToSpeech(ctx context.Context, req elevenlabs.TTSRequest) ([]byte, error)
	TextToSpeechWithTimestamps(ctx context.Context, req elevenlabs.TTSRequest) (*elevenlabs.TimestampedSpeech, error)
	Transcribe(ctx context.Context, req elevenlabs.TranscribeRequest) (*elevenlabs.Transcription, error)
	SpeechToSpeech(ctx context.Context, voiceID, filename string, audio []byte) ([]byte, error)
	TextToSoundEffects(ctx context.Context, text string, durationSeconds float64, outputFormat string) ([]byte, error)
	AudioIsolation(ctx context.Context, filename string, audio []byte) ([]byte, error)

	CreateVoicePreviews(ctx context.Context, description, sampleText string) ([]elevenlabs.VoicePreview, string, error)
	CreateVoiceFromPreview(ctx context.Context, generatedVoiceID, name, description string) (*elevenlabs.Voice, error)
	CloneVoice(ctx context.Context, name, description string, files []elevenlabs.CloneFile) (string, error)
	SearchVoices(ctx context.Context, search, sort, sortDirection string) ([]elevenlabs.Voice, error)
	GetVoice(ctx context.Context, voiceID string) (*elevenlabs.Voice, error)
	EditVoice(ctx context.Context, voiceID, name, description string) error
	DeleteVoice(ctx context.Context, voiceID string) error
	SearchVoiceLibrary(ctx context.Context, search string, page, pageSize int) ([]elevenlabs.SharedVoice, bool, error)
	ListModels(ctx context.Context) ([]elevenlabs.Model, error)

	GetSubscription(ctx context.Context) (*elevenlabs.Subscription, error)
	GetUser(ctx context.Context) (*elevenlabs.User, error)

	ListHistory(ctx context.Context, q elevenlabs.HistoryQuery) ([]elevenlabs.HistoryItem, bool, string, error)
	GetHistoryItem(ctx context.Context, historyItemID string) (*elevenlabs.HistoryItem, error)
	DownloadHistoryAudio(ctx context.Context, historyItemID string) ([]byte, error)
	DownloadHistoryItems(ctx context.Context, historyItemIDs []string) ([]byte, error)
	DeleteHistoryItem(ctx context.Context, historyItemID string) error

	CreateAgent(ctx context.Context, config map[string]any) (string, error)
	GetAgent(ctx context.Context, agentID string) (map[string]any, error)
	UpdateAgent(ctx context.Context, agentID string, patch map[string]any) error
	DuplicateAgent(ctx context.Context, agentID, name string) (string, error)
	DeleteAgent(ctx context.Context, agentID string) error
	ListAgents(ctx context.Context, search string, pageSize int) ([]elevenlabs.AgentSummary, bool, error)
	GetConversation(ctx context.Context, conversationID string) (*elevenlabs.Conversation, error)
	ListConversations(ctx context.Context, q elevenlabs.ConversationQuery) ([]elevenlabs.Conversation, bool, string, error)
	GetConversationAudio(ctx context.Context, conversationID string) ([]byte, error)
	DeleteConversation(ctx context.Context, conversationID string) error

	AddKnowledgeBaseText(ctx context.Context, name, text string) (string, error)
	AddKnowledgeBaseURL(ctx context.Context, name, pageURL string) (string, error)
	AddKnowledgeBaseFile(ctx context.Context, name, filename string, data []byte) (string, error)
	GetDocumentContent(ctx context.Context, documentID string) (string, error)
	DeleteKnowledgeBaseDocument(ctx context.Context, documentID string) error
}

// Server dispatches JSON-RPC requests over streamable HTTP. The same Dispatch
// path also backs the SSE transport, which feeds raw frames in directly.
type Server struct {
	cfg     config.Config
	vendor  Vendor
	ledger  *store.Ledger
	tools   map[string]toolDefinition
	limiter *ipRateLimiter
	logger  *log.Logger

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewServer(cfg config.Config, vendor Vendor, ledger *store.Ledger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:      cfg,
		vendor:   vendor,
		ledger:   ledger,
		limiter:  newIPRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst),
		logger:   logger,
		sessions: make(map[string]time.Time),
	}
	s.tools = s.buildToolRegistry()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.limiter.allow(realIP(r)) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	resp, sessionID := s.Dispatch(r.Context(), body, r.Header.Get(sessionHeader))
	if sessionID != "" {
		w.Header().Set(sessionHeader, sessionID)
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("mcp: write response: %v", err)
	}
}

// Dispatch handles one raw JSON-RPC frame. A nil response means the frame was
// a notification. The returned session id is non-empty when the client should
// be told (or reminded of) its session.
func (s *Server) Dispatch(ctx context.Context, raw []byte, sessionID string) (*rpcResponse, string) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return newError(nil, rpcCodeParseError, "parse error", nil), sessionID
	}
	if req.JSONRPC != "2.0" {
		return newError(req.ID, rpcCodeInvalidRequest, "jsonrpc must be \"2.0\"", nil), sessionID
	}

	switch req.Method {
	case "initialize":
		sessionID = s.openSession()
		return newResult(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools":     map[string]interface{}{},
				"resources": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": serverVersion,
			},
		}), sessionID

	case "notifications/initialized", "notifications/cancelled":
		s.touchSession(sessionID)
		return nil, sessionID

	case "ping":
		s.touchSession(sessionID)
		return newResult(req.ID, map[string]interface{}{}), sessionID

	case "tools/list":
		s.touchSession(sessionID)
		return newResult(req.ID, s.toolsList()), sessionID

	case "tools/call":
		s.touchSession(sessionID)
		result, rpcErr := s.processToolsCall(ctx, req.Params)
		if rpcErr != nil {
			return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}, sessionID
		}
		return newResult(req.ID, result), sessionID

	case "resources/list":
		s.touchSession(sessionID)
		result, rpcErr := s.resourcesList()
		if rpcErr != nil {
			return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}, sessionID
		}
		return newResult(req.ID, result), sessionID

	case "resources/templates/list":
		s.touchSession(sessionID)
		return newResult(req.ID, resourceTemplates()), sessionID

	case "resources/read":
		s.touchSession(sessionID)
		result, rpcErr := s.resourcesRead(req.Params)
		if rpcErr != nil {
			return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}, sessionID
		}
		return newResult(req.ID, result), sessionID

	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			return nil, sessionID
		}
		return newError(req.ID, rpcCodeMethodNotFound, "method not found: "+req.Method, nil), sessionID
	}
}

func (s *Server) openSession() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = time.Now()
	s.mu.Unlock()
	return id
}

func (s *Server) touchSession(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.sessions[id] = time.Now()
	s.mu.Unlock()
}

// CloseSession drops a session, used by the SSE transport when a stream ends.
func (s *Server) CloseSession(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// authorized checks the optional bearer token. An empty configured token
// disables the check.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.BearerToken == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.cfg.BearerToken)) == 1
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	if isLoopbackClientIP(host) {
		return true
	}
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, allowed := range s.cfg.AllowedOrigins {
		a := strings.ToLower(strings.TrimRight(strings.TrimSpace(allowed), "/"))
		if a == key || a == strings.ToLower(parsed.Scheme+"://"+host) {
			return true
		}
	}
	return false
}
