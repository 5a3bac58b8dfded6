// Package sse exposes the MCP dispatcher over the legacy SSE transport:
// a long-lived event stream down and POSTed JSON-RPC frames up.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"el2mcp/internal/config"
	"el2mcp/internal/mcp"
)

const (
	sessionQueryParam = "session_id"
	streamBufferSize  = 16
	maxRequestBody    = 32 << 20
)

// Server pairs each SSE stream with a session and relays JSON-RPC responses
// produced by the wrapped MCP server back over the stream.
type Server struct {
	cfg    config.Config
	mcp    *mcp.Server
	logger *log.Logger

	mu      sync.Mutex
	streams map[string]chan []byte
}

func NewServer(cfg config.Config, mcpServer *mcp.Server, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:     cfg,
		mcp:     mcpServer,
		logger:  logger,
		streams: make(map[string]chan []byte),
	}
}

// Router assembles the SSE route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.checkOrigin)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Mcp-Session-Id"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	}).Handler)

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Get("/sse", s.handleStream)
	r.Post("/messages", s.handleMessage)

	return r
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"service":   "el2mcp",
		"transport": "sse",
		"endpoints": []string{"GET /sse", "POST /messages", "GET /health"},
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStream opens the event stream: an endpoint event tells the client
// where to POST, then responses flow as message events until the client
// disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := uuid.NewString()
	ch := make(chan []byte, streamBufferSize)
	s.mu.Lock()
	s.streams[sessionID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.streams, sessionID)
		s.mu.Unlock()
		s.mcp.CloseSession(sessionID)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Mcp-Session-Id", sessionID)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?%s=%s\n\n", sessionQueryParam, sessionID)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
			flusher.Flush()
		}
	}
}

// handleMessage accepts one JSON-RPC frame, dispatches it, and queues the
// response (if any) onto the session's stream. The POST itself only
// acknowledges receipt.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get(sessionQueryParam))
	if sessionID == "" {
		http.Error(w, "session_id query parameter is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	ch, ok := s.streams[sessionID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	resp, _ := s.mcp.Dispatch(r.Context(), body, sessionID)
	if resp != nil {
		frame, err := json.Marshal(resp)
		if err != nil {
			s.logger.Printf("sse: marshal response: %v", err)
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
		select {
		case ch <- frame:
		default:
			s.logger.Printf("sse: stream %s is backed up, dropping response", sessionID)
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

// checkOrigin rejects browser requests from non-allowlisted origins. Requests
// without an Origin header and loopback origins pass.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Host == "" {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		if isLoopbackHost(parsed.Hostname()) || s.originAllowed(parsed) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "origin not allowed", http.StatusForbidden)
	})
}

func (s *Server) originAllowed(parsed *url.URL) bool {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.ToLower(strings.TrimRight(strings.TrimSpace(allowed), "/")) == key {
			return true
		}
	}
	return false
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
