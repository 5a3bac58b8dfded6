package elevenlabs

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"el2mcp/internal/model"
)

// AgentSummary is one conversational agent in a listing.
type AgentSummary struct {
	AgentID            string `json:"agent_id"`
	Name               string `json:"name"`
	CreatedAtUnixSecs  int64  `json:"created_at_unix_secs,omitempty"`
	AccessLevel        string `json:"access_level,omitempty"`
	LastCallTimeUnix   int64  `json:"last_call_time_unix_secs,omitempty"`
	ConversationsCount int    `json:"conversations_count,omitempty"`
}

type agentListResponse struct {
	Agents  []AgentSummary `json:"agents"`
	HasMore bool           `json:"has_more"`
}

type createAgentResponse struct {
	AgentID string `json:"agent_id"`
}

// CreateAgent creates a conversational agent. config is the full
// conversation_config document plus top-level fields like name; the vendor
// schema is large and evolving, so it is passed through untyped.
func (c *Client) CreateAgent(ctx context.Context, config map[string]any) (string, error) {
	if len(config) == 0 {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "agent config is required", Retryable: false}
	}
	var resp createAgentResponse
	if err := c.sendJSON(ctx, "POST", "/v1/convai/agents/create", nil, config, &resp); err != nil {
		return "", err
	}
	if resp.AgentID == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "create agent response had no agent id", Retryable: false}
	}
	return resp.AgentID, nil
}

// GetAgent fetches the full agent document, untyped for the same reason
// CreateAgent takes one.
func (c *Client) GetAgent(ctx context.Context, agentID string) (map[string]any, error) {
	id := strings.TrimSpace(agentID)
	if id == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "agent_id is required", Retryable: false}
	}
	var doc map[string]any
	if err := c.getJSON(ctx, "/v1/convai/agents/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateAgent patches an agent document.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, patch map[string]any) error {
	id := strings.TrimSpace(agentID)
	if id == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "agent_id is required", Retryable: false}
	}
	return c.sendJSON(ctx, "PATCH", "/v1/convai/agents/"+url.PathEscape(id), nil, patch, nil)
}

type duplicateAgentResponse struct {
	AgentID string `json:"agent_id"`
}

// DuplicateAgent copies an existing agent and returns the new agent's id.
// name overrides the copy's name when non-empty.
func (c *Client) DuplicateAgent(ctx context.Context, agentID, name string) (string, error) {
	id := strings.TrimSpace(agentID)
	if id == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "agent_id is required", Retryable: false}
	}
	payload := map[string]any{}
	if n := strings.TrimSpace(name); n != "" {
		payload["name"] = n
	}
	var resp duplicateAgentResponse
	if err := c.sendJSON(ctx, "POST", "/v1/convai/agents/"+url.PathEscape(id)+"/duplicate", nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.AgentID == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "duplicate agent response had no agent id", Retryable: false}
	}
	return resp.AgentID, nil
}

// DeleteAgent removes an agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	id := strings.TrimSpace(agentID)
	if id == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "agent_id is required", Retryable: false}
	}
	return c.delete(ctx, "/v1/convai/agents/"+url.PathEscape(id))
}

// ListAgents pages through the user's agents.
func (c *Client) ListAgents(ctx context.Context, search string, pageSize int) ([]AgentSummary, bool, error) {
	query := url.Values{}
	if s := strings.TrimSpace(search); s != "" {
		query.Set("search", s)
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	var resp agentListResponse
	if err := c.getJSON(ctx, "/v1/convai/agents", query, &resp); err != nil {
		return nil, false, err
	}
	return resp.Agents, resp.HasMore, nil
}

// TranscriptEntry is one turn of an agent conversation.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
	TimeIn  int64  `json:"time_in_call_secs,omitempty"`
}

// Conversation is one agent call with its transcript.
type Conversation struct {
	ConversationID string            `json:"conversation_id"`
	AgentID        string            `json:"agent_id"`
	Status         string            `json:"status"`
	Transcript     []TranscriptEntry `json:"transcript,omitempty"`
	StartTimeUnix  int64             `json:"start_time_unix_secs,omitempty"`
	CallDurationS  int               `json:"call_duration_secs,omitempty"`
}

type conversationListResponse struct {
	Conversations []Conversation `json:"conversations"`
	HasMore       bool           `json:"has_more"`
	NextCursor    string         `json:"next_cursor,omitempty"`
}

// GetConversation fetches one conversation including its transcript.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "conversation_id is required", Retryable: false}
	}
	var conv Conversation
	if err := c.getJSON(ctx, "/v1/convai/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationAudio downloads the recorded audio of a conversation.
func (c *Client) GetConversationAudio(ctx context.Context, conversationID string) ([]byte, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "conversation_id is required", Retryable: false}
	}
	return c.getBinary(ctx, "/v1/convai/conversations/"+url.PathEscape(id)+"/audio", nil)
}

// DeleteConversation removes a conversation and its recording.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "conversation_id is required", Retryable: false}
	}
	return c.delete(ctx, "/v1/convai/conversations/"+url.PathEscape(id))
}

// ConversationQuery filters conversation listings.
type ConversationQuery struct {
	AgentID    string
	Cursor     string
	CallStatus string
	PageSize   int
}

// ListConversations pages through agent conversations.
func (c *Client) ListConversations(ctx context.Context, q ConversationQuery) ([]Conversation, bool, string, error) {
	query := url.Values{}
	if s := strings.TrimSpace(q.AgentID); s != "" {
		query.Set("agent_id", s)
	}
	if s := strings.TrimSpace(q.Cursor); s != "" {
		query.Set("cursor", s)
	}
	if s := strings.TrimSpace(q.CallStatus); s != "" {
		query.Set("call_status", s)
	}
	if q.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(q.PageSize))
	}
	var resp conversationListResponse
	if err := c.getJSON(ctx, "/v1/convai/conversations", query, &resp); err != nil {
		return nil, false, "", err
	}
	return resp.Conversations, resp.HasMore, resp.NextCursor, nil
}
