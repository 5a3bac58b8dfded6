package elevenlabs

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"el2mcp/internal/model"
)

// HistoryItem is one generated-audio record.
type HistoryItem struct {
	HistoryItemID string `json:"history_item_id"`
	Text          string `json:"text"`
	VoiceID       string `json:"voice_id,omitempty"`
	VoiceName     string `json:"voice_name,omitempty"`
	ModelID       string `json:"model_id,omitempty"`
	DateUnix      int64  `json:"date_unix"`
	ContentType   string `json:"content_type,omitempty"`
	Source        string `json:"source,omitempty"`
}

type historyListResponse struct {
	History           []HistoryItem `json:"history"`
	HasMore           bool          `json:"has_more"`
	LastHistoryItemID string        `json:"last_history_item_id"`
}

// HistoryQuery filters and pages through generation history.
type HistoryQuery struct {
	PageSize   int
	StartAfter string
	VoiceID    string
	Search     string
	Source     string
}

// ListHistory pages through generated items, newest first.
func (c *Client) ListHistory(ctx context.Context, q HistoryQuery) ([]HistoryItem, bool, string, error) {
	query := url.Values{}
	if q.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if s := strings.TrimSpace(q.StartAfter); s != "" {
		query.Set("start_after_history_item_id", s)
	}
	if s := strings.TrimSpace(q.VoiceID); s != "" {
		query.Set("voice_id", s)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		query.Set("search", s)
	}
	if s := strings.TrimSpace(q.Source); s != "" {
		query.Set("source", s)
	}
	var resp historyListResponse
	if err := c.getJSON(ctx, "/v1/history", query, &resp); err != nil {
		return nil, false, "", err
	}
	return resp.History, resp.HasMore, resp.LastHistoryItemID, nil
}

// GetHistoryItem fetches one history record by id.
func (c *Client) GetHistoryItem(ctx context.Context, historyItemID string) (*HistoryItem, error) {
	id := strings.TrimSpace(historyItemID)
	if id == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "history_item_id is required", Retryable: false}
	}
	var item HistoryItem
	if err := c.getJSON(ctx, "/v1/history/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DownloadHistoryAudio fetches the audio for a single history item.
func (c *Client) DownloadHistoryAudio(ctx context.Context, historyItemID string) ([]byte, error) {
	id := strings.TrimSpace(historyItemID)
	if id == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "history_item_id is required", Retryable: false}
	}
	return c.getBinary(ctx, "/v1/history/"+url.PathEscape(id)+"/audio", nil)
}

// DeleteHistoryItem removes one history record.
func (c *Client) DeleteHistoryItem(ctx context.Context, historyItemID string) error {
	id := strings.TrimSpace(historyItemID)
	if id == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "history_item_id is required", Retryable: false}
	}
	return c.delete(ctx, "/v1/history/"+url.PathEscape(id))
}

// DownloadHistoryItems fetches audio for several items in one call. One id
// returns the raw audio; several ids return a zip archive.
func (c *Client) DownloadHistoryItems(ctx context.Context, historyItemIDs []string) ([]byte, error) {
	ids := make([]string, 0, len(historyItemIDs))
	for _, id := range historyItemIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "at least one history_item_id is required", Retryable: false}
	}
	payload := map[string]any{"history_item_ids": ids}
	return c.postBinary(ctx, "/v1/history/download", nil, payload)
}
