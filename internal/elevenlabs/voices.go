package elevenlabs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"el2mcp/internal/model"
)

// Voice is the subset of voice metadata surfaced to clients.
type Voice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category,omitempty"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	PreviewURL  string            `json:"preview_url,omitempty"`
}

type voiceListResponse struct {
	Voices  []Voice `json:"voices"`
	HasMore bool    `json:"has_more"`
}

// SearchVoices lists voices in the user's library, optionally filtered by a
// search term. sort may be "name" or "created_at_unix".
func (c *Client) SearchVoices(ctx context.Context, search, sort, sortDirection string) ([]Voice, error) {
	query := url.Values{}
	if s := strings.TrimSpace(search); s != "" {
		query.Set("search", s)
	}
	if s := strings.TrimSpace(sort); s != "" {
		query.Set("sort", s)
	}
	if s := strings.TrimSpace(sortDirection); s != "" {
		query.Set("sort_direction", s)
	}
	var resp voiceListResponse
	if err := c.getJSON(ctx, "/v2/voices", query, &resp); err != nil {
		return nil, err
	}
	return resp.Voices, nil
}

// GetVoice fetches a single voice by id.
func (c *Client) GetVoice(ctx context.Context, voiceID string) (*Voice, error) {
	if strings.TrimSpace(voiceID) == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "voice_id is required", Retryable: false}
	}
	var v Voice
	if err := c.getJSON(ctx, "/v1/voices/"+url.PathEscape(strings.TrimSpace(voiceID)), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteVoice removes a voice from the user's library.
func (c *Client) DeleteVoice(ctx context.Context, voiceID string) error {
	id := strings.TrimSpace(voiceID)
	if id == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "voice_id is required", Retryable: false}
	}
	return c.delete(ctx, "/v1/voices/"+url.PathEscape(id))
}

// EditVoice updates a voice's name and/or description. The vendor edit
// endpoint takes a multipart form like voice creation does; empty fields are
// left untouched.
func (c *Client) EditVoice(ctx context.Context, voiceID, name, description string) error {
	id := strings.TrimSpace(voiceID)
	if id == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "voice_id is required", Retryable: false}
	}
	form := newMultipartForm()
	if n := strings.TrimSpace(name); n != "" {
		form.field("name", n)
	}
	if d := strings.TrimSpace(description); d != "" {
		form.field("description", d)
	}
	_, err := c.postMultipart(ctx, "/v1/voices/"+url.PathEscape(id)+"/edit", nil, form)
	return err
}

// CloneFile is one audio sample for instant voice cloning.
type CloneFile struct {
	Name string
	Data []byte
}

type cloneVoiceResponse struct {
	VoiceID string `json:"voice_id"`
}

// CloneVoice creates an instant voice clone from one or more audio samples
// and returns the new voice id.
func (c *Client) CloneVoice(ctx context.Context, name, description string, files []CloneFile) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "name is required", Retryable: false}
	}
	if len(files) == 0 {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "at least one audio sample is required", Retryable: false}
	}
	form := newMultipartForm()
	form.field("name", name)
	form.field("description", description)
	for _, f := range files {
		form.file("files", f.Name, f.Data)
	}
	body, err := c.postMultipart(ctx, "/v1/voices/add", nil, form)
	if err != nil {
		return "", err
	}
	var resp cloneVoiceResponse
	if err := decodeJSON(body, &resp); err != nil {
		return "", err
	}
	if resp.VoiceID == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "clone response had no voice id", Retryable: false}
	}
	return resp.VoiceID, nil
}

// VoicePreview is one generated voice candidate with its audio.
type VoicePreview struct {
	GeneratedVoiceID string `json:"generated_voice_id"`
	AudioBase64      string `json:"audio_base_64"`
	MediaType        string `json:"media_type"`
}

type voicePreviewsResponse struct {
	Previews []VoicePreview `json:"previews"`
	Text     string         `json:"text"`
}

// CreateVoicePreviews designs voices from a text description and returns the
// generated previews in vendor order.
func (c *Client) CreateVoicePreviews(ctx context.Context, description, sampleText string) ([]VoicePreview, string, error) {
	if strings.TrimSpace(description) == "" {
		return nil, "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "voice_description is required", Retryable: false}
	}
	payload := map[string]any{"voice_description": description}
	if t := strings.TrimSpace(sampleText); t != "" {
		payload["text"] = t
	} else {
		payload["auto_generate_text"] = true
	}
	var resp voicePreviewsResponse
	if err := c.sendJSON(ctx, "POST", "/v1/text-to-voice/create-previews", nil, payload, &resp); err != nil {
		return nil, "", err
	}
	return resp.Previews, resp.Text, nil
}

// CreateVoiceFromPreview saves a designed voice preview into the library.
func (c *Client) CreateVoiceFromPreview(ctx context.Context, generatedVoiceID, name, description string) (*Voice, error) {
	if strings.TrimSpace(generatedVoiceID) == "" {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "generated_voice_id is required", Retryable: false}
	}
	payload := map[string]any{
		"generated_voice_id": generatedVoiceID,
		"voice_name":         name,
		"voice_description":  description,
	}
	var v Voice
	if err := c.sendJSON(ctx, "POST", "/v1/text-to-voice/create-voice-from-preview", nil, payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SharedVoice is a voice from the public library.
type SharedVoice struct {
	PublicOwnerID string `json:"public_owner_id"`
	VoiceID       string `json:"voice_id"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	Gender        string `json:"gender,omitempty"`
	Age           string `json:"age,omitempty"`
	Accent        string `json:"accent,omitempty"`
	Language      string `json:"language,omitempty"`
	Description   string `json:"description,omitempty"`
}

type sharedVoicesResponse struct {
	Voices  []SharedVoice `json:"voices"`
	HasMore bool          `json:"has_more"`
}

// SearchVoiceLibrary searches the shared voice library with paging.
func (c *Client) SearchVoiceLibrary(ctx context.Context, search string, page, pageSize int) ([]SharedVoice, bool, error) {
	query := url.Values{}
	if s := strings.TrimSpace(search); s != "" {
		query.Set("search", s)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	var resp sharedVoicesResponse
	if err := c.getJSON(ctx, "/v1/shared-voices", query, &resp); err != nil {
		return nil, false, err
	}
	return resp.Voices, resp.HasMore, nil
}

// Model is one synthesis model offered by the vendor.
type Model struct {
	ModelID     string `json:"model_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListModels lists the available synthesis models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	if err := c.getJSON(ctx, "/v1/models", nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// Describe renders a one-line human summary of a voice for list output.
func (v Voice) Describe() string {
	parts := []string{fmt.Sprintf("Name: %s", v.Name), fmt.Sprintf("ID: %s", v.VoiceID)}
	if v.Category != "" {
		parts = append(parts, fmt.Sprintf("Category: %s", v.Category))
	}
	return strings.Join(parts, ", ")
}
