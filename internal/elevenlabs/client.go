package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"el2mcp/internal/model"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultTimeout = 120 * time.Second

	// DefaultTTSModel is used when a synthesis call does not name a model.
	DefaultTTSModel = "eleven_multilingual_v2"
	// DefaultSTSModel is the speech-to-speech conversion model.
	DefaultSTSModel = "eleven_multilingual_sts_v2"
	// DefaultSTTModel is the transcription model.
	DefaultSTTModel = "scribe_v1"
	// DefaultOutputFormat is the audio container for synthesized speech.
	DefaultOutputFormat = "mp3_44100_128"
)

type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		APIKey:     strings.TrimSpace(apiKey),
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Request, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, &model.VendorError{
			Code:      "ELEVENLABS_AUTH",
			Message:   "missing ElevenLabs API key",
			Retryable: false,
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "failed to build request", Retryable: false, Cause: err}
	}
	req.Header.Set("xi-api-key", c.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// do runs the request and returns the raw response body. Non-2xx statuses are
// mapped onto the vendor error taxonomy; transport failures are retryable.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "request failed", Retryable: true, Cause: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "failed to read response", Retryable: true, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = fmt.Sprintf("elevenlabs returned status %d", resp.StatusCode)
		}
		return nil, mapVendorError(resp.StatusCode, message)
	}
	return body, nil
}

// doStream is like do but hands the body back unread, for audio streaming.
// The caller owns closing the returned body.
func (c *Client) doStream(req *http.Request) (io.ReadCloser, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "request failed", Retryable: true, Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = fmt.Sprintf("elevenlabs returned status %d", resp.StatusCode)
		}
		return nil, mapVendorError(resp.StatusCode, message)
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(path, query), nil, "")
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "failed to marshal request", Retryable: false, Cause: err}
	}
	req, err := c.newRequest(ctx, method, c.endpoint(path, query), bytes.NewReader(encoded), "application/json")
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeJSON(body, out)
}

func (c *Client) postBinary(ctx context.Context, path string, query url.Values, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "failed to marshal request", Retryable: false, Cause: err}
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path, query), bytes.NewReader(encoded), "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	return c.do(req)
}

func (c *Client) getBinary(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(path, query), nil, "")
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.endpoint(path, nil), nil, "")
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// multipartForm accumulates fields and file parts for multipart endpoints.
type multipartForm struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

func newMultipartForm() *multipartForm {
	f := &multipartForm{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

func (f *multipartForm) field(name, value string) {
	if f.err != nil || strings.TrimSpace(value) == "" {
		return
	}
	f.err = f.writer.WriteField(name, value)
}

func (f *multipartForm) file(field, filename string, data []byte) {
	if f.err != nil {
		return
	}
	name := strings.TrimSpace(filename)
	if name == "" {
		name = "upload.bin"
	}
	part, err := f.writer.CreateFormFile(field, name)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(data)
}

func (f *multipartForm) close() error {
	if f.err != nil {
		return f.err
	}
	return f.writer.Close()
}

func (c *Client) postMultipart(ctx context.Context, path string, query url.Values, form *multipartForm) ([]byte, error) {
	if err := form.close(); err != nil {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "failed to build multipart body", Retryable: false, Cause: err}
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint(path, query), bytes.NewReader(form.buf.Bytes()), form.writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func encodeJSONBody(payload any) (io.Reader, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "failed to marshal request", Retryable: false, Cause: err}
	}
	return bytes.NewReader(encoded), nil
}

func decodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "failed to decode response", Retryable: false, Cause: err}
	}
	return nil
}

func mapVendorError(statusCode int, message string) error {
	ve := &model.VendorError{
		Code:       "ELEVENLABS_FAILED",
		Message:    message,
		Retryable:  false,
		StatusCode: statusCode,
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		ve.Code = "ELEVENLABS_AUTH"
		ve.Retryable = false
	case statusCode == http.StatusTooManyRequests:
		ve.Code = "ELEVENLABS_RATE_LIMIT"
		ve.Retryable = true
	case statusCode >= http.StatusInternalServerError:
		ve.Retryable = true
	case statusCode >= http.StatusBadRequest:
		ve.Retryable = false
	default:
		ve.Retryable = true
	}

	return ve
}
