package elevenlabs

import (
	"context"
	"strings"

	"el2mcp/internal/model"
)

type knowledgeBaseResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AddKnowledgeBaseText uploads a text document to the knowledge base and
// returns its id.
func (c *Client) AddKnowledgeBaseText(ctx context.Context, name, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "text is required", Retryable: false}
	}
	payload := map[string]any{"name": name, "text": text}
	var resp knowledgeBaseResponse
	if err := c.sendJSON(ctx, "POST", "/v1/convai/knowledge-base/text", nil, payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// AddKnowledgeBaseURL registers a URL as a knowledge base document.
func (c *Client) AddKnowledgeBaseURL(ctx context.Context, name, pageURL string) (string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "url is required", Retryable: false}
	}
	payload := map[string]any{"name": name, "url": pageURL}
	var resp knowledgeBaseResponse
	if err := c.sendJSON(ctx, "POST", "/v1/convai/knowledge-base/url", nil, payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetDocumentContent fetches the extracted text of a knowledge base document.
func (c *Client) GetDocumentContent(ctx context.Context, documentID string) (string, error) {
	id := strings.TrimSpace(documentID)
	if id == "" {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "document_id is required", Retryable: false}
	}
	body, err := c.getBinary(ctx, "/v1/convai/knowledge-base/"+id+"/content", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DeleteKnowledgeBaseDocument removes a document from the knowledge base.
// The vendor rejects the delete while the document is still attached to an
// agent; that error passes through unchanged.
func (c *Client) DeleteKnowledgeBaseDocument(ctx context.Context, documentID string) error {
	id := strings.TrimSpace(documentID)
	if id == "" {
		return &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "document_id is required", Retryable: false}
	}
	return c.delete(ctx, "/v1/convai/knowledge-base/"+id)
}

// AddKnowledgeBaseFile uploads a local document to the knowledge base.
func (c *Client) AddKnowledgeBaseFile(ctx context.Context, name, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &model.VendorError{Code: "ELEVENLABS_FAILED", Message: "file content is empty", Retryable: false}
	}
	form := newMultipartForm()
	form.field("name", name)
	form.file("file", filename, data)
	body, err := c.postMultipart(ctx, "/v1/convai/knowledge-base/file", nil, form)
	if err != nil {
		return "", err
	}
	var resp knowledgeBaseResponse
	if err := decodeJSON(body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
