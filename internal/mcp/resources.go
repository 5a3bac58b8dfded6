package mcp

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"el2mcp/internal/model"
	"el2mcp/internal/output"
)

const resourceURIPrefix = output.ResourceScheme + "://"

type resourcesReadParams struct {
	URI string `json:"uri"`
}

// resourcesList enumerates the files currently present in the output base
// directory. Directories and hidden files (temp files from atomic writes
// included) are skipped.
func (s *Server) resourcesList() (map[string]interface{}, *rpcError) {
	dir, err := output.ResolveOutputDir("", s.cfg.BasePath)
	if err != nil {
		return nil, resourceRPCError(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &rpcError{
			Code:    rpcCodeInternalError,
			Message: "list output directory: " + err.Error(),
			Data:    &rpcErrorData{Code: "IO_FAILURE", Retryable: false},
		}
	}

	resources := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		resources = append(resources, map[string]interface{}{
			"uri":      resourceURIPrefix + name,
			"name":     name,
			"mimeType": output.MIMETypeForExtension(ext),
		})
	}
	sort.Slice(resources, func(i, j int) bool {
		return resources[i]["name"].(string) < resources[j]["name"].(string)
	})

	return map[string]interface{}{"resources": resources}, nil
}

func resourceTemplates() map[string]interface{} {
	return map[string]interface{}{
		"resourceTemplates": []map[string]interface{}{
			{
				"uriTemplate": resourceURIPrefix + "{filename}",
				"name":        "Generated audio and transcript files",
				"description": "Files produced by the generation tools, addressed by file name.",
			},
		},
	}
}

// resourcesRead dereferences an elevenlabs:// URI back to its file content.
func (s *Server) resourcesRead(rawParams json.RawMessage) (map[string]interface{}, *rpcError) {
	var params resourcesReadParams
	if len(rawParams) == 0 || json.Unmarshal(rawParams, &params) != nil || strings.TrimSpace(params.URI) == "" {
		return nil, &rpcError{
			Code:    rpcCodeInvalidParams,
			Message: "resources/read requires a uri parameter",
			Data:    &rpcErrorData{Code: "MISSING_FIELD", Retryable: false},
		}
	}

	uri := strings.TrimSpace(params.URI)
	if !strings.HasPrefix(uri, resourceURIPrefix) {
		return nil, &rpcError{
			Code:    rpcCodeInvalidParams,
			Message: "unsupported resource scheme, expected " + resourceURIPrefix,
			Data:    &rpcErrorData{Code: "INVALID_FIELD", Retryable: false},
		}
	}

	filename := strings.TrimPrefix(uri, resourceURIPrefix)
	resource, err := output.ReadResource(filename, s.cfg.BasePath)
	if err != nil {
		return nil, resourceRPCError(err)
	}

	contents := map[string]interface{}{
		"uri":      resource.URI,
		"mimeType": resource.MIMEType,
	}
	if resource.Text != "" {
		contents["text"] = resource.Text
	} else {
		contents["blob"] = resource.Data
	}
	return map[string]interface{}{
		"contents": []map[string]interface{}{contents},
	}, nil
}

func resourceRPCError(err error) *rpcError {
	toolErr := toolErrorFrom(err)
	code := rpcCodeInternalError
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrFileNotFound):
		code = rpcCodeInvalidParams
	case errors.Is(err, model.ErrPathEscape), errors.Is(err, model.ErrInvalidPath):
		code = rpcCodeInvalidParams
	}
	return &rpcError{
		Code:    code,
		Message: toolErr.Message,
		Data:    &rpcErrorData{Code: toolErr.Code, Retryable: toolErr.Retryable},
	}
}
