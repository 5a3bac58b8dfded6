package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"el2mcp/internal/model"
	"el2mcp/internal/output"
	"el2mcp/internal/store"
)

const (
	toolNameTextToSpeech         = "text_to_speech"
	toolNameTTSWithTimestamps    = "text_to_speech_with_timestamps"
	toolNameSpeechToText         = "speech_to_text"
	toolNameTextToSoundEffects   = "text_to_sound_effects"
	toolNameSpeechToSpeech       = "speech_to_speech"
	toolNameIsolateAudio         = "isolate_audio"
	toolNameTextToVoice          = "text_to_voice"
	toolNameCreateVoiceFromPrev  = "create_voice_from_preview"
	toolNameVoiceClone           = "voice_clone"
	toolNameSearchVoices         = "search_voices"
	toolNameSearchVoiceLibrary   = "search_voice_library"
	toolNameGetVoice             = "get_voice"
	toolNameEditVoice            = "edit_voice"
	toolNameDeleteVoice          = "delete_voice"
	toolNameListModels           = "list_models"
	toolNameCheckSubscription    = "check_subscription"
	toolNameGetUserInfo          = "get_user_info"
	toolNameGetHistory           = "get_history"
	toolNameGetHistoryItemAudio  = "get_history_item_audio"
	toolNameDownloadHistoryItems = "download_history_items"
	toolNameDeleteHistoryItem    = "delete_history_item"
	toolNameCreateAgent          = "create_agent"
	toolNameListAgents           = "list_agents"
	toolNameGetAgent             = "get_agent"
	toolNameDuplicateAgent       = "duplicate_agent"
	toolNameDeleteAgent          = "delete_agent"
	toolNameListConversations    = "list_conversations"
	toolNameGetConversation      = "get_conversation"
	toolNameGetConversationAudio = "get_conversation_audio"
	toolNameDeleteConversation   = "delete_conversation"
	toolNameAddKnowledgeBase     = "add_knowledge_base_to_agent"
	toolNameGetDocumentContent   = "get_document_content"
	toolNameDeleteKnowledgeDoc   = "delete_knowledge_base_document"
	toolNameListGeneratedFiles   = "list_generated_files"
)

var toolOrder = []string{
	toolNameTextToSpeech,
	toolNameTTSWithTimestamps,
	toolNameSpeechToText,
	toolNameTextToSoundEffects,
	toolNameSpeechToSpeech,
	toolNameIsolateAudio,
	toolNameTextToVoice,
	toolNameCreateVoiceFromPrev,
	toolNameVoiceClone,
	toolNameSearchVoices,
	toolNameSearchVoiceLibrary,
	toolNameGetVoice,
	toolNameEditVoice,
	toolNameDeleteVoice,
	toolNameListModels,
	toolNameCheckSubscription,
	toolNameGetUserInfo,
	toolNameGetHistory,
	toolNameGetHistoryItemAudio,
	toolNameDownloadHistoryItems,
	toolNameDeleteHistoryItem,
	toolNameCreateAgent,
	toolNameListAgents,
	toolNameGetAgent,
	toolNameDuplicateAgent,
	toolNameDeleteAgent,
	toolNameListConversations,
	toolNameGetConversation,
	toolNameGetConversationAudio,
	toolNameDeleteConversation,
	toolNameAddKnowledgeBase,
	toolNameGetDocumentContent,
	toolNameDeleteKnowledgeDoc,
	toolNameListGeneratedFiles,
}

type toolHandler func(context.Context, map[string]interface{}) (toolCallResult, *toolExecutionError)

type toolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	handler     toolHandler            `json:"-"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content           []toolContentItem `json:"content"`
	StructuredContent interface{}       `json:"structuredContent,omitempty"`
	IsError           bool              `json:"isError,omitempty"`
}

// resourceContents is the MCP embedded-resource payload: the artifact either
// as UTF-8 text or as base64 in Blob, never both.
type resourceContents struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

type toolContentItem struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MIMEType string            `json:"mimeType,omitempty"`
	Resource *resourceContents `json:"resource,omitempty"`
}

type toolExecutionError struct {
	Code      string
	Message   string
	Retryable bool
}

func (s *Server) buildToolRegistry() map[string]toolDefinition {
	return map[string]toolDefinition{
		toolNameTextToSpeech: {
			Name:        toolNameTextToSpeech,
			Description: "Convert text to speech with a given voice and save the audio.",
			InputSchema: textToSpeechInputSchema(),
			handler:     s.handleTextToSpeech,
		},
		toolNameTTSWithTimestamps: {
			Name:        toolNameTTSWithTimestamps,
			Description: "Convert text to speech and return character-level timing alongside the audio.",
			InputSchema: textToSpeechInputSchema(),
			handler:     s.handleTextToSpeechWithTimestamps,
		},
		toolNameSpeechToText: {
			Name:        toolNameSpeechToText,
			Description: "Transcribe speech from an audio file, optionally with speaker diarization.",
			InputSchema: speechToTextInputSchema(),
			handler:     s.handleSpeechToText,
		},
		toolNameTextToSoundEffects: {
			Name:        toolNameTextToSoundEffects,
			Description: "Generate a sound effect from a text description (up to 30 seconds).",
			InputSchema: soundEffectsInputSchema(),
			handler:     s.handleTextToSoundEffects,
		},
		toolNameSpeechToSpeech: {
			Name:        toolNameSpeechToSpeech,
			Description: "Transform audio from one voice to another.",
			InputSchema: speechToSpeechInputSchema(),
			handler:     s.handleSpeechToSpeech,
		},
		toolNameIsolateAudio: {
			Name:        toolNameIsolateAudio,
			Description: "Remove background noise from an audio file, keeping only the voice.",
			InputSchema: isolateAudioInputSchema(),
			handler:     s.handleIsolateAudio,
		},
		toolNameTextToVoice: {
			Name:        toolNameTextToVoice,
			Description: "Design three voice previews from a text description.",
			InputSchema: textToVoiceInputSchema(),
			handler:     s.handleTextToVoice,
		},
		toolNameCreateVoiceFromPrev: {
			Name:        toolNameCreateVoiceFromPrev,
			Description: "Save a designed voice preview into the voice library.",
			InputSchema: createVoiceFromPreviewInputSchema(),
			handler:     s.handleCreateVoiceFromPreview,
		},
		toolNameVoiceClone: {
			Name:        toolNameVoiceClone,
			Description: "Create an instant voice clone from audio samples.",
			InputSchema: voiceCloneInputSchema(),
			handler:     s.handleVoiceClone,
		},
		toolNameSearchVoices: {
			Name:        toolNameSearchVoices,
			Description: "Search voices in your voice library.",
			InputSchema: searchVoicesInputSchema(),
			handler:     s.handleSearchVoices,
		},
		toolNameSearchVoiceLibrary: {
			Name:        toolNameSearchVoiceLibrary,
			Description: "Search the shared voice library.",
			InputSchema: searchVoiceLibraryInputSchema(),
			handler:     s.handleSearchVoiceLibrary,
		},
		toolNameGetVoice: {
			Name:        toolNameGetVoice,
			Description: "Get details of a specific voice.",
			InputSchema: voiceIDInputSchema(),
			handler:     s.handleGetVoice,
		},
		toolNameEditVoice: {
			Name:        toolNameEditVoice,
			Description: "Update a voice's name or description.",
			InputSchema: editVoiceInputSchema(),
			handler:     s.handleEditVoice,
		},
		toolNameDeleteVoice: {
			Name:        toolNameDeleteVoice,
			Description: "Delete a voice from your library.",
			InputSchema: voiceIDInputSchema(),
			handler:     s.handleDeleteVoice,
		},
		toolNameListModels: {
			Name:        toolNameListModels,
			Description: "List available speech synthesis models.",
			InputSchema: emptyInputSchema(),
			handler:     s.handleListModels,
		},
		toolNameCheckSubscription: {
			Name:        toolNameCheckSubscription,
			Description: "Check subscription status and quota.",
			InputSchema: emptyInputSchema(),
			handler:     s.handleCheckSubscription,
		},
		toolNameGetUserInfo: {
			Name:        toolNameGetUserInfo,
			Description: "Get account information for the configured API key.",
			InputSchema: emptyInputSchema(),
			handler:     s.handleGetUserInfo,
		},
		toolNameGetHistory: {
			Name:        toolNameGetHistory,
			Description: "List generated audio history, newest first.",
			InputSchema: historyInputSchema(),
			handler:     s.handleGetHistory,
		},
		toolNameGetHistoryItemAudio: {
			Name:        toolNameGetHistoryItemAudio,
			Description: "Download the audio of a single history item.",
			InputSchema: historyItemAudioInputSchema(),
			handler:     s.handleGetHistoryItemAudio,
		},
		toolNameDownloadHistoryItems: {
			Name:        toolNameDownloadHistoryItems,
			Description: "Download several history items at once (a zip archive when more than one).",
			InputSchema: downloadHistoryInputSchema(),
			handler:     s.handleDownloadHistoryItems,
		},
		toolNameDeleteHistoryItem: {
			Name:        toolNameDeleteHistoryItem,
			Description: "Delete a history item.",
			InputSchema: historyItemInputSchema(),
			handler:     s.handleDeleteHistoryItem,
		},
		toolNameCreateAgent: {
			Name:        toolNameCreateAgent,
			Description: "Create a conversational AI agent.",
			InputSchema: createAgentInputSchema(),
			handler:     s.handleCreateAgent,
		},
		toolNameListAgents: {
			Name:        toolNameListAgents,
			Description: "List conversational AI agents.",
			InputSchema: listAgentsInputSchema(),
			handler:     s.handleListAgents,
		},
		toolNameGetAgent: {
			Name:        toolNameGetAgent,
			Description: "Get a conversational AI agent's configuration.",
			InputSchema: agentIDInputSchema(),
			handler:     s.handleGetAgent,
		},
		toolNameDuplicateAgent: {
			Name:        toolNameDuplicateAgent,
			Description: "Duplicate a conversational AI agent, optionally under a new name.",
			InputSchema: duplicateAgentInputSchema(),
			handler:     s.handleDuplicateAgent,
		},
		toolNameDeleteAgent: {
			Name:        toolNameDeleteAgent,
			Description: "Delete a conversational AI agent.",
			InputSchema: agentIDInputSchema(),
			handler:     s.handleDeleteAgent,
		},
		toolNameListConversations: {
			Name:        toolNameListConversations,
			Description: "List agent conversations.",
			InputSchema: listConversationsInputSchema(),
			handler:     s.handleListConversations,
		},
		toolNameGetConversation: {
			Name:        toolNameGetConversation,
			Description: "Get an agent conversation including its transcript.",
			InputSchema: conversationIDInputSchema(),
			handler:     s.handleGetConversation,
		},
		toolNameGetConversationAudio: {
			Name:        toolNameGetConversationAudio,
			Description: "Download the recorded audio of an agent conversation.",
			InputSchema: conversationAudioInputSchema(),
			handler:     s.handleGetConversationAudio,
		},
		toolNameDeleteConversation: {
			Name:        toolNameDeleteConversation,
			Description: "Delete an agent conversation and its recording.",
			InputSchema: conversationIDInputSchema(),
			handler:     s.handleDeleteConversation,
		},
		toolNameAddKnowledgeBase: {
			Name:        toolNameAddKnowledgeBase,
			Description: "Add a knowledge base document (url, text or local file) to an agent.",
			InputSchema: addKnowledgeBaseInputSchema(),
			handler:     s.handleAddKnowledgeBase,
		},
		toolNameGetDocumentContent: {
			Name:        toolNameGetDocumentContent,
			Description: "Get the extracted text of a knowledge base document.",
			InputSchema: documentIDInputSchema(),
			handler:     s.handleGetDocumentContent,
		},
		toolNameDeleteKnowledgeDoc: {
			Name:        toolNameDeleteKnowledgeDoc,
			Description: "Delete a knowledge base document. Fails while the document is attached to an agent.",
			InputSchema: documentIDInputSchema(),
			handler:     s.handleDeleteKnowledgeBaseDocument,
		},
		toolNameListGeneratedFiles: {
			Name:        toolNameListGeneratedFiles,
			Description: "List recently generated files recorded in the local ledger.",
			InputSchema: listGeneratedFilesInputSchema(),
			handler:     s.handleListGeneratedFiles,
		},
	}
}

func (s *Server) toolsList() map[string]interface{} {
	tools := make([]toolDefinition, 0, len(s.tools))
	for _, name := range toolOrder {
		if tool, ok := s.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	if len(tools) == 0 {
		names := make([]string, 0, len(s.tools))
		for name := range s.tools {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			tools = append(tools, s.tools[name])
		}
	}
	return map[string]interface{}{"tools": tools}
}

func (s *Server) processToolsCall(ctx context.Context, rawParams json.RawMessage) (toolCallResult, *rpcError) {
	params, err := parseToolsCallParams(rawParams)
	if err != nil {
		canonicalCode := "INVALID_FIELD"
		var vErr validationError
		if errors.As(err, &vErr) && vErr.canonicalCode != "" {
			canonicalCode = vErr.canonicalCode
		}
		return toolCallResult{}, &rpcError{
			Code:    rpcCodeInvalidRequest,
			Message: err.Error(),
			Data: &rpcErrorData{
				Code:      canonicalCode,
				Retryable: false,
			},
		}
	}

	tool, ok := s.tools[params.Name]
	if !ok {
		return newToolErrorResult(toolExecutionError{
			Code:      "METHOD_NOT_FOUND",
			Message:   fmt.Sprintf("unknown tool: %s", params.Name),
			Retryable: false,
		}), nil
	}

	result, toolErr := tool.handler(ctx, params.Arguments)
	if toolErr != nil {
		return newToolErrorResult(*toolErr), nil
	}
	return result, nil
}

func parseToolsCallParams(raw json.RawMessage) (toolsCallParams, error) {
	if len(raw) == 0 {
		return toolsCallParams{}, validationError{
			message:       "params is required",
			canonicalCode: "MISSING_FIELD",
		}
	}

	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return toolsCallParams{}, validationError{
			message:       "invalid tools/call params",
			canonicalCode: "INVALID_FIELD",
		}
	}

	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return toolsCallParams{}, validationError{
			message:       "tools/call params.name is required",
			canonicalCode: "MISSING_FIELD",
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}
	return params, nil
}

func newToolErrorResult(toolErr toolExecutionError) toolCallResult {
	text := fmt.Sprintf("ERROR: %s: %s", toolErr.Code, toolErr.Message)
	return toolCallResult{
		IsError: true,
		Content: []toolContentItem{
			{Type: "text", Text: text},
		},
		StructuredContent: map[string]interface{}{
			"error": map[string]interface{}{
				"code":      toolErr.Code,
				"message":   toolErr.Message,
				"retryable": toolErr.Retryable,
			},
		},
	}
}

// toolErrorFrom translates core and vendor errors into the structured tool
// error vocabulary. Messages pass through verbatim.
func toolErrorFrom(err error) *toolExecutionError {
	var ve *model.VendorError
	if errors.As(err, &ve) {
		return &toolExecutionError{Code: ve.Code, Message: ve.Message, Retryable: ve.Retryable}
	}

	code := "INTERNAL_ERROR"
	retryable := true
	switch {
	case errors.Is(err, model.ErrInvalidPath):
		code, retryable = "INVALID_PATH", false
	case errors.Is(err, model.ErrPathEscape):
		code, retryable = "PATH_ESCAPE", false
	case errors.Is(err, model.ErrFileNotFound):
		code, retryable = "FILE_NOT_FOUND", false
	case errors.Is(err, model.ErrUnsupportedContent):
		code, retryable = "UNSUPPORTED_CONTENT", false
	case errors.Is(err, model.ErrNotFound):
		code, retryable = "NOT_FOUND", false
	case errors.Is(err, model.ErrIOFailure):
		code, retryable = "IO_FAILURE", false
	case errors.Is(err, model.ErrInvalidConfiguration):
		code, retryable = "INVALID_CONFIGURATION", false
	}
	return &toolExecutionError{Code: code, Message: err.Error(), Retryable: retryable}
}

// deliverArtifact runs the full delivery pipeline for one artifact: resolve
// the output directory (only when the mode writes files), build the name,
// materialize, and record the artifact in the ledger best effort.
func (s *Server) deliverArtifact(ctx context.Context, tool string, data []byte, requestedDir, tag, hint, ext string, fullID bool, successTemplate, voiceID string) (output.Result, *toolExecutionError) {
	mode := s.cfg.OutputMode

	dir := ""
	if mode.WritesFiles() {
		resolved, err := output.ResolveOutputDir(requestedDir, s.cfg.BasePath)
		if err != nil {
			return output.Result{}, toolErrorFrom(err)
		}
		dir = resolved
	}

	name := output.MakeName(tag, hint, ext, fullID)
	res, err := output.Deliver(data, dir, name, mode, successTemplate)
	if err != nil {
		return output.Result{}, toolErrorFrom(err)
	}

	if s.ledger != nil {
		record := store.Artifact{
			Tool:      tool,
			FileName:  name,
			FilePath:  res.FilePath,
			MIMEType:  output.MIMETypeForExtension(ext),
			SizeBytes: int64(len(data)),
			VoiceID:   voiceID,
		}
		if err := s.ledger.Record(ctx, record); err != nil {
			s.logger.Printf("ledger: record %s: %v", name, err)
		}
	}
	return res, nil
}

// contentFromResult renders one delivered artifact as tool content items.
func contentFromResult(res output.Result) []toolContentItem {
	items := make([]toolContentItem, 0, 2)
	if res.Text != "" {
		items = append(items, toolContentItem{Type: "text", Text: res.Text})
	}
	if res.Resource != nil {
		items = append(items, resourceItem(res.Resource))
	}
	return items
}

// contentFromCombined renders an aggregated multi-artifact response.
func contentFromCombined(combined output.Combined) []toolContentItem {
	items := make([]toolContentItem, 0, len(combined.Resources)+1)
	if combined.Text != "" {
		items = append(items, toolContentItem{Type: "text", Text: combined.Text})
	}
	for _, r := range combined.Resources {
		items = append(items, resourceItem(r))
	}
	return items
}

func resourceItem(r *output.EmbeddedResource) toolContentItem {
	return toolContentItem{
		Type: "resource",
		Resource: &resourceContents{
			URI:      r.URI,
			MIMEType: r.MIMEType,
			Text:     r.Text,
			Blob:     r.Data,
		},
	}
}

func assertNoUnknownArguments(args map[string]interface{}, allowed map[string]struct{}) error {
	for key := range args {
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("unknown argument: %s", key)
		}
	}
	return nil
}

func parseRequiredString(args map[string]interface{}, key string) (string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true, fmt.Errorf("%s must be a non-empty string", key)
	}
	return value, true, nil
}

func parseOptionalString(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return strings.TrimSpace(value), nil
}

func parseOptionalBool(args map[string]interface{}, key string, defaultValue bool) (bool, error) {
	raw, ok := args[key]
	if !ok {
		return defaultValue, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return v, nil
}

func parseInteger(value interface{}, field string) (int, error) {
	switch v := value.(type) {
	case float64:
		if math.Trunc(v) != v {
			return 0, fmt.Errorf("%s must be an integer", field)
		}
		if v < math.MinInt || v > math.MaxInt {
			return 0, fmt.Errorf("%s is out of range", field)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be an integer", field)
	}
}

func parseOptionalInteger(args map[string]interface{}, key string, defaultValue int) (int, error) {
	raw, ok := args[key]
	if !ok {
		return defaultValue, nil
	}
	return parseInteger(raw, key)
}

func parseOptionalNumber(args map[string]interface{}, key string, defaultValue float64) (float64, error) {
	raw, ok := args[key]
	if !ok {
		return defaultValue, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

func parseOptionalStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch typed := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(typed))
		for idx, item := range typed {
			v, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", key, idx)
			}
			v = strings.TrimSpace(v)
			if v == "" {
				return nil, fmt.Errorf("%s[%d] must be a non-empty string", key, idx)
			}
			out = append(out, v)
		}
		return out, nil
	case []string:
		out := make([]string, 0, len(typed))
		for idx, item := range typed {
			item = strings.TrimSpace(item)
			if item == "" {
				return nil, fmt.Errorf("%s[%d] must be a non-empty string", key, idx)
			}
			out = append(out, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

func invalidField(err error) *toolExecutionError {
	return &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error(), Retryable: false}
}

func missingField(field string) *toolExecutionError {
	return &toolExecutionError{Code: "MISSING_FIELD", Message: field + " is required", Retryable: false}
}
