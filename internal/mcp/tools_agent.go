package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/model"
	"el2mcp/internal/output"
)

func (s *Server) handleCreateAgent(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"name":                 {},
		"first_message":        {},
		"system_prompt":        {},
		"voice_id":             {},
		"language":             {},
		"llm":                  {},
		"temperature":          {},
		"max_duration_seconds": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	name, ok, err := parseRequiredString(args, "name")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("name")
	}
	firstMessage, ok, err := parseRequiredString(args, "first_message")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("first_message")
	}
	systemPrompt, ok, err := parseRequiredString(args, "system_prompt")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("system_prompt")
	}
	voiceID, err := parseOptionalString(args, "voice_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if voiceID == "" {
		voiceID = s.cfg.VoiceID
	}
	language, err := parseOptionalString(args, "language")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if language == "" {
		language = "en"
	}
	llm, err := parseOptionalString(args, "llm")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if llm == "" {
		llm = "gemini-2.0-flash-001"
	}
	temperature, err := parseOptionalNumber(args, "temperature", 0.5)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if temperature < 0 || temperature > 1 {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "temperature must be between 0 and 1", Retryable: false}
	}
	maxDuration, err := parseOptionalInteger(args, "max_duration_seconds", 300)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if maxDuration < 1 {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "max_duration_seconds must be positive", Retryable: false}
	}

	agentConfig := map[string]any{
		"name": name,
		"conversation_config": map[string]any{
			"agent": map[string]any{
				"first_message": firstMessage,
				"language":      language,
				"prompt": map[string]any{
					"prompt":      systemPrompt,
					"llm":         llm,
					"temperature": temperature,
				},
			},
			"tts": map[string]any{
				"voice_id": voiceID,
			},
			"conversation": map[string]any{
				"max_duration_seconds": maxDuration,
			},
		},
	}

	agentID, vendorErr := s.vendor.CreateAgent(ctx, agentConfig)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	return toolCallResult{
		Content: []toolContentItem{{
			Type: "text",
			Text: fmt.Sprintf("Agent created: %s (id: %s)", name, agentID),
		}},
		StructuredContent: map[string]interface{}{"agent_id": agentID, "name": name},
	}, nil
}

func (s *Server) handleListAgents(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"search":    {},
		"page_size": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	search, err := parseOptionalString(args, "search")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	pageSize, err := parseOptionalInteger(args, "page_size", 30)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if pageSize < 1 || pageSize > 100 {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "page_size must be between 1 and 100", Retryable: false}
	}

	agents, hasMore, vendorErr := s.vendor.ListAgents(ctx, search, pageSize)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	lines := make([]string, 0, len(agents)+1)
	lines = append(lines, fmt.Sprintf("%d agent(s), has_more=%t", len(agents), hasMore))
	for _, a := range agents {
		lines = append(lines, fmt.Sprintf("%s  %s", a.AgentID, a.Name))
	}

	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: strings.Join(lines, "\n")}},
		StructuredContent: map[string]interface{}{
			"agents":   agents,
			"has_more": hasMore,
		},
	}, nil
}

func (s *Server) handleGetAgent(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	agentID, toolErr := parseSingleID(args, "agent_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	doc, vendorErr := s.vendor.GetAgent(ctx, agentID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	name, _ := doc["name"].(string)
	return toolCallResult{
		Content: []toolContentItem{{
			Type: "text",
			Text: fmt.Sprintf("Agent %s (id: %s)", name, agentID),
		}},
		StructuredContent: doc,
	}, nil
}

func (s *Server) handleDuplicateAgent(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"agent_id": {},
		"name":     {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	agentID, ok, err := parseRequiredString(args, "agent_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("agent_id")
	}
	name, err := parseOptionalString(args, "name")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	newID, vendorErr := s.vendor.DuplicateAgent(ctx, agentID, name)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: fmt.Sprintf("Agent %s duplicated. New agent ID: %s", agentID, newID)}},
		StructuredContent: map[string]interface{}{
			"agent_id": newID,
		},
	}, nil
}

func (s *Server) handleDeleteAgent(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	agentID, toolErr := parseSingleID(args, "agent_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	if err := s.vendor.DeleteAgent(ctx, agentID); err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: "Agent deleted: " + agentID}},
	}, nil
}

func (s *Server) handleListConversations(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"agent_id":    {},
		"cursor":      {},
		"call_status": {},
		"page_size":   {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	agentID, err := parseOptionalString(args, "agent_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	cursor, err := parseOptionalString(args, "cursor")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	callStatus, err := parseOptionalString(args, "call_status")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	switch callStatus {
	case "", "processing", "done", "failed":
	default:
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: "call_status must be one of processing,done,failed", Retryable: false}
	}
	pageSize, err := parseOptionalInteger(args, "page_size", 30)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if pageSize < 1 || pageSize > 100 {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "page_size must be between 1 and 100", Retryable: false}
	}

	conversations, hasMore, nextCursor, vendorErr := s.vendor.ListConversations(ctx, elevenlabs.ConversationQuery{
		AgentID:    agentID,
		Cursor:     cursor,
		CallStatus: callStatus,
		PageSize:   pageSize,
	})
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	lines := make([]string, 0, len(conversations)+1)
	lines = append(lines, fmt.Sprintf("%d conversation(s), has_more=%t", len(conversations), hasMore))
	for _, c := range conversations {
		when := time.Unix(c.StartTimeUnix, 0).UTC().Format("2006-01-02 15:04:05")
		lines = append(lines, fmt.Sprintf("%s  agent=%s  status=%s  started=%s", c.ConversationID, c.AgentID, c.Status, when))
	}

	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: strings.Join(lines, "\n")}},
		StructuredContent: map[string]interface{}{
			"conversations": conversations,
			"has_more":      hasMore,
			"next_cursor":   nextCursor,
		},
	}, nil
}

func (s *Server) handleGetConversation(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	conversationID, toolErr := parseSingleID(args, "conversation_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	conv, vendorErr := s.vendor.GetConversation(ctx, conversationID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversation %s (agent %s, status %s)\n", conv.ConversationID, conv.AgentID, conv.Status)
	for _, entry := range conv.Transcript {
		fmt.Fprintf(&b, "%s: %s\n", entry.Role, entry.Message)
	}

	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: strings.TrimRight(b.String(), "\n")}},
		StructuredContent: map[string]interface{}{"conversation": conv},
	}, nil
}

func (s *Server) handleGetConversationAudio(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"conversation_id":  {},
		"output_directory": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	conversationID, ok, err := parseRequiredString(args, "conversation_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("conversation_id")
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	audio, vendorErr := s.vendor.GetConversationAudio(ctx, conversationID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	res, toolErr := s.deliverArtifact(ctx, toolNameGetConversationAudio, audio, outputDir, "conversation", conversationID, "mp3", true, "", "")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	return toolCallResult{
		Content: contentFromResult(res),
		StructuredContent: map[string]interface{}{
			"conversation_id": conversationID,
			"file_path":       res.FilePath,
		},
	}, nil
}

func (s *Server) handleDeleteConversation(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	conversationID, toolErr := parseSingleID(args, "conversation_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	if err := s.vendor.DeleteConversation(ctx, conversationID); err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: "Conversation deleted: " + conversationID}},
	}, nil
}

func (s *Server) handleAddKnowledgeBase(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"agent_id":            {},
		"knowledge_base_name": {},
		"url":                 {},
		"text":                {},
		"input_file_path":     {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	agentID, ok, err := parseRequiredString(args, "agent_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("agent_id")
	}
	name, ok, err := parseRequiredString(args, "knowledge_base_name")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("knowledge_base_name")
	}
	pageURL, err := parseOptionalString(args, "url")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	text, err := parseOptionalString(args, "text")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	inputFilePath, err := parseOptionalString(args, "input_file_path")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	provided := 0
	for _, v := range []string{pageURL, text, inputFilePath} {
		if v != "" {
			provided++
		}
	}
	if provided != 1 {
		return toolCallResult{}, &toolExecutionError{
			Code:      "INVALID_FIELD",
			Message:   "exactly one of url, text or input_file_path must be provided",
			Retryable: false,
		}
	}

	var documentID string
	var vendorErr error
	switch {
	case pageURL != "":
		documentID, vendorErr = s.vendor.AddKnowledgeBaseURL(ctx, name, pageURL)
	case text != "":
		documentID, vendorErr = s.vendor.AddKnowledgeBaseText(ctx, name, text)
	default:
		abs, inputErr := output.HandleInputFile(inputFilePath, false)
		if inputErr != nil {
			return toolCallResult{}, toolErrorFrom(inputErr)
		}
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			return toolCallResult{}, toolErrorFrom(fmt.Errorf("%w: read %s: %v", model.ErrIOFailure, abs, readErr))
		}
		documentID, vendorErr = s.vendor.AddKnowledgeBaseFile(ctx, name, filepath.Base(abs), data)
	}
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	// Attach the new document to the agent's prompt knowledge base. The agent
	// document is fetched, the knowledge_base list extended, and patched back.
	doc, vendorErr := s.vendor.GetAgent(ctx, agentID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	docType := "file"
	if pageURL != "" {
		docType = "url"
	}
	entry := map[string]any{"type": docType, "name": name, "id": documentID}

	conversationConfig, _ := doc["conversation_config"].(map[string]any)
	if conversationConfig == nil {
		conversationConfig = map[string]any{}
	}
	agent, _ := conversationConfig["agent"].(map[string]any)
	if agent == nil {
		agent = map[string]any{}
	}
	prompt, _ := agent["prompt"].(map[string]any)
	if prompt == nil {
		prompt = map[string]any{}
	}
	knowledgeBase, _ := prompt["knowledge_base"].([]any)
	prompt["knowledge_base"] = append(knowledgeBase, entry)
	agent["prompt"] = prompt
	conversationConfig["agent"] = agent

	patch := map[string]any{"conversation_config": conversationConfig}
	if vendorErr := s.vendor.UpdateAgent(ctx, agentID, patch); vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	return toolCallResult{
		Content: []toolContentItem{{
			Type: "text",
			Text: fmt.Sprintf("Knowledge base document %s (id: %s) added to agent %s", name, documentID, agentID),
		}},
		StructuredContent: map[string]interface{}{
			"agent_id":    agentID,
			"document_id": documentID,
			"name":        name,
		},
	}, nil
}

func (s *Server) handleGetDocumentContent(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	documentID, toolErr := parseSingleID(args, "document_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	content, vendorErr := s.vendor.GetDocumentContent(ctx, documentID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: content}},
	}, nil
}

func (s *Server) handleDeleteKnowledgeBaseDocument(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	documentID, toolErr := parseSingleID(args, "document_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	if err := s.vendor.DeleteKnowledgeBaseDocument(ctx, documentID); err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: "Knowledge base document deleted: " + documentID}},
	}, nil
}
