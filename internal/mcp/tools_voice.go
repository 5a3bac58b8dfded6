package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/model"
	"el2mcp/internal/output"
)

func (s *Server) handleTextToVoice(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"voice_description": {},
		"text":              {},
		"output_directory":  {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	description, ok, err := parseRequiredString(args, "voice_description")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("voice_description")
	}
	sampleText, err := parseOptionalString(args, "text")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	previews, _, vendorErr := s.vendor.CreateVoicePreviews(ctx, description, sampleText)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}
	if len(previews) == 0 {
		return toolCallResult{}, &toolExecutionError{Code: "ELEVENLABS_FAILED", Message: "no voice previews were generated", Retryable: true}
	}

	// One delivery per preview, in vendor order. The generated voice id is
	// the naming hint and is kept verbatim so ids stay correlated with
	// files and with the trailing id list.
	results := make([]output.Result, 0, len(previews))
	generatedIDs := make([]string, 0, len(previews))
	for _, preview := range previews {
		audio, decErr := base64.StdEncoding.DecodeString(preview.AudioBase64)
		if decErr != nil {
			return toolCallResult{}, toolErrorFrom(&model.VendorError{Code: "ELEVENLABS_FAILED", Message: "preview audio is not valid base64", Retryable: false, Cause: decErr})
		}
		res, toolErr := s.deliverArtifact(ctx, toolNameTextToVoice, audio, outputDir, "voice_design", preview.GeneratedVoiceID, "mp3", true, "", "")
		if toolErr != nil {
			return toolCallResult{}, toolErr
		}
		results = append(results, res)
		generatedIDs = append(generatedIDs, preview.GeneratedVoiceID)
	}

	extra := "Generated voice IDs are: " + strings.Join(generatedIDs, ", ")
	combined := output.Aggregate(results, s.cfg.OutputMode, extra)

	return toolCallResult{
		Content: contentFromCombined(combined),
		StructuredContent: map[string]interface{}{
			"generated_voice_ids": generatedIDs,
		},
	}, nil
}

func (s *Server) handleCreateVoiceFromPreview(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"generated_voice_id": {},
		"voice_name":         {},
		"voice_description":  {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	generatedID, ok, err := parseRequiredString(args, "generated_voice_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("generated_voice_id")
	}
	name, ok, err := parseRequiredString(args, "voice_name")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("voice_name")
	}
	description, err := parseOptionalString(args, "voice_description")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	voice, vendorErr := s.vendor.CreateVoiceFromPreview(ctx, generatedID, name, description)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	return toolCallResult{
		Content: []toolContentItem{{
			Type: "text",
			Text: fmt.Sprintf("Voice created: %s (id: %s)", voice.Name, voice.VoiceID),
		}},
		StructuredContent: map[string]interface{}{"voice": voice},
	}, nil
}

func (s *Server) handleVoiceClone(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"name":        {},
		"files":       {},
		"description": {},
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
	paths, err := parseOptionalStringSlice(args, "files")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if len(paths) == 0 {
		return toolCallResult{}, missingField("files")
	}
	description, err := parseOptionalString(args, "description")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	samples := make([]elevenlabs.CloneFile, 0, len(paths))
	for _, p := range paths {
		abs, inputErr := output.HandleInputFile(p, true)
		if inputErr != nil {
			return toolCallResult{}, toolErrorFrom(inputErr)
		}
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			return toolCallResult{}, toolErrorFrom(fmt.Errorf("%w: read %s: %v", model.ErrIOFailure, abs, readErr))
		}
		samples = append(samples, elevenlabs.CloneFile{Name: filepath.Base(abs), Data: data})
	}

	voiceID, vendorErr := s.vendor.CloneVoice(ctx, name, description, samples)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	return toolCallResult{
		Content: []toolContentItem{{
			Type: "text",
			Text: fmt.Sprintf("Voice cloned successfully. Name: %s, ID: %s", name, voiceID),
		}},
		StructuredContent: map[string]interface{}{"voice_id": voiceID, "name": name},
	}, nil
}

func (s *Server) handleSearchVoices(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"search":         {},
		"sort":           {},
		"sort_direction": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	search, err := parseOptionalString(args, "search")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	sortBy, err := parseOptionalString(args, "sort")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	switch sortBy {
	case "", "name", "created_at_unix":
	default:
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: "sort must be one of name,created_at_unix", Retryable: false}
	}
	sortDirection, err := parseOptionalString(args, "sort_direction")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	voices, vendorErr := s.vendor.SearchVoices(ctx, search, sortBy, sortDirection)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	lines := make([]string, 0, len(voices))
	for _, v := range voices {
		lines = append(lines, v.Describe())
	}
	text := fmt.Sprintf("found %d voice(s)", len(voices))
	if len(lines) > 0 {
		text += "\n" + strings.Join(lines, "\n")
	}
	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: text}},
		StructuredContent: map[string]interface{}{"voices": voices},
	}, nil
}

func (s *Server) handleSearchVoiceLibrary(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"search":    {},
		"page":      {},
		"page_size": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	search, err := parseOptionalString(args, "search")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	page, err := parseOptionalInteger(args, "page", 0)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	pageSize, err := parseOptionalInteger(args, "page_size", 10)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if pageSize < 1 || pageSize > 100 {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "page_size must be between 1 and 100", Retryable: false}
	}

	voices, hasMore, vendorErr := s.vendor.SearchVoiceLibrary(ctx, search, page, pageSize)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: fmt.Sprintf("found %d shared voice(s), has_more=%t", len(voices), hasMore)}},
		StructuredContent: map[string]interface{}{
			"voices":   voices,
			"has_more": hasMore,
		},
	}, nil
}

func (s *Server) handleGetVoice(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	voiceID, toolErr := parseSingleID(args, "voice_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	voice, vendorErr := s.vendor.GetVoice(ctx, voiceID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}
	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: voice.Describe()}},
		StructuredContent: map[string]interface{}{"voice": voice},
	}, nil
}

func (s *Server) handleEditVoice(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"voice_id":    {},
		"name":        {},
		"description": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	voiceID, ok, err := parseRequiredString(args, "voice_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("voice_id")
	}
	name, err := parseOptionalString(args, "name")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	description, err := parseOptionalString(args, "description")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if name == "" && description == "" {
		return toolCallResult{}, &toolExecutionError{Code: "MISSING_FIELD", Message: "at least one of name, description is required", Retryable: false}
	}

	if err := s.vendor.EditVoice(ctx, voiceID, name, description); err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: "Voice updated: " + voiceID}},
	}, nil
}

func (s *Server) handleDeleteVoice(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	voiceID, toolErr := parseSingleID(args, "voice_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	if err := s.vendor.DeleteVoice(ctx, voiceID); err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: "Voice deleted: " + voiceID}},
	}, nil
}

func (s *Server) handleListModels(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	models, vendorErr := s.vendor.ListModels(ctx)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	lines := make([]string, 0, len(models))
	for _, m := range models {
		lines = append(lines, fmt.Sprintf("%s (%s)", m.Name, m.ModelID))
	}
	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: strings.Join(lines, "\n")}},
		StructuredContent: map[string]interface{}{"models": models},
	}, nil
}

// parseSingleID handles the common one-required-id argument shape.
func parseSingleID(args map[string]interface{}, key string) (string, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{key: {}}); err != nil {
		return "", invalidField(err)
	}
	id, ok, err := parseRequiredString(args, key)
	if err != nil {
		return "", invalidField(err)
	}
	if !ok {
		return "", missingField(key)
	}
	return id, nil
}
