package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"el2mcp/internal/elevenlabs"
)

func (s *Server) handleGetHistory(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"page_size":   {},
		"start_after": {},
		"voice_id":    {},
		"search":      {},
		"source":      {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	pageSize, err := parseOptionalInteger(args, "page_size", 100)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if pageSize < 1 || pageSize > 1000 {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "page_size must be between 1 and 1000", Retryable: false}
	}
	startAfter, err := parseOptionalString(args, "start_after")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	voiceID, err := parseOptionalString(args, "voice_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	search, err := parseOptionalString(args, "search")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	source, err := parseOptionalString(args, "source")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	switch source {
	case "", "TTS", "STS":
	default:
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: "source must be TTS or STS", Retryable: false}
	}

	items, hasMore, lastID, vendorErr := s.vendor.ListHistory(ctx, elevenlabs.HistoryQuery{
		PageSize:   pageSize,
		StartAfter: startAfter,
		VoiceID:    voiceID,
		Search:     search,
		Source:     source,
	})
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	lines := make([]string, 0, len(items)+1)
	lines = append(lines, fmt.Sprintf("%d history item(s), has_more=%t", len(items), hasMore))
	for _, item := range items {
		when := time.Unix(item.DateUnix, 0).UTC().Format("2006-01-02 15:04:05")
		preview := truncateRunes(item.Text, 60)
		lines = append(lines, fmt.Sprintf("%s  %s  voice=%s  %q", item.HistoryItemID, when, item.VoiceName, preview))
	}

	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: strings.Join(lines, "\n")}},
		StructuredContent: map[string]interface{}{
			"history":              items,
			"has_more":             hasMore,
			"last_history_item_id": lastID,
		},
	}, nil
}

// truncateRunes shortens s to at most max runes, never splitting a multibyte
// sequence.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func (s *Server) handleGetHistoryItemAudio(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"history_item_id":  {},
		"output_directory": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	itemID, ok, err := parseRequiredString(args, "history_item_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("history_item_id")
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	item, vendorErr := s.vendor.GetHistoryItem(ctx, itemID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}
	audio, vendorErr := s.vendor.DownloadHistoryAudio(ctx, itemID)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	res, toolErr := s.deliverArtifact(ctx, toolNameGetHistoryItemAudio, audio, outputDir, "history", item.Text, "mp3", false, "", item.VoiceID)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	return toolCallResult{
		Content: contentFromResult(res),
		StructuredContent: map[string]interface{}{
			"history_item_id": item.HistoryItemID,
			"file_path":       res.FilePath,
		},
	}, nil
}

func (s *Server) handleDownloadHistoryItems(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"history_item_ids": {},
		"output_directory": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	ids, err := parseOptionalStringSlice(args, "history_item_ids")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if len(ids) == 0 {
		return toolCallResult{}, missingField("history_item_ids")
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	data, vendorErr := s.vendor.DownloadHistoryItems(ctx, ids)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	// One id yields raw audio, several yield a zip archive.
	ext := "mp3"
	hint := ids[0]
	if len(ids) > 1 {
		ext = "zip"
		hint = fmt.Sprintf("%d_items", len(ids))
	}
	res, toolErr := s.deliverArtifact(ctx, toolNameDownloadHistoryItems, data, outputDir, "history", hint, ext, false, "", "")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	return toolCallResult{
		Content: contentFromResult(res),
		StructuredContent: map[string]interface{}{
			"history_item_ids": ids,
			"file_path":        res.FilePath,
		},
	}, nil
}

func (s *Server) handleDeleteHistoryItem(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	itemID, toolErr := parseSingleID(args, "history_item_id")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	if err := s.vendor.DeleteHistoryItem(ctx, itemID); err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}
	return toolCallResult{
		Content: []toolContentItem{{Type: "text", Text: "History item deleted: " + itemID}},
	}, nil
}
