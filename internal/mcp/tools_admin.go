package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *Server) handleCheckSubscription(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	sub, vendorErr := s.vendor.GetSubscription(ctx)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tier: %s (status %s)\n", sub.Tier, sub.Status)
	fmt.Fprintf(&b, "Characters used: %d of %d\n", sub.CharacterCount, sub.CharacterLimit)
	if sub.VoiceLimit > 0 {
		fmt.Fprintf(&b, "Voice slots used: %d of %d\n", sub.VoiceSlotsUsed, sub.VoiceLimit)
	}
	if sub.NextResetUnix > 0 {
		reset := time.Unix(sub.NextResetUnix, 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "Next character reset: %s UTC\n", reset)
	}

	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: strings.TrimRight(b.String(), "\n")}},
		StructuredContent: map[string]interface{}{"subscription": sub},
	}, nil
}

func (s *Server) handleGetUserInfo(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	user, vendorErr := s.vendor.GetUser(ctx)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	text := "User: " + user.UserID
	if user.Subscription != nil {
		text += fmt.Sprintf("\nTier: %s, characters used: %d of %d",
			user.Subscription.Tier, user.Subscription.CharacterCount, user.Subscription.CharacterLimit)
	}

	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: text}},
		StructuredContent: map[string]interface{}{"user": user},
	}, nil
}

func (s *Server) handleListGeneratedFiles(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"tool":  {},
		"limit": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	tool, err := parseOptionalString(args, "tool")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	limit, err := parseOptionalInteger(args, "limit", 50)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if limit < 1 || limit > 500 {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "limit must be between 1 and 500", Retryable: false}
	}

	if s.ledger == nil {
		return toolCallResult{}, &toolExecutionError{
			Code:      "INVALID_CONFIGURATION",
			Message:   "generated-file ledger is not configured",
			Retryable: false,
		}
	}

	artifacts, lerr := s.ledger.Recent(ctx, tool, limit)
	if lerr != nil {
		return toolCallResult{}, &toolExecutionError{Code: "IO_FAILURE", Message: lerr.Error(), Retryable: false}
	}

	lines := make([]string, 0, len(artifacts)+1)
	lines = append(lines, fmt.Sprintf("%d generated file(s)", len(artifacts)))
	for _, a := range artifacts {
		when := time.Unix(a.CreatedUnix, 0).UTC().Format("2006-01-02 15:04:05")
		lines = append(lines, fmt.Sprintf("%s  %s  %s  %d bytes", when, a.Tool, a.FileName, a.SizeBytes))
	}

	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: strings.Join(lines, "\n")}},
		StructuredContent: map[string]interface{}{"files": artifacts},
	}, nil
}
