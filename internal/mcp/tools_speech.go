package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/model"
	"el2mcp/internal/output"
)

var ttsArgumentNames = map[string]struct{}{
	"text":              {},
	"voice_id":          {},
	"model_id":          {},
	"stability":         {},
	"similarity_boost":  {},
	"style":             {},
	"use_speaker_boost": {},
	"speed":             {},
	"language":          {},
	"output_format":     {},
	"output_directory":  {},
}

func (s *Server) parseTTSRequest(args map[string]interface{}) (elevenlabs.TTSRequest, string, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, ttsArgumentNames); err != nil {
		return elevenlabs.TTSRequest{}, "", invalidField(err)
	}

	text, ok, err := parseRequiredString(args, "text")
	if err != nil {
		return elevenlabs.TTSRequest{}, "", invalidField(err)
	}
	if !ok {
		return elevenlabs.TTSRequest{}, "", missingField("text")
	}

	voiceID, err := parseOptionalString(args, "voice_id")
	if err != nil {
		return elevenlabs.TTSRequest{}, "", invalidField(err)
	}
	if voiceID == "" {
		voiceID = s.cfg.VoiceID
	}

	modelID, err := parseOptionalString(args, "model_id")
	if err != nil {
		return elevenlabs.TTSRequest{}, "", invalidField(err)
	}
	language, err := parseOptionalString(args, "language")
	if err != nil {
		return elevenlabs.TTSRequest{}, "", invalidField(err)
	}
	outputFormat, err := parseOptionalString(args, "output_format")
	if err != nil {
		return elevenlabs.TTSRequest{}, "", invalidField(err)
	}

	settings := &elevenlabs.VoiceSettings{}
	hasSettings := false
	if _, exists := args["stability"]; exists {
		v, perr := parseOptionalNumber(args, "stability", 0)
		if perr != nil {
			return elevenlabs.TTSRequest{}, "", invalidField(perr)
		}
		if v < -1 || v > 1 {
			return elevenlabs.TTSRequest{}, "", &toolExecutionError{Code: "INVALID_RANGE", Message: "stability must be between -1 and 1", Retryable: false}
		}
		settings.Stability = &v
		hasSettings = true
	}
	if _, exists := args["similarity_boost"]; exists {
		v, perr := parseOptionalNumber(args, "similarity_boost", 0)
		if perr != nil {
			return elevenlabs.TTSRequest{}, "", invalidField(perr)
		}
		if v < 0 || v > 1 {
			return elevenlabs.TTSRequest{}, "", &toolExecutionError{Code: "INVALID_RANGE", Message: "similarity_boost must be between 0 and 1", Retryable: false}
		}
		settings.SimilarityBoost = &v
		hasSettings = true
	}
	if _, exists := args["style"]; exists {
		v, perr := parseOptionalNumber(args, "style", 0)
		if perr != nil {
			return elevenlabs.TTSRequest{}, "", invalidField(perr)
		}
		settings.Style = &v
		hasSettings = true
	}
	if _, exists := args["use_speaker_boost"]; exists {
		v, perr := parseOptionalBool(args, "use_speaker_boost", true)
		if perr != nil {
			return elevenlabs.TTSRequest{}, "", invalidField(perr)
		}
		settings.UseSpeakerBoost = &v
		hasSettings = true
	}
	if _, exists := args["speed"]; exists {
		v, perr := parseOptionalNumber(args, "speed", 1)
		if perr != nil {
			return elevenlabs.TTSRequest{}, "", invalidField(perr)
		}
		if v < 0.7 || v > 1.2 {
			return elevenlabs.TTSRequest{}, "", &toolExecutionError{Code: "INVALID_RANGE", Message: "speed must be between 0.7 and 1.2", Retryable: false}
		}
		settings.Speed = &v
		hasSettings = true
	}

	req := elevenlabs.TTSRequest{
		Text:         text,
		VoiceID:      voiceID,
		ModelID:      modelID,
		LanguageCode: language,
		OutputFormat: outputFormat,
	}
	if hasSettings {
		req.VoiceSettings = settings
	}

	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return elevenlabs.TTSRequest{}, "", invalidField(err)
	}
	return req, outputDir, nil
}

func (s *Server) handleTextToSpeech(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	req, outputDir, toolErr := s.parseTTSRequest(args)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	audio, err := s.vendor.TextToSpeech(ctx, req)
	if err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}

	template := fmt.Sprintf("Success. File saved as: {file_path}. Voice used: %s", req.VoiceID)
	res, toolErr := s.deliverArtifact(ctx, toolNameTextToSpeech, audio, outputDir, "tts", req.Text, "mp3", false, template, req.VoiceID)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	return toolCallResult{
		Content: contentFromResult(res),
		StructuredContent: map[string]interface{}{
			"voice_id":  req.VoiceID,
			"file_path": res.FilePath,
		},
	}, nil
}

func (s *Server) handleTextToSpeechWithTimestamps(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	req, outputDir, toolErr := s.parseTTSRequest(args)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	speech, err := s.vendor.TextToSpeechWithTimestamps(ctx, req)
	if err != nil {
		return toolCallResult{}, toolErrorFrom(err)
	}
	audio, err := base64.StdEncoding.DecodeString(speech.AudioBase64)
	if err != nil {
		return toolCallResult{}, toolErrorFrom(&model.VendorError{Code: "ELEVENLABS_FAILED", Message: "response audio is not valid base64", Retryable: false, Cause: err})
	}

	template := fmt.Sprintf("Success. File saved as: {file_path}. Voice used: %s", req.VoiceID)
	res, toolErr := s.deliverArtifact(ctx, toolNameTTSWithTimestamps, audio, outputDir, "tts", req.Text, "mp3", false, template, req.VoiceID)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	structured := map[string]interface{}{
		"voice_id":  req.VoiceID,
		"file_path": res.FilePath,
	}
	if speech.Alignment != nil {
		structured["alignment"] = speech.Alignment
	}
	return toolCallResult{
		Content:           contentFromResult(res),
		StructuredContent: structured,
	}, nil
}

func (s *Server) handleSpeechToText(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"input_file_path":  {},
		"language_code":    {},
		"diarize":          {},
		"save_transcript":  {},
		"output_directory": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	inputPath, ok, err := parseRequiredString(args, "input_file_path")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("input_file_path")
	}
	languageCode, err := parseOptionalString(args, "language_code")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	diarize, err := parseOptionalBool(args, "diarize", false)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	saveTranscript, err := parseOptionalBool(args, "save_transcript", true)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	audio, filename, toolErr := s.readAudioInput(inputPath)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	tr, vendorErr := s.vendor.Transcribe(ctx, elevenlabs.TranscribeRequest{
		FileName:     filename,
		Data:         audio,
		LanguageCode: languageCode,
		Diarize:      diarize,
	})
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}
	transcript := elevenlabs.FormatTranscript(tr, diarize)

	content := []toolContentItem{{Type: "text", Text: transcript}}
	structured := map[string]interface{}{
		"language_code": tr.LanguageCode,
		"transcript":    transcript,
	}
	if saveTranscript {
		res, toolErr := s.deliverArtifact(ctx, toolNameSpeechToText, []byte(transcript), outputDir, "stt", filename, "txt", false, "", "")
		if toolErr != nil {
			return toolCallResult{}, toolErr
		}
		if res.Text != "" {
			content = append(content, toolContentItem{Type: "text", Text: res.Text})
		}
		if res.Resource != nil {
			content = append(content, resourceItem(res.Resource))
		}
		structured["file_path"] = res.FilePath
	}
	return toolCallResult{Content: content, StructuredContent: structured}, nil
}

func (s *Server) handleTextToSoundEffects(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"text":             {},
		"duration_seconds": {},
		"output_format":    {},
		"output_directory": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	text, ok, err := parseRequiredString(args, "text")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("text")
	}
	duration, err := parseOptionalNumber(args, "duration_seconds", 0)
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if duration != 0 && (duration < 0.5 || duration > 22) {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_RANGE", Message: "duration_seconds must be between 0.5 and 22", Retryable: false}
	}
	outputFormat, err := parseOptionalString(args, "output_format")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	audio, vendorErr := s.vendor.TextToSoundEffects(ctx, text, duration, outputFormat)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	res, toolErr := s.deliverArtifact(ctx, toolNameTextToSoundEffects, audio, outputDir, "sfx", text, "mp3", false, "", "")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}
	return toolCallResult{
		Content:           contentFromResult(res),
		StructuredContent: map[string]interface{}{"file_path": res.FilePath},
	}, nil
}

func (s *Server) handleSpeechToSpeech(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"input_file_path":  {},
		"voice_id":         {},
		"output_directory": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	inputPath, ok, err := parseRequiredString(args, "input_file_path")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("input_file_path")
	}
	voiceID, err := parseOptionalString(args, "voice_id")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if voiceID == "" {
		voiceID = s.cfg.VoiceID
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	audio, filename, toolErr := s.readAudioInput(inputPath)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	converted, vendorErr := s.vendor.SpeechToSpeech(ctx, voiceID, filename, audio)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	template := fmt.Sprintf("Success. File saved as: {file_path}. Voice used: %s", voiceID)
	res, toolErr := s.deliverArtifact(ctx, toolNameSpeechToSpeech, converted, outputDir, "sts", filename, "mp3", false, template, voiceID)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}
	return toolCallResult{
		Content:           contentFromResult(res),
		StructuredContent: map[string]interface{}{"voice_id": voiceID, "file_path": res.FilePath},
	}, nil
}

func (s *Server) handleIsolateAudio(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"input_file_path":  {},
		"output_directory": {},
	}); err != nil {
		return toolCallResult{}, invalidField(err)
	}

	inputPath, ok, err := parseRequiredString(args, "input_file_path")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}
	if !ok {
		return toolCallResult{}, missingField("input_file_path")
	}
	outputDir, err := parseOptionalString(args, "output_directory")
	if err != nil {
		return toolCallResult{}, invalidField(err)
	}

	audio, filename, toolErr := s.readAudioInput(inputPath)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	isolated, vendorErr := s.vendor.AudioIsolation(ctx, filename, audio)
	if vendorErr != nil {
		return toolCallResult{}, toolErrorFrom(vendorErr)
	}

	res, toolErr := s.deliverArtifact(ctx, toolNameIsolateAudio, isolated, outputDir, "iso", filename, "mp3", false, "", "")
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}
	return toolCallResult{
		Content:           contentFromResult(res),
		StructuredContent: map[string]interface{}{"file_path": res.FilePath},
	}, nil
}

// readAudioInput validates and loads a caller-referenced audio file.
func (s *Server) readAudioInput(path string) ([]byte, string, *toolExecutionError) {
	abs, err := output.HandleInputFile(path, true)
	if err != nil {
		return nil, "", toolErrorFrom(err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", toolErrorFrom(fmt.Errorf("%w: read %s: %v", model.ErrIOFailure, abs, err))
	}
	return data, filepath.Base(abs), nil
}
