package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"el2mcp/internal/config"
	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/model"
	"el2mcp/internal/output"
)

// stubVendor satisfies Vendor with canned responses. Individual tests
// override the function fields they care about; everything else errors.
type stubVendor struct {
	textToSpeech       func(ctx context.Context, req elevenlabs.TTSRequest) ([]byte, error)
	transcribe         func(ctx context.Context, req elevenlabs.TranscribeRequest) (*elevenlabs.Transcription, error)
	createPreviews     func(ctx context.Context, description, sampleText string) ([]elevenlabs.VoicePreview, string, error)
	searchVoices       func(ctx context.Context, search, sort, sortDirection string) ([]elevenlabs.Voice, error)
	getSubscription    func(ctx context.Context) (*elevenlabs.Subscription, error)
	editVoice          func(ctx context.Context, voiceID, name, description string) error
	deleteVoice        func(ctx context.Context, voiceID string) error
	listHistory        func(ctx context.Context, q elevenlabs.HistoryQuery) ([]elevenlabs.HistoryItem, bool, string, error)
	downloadHistoryIDs func(ctx context.Context, ids []string) ([]byte, error)
	duplicateAgent     func(ctx context.Context, agentID, name string) (string, error)
	deleteAgent        func(ctx context.Context, agentID string) error
	deleteConversation func(ctx context.Context, conversationID string) error
	deleteKnowledgeDoc func(ctx context.Context, documentID string) error
}

var errStubNotConfigured = fmt.Errorf("stub method not configured")

func (v *stubVendor) TextToSpeech(ctx context.Context, req elevenlabs.TTSRequest) ([]byte, error) {
	if v.textToSpeech != nil {
		return v.textToSpeech(ctx, req)
	}
	return nil, errStubNotConfigured
}

func (v *stubVendor) TextToSpeechWithTimestamps(context.Context, elevenlabs.TTSRequest) (*elevenlabs.TimestampedSpeech, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) Transcribe(ctx context.Context, req elevenlabs.TranscribeRequest) (*elevenlabs.Transcription, error) {
	if v.transcribe != nil {
		return v.transcribe(ctx, req)
	}
	return nil, errStubNotConfigured
}

func (v *stubVendor) SpeechToSpeech(context.Context, string, string, []byte) ([]byte, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) TextToSoundEffects(context.Context, string, float64, string) ([]byte, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) AudioIsolation(context.Context, string, []byte) ([]byte, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) CreateVoicePreviews(ctx context.Context, description, sampleText string) ([]elevenlabs.VoicePreview, string, error) {
	if v.createPreviews != nil {
		return v.createPreviews(ctx, description, sampleText)
	}
	return nil, "", errStubNotConfigured
}

func (v *stubVendor) CreateVoiceFromPreview(context.Context, string, string, string) (*elevenlabs.Voice, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) CloneVoice(context.Context, string, string, []elevenlabs.CloneFile) (string, error) {
	return "", errStubNotConfigured
}

func (v *stubVendor) SearchVoices(ctx context.Context, search, sort, sortDirection string) ([]elevenlabs.Voice, error) {
	if v.searchVoices != nil {
		return v.searchVoices(ctx, search, sort, sortDirection)
	}
	return nil, errStubNotConfigured
}

func (v *stubVendor) GetVoice(context.Context, string) (*elevenlabs.Voice, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) EditVoice(ctx context.Context, voiceID, name, description string) error {
	if v.editVoice != nil {
		return v.editVoice(ctx, voiceID, name, description)
	}
	return errStubNotConfigured
}

func (v *stubVendor) DeleteVoice(ctx context.Context, voiceID string) error {
	if v.deleteVoice != nil {
		return v.deleteVoice(ctx, voiceID)
	}
	return errStubNotConfigured
}

func (v *stubVendor) SearchVoiceLibrary(context.Context, string, int, int) ([]elevenlabs.SharedVoice, bool, error) {
	return nil, false, errStubNotConfigured
}

func (v *stubVendor) ListModels(context.Context) ([]elevenlabs.Model, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) GetSubscription(ctx context.Context) (*elevenlabs.Subscription, error) {
	if v.getSubscription != nil {
		return v.getSubscription(ctx)
	}
	return nil, errStubNotConfigured
}

func (v *stubVendor) GetUser(context.Context) (*elevenlabs.User, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) ListHistory(ctx context.Context, q elevenlabs.HistoryQuery) ([]elevenlabs.HistoryItem, bool, string, error) {
	if v.listHistory != nil {
		return v.listHistory(ctx, q)
	}
	return nil, false, "", errStubNotConfigured
}

func (v *stubVendor) GetHistoryItem(context.Context, string) (*elevenlabs.HistoryItem, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) DownloadHistoryAudio(context.Context, string) ([]byte, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) DownloadHistoryItems(ctx context.Context, ids []string) ([]byte, error) {
	if v.downloadHistoryIDs != nil {
		return v.downloadHistoryIDs(ctx, ids)
	}
	return nil, errStubNotConfigured
}

func (v *stubVendor) DeleteHistoryItem(context.Context, string) error {
	return errStubNotConfigured
}

func (v *stubVendor) CreateAgent(context.Context, map[string]any) (string, error) {
	return "", errStubNotConfigured
}

func (v *stubVendor) GetAgent(context.Context, string) (map[string]any, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) UpdateAgent(context.Context, string, map[string]any) error {
	return errStubNotConfigured
}

func (v *stubVendor) DuplicateAgent(ctx context.Context, agentID, name string) (string, error) {
	if v.duplicateAgent != nil {
		return v.duplicateAgent(ctx, agentID, name)
	}
	return "", errStubNotConfigured
}

func (v *stubVendor) DeleteAgent(ctx context.Context, agentID string) error {
	if v.deleteAgent != nil {
		return v.deleteAgent(ctx, agentID)
	}
	return errStubNotConfigured
}

func (v *stubVendor) ListAgents(context.Context, string, int) ([]elevenlabs.AgentSummary, bool, error) {
	return nil, false, errStubNotConfigured
}

func (v *stubVendor) GetConversation(context.Context, string) (*elevenlabs.Conversation, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) ListConversations(context.Context, elevenlabs.ConversationQuery) ([]elevenlabs.Conversation, bool, string, error) {
	return nil, false, "", errStubNotConfigured
}

func (v *stubVendor) GetConversationAudio(context.Context, string) ([]byte, error) {
	return nil, errStubNotConfigured
}

func (v *stubVendor) DeleteConversation(ctx context.Context, conversationID string) error {
	if v.deleteConversation != nil {
		return v.deleteConversation(ctx, conversationID)
	}
	return errStubNotConfigured
}

func (v *stubVendor) AddKnowledgeBaseText(context.Context, string, string) (string, error) {
	return "", errStubNotConfigured
}

func (v *stubVendor) AddKnowledgeBaseURL(context.Context, string, string) (string, error) {
	return "", errStubNotConfigured
}

func (v *stubVendor) AddKnowledgeBaseFile(context.Context, string, string, []byte) (string, error) {
	return "", errStubNotConfigured
}

func (v *stubVendor) GetDocumentContent(context.Context, string) (string, error) {
	return "", errStubNotConfigured
}

func (v *stubVendor) DeleteKnowledgeBaseDocument(ctx context.Context, documentID string) error {
	if v.deleteKnowledgeDoc != nil {
		return v.deleteKnowledgeDoc(ctx, documentID)
	}
	return errStubNotConfigured
}

func newTestServer(t *testing.T, mode output.Mode, vendor Vendor) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.OutputMode = mode
	cfg.BasePath = t.TempDir()
	cfg.RateLimitRPS = 1000
	cfg.RateLimitBurst = 1000
	if vendor == nil {
		vendor = &stubVendor{}
	}
	return NewServer(cfg, vendor, nil, log.New(io.Discard, "", 0))
}

func dispatch(t *testing.T, s *Server, method string, params interface{}, session string) (*rpcResponse, string) {
	t.Helper()
	frame := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		frame["params"] = params
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return s.Dispatch(context.Background(), raw, session)
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) toolCallResult {
	t.Helper()
	resp, _ := dispatch(t, s, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	}, "")
	if resp == nil {
		t.Fatal("expected a response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	result, ok := resp.Result.(toolCallResult)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	return result
}

func TestInitializeOpensSession(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	resp, session := dispatch(t, s, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
	}, "")
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp)
	}
	if session == "" {
		t.Fatal("expected a session id")
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if got := result["protocolVersion"]; got != protocolVersion {
		t.Fatalf("protocolVersion = %v, want %s", got, protocolVersion)
	}
}

func TestNotificationProducesNoResponse(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	raw := []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	resp, _ := s.Dispatch(context.Background(), raw, "sess")
	if resp != nil {
		t.Fatalf("notification should not produce a response, got %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	resp, _ := dispatch(t, s, "prompts/list", nil, "")
	if resp == nil || resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != rpcCodeMethodNotFound {
		t.Fatalf("code = %d, want %d", resp.Error.Code, rpcCodeMethodNotFound)
	}
}

func TestToolsListOrderAndCount(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	resp, _ := dispatch(t, s, "tools/list", nil, "")
	result := resp.Result.(map[string]interface{})
	tools := result["tools"].([]toolDefinition)

	if len(tools) != len(toolOrder) {
		t.Fatalf("tool count = %d, want %d", len(tools), len(toolOrder))
	}
	if tools[0].Name != toolNameTextToSpeech {
		t.Fatalf("first tool = %s, want %s", tools[0].Name, toolNameTextToSpeech)
	}
	for i, tool := range tools {
		if tool.Name != toolOrder[i] {
			t.Fatalf("tool %d = %s, want %s", i, tool.Name, toolOrder[i])
		}
		if tool.InputSchema == nil {
			t.Fatalf("tool %s has no input schema", tool.Name)
		}
	}
}

func TestTextToSpeechWritesFile(t *testing.T) {
	audio := []byte("fake-mp3-bytes")
	vendor := &stubVendor{
		textToSpeech: func(_ context.Context, req elevenlabs.TTSRequest) ([]byte, error) {
			if req.Text != "hello world" {
				t.Fatalf("text = %q", req.Text)
			}
			return audio, nil
		},
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	result := callTool(t, s, "text_to_speech", map[string]interface{}{"text": "hello world"})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "Success. File saved as:") {
		t.Fatalf("unexpected content: %+v", result.Content)
	}

	structured := result.StructuredContent.(map[string]interface{})
	path, _ := structured["file_path"].(string)
	if path == "" {
		t.Fatal("expected a file path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(data, audio) {
		t.Fatal("written file does not match vendor audio")
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "tts_hello_world_") || !strings.HasSuffix(base, ".mp3") {
		t.Fatalf("unexpected file name %s", base)
	}
}

func TestTextToSpeechResourcesModeSkipsDisk(t *testing.T) {
	vendor := &stubVendor{
		textToSpeech: func(context.Context, elevenlabs.TTSRequest) ([]byte, error) {
			return []byte("audio"), nil
		},
	}
	s := newTestServer(t, output.ModeResources, vendor)

	result := callTool(t, s, "text_to_speech", map[string]interface{}{"text": "hi"})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}

	var sawResource bool
	for _, item := range result.Content {
		if item.Type == "resource" {
			sawResource = true
			if !strings.HasPrefix(item.Resource.URI, "elevenlabs://") {
				t.Fatalf("uri = %s", item.Resource.URI)
			}
			if item.Resource.Blob == "" {
				t.Fatal("expected base64 blob for audio")
			}
		}
	}
	if !sawResource {
		t.Fatalf("no resource item in %+v", result.Content)
	}

	entries, err := os.ReadDir(s.cfg.BasePath)
	if err != nil {
		t.Fatalf("read base dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("resources mode wrote %d file(s) to disk", len(entries))
	}
}

func TestTextToSpeechRejectsEscapingDirectory(t *testing.T) {
	vendor := &stubVendor{
		textToSpeech: func(context.Context, elevenlabs.TTSRequest) ([]byte, error) {
			return []byte("audio"), nil
		},
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	result := callTool(t, s, "text_to_speech", map[string]interface{}{
		"text":             "hi",
		"output_directory": "../../etc/passwd",
	})
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if !strings.Contains(result.Content[0].Text, "PATH_ESCAPE") {
		t.Fatalf("unexpected error text: %s", result.Content[0].Text)
	}
}

func TestToolCallMissingRequiredField(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	result := callTool(t, s, "text_to_speech", map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if !strings.Contains(result.Content[0].Text, "MISSING_FIELD") {
		t.Fatalf("unexpected error text: %s", result.Content[0].Text)
	}
}

func TestToolCallUnknownArgument(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	result := callTool(t, s, "text_to_speech", map[string]interface{}{
		"text":  "hi",
		"voice": "nope",
	})
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if !strings.Contains(result.Content[0].Text, "INVALID_FIELD") {
		t.Fatalf("unexpected error text: %s", result.Content[0].Text)
	}
}

func TestToolCallUnknownTool(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	result := callTool(t, s, "no_such_tool", map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if !strings.Contains(result.Content[0].Text, "METHOD_NOT_FOUND") {
		t.Fatalf("unexpected error text: %s", result.Content[0].Text)
	}
}

func TestVendorAuthErrorPassesThrough(t *testing.T) {
	vendor := &stubVendor{
		getSubscription: func(context.Context) (*elevenlabs.Subscription, error) {
			return nil, &model.VendorError{
				Code:      "ELEVENLABS_AUTH",
				Message:   "invalid api key",
				Retryable: false,
			}
		},
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	result := callTool(t, s, "check_subscription", map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if !strings.Contains(result.Content[0].Text, "ERROR: ELEVENLABS_AUTH: invalid api key") {
		t.Fatalf("unexpected error text: %s", result.Content[0].Text)
	}
	structured := result.StructuredContent.(map[string]interface{})
	errInfo := structured["error"].(map[string]interface{})
	if errInfo["retryable"] != false {
		t.Fatal("auth errors must not be retryable")
	}
}

func TestTextToVoiceAggregatesPreviews(t *testing.T) {
	previews := []elevenlabs.VoicePreview{
		{GeneratedVoiceID: "gen1", AudioBase64: "YXVkaW8x"},
		{GeneratedVoiceID: "gen2", AudioBase64: "YXVkaW8y"},
		{GeneratedVoiceID: "gen3", AudioBase64: "YXVkaW8z"},
	}
	vendor := &stubVendor{
		createPreviews: func(context.Context, string, string) ([]elevenlabs.VoicePreview, string, error) {
			return previews, "sample text", nil
		},
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	result := callTool(t, s, "text_to_voice", map[string]interface{}{
		"voice_description": "a calm narrator",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "Generated voice IDs are: gen1, gen2, gen3") {
		t.Fatalf("missing id list in %q", text)
	}

	entries, err := os.ReadDir(s.cfg.BasePath)
	if err != nil {
		t.Fatalf("read base dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("wrote %d file(s), want 3", len(entries))
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "voice_design_gen") {
			t.Fatalf("unexpected preview file %s", entry.Name())
		}
	}
}

func TestResourcesReadRoundTrip(t *testing.T) {
	vendor := &stubVendor{
		textToSpeech: func(context.Context, elevenlabs.TTSRequest) ([]byte, error) {
			return []byte("round trip audio"), nil
		},
	}
	s := newTestServer(t, output.ModeBoth, vendor)

	result := callTool(t, s, "text_to_speech", map[string]interface{}{"text": "round trip"})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	var uri string
	for _, item := range result.Content {
		if item.Type == "resource" {
			uri = item.Resource.URI
		}
	}
	if uri == "" {
		t.Fatal("no resource uri returned")
	}

	resp, _ := dispatch(t, s, "resources/read", map[string]interface{}{"uri": uri}, "")
	if resp.Error != nil {
		t.Fatalf("resources/read failed: %+v", resp.Error)
	}
	read := resp.Result.(map[string]interface{})
	contents := read["contents"].([]map[string]interface{})
	if len(contents) != 1 {
		t.Fatalf("contents length = %d", len(contents))
	}
	if contents[0]["uri"] != uri {
		t.Fatalf("uri = %v, want %s", contents[0]["uri"], uri)
	}
	if contents[0]["mimeType"] != "audio/mpeg" {
		t.Fatalf("mimeType = %v", contents[0]["mimeType"])
	}
	if blob, _ := contents[0]["blob"].(string); blob == "" {
		t.Fatal("expected base64 blob")
	}
}

func TestResourcesReadTraversalRejected(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	resp, _ := dispatch(t, s, "resources/read", map[string]interface{}{
		"uri": "elevenlabs://../../etc/passwd",
	}, "")
	if resp.Error == nil {
		t.Fatal("expected an error")
	}
	if resp.Error.Data == nil || resp.Error.Data.Code != "PATH_ESCAPE" {
		t.Fatalf("unexpected error data: %+v", resp.Error.Data)
	}
}

func TestResourcesReadMissingFile(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	resp, _ := dispatch(t, s, "resources/read", map[string]interface{}{
		"uri": "elevenlabs://tts_gone_20240101_000000.mp3",
	}, "")
	if resp.Error == nil {
		t.Fatal("expected an error")
	}
	if resp.Error.Data == nil || resp.Error.Data.Code != "NOT_FOUND" {
		t.Fatalf("unexpected error data: %+v", resp.Error.Data)
	}
}

func TestResourcesListSkipsHiddenFiles(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	base := s.cfg.BasePath
	for _, name := range []string{"tts_a_20240101_000000.mp3", ".hidden.tmp"} {
		if err := os.WriteFile(filepath.Join(base, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	resp, _ := dispatch(t, s, "resources/list", nil, "")
	if resp.Error != nil {
		t.Fatalf("resources/list failed: %+v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	resources := result["resources"].([]map[string]interface{})
	if len(resources) != 1 {
		t.Fatalf("resources length = %d, want 1", len(resources))
	}
	if resources[0]["uri"] != "elevenlabs://tts_a_20240101_000000.mp3" {
		t.Fatalf("uri = %v", resources[0]["uri"])
	}
}

func TestEditVoiceUpdatesNameAndDescription(t *testing.T) {
	var gotVoice, gotName, gotDesc string
	vendor := &stubVendor{
		editVoice: func(_ context.Context, voiceID, name, description string) error {
			gotVoice, gotName, gotDesc = voiceID, name, description
			return nil
		},
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	result := callTool(t, s, "edit_voice", map[string]interface{}{
		"voice_id":    "v1",
		"name":        "Narrator",
		"description": "calm, low register",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	if gotVoice != "v1" || gotName != "Narrator" || gotDesc != "calm, low register" {
		t.Fatalf("vendor got %q %q %q", gotVoice, gotName, gotDesc)
	}
}

func TestEditVoiceRequiresSomeChange(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	result := callTool(t, s, "edit_voice", map[string]interface{}{"voice_id": "v1"})
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	if !strings.Contains(result.Content[0].Text, "MISSING_FIELD") {
		t.Fatalf("unexpected error text: %s", result.Content[0].Text)
	}
}

func TestDuplicateAgentReturnsNewID(t *testing.T) {
	vendor := &stubVendor{
		duplicateAgent: func(_ context.Context, agentID, name string) (string, error) {
			if agentID != "agent_1" || name != "copy" {
				t.Fatalf("vendor got %q %q", agentID, name)
			}
			return "agent_2", nil
		},
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	result := callTool(t, s, "duplicate_agent", map[string]interface{}{
		"agent_id": "agent_1",
		"name":     "copy",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	if !strings.Contains(result.Content[0].Text, "agent_2") {
		t.Fatalf("unexpected content: %s", result.Content[0].Text)
	}
	structured := result.StructuredContent.(map[string]interface{})
	if structured["agent_id"] != "agent_2" {
		t.Fatalf("structured agent_id = %v", structured["agent_id"])
	}
}

func TestDeleteTools(t *testing.T) {
	var deleted []string
	record := func(kind string) func(context.Context, string) error {
		return func(_ context.Context, id string) error {
			deleted = append(deleted, kind+":"+id)
			return nil
		}
	}
	vendor := &stubVendor{
		deleteAgent:        record("agent"),
		deleteConversation: record("conversation"),
		deleteKnowledgeDoc: record("document"),
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	calls := []struct {
		tool string
		args map[string]interface{}
		want string
	}{
		{"delete_agent", map[string]interface{}{"agent_id": "a1"}, "agent:a1"},
		{"delete_conversation", map[string]interface{}{"conversation_id": "c1"}, "conversation:c1"},
		{"delete_knowledge_base_document", map[string]interface{}{"document_id": "d1"}, "document:d1"},
	}
	for i, call := range calls {
		result := callTool(t, s, call.tool, call.args)
		if result.IsError {
			t.Fatalf("%s: unexpected tool error: %+v", call.tool, result.Content)
		}
		if deleted[i] != call.want {
			t.Fatalf("%s deleted %q, want %q", call.tool, deleted[i], call.want)
		}
	}
}

func TestHistoryPreviewTruncatesOnRunes(t *testing.T) {
	long := strings.Repeat("é", 70)
	vendor := &stubVendor{
		listHistory: func(context.Context, elevenlabs.HistoryQuery) ([]elevenlabs.HistoryItem, bool, string, error) {
			return []elevenlabs.HistoryItem{{HistoryItemID: "h1", Text: long}}, false, "h1", nil
		},
	}
	s := newTestServer(t, output.ModeFiles, vendor)

	result := callTool(t, s, "get_history", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	text := result.Content[0].Text
	if !utf8.ValidString(text) {
		t.Fatal("history listing is not valid UTF-8")
	}
	if !strings.Contains(text, strings.Repeat("é", 60)+"...") {
		t.Fatalf("preview not truncated on rune boundary: %q", text)
	}
}

func TestServeHTTPRejectsNonPost(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestServeHTTPRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestServeHTTPAllowsLoopbackOrigin(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Origin", "http://127.0.0.1:3000")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServeHTTPBearerToken(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.OutputMode = output.ModeFiles
	cfg.BasePath = t.TempDir()
	cfg.RateLimitRPS = 1000
	cfg.RateLimitBurst = 1000
	cfg.BearerToken = "sekrit"
	s := NewServer(cfg, &stubVendor{}, nil, log.New(io.Discard, "", 0))

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	body = strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	req = httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", rec.Code)
	}
}

func TestServeHTTPEchoesSessionHeader(t *testing.T) {
	s := newTestServer(t, output.ModeFiles, nil)

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(sessionHeader) == "" {
		t.Fatal("expected a session header")
	}
}

func TestServeHTTPRateLimitsNonLoopback(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.OutputMode = output.ModeFiles
	cfg.BasePath = t.TempDir()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 2
	s := NewServer(cfg, &stubVendor{}, nil, log.New(io.Discard, "", 0))

	var last int
	for i := 0; i < 5; i++ {
		body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.RemoteAddr = "203.0.113.9:1234"
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last)
	}
}
