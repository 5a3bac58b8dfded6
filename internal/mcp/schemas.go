package mcp

// Input schemas are plain JSON-schema documents built as maps. Every schema
// closes additionalProperties so unknown arguments fail at the schema level
// for strict clients and in the handlers for lax ones.

func schemaObject(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

func integerProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func booleanProperty(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func stringArrayProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

func emptyInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{})
}

func textToSpeechInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"text":              stringProperty("The text to convert to speech."),
		"voice_id":          stringProperty("Voice to use. Defaults to the configured voice."),
		"model_id":          stringProperty("Model to use, e.g. eleven_multilingual_v2 or eleven_flash_v2_5."),
		"stability":         numberProperty("Voice stability, -1 to 1."),
		"similarity_boost":  numberProperty("Similarity to the original voice, 0 to 1."),
		"style":             numberProperty("Style exaggeration."),
		"use_speaker_boost": booleanProperty("Boost similarity to the original speaker."),
		"speed":             numberProperty("Speaking speed, 0.7 to 1.2."),
		"language":          stringProperty("ISO 639-1 language code."),
		"output_format":     stringProperty("Audio output format, e.g. mp3_44100_128."),
		"output_directory":  stringProperty("Directory to save the file in, relative to the output base."),
	}, "text")
}

func speechToTextInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"input_file_path":  stringProperty("Path to the audio file to transcribe."),
		"language_code":    stringProperty("ISO 639-3 language code. Detected automatically when omitted."),
		"diarize":          booleanProperty("Annotate which speaker is talking."),
		"save_transcript":  booleanProperty("Save the transcript to a text file. Defaults to true."),
		"output_directory": stringProperty("Directory to save the transcript in."),
	}, "input_file_path")
}

func soundEffectsInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"text":             stringProperty("Description of the sound effect."),
		"duration_seconds": numberProperty("Duration in seconds, 0.5 to 22."),
		"output_format":    stringProperty("Audio output format, e.g. mp3_44100_128."),
		"output_directory": stringProperty("Directory to save the file in."),
	}, "text")
}

func speechToSpeechInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"input_file_path":  stringProperty("Path to the audio file to transform."),
		"voice_id":         stringProperty("Target voice. Defaults to the configured voice."),
		"output_directory": stringProperty("Directory to save the file in."),
	}, "input_file_path")
}

func isolateAudioInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"input_file_path":  stringProperty("Path to the audio file to clean up."),
		"output_directory": stringProperty("Directory to save the file in."),
	}, "input_file_path")
}

func textToVoiceInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"voice_description": stringProperty("Description of the voice to design."),
		"text":              stringProperty("Sample text to preview with. Generated automatically when omitted."),
		"output_directory":  stringProperty("Directory to save the preview files in."),
	}, "voice_description")
}

func createVoiceFromPreviewInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"generated_voice_id": stringProperty("Preview id returned by text_to_voice."),
		"voice_name":         stringProperty("Name for the new voice."),
		"voice_description":  stringProperty("Description stored with the voice."),
	}, "generated_voice_id", "voice_name")
}

func voiceCloneInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"name":        stringProperty("Name for the cloned voice."),
		"files":       stringArrayProperty("Paths to audio samples of the voice."),
		"description": stringProperty("Description stored with the voice."),
	}, "name", "files")
}

func searchVoicesInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"search":         stringProperty("Search term matched against name, description and labels."),
		"sort":           stringProperty("Sort field: name or created_at_unix."),
		"sort_direction": stringProperty("asc or desc."),
	})
}

func searchVoiceLibraryInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"search":    stringProperty("Search term for the shared voice library."),
		"page":      integerProperty("Zero-based page number."),
		"page_size": integerProperty("Results per page, 1 to 100. Defaults to 10."),
	})
}

func voiceIDInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"voice_id": stringProperty("The voice id."),
	}, "voice_id")
}

func editVoiceInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"voice_id":    stringProperty("The voice id."),
		"name":        stringProperty("New name for the voice."),
		"description": stringProperty("New description for the voice."),
	}, "voice_id")
}

func historyInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"page_size":   integerProperty("Items per page, 1 to 1000. Defaults to 100."),
		"start_after": stringProperty("History item id to page after."),
		"voice_id":    stringProperty("Only items generated with this voice."),
		"search":      stringProperty("Search term matched against the generated text."),
		"source":      stringProperty("Filter by source: TTS or STS."),
	})
}

func historyItemInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"history_item_id": stringProperty("The history item id."),
	}, "history_item_id")
}

func historyItemAudioInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"history_item_id":  stringProperty("The history item id."),
		"output_directory": stringProperty("Directory to save the file in."),
	}, "history_item_id")
}

func downloadHistoryInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"history_item_ids": stringArrayProperty("History item ids to download. More than one yields a zip archive."),
		"output_directory": stringProperty("Directory to save the file in."),
	}, "history_item_ids")
}

func createAgentInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"name":                 stringProperty("Name of the agent."),
		"first_message":        stringProperty("First message the agent says in a conversation."),
		"system_prompt":        stringProperty("System prompt that defines the agent's behaviour."),
		"voice_id":             stringProperty("Voice the agent speaks with. Defaults to the configured voice."),
		"language":             stringProperty("ISO 639-1 language code. Defaults to en."),
		"llm":                  stringProperty("Language model backing the agent."),
		"temperature":          numberProperty("LLM temperature, 0 to 1. Defaults to 0.5."),
		"max_duration_seconds": integerProperty("Maximum call length in seconds. Defaults to 300."),
	}, "name", "first_message", "system_prompt")
}

func listAgentsInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"search":    stringProperty("Search term matched against agent names."),
		"page_size": integerProperty("Results per page, 1 to 100. Defaults to 30."),
	})
}

func agentIDInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"agent_id": stringProperty("The agent id."),
	}, "agent_id")
}

func duplicateAgentInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"agent_id": stringProperty("Agent to duplicate."),
		"name":     stringProperty("Name for the copy. Defaults to the vendor-assigned name."),
	}, "agent_id")
}

func listConversationsInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"agent_id":    stringProperty("Only conversations with this agent."),
		"cursor":      stringProperty("Pagination cursor from a previous call."),
		"call_status": stringProperty("Filter by status: processing, done or failed."),
		"page_size":   integerProperty("Results per page, 1 to 100. Defaults to 30."),
	})
}

func conversationIDInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"conversation_id": stringProperty("The conversation id."),
	}, "conversation_id")
}

func conversationAudioInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"conversation_id":  stringProperty("The conversation id."),
		"output_directory": stringProperty("Directory to save the audio in."),
	}, "conversation_id")
}

func addKnowledgeBaseInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"agent_id":            stringProperty("Agent to attach the document to."),
		"knowledge_base_name": stringProperty("Name for the knowledge base document."),
		"url":                 stringProperty("URL to index. Exactly one of url, text, input_file_path."),
		"text":                stringProperty("Raw text to index. Exactly one of url, text, input_file_path."),
		"input_file_path":     stringProperty("Local file to upload. Exactly one of url, text, input_file_path."),
	}, "agent_id", "knowledge_base_name")
}

func documentIDInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"document_id": stringProperty("The knowledge base document id."),
	}, "document_id")
}

func listGeneratedFilesInputSchema() map[string]interface{} {
	return schemaObject(map[string]interface{}{
		"tool":  stringProperty("Only files generated by this tool."),
		"limit": integerProperty("Maximum rows to return, 1 to 500. Defaults to 50."),
	})
}
