package events

import (
	"encoding/json"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Client event types.
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"
	TypeInputAudioBufferClear  = "input_audio_buffer.clear"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
)

// Server event types.
const (
	TypeError                            = "error"
	TypeSessionCreated                   = "session.created"
	TypeSessionUpdated                   = "session.updated"
	TypeConversationItemCreated          = "conversation.item.created"
	TypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeInputAudioTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	TypeSpeechStarted                    = "input_audio_buffer.speech_started"
	TypeSpeechStopped                    = "input_audio_buffer.speech_stopped"
	TypeResponseCreated                  = "response.created"
	TypeResponseDone                     = "response.done"
	TypeResponseOutputItemAdded          = "response.output_item.added"
	TypeResponseOutputItemDone           = "response.output_item.done"
	TypeResponseTextDelta                = "response.text.delta"
	TypeResponseAudioDelta               = "response.audio.delta"
	TypeResponseAudioDone                = "response.audio.done"
	TypeResponseAudioTranscriptDelta     = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone      = "response.audio_transcript.done"
	TypeResponseFunctionCallArgsDelta    = "response.function_call_arguments.delta"
	TypeResponseFunctionCallArgsDone     = "response.function_call_arguments.done"
)

type BaseEvent struct {
	EventID        string  `json:"event_id"`
	Type           string  `json:"type"`
	PreviousItemID *string `json:"previous_item_id,omitempty"`
}

func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID: NewID(),
		Type:    eventType,
	}
}

// NewID returns a random identifier for client side events and items.
func NewID() string {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return id
}

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}
