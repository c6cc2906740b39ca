package events

import "fmt"

type AudioFormat string

const (
	AudioFormatPCM16 AudioFormat = "pcm16"
)

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStoppedEvent struct {
	BaseEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// ConversationItemCreatedEvent is sent for every item added to the
// conversation, including echoes of client created items.
type ConversationItemCreatedEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

// ResponseOutputItemEvent covers response.output_item.added and
// response.output_item.done.
type ResponseOutputItemEvent struct {
	BaseEvent
	ResponseID  string           `json:"response_id"`
	OutputIndex int              `json:"output_index"`
	Item        ConversationItem `json:"item"`
}

// DeltaEvent covers the audio, transcript, text and function call argument
// delta frames, which all share the same shape.
type DeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	CallID       string `json:"call_id,omitempty"`
	Delta        string `json:"delta"`
}

type InputAudioTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type Response struct {
	ID     string             `json:"id"`
	Status string             `json:"status"`
	Output []ConversationItem `json:"output"`
}
