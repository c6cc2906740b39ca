package controller

// Inbound message types sent by the chat UI.
const (
	TypeAudioStart = "audio_start"
	TypeAudioChunk = "audio_chunk"
	TypeAudioEnd   = "audio_end"
	TypeText       = "text"
)

// Outbound message types.
const (
	TypeAudio          = "audio"
	TypeAudioInterrupt = "audio_interrupt"
	TypeMessage        = "message"
	TypeReceipt        = "receipt"
	TypeError          = "error"
)

const (
	AuthorAssistant = "assistant"
	AuthorUser      = "You"
)

// ClientMessage is one UI frame. Data is base64 PCM16 for audio chunks.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Text string `json:"text,omitempty"`
}

type ServerMessage struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Track    string `json:"track,omitempty"`
	Author   string `json:"author,omitempty"`
	Text     string `json:"text,omitempty"`
	HTML     string `json:"html,omitempty"`
}

const audioMimeType = "pcm16"

func textMessage(author, text string) ServerMessage {
	return ServerMessage{Type: TypeMessage, Author: author, Text: text}
}

func errorMessage(text string) ServerMessage {
	return ServerMessage{Type: TypeError, Text: text}
}
