package events

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionUpdate `json:"session"`
}

type ConversationItemCreateEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

type ResponseCreateEvent struct {
	BaseEvent
	Response ResponseCreatePayload `json:"response"`
}

type ResponseCreatePayload struct {
	Modalities        []string    `json:"modalities,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	Voice             string      `json:"voice,omitempty"`
	OutputAudioFormat AudioFormat `json:"output_audio_format,omitempty"`
	ToolChoice        string      `json:"tool_choice,omitempty"`
	Temperature       float64     `json:"temperature,omitempty"`
	MaxOutputTokens   int         `json:"max_output_tokens,omitempty"`
}

// Item types.
const (
	ItemTypeMessage            = "message"
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
)

// Item statuses.
const (
	ItemStatusInProgress = "in_progress"
	ItemStatusCompleted  = "completed"
	ItemStatusIncomplete = "incomplete"
)

// ConversationItem is the inner “item” object.
type ConversationItem struct {
	ID        string                    `json:"id,omitempty"`
	Type      string                    `json:"type"`
	Status    string                    `json:"status,omitempty"`
	Role      string                    `json:"role,omitempty"`
	Content   []ConversationItemContent `json:"content,omitempty"`
	CallID    string                    `json:"call_id,omitempty"`
	Name      string                    `json:"name,omitempty"`
	Arguments string                    `json:"arguments,omitempty"`
	Output    string                    `json:"output,omitempty"`
}

// Transcript joins the text and transcript of all content parts.
func (i ConversationItem) Transcript() string {
	var s string
	for _, c := range i.Content {
		if c.Text != "" {
			s += c.Text
		} else {
			s += c.Transcript
		}
	}
	return s
}

type ConversationItemContent struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Audio      string `json:"audio,omitempty"`
}
