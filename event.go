package shopassist

import "fmt"

// EventKind tags the events a Session emits on its Bus.
type EventKind int

const (
	KindConversationUpdated EventKind = iota + 1
	KindItemCompleted
	KindConversationInterrupted
	KindInputTranscriptionCompleted
	KindError
	KindToolCompleted
)

func (k EventKind) String() string {
	switch k {
	case KindConversationUpdated:
		return "conversation.updated"
	case KindItemCompleted:
		return "conversation.item.completed"
	case KindConversationInterrupted:
		return "conversation.interrupted"
	case KindInputTranscriptionCompleted:
		return "conversation.item.input_audio_transcription.completed"
	case KindError:
		return "error"
	case KindToolCompleted:
		return "tool.completed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is implemented by the value types below. Kind must not depend on
// the receiver's fields.
type Event interface {
	Kind() EventKind
}

// Delta is one incremental fragment. Exactly one field is set.
type Delta struct {
	Audio      []byte
	Transcript string
	Arguments  string
}

// ConversationUpdated carries a single delta, never the accumulated content.
type ConversationUpdated struct {
	Item    ItemRef
	Delta   Delta
	TrackID string
}

// ItemCompleted is emitted for completed messages with a transcript.
type ItemCompleted struct {
	Item Item
}

// ConversationInterrupted tells renderers to stop playback. Audio tagged with
// PreviousTrackID is stale from now on.
type ConversationInterrupted struct {
	TrackID         string
	PreviousTrackID string
	ItemID          string
}

// InputTranscriptionCompleted is what the user said, as opposed to the
// assistant transcript delivered by ItemCompleted.
type InputTranscriptionCompleted struct {
	ItemID     string
	Transcript string
}

type ErrorOccurred struct {
	Err error
}

// ToolCompleted reports a finished tool call together with its structured
// result, for presentation adapters.
type ToolCompleted struct {
	Call   ToolCall
	Result any
	Err    error
	Output string
}

func (ConversationUpdated) Kind() EventKind         { return KindConversationUpdated }
func (ItemCompleted) Kind() EventKind               { return KindItemCompleted }
func (ConversationInterrupted) Kind() EventKind     { return KindConversationInterrupted }
func (InputTranscriptionCompleted) Kind() EventKind { return KindInputTranscriptionCompleted }
func (ErrorOccurred) Kind() EventKind               { return KindError }
func (ToolCompleted) Kind() EventKind               { return KindToolCompleted }
