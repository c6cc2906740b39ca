package shopassist

import (
	"strings"

	"github.com/codewandler/shopassist-go/events"
)

// ItemRef identifies an item without its content.
type ItemRef struct {
	ID   string
	Type string
	Role string
}

// Item is an immutable snapshot of one conversation turn.
type Item struct {
	ItemRef
	Status     string
	Transcript string
	// InputTranscript is the transcription of user audio, delivered
	// separately from the item itself.
	InputTranscript string
	Audio           []byte
	Name            string
	CallID          string
	Arguments       string
	Output          string
}

func (i Item) Completed() bool {
	return i.Status == events.ItemStatusCompleted
}

type item struct {
	ref             ItemRef
	completed       bool
	transcript      strings.Builder
	arguments       strings.Builder
	audio           []byte
	inputTranscript string
	name            string
	callID          string
	output          string
}

func (it *item) snapshot() Item {
	status := events.ItemStatusInProgress
	if it.completed {
		status = events.ItemStatusCompleted
	}
	return Item{
		ItemRef:         it.ref,
		Status:          status,
		Transcript:      it.transcript.String(),
		InputTranscript: it.inputTranscript,
		Audio:           append([]byte(nil), it.audio...),
		Name:            it.name,
		CallID:          it.callID,
		Arguments:       it.arguments.String(),
		Output:          it.output,
	}
}

// complete closes the item. Accumulated deltas win over the final payload;
// the payload only fills what was never streamed.
func (it *item) complete(final events.ConversationItem) {
	if it.name == "" {
		it.name = final.Name
	}
	if it.callID == "" {
		it.callID = final.CallID
	}
	if it.arguments.Len() == 0 && final.Arguments != "" {
		it.arguments.WriteString(final.Arguments)
	}
	if it.transcript.Len() == 0 {
		it.transcript.WriteString(final.Transcript())
	}
	if it.output == "" {
		it.output = final.Output
	}
	it.completed = true
}

// conversation is the ordered item log of one connection.
type conversation struct {
	items []*item
	byID  map[string]*item
}

func newConversation() *conversation {
	return &conversation{byID: make(map[string]*item)}
}

// add records a new item. Known ids return the existing item unchanged.
func (c *conversation) add(ci events.ConversationItem) *item {
	if it, ok := c.byID[ci.ID]; ok {
		return it
	}
	it := &item{
		ref:    ItemRef{ID: ci.ID, Type: ci.Type, Role: ci.Role},
		name:   ci.Name,
		callID: ci.CallID,
		output: ci.Output,
	}
	if ci.Status == events.ItemStatusCompleted {
		it.complete(ci)
	}
	c.items = append(c.items, it)
	c.byID[ci.ID] = it
	return it
}

func (c *conversation) get(id string) (*item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// open returns the item a delta belongs to. Deltas for unknown or completed
// items are protocol violations.
func (c *conversation) open(frame, id string) (*item, error) {
	it, ok := c.byID[id]
	if !ok {
		return nil, &ProtocolError{Frame: frame, ItemID: id, Reason: "unknown item"}
	}
	if it.completed {
		return nil, &ProtocolError{Frame: frame, ItemID: id, Reason: "item already completed"}
	}
	return it, nil
}

func (c *conversation) snapshot() []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it.snapshot())
	}
	return out
}
