package shopassist

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/codewandler/shopassist-go/events"
	"github.com/codewandler/shopassist-go/tool"
	"github.com/tidwall/gjson"
)

func parseFrame[T any](s *Session, typ string, data []byte) (*T, bool) {
	evt, err := events.Parse[T](data)
	if err != nil {
		s.logger.Error("failed to parse event", slog.String("type", typ), slog.Any("err", err))
		return nil, false
	}
	return evt, true
}

// handleFrame classifies one backend frame. It runs on the connection's
// frame loop and returns only once the frame, including any tool call it
// completes, has been fully processed.
func (s *Session) handleFrame(ctx context.Context, gen uint64, data []byte) error {
	if !s.current(gen) {
		return nil
	}

	typ := gjson.GetBytes(data, "type").String()

	switch typ {
	case events.TypeError:
		if evt, ok := parseFrame[events.ErrorEvent](s, typ, data); ok {
			s.logger.Error("backend error", slog.Any("err", evt))
			s.bus.Emit(ErrorOccurred{Err: evt})
		}

	case events.TypeSessionCreated:
		s.logger.Debug("session created", slog.String("id", gjson.GetBytes(data, "session.id").String()))

	case events.TypeSessionUpdated:
		s.mu.Lock()
		if s.gen == gen {
			select {
			case s.updated <- struct{}{}:
			default:
			}
		}
		s.mu.Unlock()

	case events.TypeConversationItemCreated:
		if evt, ok := parseFrame[events.ConversationItemCreatedEvent](s, typ, data); ok {
			s.addItem(gen, evt.Item)
		}

	case events.TypeResponseOutputItemAdded:
		if evt, ok := parseFrame[events.ResponseOutputItemEvent](s, typ, data); ok {
			s.addItem(gen, evt.Item)
		}

	case events.TypeResponseAudioDelta:
		if evt, ok := parseFrame[events.DeltaEvent](s, typ, data); ok {
			audio, err := base64.StdEncoding.DecodeString(evt.Delta)
			if err != nil {
				s.logger.Error("failed to decode base64 data", slog.Any("err", err))
				return nil
			}
			s.appendDelta(gen, typ, evt.ItemID, Delta{Audio: audio})
		}

	case events.TypeResponseAudioTranscriptDelta, events.TypeResponseTextDelta:
		if evt, ok := parseFrame[events.DeltaEvent](s, typ, data); ok {
			s.appendDelta(gen, typ, evt.ItemID, Delta{Transcript: evt.Delta})
		}

	case events.TypeResponseFunctionCallArgsDelta:
		if evt, ok := parseFrame[events.DeltaEvent](s, typ, data); ok {
			s.appendDelta(gen, typ, evt.ItemID, Delta{Arguments: evt.Delta})
		}

	case events.TypeInputAudioTranscriptionCompleted:
		if evt, ok := parseFrame[events.InputAudioTranscriptionCompletedEvent](s, typ, data); ok {
			s.inputTranscribed(gen, evt)
		}

	case events.TypeSpeechStarted:
		s.interrupt(gen, gjson.GetBytes(data, "item_id").String())

	case events.TypeResponseOutputItemDone:
		if evt, ok := parseFrame[events.ResponseOutputItemEvent](s, typ, data); ok {
			s.completeItem(ctx, gen, typ, evt.Item)
		}

	case events.TypeResponseDone:
		s.responseDone(gen)

	default:
		s.logger.Debug("unhandled frame", slog.String("type", typ))
	}

	return nil
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Session) addItem(gen uint64, ci events.ConversationItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.conv.add(ci)
}

func (s *Session) protocolError(err error) {
	s.logger.Warn("dropping frame", slog.Any("err", err))
	s.bus.Emit(ErrorOccurred{Err: err})
}

// appendDelta adds a fragment to its open item and re-emits only the
// fragment, tagged with the current track.
func (s *Session) appendDelta(gen uint64, frame, itemID string, d Delta) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	it, err := s.conv.open(frame, itemID)
	if err != nil {
		s.mu.Unlock()
		s.protocolError(err)
		return
	}
	switch {
	case d.Audio != nil:
		it.audio = append(it.audio, d.Audio...)
	case d.Arguments != "":
		it.arguments.WriteString(d.Arguments)
	default:
		it.transcript.WriteString(d.Transcript)
	}
	ref := it.ref
	track := s.trackID
	s.mu.Unlock()

	s.bus.Emit(ConversationUpdated{Item: ref, Delta: d, TrackID: track})
}

func (s *Session) inputTranscribed(gen uint64, evt *events.InputAudioTranscriptionCompletedEvent) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if it, ok := s.conv.get(evt.ItemID); ok {
		it.inputTranscript = evt.Transcript
	}
	s.mu.Unlock()

	s.bus.Emit(InputTranscriptionCompleted{ItemID: evt.ItemID, Transcript: evt.Transcript})
}

// interrupt rotates the playback track before any later frame is handled,
// so every audio delta from now on carries the new id.
func (s *Session) interrupt(gen uint64, itemID string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	prev := s.trackID
	s.trackID = newTrackID()
	next := s.trackID
	s.mu.Unlock()

	s.logger.Debug("conversation interrupted", slog.String("track", next))
	s.bus.Emit(ConversationInterrupted{TrackID: next, PreviousTrackID: prev, ItemID: itemID})
}

func (s *Session) completeItem(ctx context.Context, gen uint64, frame string, final events.ConversationItem) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	it, ok := s.conv.get(final.ID)
	if !ok {
		it = s.conv.add(events.ConversationItem{
			ID:     final.ID,
			Type:   final.Type,
			Role:   final.Role,
			Name:   final.Name,
			CallID: final.CallID,
		})
	}
	if it.completed {
		s.mu.Unlock()
		s.protocolError(&ProtocolError{Frame: frame, ItemID: final.ID, Reason: "item already completed"})
		return
	}
	it.complete(final)
	snap := it.snapshot()

	var call *ToolCall
	if snap.Type == events.ItemTypeFunctionCall {
		if _, active := s.calls[snap.ID]; !active {
			call = &ToolCall{
				ID:        snap.CallID,
				ItemID:    snap.ID,
				Name:      snap.Name,
				Arguments: snap.Arguments,
			}
			s.calls[snap.ID] = call
		}
	}
	s.mu.Unlock()

	if call != nil {
		s.dispatch(ctx, gen, call)
		return
	}

	if snap.Type == events.ItemTypeMessage && snap.Transcript != "" {
		s.bus.Emit(ItemCompleted{Item: snap})
	}
}

// dispatch executes a tool call in place and sends its output. The result
// is dropped if the session disconnected meanwhile.
func (s *Session) dispatch(ctx context.Context, gen uint64, call *ToolCall) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	res, err := s.tools.Invoke(ctx, &tool.Call{
		ID:        call.ID,
		ItemID:    call.ItemID,
		Name:      call.Name,
		Arguments: call.Arguments,
		State:     s.state,
	})
	output := tool.Output(res, err)

	s.logger.Debug("tool call",
		slog.String("name", call.Name),
		slog.String("args", call.Arguments),
		slog.String("output", output),
		slog.Any("err", err),
	)
	if err != nil {
		s.logger.Warn("tool call failed", slog.String("name", call.Name), slog.Any("err", err))
	}

	s.mu.Lock()
	stale := s.gen != gen
	if !stale {
		delete(s.calls, call.ItemID)
		s.pendingResponse = true
	}
	s.mu.Unlock()

	if stale {
		s.logger.Info("discarding tool result of disconnected session", slog.String("name", call.Name))
		return
	}

	s.bus.Emit(ToolCompleted{Call: *call, Result: res, Err: err, Output: output})

	if err := s.sendGen(gen, events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
		Item: events.ConversationItem{
			Type:   events.ItemTypeFunctionCallOutput,
			CallID: call.ID,
			Output: output,
		},
	}); err != nil {
		s.logger.Error("failed to send tool output", slog.Any("err", err))
	}
}

// responseDone resumes generation once all tool outputs of the finished
// response have been delivered.
func (s *Session) responseDone(gen uint64) {
	s.mu.Lock()
	resume := s.gen == gen && s.pendingResponse
	s.pendingResponse = false
	s.mu.Unlock()

	if !resume {
		return
	}
	if err := s.sendGen(gen, events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeResponseCreate),
	}); err != nil {
		s.logger.Error("failed to create response", slog.Any("err", err))
	}
}
