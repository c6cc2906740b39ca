// Package controller bridges a chat UI to a realtime session. Assistant
// audio is only forwarded for the current playback track.
package controller

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/shopassist-go"
	"github.com/codewandler/shopassist-go/internal/receipt"
	"github.com/codewandler/shopassist-go/shop"
)

const (
	DefaultGreeting = "Hi, Welcome to ShopMe! To get started, please tell me your customer ID. Press `P` to talk!"
	notActive       = "Please activate voice mode before sending messages!"
)

// Session is the part of *shopassist.Session the controller drives.
type Session interface {
	Bus() *shopassist.Bus
	Connect(ctx context.Context) (shopassist.Status, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
	TrackID() string
	AppendInputAudio(pcm []byte) error
	SendUserMessage(text string) error
}

// Sink receives the messages for the UI. Send must not block on I/O.
type Sink interface {
	Send(msg ServerMessage) error
}

type Controller struct {
	session Session
	sink    Sink
	logger  *slog.Logger

	mu sync.Mutex
	// track is the only playback track whose audio is forwarded.
	track string
}

// New subscribes the controller to the session's events.
func New(session Session, sink Sink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Controller{
		session: session,
		sink:    sink,
		logger:  logger,
		track:   session.TrackID(),
	}

	bus := session.Bus()
	shopassist.On(bus, c.onConversationUpdated)
	shopassist.On(bus, c.onItemCompleted)
	shopassist.On(bus, c.onInterrupted)
	shopassist.On(bus, c.onInputTranscription)
	shopassist.On(bus, c.onError)
	shopassist.On(bus, c.onToolCompleted)
	return c
}

func (c *Controller) Greet(text string) error {
	if text == "" {
		text = DefaultGreeting
	}
	return c.sink.Send(textMessage(AuthorAssistant, text))
}

// ReportError shows text as an error in the UI.
func (c *Controller) ReportError(text string) error {
	return c.sink.Send(errorMessage(text))
}

func (c *Controller) currentTrack() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track
}

func (c *Controller) setTrack(id string) {
	c.mu.Lock()
	c.track = id
	c.mu.Unlock()
}

// Handle processes one UI message.
func (c *Controller) Handle(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case TypeAudioStart:
		if _, err := c.session.Connect(ctx); err != nil {
			c.logger.Error("failed to connect", slog.Any("err", err))
			return c.sink.Send(errorMessage(fmt.Sprintf("Failed to connect to OpenAI realtime: %v", err)))
		}
		c.setTrack(c.session.TrackID())
		c.logger.Info("connected to OpenAI realtime")
		return nil

	case TypeAudioChunk:
		pcm, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return fmt.Errorf("decode audio chunk: %w", err)
		}
		if !c.session.IsConnected() {
			c.logger.Info("realtime session is not connected")
			return nil
		}
		return c.session.AppendInputAudio(pcm)

	case TypeAudioEnd:
		return c.Close(ctx)

	case TypeText:
		err := c.session.SendUserMessage(msg.Text)
		if errors.Is(err, shopassist.ErrNotConnected) {
			return c.sink.Send(textMessage(AuthorAssistant, notActive))
		}
		return err
	}

	c.logger.Warn("unknown ui message", slog.String("type", msg.Type))
	return nil
}

// Close disconnects the session if it is connected.
func (c *Controller) Close(ctx context.Context) error {
	if !c.session.IsConnected() {
		return nil
	}
	return c.session.Disconnect(ctx)
}

func (c *Controller) onConversationUpdated(e shopassist.ConversationUpdated) error {
	if len(e.Delta.Audio) == 0 {
		return nil
	}
	if track := c.currentTrack(); e.TrackID != track {
		c.logger.Debug("discarding stale audio", slog.String("track", e.TrackID), slog.String("current", track))
		return nil
	}
	return c.sink.Send(ServerMessage{
		Type:     TypeAudio,
		Data:     base64.StdEncoding.EncodeToString(e.Delta.Audio),
		MimeType: audioMimeType,
		Track:    e.TrackID,
	})
}

func (c *Controller) onItemCompleted(e shopassist.ItemCompleted) error {
	if e.Item.Transcript == "" {
		return nil
	}
	return c.sink.Send(textMessage(AuthorAssistant, e.Item.Transcript))
}

func (c *Controller) onInterrupted(e shopassist.ConversationInterrupted) error {
	c.setTrack(e.TrackID)
	return c.sink.Send(ServerMessage{Type: TypeAudioInterrupt, Track: e.PreviousTrackID})
}

func (c *Controller) onInputTranscription(e shopassist.InputTranscriptionCompleted) error {
	if e.Transcript == "" {
		return nil
	}
	return c.sink.Send(textMessage(AuthorUser, e.Transcript))
}

func (c *Controller) onError(e shopassist.ErrorOccurred) error {
	c.logger.Error("realtime error", slog.Any("err", e.Err))

	var ce *shopassist.ConnectionError
	if errors.As(e.Err, &ce) {
		return c.sink.Send(errorMessage("The voice connection was lost. Press `P` to reconnect."))
	}
	return nil
}

func (c *Controller) onToolCompleted(e shopassist.ToolCompleted) error {
	res, ok := e.Result.(shop.Result)
	if !ok || res.Receipt == nil {
		return nil
	}
	html, err := receipt.Render(*res.Receipt)
	if err != nil {
		return err
	}
	return c.sink.Send(ServerMessage{Type: TypeReceipt, Text: res.Receipt.Caption, HTML: html})
}
