package shopassist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_CallbacksRunInRegistrationOrder(t *testing.T) {
	b := NewBus(nil)

	var order []int
	for i := 0; i < 3; i++ {
		b.On(KindItemCompleted, func(e Event) error {
			order = append(order, i)
			return nil
		})
	}
	b.Emit(ItemCompleted{})

	require.Equal(t, []int{0, 1, 2}, order)
}

func TestBus_FailingSubscriberDoesNotBreakOthers(t *testing.T) {
	b := NewBus(nil)

	var got []string
	b.On(KindError, func(e Event) error {
		return errors.New("broken")
	})
	b.On(KindError, func(e Event) error {
		panic("really broken")
	})
	b.On(KindError, func(e Event) error {
		got = append(got, e.(ErrorOccurred).Err.Error())
		return nil
	})

	require.NotPanics(t, func() {
		b.Emit(ErrorOccurred{Err: errors.New("boom")})
	})
	require.Equal(t, []string{"boom"}, got)
}

func TestBus_OnlyMatchingKindIsCalled(t *testing.T) {
	b := NewBus(nil)

	var updates, interrupts int
	b.On(KindConversationUpdated, func(e Event) error {
		updates++
		return nil
	})
	b.On(KindConversationInterrupted, func(e Event) error {
		interrupts++
		return nil
	})

	b.Emit(ConversationUpdated{})
	b.Emit(ConversationUpdated{})
	b.Emit(ToolCompleted{})

	require.Equal(t, 2, updates)
	require.Equal(t, 0, interrupts)
}

func TestBus_TypedSubscription(t *testing.T) {
	b := NewBus(nil)

	var tracks []string
	On(b, func(e ConversationInterrupted) error {
		tracks = append(tracks, e.TrackID)
		return nil
	})

	b.Emit(ConversationInterrupted{TrackID: "t1"})
	b.Emit(ConversationInterrupted{TrackID: "t2"})
	require.Equal(t, []string{"t1", "t2"}, tracks)
}

func TestEventKind_String(t *testing.T) {
	require.Equal(t, "conversation.interrupted", KindConversationInterrupted.String())
	require.Equal(t, "EventKind(99)", EventKind(99).String())
}
