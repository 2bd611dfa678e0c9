package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New(0)
	defer b.Close()

	sub := b.Subscribe("IDR043")
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, []string{"IDR043"}, sub.Levels)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_Notify_MatchingLevel(t *testing.T) {
	b := New(0)
	defer b.Close()

	sub := b.Subscribe("IDR043")
	b.Notify(FrameEvent{Type: EventNew, Level: "IDR043", Name: "IDR043.T.201801011200.png", Size: 10})

	select {
	case event := <-sub.Events:
		assert.Equal(t, EventNew, event.Type)
		assert.Equal(t, "IDR043.T.201801011200.png", event.Name)
		assert.Equal(t, int64(10), event.Size)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
	}
}

func TestBroadcaster_Notify_AllLevels(t *testing.T) {
	b := New(0)
	defer b.Close()

	sub := b.Subscribe()
	b.Notify(FrameEvent{Type: EventRemoved, Level: "IDR042", Name: "IDR042.T.201801011200.png"})

	select {
	case event := <-sub.Events:
		assert.Equal(t, EventRemoved, event.Type)
		assert.Equal(t, "IDR042", event.Level)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
	}
}

func TestBroadcaster_Notify_FiltersByLevel(t *testing.T) {
	b := New(0)
	defer b.Close()

	sub := b.Subscribe("IDR043")
	b.Notify(FrameEvent{Type: EventNew, Level: "IDR044", Name: "IDR044.T.201801011200.png"})

	select {
	case <-sub.Events:
		t.Fatal("should not receive event for another level")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_Notify_DropsWhenFull(t *testing.T) {
	b := New(1)
	defer b.Close()

	sub := b.Subscribe()
	b.Notify(FrameEvent{Type: EventNew, Level: "IDR043", Name: "a"})
	b.Notify(FrameEvent{Type: EventNew, Level: "IDR043", Name: "b"})

	assert.Equal(t, int64(1), b.Dropped())
	event := <-sub.Events
	assert.Equal(t, "a", event.Name)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New(0)
	defer b.Close()

	sub := b.Subscribe()
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_Close(t *testing.T) {
	b := New(0)
	sub := b.Subscribe()
	b.Close()
	b.Close()

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Nil(t, b.Subscribe(), "subscribe after close should return nil")
	b.Notify(FrameEvent{Level: "IDR043"})
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "new", EventNew.String())
	assert.Equal(t, "confirmed", EventConfirmed.String())
	assert.Equal(t, "removed", EventRemoved.String())
	assert.Equal(t, "unknown", EventType(9).String())
}
