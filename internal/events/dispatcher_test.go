package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishInvokesSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []Event
	d.Subscribe(EventTicketCreated, func(ctx context.Context, event Event) error {
		got = append(got, event)
		return nil
	})
	d.Subscribe(EventTicketMerged, func(ctx context.Context, event Event) error {
		t.Fatal("handler for a different event type must not fire")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated, Repository: "demo.git", Number: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "demo.git", got[0].Repository)
}

func TestDispatcher_AllHandlersRunDespiteErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	failure := errors.New("handler failed")
	var secondRan bool
	d.Subscribe(EventCommentAdded, func(ctx context.Context, event Event) error {
		return failure
	})
	d.Subscribe(EventCommentAdded, func(ctx context.Context, event Event) error {
		secondRan = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventCommentAdded})
	assert.ErrorIs(t, err, failure)
	assert.True(t, secondRan)
}
