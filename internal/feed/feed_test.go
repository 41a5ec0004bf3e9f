package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/models"
)

func event(i int) models.CheckInEvent {
	return models.CheckInEvent{
		RegistrationID: fmt.Sprintf("REG-2026-%04d", i),
		AttendeeName:   fmt.Sprintf("Attendee %d", i),
		Method:         models.MethodQR,
		Timestamp:      time.Now(),
	}
}

func TestRecentIsNewestFirst(t *testing.T) {
	f := NewFeed(10)
	for i := 0; i < 3; i++ {
		f.Consume(event(i))
	}

	recent := f.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "REG-2026-0002", recent[0].RegistrationID)
	assert.Equal(t, "REG-2026-0001", recent[1].RegistrationID)
	assert.Equal(t, "REG-2026-0000", recent[2].RegistrationID)
}

func TestRingEvictsOldest(t *testing.T) {
	f := NewFeed(5)
	for i := 0; i < 8; i++ {
		f.Consume(event(i))
	}

	recent := f.Recent()
	require.Len(t, recent, 5)
	assert.Equal(t, "REG-2026-0007", recent[0].RegistrationID)
	assert.Equal(t, "REG-2026-0003", recent[4].RegistrationID)
}

func TestRecentOnEmptyFeed(t *testing.T) {
	f := NewFeed(5)
	assert.Empty(t, f.Recent())
}

func TestExactlyFullRing(t *testing.T) {
	f := NewFeed(4)
	for i := 0; i < 4; i++ {
		f.Consume(event(i))
	}

	recent := f.Recent()
	require.Len(t, recent, 4)
	assert.Equal(t, "REG-2026-0003", recent[0].RegistrationID)
	assert.Equal(t, "REG-2026-0000", recent[3].RegistrationID)
}

func TestSubscriberReceivesLiveEvents(t *testing.T) {
	f := NewFeed(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.Subscribe(ctx)

	f.Consume(event(1))

	select {
	case got := <-ch:
		assert.Equal(t, "REG-2026-0001", got.RegistrationID)
	case <-time.After(time.Second):
		t.Fatal("expected a live event")
	}
}

func TestSlowSubscriberNeverBlocksConsume(t *testing.T) {
	f := NewFeed(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Subscribe(ctx) // never drained; channel buffer is 10

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			f.Consume(event(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consume blocked on a stalled subscriber")
	}

	// The ring still has the latest events regardless.
	assert.Equal(t, "REG-2026-0049", f.Recent()[0].RegistrationID)
}

func TestSubscriberClosedOnContextDone(t *testing.T) {
	f := NewFeed(10)
	ctx, cancel := context.WithCancel(context.Background())
	ch := f.Subscribe(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
