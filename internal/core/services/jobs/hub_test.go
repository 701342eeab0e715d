package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

func entry(jobID int64, msg string) domain.JobLogEntry {
	return domain.JobLogEntry{JobID: jobID, Time: time.Now(), Level: domain.LogInfo, Message: msg}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(1)
	defer cancel2()
	other, cancelOther := hub.Subscribe(2)
	defer cancelOther()

	hub.Publish(entry(1, "hello"))

	assert.Equal(t, "hello", (<-ch1).Message)
	assert.Equal(t, "hello", (<-ch2).Message)
	select {
	case e := <-other:
		t.Fatalf("entry leaked across jobs: %v", e)
	default:
	}
}

// TestHubIndependentCursors: a subscriber attached mid-stream only sees
// entries published after it joined.
func TestHubIndependentCursors(t *testing.T) {
	hub := NewHub()

	early, cancelEarly := hub.Subscribe(1)
	defer cancelEarly()
	hub.Publish(entry(1, "first"))

	late, cancelLate := hub.Subscribe(1)
	defer cancelLate()
	hub.Publish(entry(1, "second"))

	assert.Equal(t, "first", (<-early).Message)
	assert.Equal(t, "second", (<-early).Message)
	assert.Equal(t, "second", (<-late).Message)
}

// TestHubDropsSlowSubscriber: a full buffer disconnects that consumer
// without blocking the producer or other consumers.
func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()

	slow, cancelSlow := hub.Subscribe(1)
	defer cancelSlow()
	fast, cancelFast := hub.Subscribe(1)
	defer cancelFast()

	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish(entry(1, "spam"))
		// Keep the fast consumer drained.
		<-fast
	}

	assert.Equal(t, 1, hub.SubscriberCount(1))

	// The slow channel is closed after its buffered backlog.
	n := 0
	for range slow {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
}

func TestHubCancelIdempotent(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, hub.SubscriberCount(1))

	// Publishing to a job with no subscribers is harmless.
	hub.Publish(entry(1, "nobody"))
}

func TestHubCloseJob(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(1)
	defer cancel2()

	hub.Publish(entry(1, "last"))
	hub.CloseJob(1)

	require.Equal(t, "last", (<-ch1).Message, "buffered entries readable after close")
	_, ok := <-ch1
	assert.False(t, ok)

	<-ch2
	_, ok = <-ch2
	assert.False(t, ok)

	assert.Zero(t, hub.SubscriberCount(1))
}
