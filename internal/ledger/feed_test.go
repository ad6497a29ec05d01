package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oracular/verdict/internal/attest"
)

func feedItem(b byte) attest.Attestation {
	return attest.Attestation{UID: attest.UID{b}, Seq: int64(b)}
}

func TestFeedFIFO(t *testing.T) {
	f := newFeed()

	require.True(t, f.push(feedItem(1)))
	require.True(t, f.push(feedItem(2)))
	require.True(t, f.push(feedItem(3)))

	for want := byte(1); want <= 3; want++ {
		got, ok := f.tryPop()
		require.True(t, ok)
		assert.Equal(t, attest.UID{want}, got.UID)
	}

	_, ok := f.tryPop()
	assert.False(t, ok, "empty feed pops nothing")
}

func TestFeedPushAfterClose(t *testing.T) {
	f := newFeed()
	f.close()
	f.close() // idempotent

	assert.False(t, f.push(feedItem(1)))
	assert.True(t, f.drained())
}

func TestFeedPumpDeliversThenCloses(t *testing.T) {
	f := newFeed()
	f.push(feedItem(1))
	f.push(feedItem(2))

	ch := make(chan attest.Attestation)
	go f.pump(context.Background(), ch)

	assert.Equal(t, attest.UID{1}, (<-ch).UID)

	// Items pushed while the pump runs are still delivered before close.
	f.push(feedItem(3))
	f.close()

	assert.Equal(t, attest.UID{2}, (<-ch).UID)
	assert.Equal(t, attest.UID{3}, (<-ch).UID)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must close once drained")
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not close the channel")
	}
}

func TestFeedPumpStopsOnContextCancel(t *testing.T) {
	f := newFeed()
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan attest.Attestation)
	go f.pump(ctx, ch)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not observe cancellation")
	}
}
