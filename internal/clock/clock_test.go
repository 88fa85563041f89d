package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMockTimerFiresOnDeadline(t *testing.T) {
	m := NewMock(epoch)
	timer := m.NewTimer(5 * time.Second)

	m.Advance(4 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	m.Advance(time.Second)
	select {
	case at := <-timer.C():
		assert.Equal(t, epoch.Add(5*time.Second), at)
	default:
		t.Fatal("timer did not fire")
	}
	assert.False(t, timer.Stop())
}

func TestMockTimerStop(t *testing.T) {
	m := NewMock(epoch)
	timer := m.NewTimer(time.Second)
	require.True(t, timer.Stop())

	m.Advance(time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestMockTickerDropsWhenUnread(t *testing.T) {
	m := NewMock(epoch)
	ticker := m.NewTicker(time.Second)

	m.Advance(time.Second)
	m.Advance(time.Second)
	m.Advance(time.Second)

	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("ticker buffered more than one tick")
	default:
	}

	ticker.Stop()
	m.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestBlockUntil(t *testing.T) {
	m := NewMock(epoch)
	done := make(chan struct{})
	go func() {
		m.BlockUntil(1)
		close(done)
	}()

	m.NewTimer(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BlockUntil did not return")
	}
	assert.Equal(t, 2*time.Second, m.Since(epoch.Add(-2*time.Second)))
}
