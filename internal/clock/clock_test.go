package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualAdvanceFiresInOrder(t *testing.T) {
	t.Parallel()

	c := NewManual(epoch)
	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 2, c.Pending())

	c.Advance(10 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestManualNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()

	c := NewManual(epoch)
	fired := false
	c.AfterFunc(-time.Second, func() { fired = true })
	assert.True(t, fired)
}

func TestManualStop(t *testing.T) {
	t.Parallel()

	c := NewManual(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManualTimerScheduledFromCallback(t *testing.T) {
	t.Parallel()

	c := NewManual(epoch)
	var fired []int
	c.AfterFunc(time.Second, func() {
		fired = append(fired, 1)
		c.AfterFunc(0, func() { fired = append(fired, 2) })
	})

	c.Advance(time.Second)
	assert.Equal(t, []int{1, 2}, fired)
}

func TestMillisAndUntil(t *testing.T) {
	t.Parallel()

	c := NewManual(epoch)
	assert.Equal(t, 3*time.Second, Until(c, epoch.Add(3*time.Second)))
	assert.InDelta(t, float64(epoch.UnixMilli())+0.5, Millis(epoch.Add(500*time.Microsecond)), 1e-3)
}

func TestRealAfterFunc(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	assert.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestManualTicker(t *testing.T) {
	t.Parallel()

	c := NewManual(epoch)
	ticker := c.NewTicker(16 * time.Millisecond)

	select {
	case <-ticker.C():
		t.Fatal("ticked before the clock moved")
	default:
	}

	c.Advance(16 * time.Millisecond)
	c.Advance(16 * time.Millisecond)
	assert.Equal(t, epoch.Add(16*time.Millisecond), <-ticker.C())
	assert.Equal(t, epoch.Add(32*time.Millisecond), <-ticker.C())

	// one large step is a single tick
	c.Advance(time.Second)
	assert.Equal(t, epoch.Add(32*time.Millisecond+time.Second), <-ticker.C())
	assert.Empty(t, ticker.C())

	ticker.Stop()
	c.Advance(time.Second)
	assert.Empty(t, ticker.C())
	assert.Zero(t, c.Pending())
}

func TestRealTicker(t *testing.T) {
	t.Parallel()

	ticker := Real{}.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never ticked")
	}
}
