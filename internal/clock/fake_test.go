package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	var order []string
	c.AfterFunc(2*time.Hour, func() { order = append(order, "2h") })
	c.AfterFunc(time.Hour, func() { order = append(order, "1h") })
	c.AfterFunc(5*time.Hour, func() { order = append(order, "5h") })

	c.Advance(3 * time.Hour)

	assert.Equal(t, []string{"1h", "2h"}, order)
	assert.Equal(t, start.Add(3*time.Hour), c.Now())
	assert.Equal(t, 1, c.Pending())
}

func TestFakeStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Minute, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Hour)
	assert.False(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeCallbackReschedules(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(10*time.Minute, tick)
	}
	c.AfterFunc(10*time.Minute, tick)

	c.Advance(35 * time.Minute)

	assert.Equal(t, 3, count)
	deadline, ok := c.NextDeadline()
	assert.True(t, ok)
	assert.Equal(t, time.Unix(0, 0).Add(40*time.Minute), deadline)
}
