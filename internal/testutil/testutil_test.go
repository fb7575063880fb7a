package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutineTestCollectsNothingOnSuccess(t *testing.T) {
	gt := NewGoroutineTest(t)

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		gt.Go(func() error {
			n.Add(1)
			return nil
		})
	}
	gt.Wait()
	assert.EqualValues(t, 5, n.Load())
}

func TestGoroutineTestContextEndsWithTimeout(t *testing.T) {
	gt := NewGoroutineTestWithTimeout(t, 50*time.Millisecond)
	defer gt.Wait()

	gt.GoWithContext(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
			return fmt.Errorf("context never ended")
		}
	})
}

func TestWithTimeout(t *testing.T) {
	require.NoError(t, WithTimeout(time.Second, func() error { return nil }))

	boom := fmt.Errorf("boom")
	assert.ErrorIs(t, WithTimeout(time.Second, func() error { return boom }), boom)

	block := make(chan struct{})
	defer close(block)
	err := WithTimeout(20*time.Millisecond, func() error {
		<-block
		return nil
	})
	assert.ErrorContains(t, err, "timed out")
}

func TestEventually(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(30 * time.Millisecond)
		ready.Store(true)
	}()
	require.NoError(t, Eventually(time.Second, 5*time.Millisecond, ready.Load))

	assert.Error(t, Eventually(20*time.Millisecond, 5*time.Millisecond, func() bool { return false }))
}

func TestRecv(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, Recv(t, ch, time.Second))
}
