package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/trending/internal/accessor"
)

func recordAt(t *testing.T, s *Store, site string, start time.Time) {
	t.Helper()
	require.NoError(t, s.Record(context.Background(), accessor.LoadEvent{
		Site: site, Kind: "recent", Trigger: accessor.TriggerScheduled, Start: start,
	}))
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recordAt(t, s, "ir2", started)
	recordAt(t, s, "ir2", started.Add(time.Hour))
	recordAt(t, s, "ats", started.Add(48*time.Hour))

	n, err := s.Prune(ctx, started.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	loads, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, "ats", loads[0].Site)

	n, err = s.Prune(ctx, started.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneClosed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Prune(context.Background(), started)
	assert.Error(t, err)
}

func TestTransactionContextRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	recordAt(t, s, "ir2", started)

	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_loads`); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.EqualError(t, err, "abort")

	loads, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, loads, 1)
}

func TestTransactionContextCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.TransactionContext(ctx, func(*sql.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestPrunerRunsImmediately(t *testing.T) {
	s := newTestStore(t)
	recordAt(t, s, "ir2", started)
	recordAt(t, s, "ir2", started.Add(12*time.Hour))

	p := NewPruner(s, time.Hour, time.Hour)
	p.now = func() time.Time { return started.Add(13 * time.Hour) }
	p.Start()
	p.Stop()
	p.Stop()

	loads, err := s.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.True(t, started.Add(12*time.Hour).Equal(loads[0].StartedAt))
}
