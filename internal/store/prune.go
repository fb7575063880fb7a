package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/xtxerr/trending/internal/errors"
)

// =============================================================================
// Transactions
// =============================================================================

// TransactionContext runs fn in a transaction. The context is checked
// again before commit, so nothing commits after a timeout.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Kind(errors.ErrDatabase, fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("context cancelled before commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Kind(errors.ErrDatabase, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// =============================================================================
// Retention
// =============================================================================

// Prune deletes loads that started before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var deleted int64
	err := s.TransactionContext(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM catalog_loads WHERE started_at < ?`, cutoff.UTC(),
		).Scan(&deleted); err != nil {
			return errors.Kind(errors.ErrDatabase, fmt.Errorf("count expired loads: %w", err))
		}
		if deleted == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM catalog_loads WHERE started_at < ?`, cutoff.UTC(),
		); err != nil {
			return errors.Kind(errors.ErrDatabase, fmt.Errorf("delete expired loads: %w", err))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Pruner periodically removes loads older than a retention period.
type Pruner struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewPruner creates a pruner. Start runs it.
func NewPruner(s *Store, retention, interval time.Duration) *Pruner {
	return &Pruner{
		store:     s,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start prunes once right away, then every interval until Stop.
func (p *Pruner) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop ends the loop and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Pruner) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.prune()
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}
	}
}

func (p *Pruner) prune() {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(context.Background(), cutoff)
	if err != nil {
		log.Warn("failed to prune load history", "error", err)
		return
	}
	if n > 0 {
		log.Info("pruned load history", "deleted", n, "cutoff", cutoff)
	}
}
