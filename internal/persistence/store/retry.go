package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often Run re-executes a conflicting transaction.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 8
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 5 * time.Millisecond
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

// Run executes fn in a fresh transaction and commits it. On ErrConflict the whole of fn is run
// again from scratch with exponential backoff, up to the policy's attempt limit, after which the
// error wraps both ErrRetriesExhausted and ErrConflict. Any other error from fn or the commit is
// returned as is and nothing is written.
func (s *Store) Run(ctx context.Context, fn func(tx *Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.RunOnce(ctx, fn)
		if err == nil || errors.Is(err, ErrConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.retry.MaxAttempts)))
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	return err
}

// RunOnce executes fn and commits without retrying. A conflict is returned as ErrConflict and the
// transaction is abandoned.
func (s *Store) RunOnce(ctx context.Context, fn func(tx *Tx) error) error {
	tx := s.Begin()
	if err := fn(tx); err != nil {
		tx.done = true
		return err
	}
	return tx.Commit(ctx)
}
