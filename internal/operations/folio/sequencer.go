package folio

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	id "amlcore/pkg/domain"
	dErrors "amlcore/pkg/domain-errors"
	"amlcore/pkg/platform/sentinel"
)

// Allocator hands out the next sequence number of (owner, year). It must be
// atomic with respect to concurrent callers inside the same transaction that
// inserts the operation.
type Allocator interface {
	NextSequence(ctx context.Context, ownerID id.OwnerID, year int) (int, error)
}

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = 20 * time.Millisecond
)

// Sequencer formats folios and owns the allocate-and-insert retry discipline.
type Sequencer struct {
	prefix      string
	maxAttempts int
	retryBase   time.Duration
	onRetry     func(attempt int, err error)
}

// Option configures the Sequencer.
type Option func(*Sequencer)

// WithPrefix sets the folio prefix.
func WithPrefix(prefix string) Option {
	return func(s *Sequencer) {
		s.prefix = prefix
	}
}

// WithMaxAttempts bounds how many times an allocation is tried.
func WithMaxAttempts(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBase sets the first backoff interval.
func WithRetryBase(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.retryBase = d
		}
	}
}

// WithRetryHook is called before every retry with the 1-based failed attempt.
func WithRetryHook(fn func(attempt int, err error)) Option {
	return func(s *Sequencer) {
		s.onRetry = fn
	}
}

// NewSequencer creates a Sequencer.
func NewSequencer(opts ...Option) (*Sequencer, error) {
	s := &Sequencer{
		prefix:      DefaultPrefix,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := ValidatePrefix(s.prefix); err != nil {
		return nil, err
	}
	return s, nil
}

// NextFolio allocates the next folio of (owner, year) through alloc. The
// first folio of a new pair has sequence 1.
func (s *Sequencer) NextFolio(ctx context.Context, alloc Allocator, ownerID id.OwnerID, year int) (Folio, error) {
	seq, err := alloc.NextSequence(ctx, ownerID, year)
	if err != nil {
		return Folio{}, err
	}
	return New(s.prefix, year, seq)
}

// Allocate runs fn, which must allocate a folio and insert the operation in
// one transaction, retrying the whole unit when it fails with
// sentinel.ErrConflict. Any other error ends the loop immediately. When
// every attempt conflicts the result carries CodeConflict.
func (s *Sequencer) Allocate(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryBase
	policy.MaxInterval = 10 * s.retryBase
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, _ time.Duration) {
		if s.onRetry != nil {
			s.onRetry(attempt, err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err != nil && errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "could not allocate a unique folio, retry the request")
	}
	return err
}

// Prefix returns the configured prefix.
func (s *Sequencer) Prefix() string {
	return s.prefix
}
