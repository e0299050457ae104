package migration

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hashicorp-forge/repomigrate/pkg/repository"
)

// RetryPolicy is a fixed-delay, bounded retry loop around one upload.
type RetryPolicy struct {
	// MaxTries is the total number of attempts including the first
	MaxTries uint32

	// Delay is the pause between attempts
	Delay time.Duration
}

// Policy returns the retry policy described by the configuration.
func (c Config) Policy() RetryPolicy {
	return RetryPolicy{MaxTries: c.MaxTries, Delay: c.RetryDelay}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(tries-1))
}

// retryable reports whether another attempt could change the outcome.
// Malformed input and a forced identifier that is taken or refused are final.
func retryable(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	return !errors.Is(err, repository.ErrConflict) && !errors.Is(err, repository.ErrInvalidForcedID)
}

// retry runs op until it succeeds, fails permanently, or the policy runs out
// of attempts. It returns the number of attempts made. Exhaustion is reported
// as an *ExhaustedError wrapping the last failure.
func (m *Migrator) retry(what, path string, op func() error) (int, error) {
	policy := m.cfg.Policy()
	attempts := 0

	err := backoff.RetryNotify(func() error {
		attempts++
		logAttempt := m.logger.Debug
		if m.cfg.Verbose || attempts > 1 {
			logAttempt = m.logger.Info
		}
		logAttempt("attempting upload",
			"what", what,
			"path", path,
			"try", attempts,
			"max_tries", policy.MaxTries,
		)

		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy.backOff(), func(err error, next time.Duration) {
		m.logger.Warn("upload failed, will retry",
			"what", what,
			"path", path,
			"try", attempts,
			"retry_in", next,
			"error", err,
		)
	})
	if err == nil {
		return attempts, nil
	}
	if !retryable(err) {
		return attempts, err
	}
	return attempts, &ExhaustedError{Path: path, Attempts: attempts, Err: err}
}
