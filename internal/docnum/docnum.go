// Package docnum issues human-readable document numbers of the form
// PREFIX-YYYYMMDD-NNNN, where NNNN is a zero-padded daily sequence.
package docnum

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	maxAttempts = 5
	retryBase   = 50 * time.Millisecond
)

// CountFunc returns how many documents already exist whose number starts
// with the given prefix (including the trailing date segment).
type CountFunc func(ctx context.Context, prefix string) (int, error)

// ExistsFunc reports whether the exact document number is already taken.
type ExistsFunc func(ctx context.Context, number string) (bool, error)

// Generator produces daily-sequenced document numbers. The sequence is
// derived from a count-so-far probe rather than a dedicated counter, so
// concurrent callers can collide; collisions are resolved by probing and,
// as a last resort, by switching to a random suffix.
type Generator struct {
	prefix string
	count  CountFunc
	exists ExistsFunc

	now   func() time.Time
	sleep func(d time.Duration)
	randN func(n int) int
}

func New(prefix string, count CountFunc, exists ExistsFunc) *Generator {
	return &Generator{
		prefix: prefix,
		count:  count,
		exists: exists,
		now:    time.Now,
		sleep:  time.Sleep,
		randN:  rand.Intn,
	}
}

// Next returns a fresh document number. On each attempt it recounts the
// day's documents and probes the candidate; a taken candidate is retried
// with a random four-digit suffix after a short backoff that grows with
// the attempt index.
func (g *Generator) Next(ctx context.Context) (string, error) {
	day := g.now().UTC().Format("20060102")
	dayPrefix := fmt.Sprintf("%s-%s-", g.prefix, day)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			g.sleep(retryBase * time.Duration(attempt-1))
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := g.count(ctx, dayPrefix)
		if err != nil {
			lastErr = err
			continue
		}
		candidate := fmt.Sprintf("%s%04d", dayPrefix, n+1)
		taken, err := g.exists(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if !taken {
			return candidate, nil
		}

		// Sequence collides under concurrency; fall back to a random
		// suffix for this attempt.
		candidate = fmt.Sprintf("%s%04d", dayPrefix, g.randN(10000))
		taken, err = g.exists(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if !taken {
			return candidate, nil
		}
		lastErr = fmt.Errorf("docnum: candidate %s already taken", candidate)
	}
	return "", fmt.Errorf("docnum: exhausted %d attempts for prefix %s: %w", maxAttempts, g.prefix, lastErr)
}
