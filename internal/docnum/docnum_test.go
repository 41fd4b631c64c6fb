package docnum

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func newTestGenerator(count CountFunc, exists ExistsFunc) *Generator {
	g := New("SALE", count, exists)
	g.now = fixedNow
	g.sleep = func(time.Duration) {}
	return g
}

func TestNextFormatsSequence(t *testing.T) {
	g := newTestGenerator(
		func(ctx context.Context, prefix string) (int, error) {
			assert.Equal(t, "SALE-20260314-", prefix)
			return 41, nil
		},
		func(ctx context.Context, number string) (bool, error) { return false, nil },
	)

	got, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SALE-20260314-0042", got)
}

func TestNextFallsBackToRandomSuffix(t *testing.T) {
	g := newTestGenerator(
		func(ctx context.Context, prefix string) (int, error) { return 7, nil },
		func(ctx context.Context, number string) (bool, error) {
			// The sequenced candidate is taken, the random one is free.
			return number == "SALE-20260314-0008", nil
		},
	)
	g.randN = func(n int) int { return 1234 }

	got, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SALE-20260314-1234", got)
}

func TestNextRetriesWithBackoff(t *testing.T) {
	var slept []time.Duration
	calls := 0
	g := newTestGenerator(
		func(ctx context.Context, prefix string) (int, error) {
			calls++
			if calls < 3 {
				return 0, fmt.Errorf("deadlock detected")
			}
			return 0, nil
		},
		func(ctx context.Context, number string) (bool, error) { return false, nil },
	)
	g.sleep = func(d time.Duration) { slept = append(slept, d) }

	got, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SALE-20260314-0001", got)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, slept)
}

func TestNextGivesUpAfterMaxAttempts(t *testing.T) {
	counts := 0
	g := newTestGenerator(
		func(ctx context.Context, prefix string) (int, error) {
			counts++
			return 0, nil
		},
		func(ctx context.Context, number string) (bool, error) { return true, nil },
	)
	g.randN = func(n int) int { return 9999 }

	_, err := g.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, maxAttempts, counts)
}

func TestNextHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := newTestGenerator(
		func(ctx context.Context, prefix string) (int, error) { return 0, nil },
		func(ctx context.Context, number string) (bool, error) { return false, nil },
	)

	_, err := g.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
