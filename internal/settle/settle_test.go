package settle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	inputs := []int{1, 2, 3, 4}
	boom := errors.New("boom")

	results := All(context.Background(), 0, inputs, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		// Later inputs finish first.
		time.Sleep(time.Duration(5-n) * time.Millisecond)
		return n * 10, nil
	})

	require.Len(t, results, 4)
	assert.Equal(t, 10, results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, 30, results[2].Value)
	assert.Equal(t, 40, results[3].Value)
}

func TestAllRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	inputs := make([]int, 12)

	All(context.Background(), 3, inputs, func(ctx context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestAllRecoversPanics(t *testing.T) {
	results := All(context.Background(), 0, []string{"ok", "panic"}, func(ctx context.Context, s string) (string, error) {
		if s == "panic" {
			panic("unexpected")
		}
		return s, nil
	})

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "ok", results[0].Value)
	assert.ErrorContains(t, results[1].Err, "task panicked")
}

func TestAllEmpty(t *testing.T) {
	results := All(context.Background(), 0, []int(nil), func(ctx context.Context, n int) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	assert.Empty(t, results)
}
