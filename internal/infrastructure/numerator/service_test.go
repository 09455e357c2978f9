package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "milkwms/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = m.val
	}
	return nil
}

// mockQuerier simulates sys_sequences: one counter per key.
type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
	err    error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{values: map[string]int64{}}
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}
	key := args[0].(string)
	var increment int64 = 1
	if len(args) == 2 {
		increment = args[1].(int64)
	}
	m.values[key] += increment
	return &mockRow{val: m.values[key]}
}

var march = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	cfg := corenumerator.DefaultConfig(corenumerator.PrefixSalesOrder)

	first, err := svc.GetNextNumber(context.Background(), cfg, nil, march)
	require.NoError(t, err)
	second, err := svc.GetNextNumber(context.Background(), cfg, nil, march)
	require.NoError(t, err)

	assert.Equal(t, "SO-2026-00001", first)
	assert.Equal(t, "SO-2026-00002", second)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_YearsAreSeparate(t *testing.T) {
	svc := New(newMockQuerier())
	cfg := corenumerator.DefaultConfig(corenumerator.PrefixStocktaking)

	_, err := svc.GetNextNumber(context.Background(), cfg, nil, march)
	require.NoError(t, err)
	num, err := svc.GetNextNumber(context.Background(), cfg, nil, march.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "ST-2027-00001", num)
}

func TestGetNextNumber_CachedReservesRanges(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	cfg := corenumerator.DefaultConfig(corenumerator.PrefixGoodsIssueNote)
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	var wg sync.WaitGroup
	results := make(chan string, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.GetNextNumber(context.Background(), cfg, opts, march)
			assert.NoError(t, err)
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for n := range results {
		assert.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, 25)
	assert.Equal(t, 3, q.calls)
}

func TestGetNextNumber_Error(t *testing.T) {
	q := newMockQuerier()
	q.err = errors.New("connection refused")
	_, err := New(q).GetNextNumber(context.Background(), corenumerator.DefaultConfig("PO"), nil, march)
	assert.ErrorContains(t, err, "connection refused")
}

func TestBuildKey(t *testing.T) {
	cfg := corenumerator.DefaultConfig("GRN")
	assert.Equal(t, "GRN_2026", buildKey(cfg, march))
	cfg.ResetPeriod = "month"
	assert.Equal(t, "GRN_2026_03", buildKey(cfg, march))
	cfg.ResetPeriod = "never"
	assert.Equal(t, "GRN", buildKey(cfg, march))
}
