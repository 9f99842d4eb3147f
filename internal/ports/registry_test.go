package ports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terabiome/archdev/internal/errdefs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store. listDelay widens the window between the
// collision check and the write of an allocation.
type memStore struct {
	mu        sync.Mutex
	byHost    map[string]map[string]Reservation
	listDelay time.Duration
	putErr    error
	puts      int
}

func newMemStore() *memStore {
	return &memStore{byHost: make(map[string]map[string]Reservation)}
}

func (s *memStore) Put(ctx context.Context, r Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if s.byHost[r.Host] == nil {
		s.byHost[r.Host] = make(map[string]Reservation)
	}
	s.byHost[r.Host][r.Name] = r
	s.puts++
	return nil
}

func (s *memStore) Get(ctx context.Context, host, name string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byHost[host][name]
	if !ok {
		return Reservation{}, errdefs.ReservationNotFound(host, name)
	}
	return r, nil
}

func (s *memStore) Delete(ctx context.Context, host, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byHost[host], name)
	return nil
}

func (s *memStore) List(ctx context.Context, host string) ([]Reservation, error) {
	s.mu.Lock()
	out := make([]Reservation, 0, len(s.byHost[host]))
	for _, r := range s.byHost[host] {
		out = append(out, r)
	}
	s.mu.Unlock()

	if s.listDelay > 0 {
		time.Sleep(s.listDelay)
	}
	return out, nil
}

// sequence returns the given draws in order, then repeats the last one.
func sequence(draws ...int) func(int) int {
	var mu sync.Mutex
	i := 0
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		v := draws[i]
		if i < len(draws)-1 {
			i++
		}
		return v % n
	}
}

func TestAllocateWithinRanges(t *testing.T) {
	reg, err := NewRegistry(newMemStore(), discardLogger())
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		res, err := reg.Allocate(context.Background(), "h1", fmt.Sprintf("vm-%d", i))
		require.NoError(t, err)
		assert.True(t, DefaultSSHRange.Contains(res.SSHPort), "ssh port %d", res.SSHPort)
		assert.True(t, DefaultVNCRange.Contains(res.VNCPort), "vnc port %d", res.VNCPort)
		assert.Equal(t, "h1", res.Host)
	}
}

func TestAllocateLoadRoundTrip(t *testing.T) {
	reg, err := NewRegistry(newMemStore(), discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	res, err := reg.Allocate(ctx, "h1", "vm-8g-50g-a1b2c3")
	require.NoError(t, err)

	loaded, err := reg.Load(ctx, "h1", "vm-8g-50g-a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, res, loaded)

	_, err = reg.Load(ctx, "h2", "vm-8g-50g-a1b2c3")
	assert.ErrorIs(t, err, errdefs.ErrReservationNotFound)
}

func TestAllocateRedrawsOnCollision(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), Reservation{Name: "old", Host: "h1", SSHPort: 2201, VNCPort: 5901}))

	// First pair collides on ssh 2201, second pair is free.
	reg, err := NewRegistry(store, discardLogger(), WithRandom(sequence(0, 5, 1, 5)))
	require.NoError(t, err)

	res, err := reg.Allocate(context.Background(), "h1", "new")
	require.NoError(t, err)
	assert.Equal(t, 2202, res.SSHPort)
	assert.Equal(t, 5906, res.VNCPort)
}

func TestAllocateIsPerHost(t *testing.T) {
	reg, err := NewRegistry(newMemStore(), discardLogger(),
		WithRanges(Range{Min: 2201, Max: 2201}, Range{Min: 5901, Max: 5901}))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := reg.Allocate(ctx, "h1", "vm-a")
	require.NoError(t, err)
	b, err := reg.Allocate(ctx, "h2", "vm-b")
	require.NoError(t, err)

	assert.Equal(t, a.SSHPort, b.SSHPort)
	assert.Equal(t, a.VNCPort, b.VNCPort)
}

func TestAllocateExhaustionLeavesNoReservation(t *testing.T) {
	store := newMemStore()
	reg, err := NewRegistry(store, discardLogger(),
		WithRanges(Range{Min: 2201, Max: 2201}, Range{Min: 5901, Max: 5901}))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = reg.Allocate(ctx, "h1", "vm-first")
	require.NoError(t, err)

	_, err = reg.Allocate(ctx, "h1", "vm-second")
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrPortAllocationExhausted)

	_, err = reg.Load(ctx, "h1", "vm-second")
	assert.ErrorIs(t, err, errdefs.ErrReservationNotFound)

	live, err := reg.List(ctx, "h1")
	require.NoError(t, err)
	assert.Len(t, live, 1)
	assert.Equal(t, 1, store.puts)
}

func TestAllocateAttemptsAreBounded(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Put(context.Background(), Reservation{Name: "old", Host: "h1", SSHPort: 2201, VNCPort: 5901}))

	draws := 0
	intn := func(n int) int {
		draws++
		return 0
	}
	reg, err := NewRegistry(store, discardLogger(), WithMaxAttempts(3), WithRandom(intn))
	require.NoError(t, err)

	_, err = reg.Allocate(context.Background(), "h1", "new")
	assert.ErrorIs(t, err, errdefs.ErrPortAllocationExhausted)
	assert.Equal(t, 6, draws, "two draws per attempt")
}

func TestAllocateRejectsDuplicateName(t *testing.T) {
	reg, err := NewRegistry(newMemStore(), discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = reg.Allocate(ctx, "h1", "vm-a")
	require.NoError(t, err)
	_, err = reg.Allocate(ctx, "h1", "vm-a")
	assert.Error(t, err)
}

func TestAllocatePropagatesStoreFailure(t *testing.T) {
	store := newMemStore()
	store.putErr = fmt.Errorf("disk full")
	reg, err := NewRegistry(store, discardLogger())
	require.NoError(t, err)

	_, err = reg.Allocate(context.Background(), "h1", "vm-a")
	assert.ErrorContains(t, err, "disk full")
}

func TestConcurrentAllocationsGetDistinctPairs(t *testing.T) {
	store := newMemStore()
	store.listDelay = 5 * time.Millisecond
	reg, err := NewRegistry(store, discardLogger())
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	results := make([]Reservation, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Allocate(context.Background(), "h1", fmt.Sprintf("vm-%02d", i))
		}(i)
	}
	wg.Wait()

	seen := make(map[int]string)
	for i, res := range results {
		require.NoError(t, errs[i])
		for _, port := range []int{res.SSHPort, res.VNCPort} {
			owner, dup := seen[port]
			assert.False(t, dup, "port %d given to %s and %s", port, owner, res.Name)
			seen[port] = res.Name
		}
	}

	live, err := reg.List(context.Background(), "h1")
	require.NoError(t, err)
	assert.Len(t, live, n)
}

func TestDeleteIsIdempotent(t *testing.T) {
	reg, err := NewRegistry(newMemStore(), discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = reg.Allocate(ctx, "h1", "vm-a")
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, "h1", "vm-a"))
	require.NoError(t, reg.Delete(ctx, "h1", "vm-a"))

	_, err = reg.Load(ctx, "h1", "vm-a")
	assert.ErrorIs(t, err, errdefs.ErrReservationNotFound)
}

func TestDeletedPortsAreReusable(t *testing.T) {
	reg, err := NewRegistry(newMemStore(), discardLogger(),
		WithRanges(Range{Min: 2201, Max: 2201}, Range{Min: 5901, Max: 5901}))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = reg.Allocate(ctx, "h1", "vm-a")
	require.NoError(t, err)
	require.NoError(t, reg.Delete(ctx, "h1", "vm-a"))

	res, err := reg.Allocate(ctx, "h1", "vm-b")
	require.NoError(t, err)
	assert.Equal(t, 2201, res.SSHPort)
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"empty ssh range", []Option{WithRanges(Range{Min: 2299, Max: 2201}, DefaultVNCRange)}},
		{"out of bounds", []Option{WithRanges(DefaultSSHRange, Range{Min: 65000, Max: 70000})}},
		{"overlap", []Option{WithRanges(Range{Min: 5000, Max: 5950}, DefaultVNCRange)}},
		{"zero attempts", []Option{WithMaxAttempts(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(newMemStore(), discardLogger(), tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestRange(t *testing.T) {
	r := Range{Min: 2201, Max: 2299}
	assert.Equal(t, 99, r.Size())
	assert.True(t, r.Contains(2201))
	assert.True(t, r.Contains(2299))
	assert.False(t, r.Contains(2200))
	assert.False(t, r.Contains(2300))
	assert.Equal(t, "2201-2299", r.String())
}

func sortedNames(rs []Reservation) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	sort.Strings(names)
	return names
}
