package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godilite/surveydash/internal/loader"
	"github.com/godilite/surveydash/internal/survey"
)

func tableWithRows(n int) *survey.Table {
	t := survey.NewTable("Q1")
	for range n {
		_ = t.AppendRow("x")
	}
	return t
}

func TestCurrent_LoadsOnceUntilStale(t *testing.T) {
	var loads atomic.Int32
	s := New(func(ctx context.Context) (loader.Result, error) {
		n := loads.Add(1)
		return loader.Result{Table: tableWithRows(int(n))}, nil
	})
	require.True(t, s.NeedsReload())
	assert.Nil(t, s.Peek())

	snap, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 1, snap.Table().Len())
	assert.False(t, s.NeedsReload())

	again, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, again)
	assert.Equal(t, int32(1), loads.Load())

	s.MarkStale()
	assert.True(t, s.NeedsReload())
	snap, err = s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, 2, snap.Table().Len())
	assert.Equal(t, uint64(2), s.Generation())
}

func TestCurrent_ConcurrentReadersShareReload(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	s := New(func(ctx context.Context) (loader.Result, error) {
		loads.Add(1)
		<-release
		return loader.Result{Table: tableWithRows(1)}, nil
	})

	var wg sync.WaitGroup
	snaps := make([]*Snapshot, 8)
	for i := range snaps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snaps[i], _ = s.Current(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, snap := range snaps {
		assert.Same(t, snaps[0], snap)
	}
}

func TestReload_FailureKeepsPreviousSnapshot(t *testing.T) {
	boom := errors.New("disk on fire")
	fail := false
	s := New(func(ctx context.Context) (loader.Result, error) {
		if fail {
			return loader.Result{}, boom
		}
		return loader.Result{Table: tableWithRows(3)}, nil
	})

	first, err := s.Current(context.Background())
	require.NoError(t, err)

	fail = true
	s.MarkStale()
	snap, err := s.Current(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Same(t, first, snap)
	assert.True(t, s.NeedsReload())
}

func TestReload_StaleDuringLoadTriggersAnother(t *testing.T) {
	var s *State
	var loads atomic.Int32
	s = New(func(ctx context.Context) (loader.Result, error) {
		if loads.Add(1) == 1 {
			s.MarkStale()
		}
		return loader.Result{Table: tableWithRows(1)}, nil
	})

	_, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, s.NeedsReload())

	snap, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestOnReload(t *testing.T) {
	s := New(func(ctx context.Context) (loader.Result, error) {
		return loader.Result{Table: tableWithRows(1)}, nil
	})
	var seen []uint64
	s.OnReload(func(snap *Snapshot) { seen = append(seen, snap.Generation) })

	_, err := s.Reload(context.Background())
	require.NoError(t, err)
	_, err = s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestSnapshot_NilTable(t *testing.T) {
	var snap *Snapshot
	assert.Nil(t, snap.Table())
	assert.True(t, snap.Table().Empty())
}
