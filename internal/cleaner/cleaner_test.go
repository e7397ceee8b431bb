package cleaner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	latest  time.Time
	err     error
	cutoffs []time.Time
}

func (s *fakeStore) LatestWorldSync(context.Context) (time.Time, error) {
	return s.latest, s.err
}

func (s *fakeStore) DeleteWorldsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	return 2, nil
}

func (s *fakeStore) DeleteDatacentersBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	return 1, nil
}

func TestCleaner_Clean(t *testing.T) {
	latest := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{latest: latest}
	c := NewCleaner(store)

	n, err := c.Clean(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []time.Time{latest.Add(-time.Hour), latest.Add(-time.Hour)}, store.cutoffs)
}

func TestCleaner_NeverSynced(t *testing.T) {
	store := &fakeStore{}
	n, err := NewCleaner(store).Clean(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.cutoffs)
}

func TestCleaner_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("database is locked")}
	_, err := NewCleaner(store).Clean(context.Background())
	assert.Error(t, err)
}

func TestCleaner_StartStop(t *testing.T) {
	c := NewCleaner(&fakeStore{})
	c.interval = 5 * time.Millisecond
	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop()
}
