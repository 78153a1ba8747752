package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"Filmarr/config"
	"Filmarr/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconcilerStore struct {
	mu       sync.Mutex
	claims   []models.FilmDownload
	finished []int64
	released []int64
}

func (s *fakeReconcilerStore) StaleClaims(ctx context.Context, olderThan time.Duration) ([]models.FilmDownload, error) {
	cutoff := time.Now().Add(-olderThan)
	var stale []models.FilmDownload
	for _, c := range s.claims {
		if c.FinishedAt == nil && c.StartedAt.Before(cutoff) {
			stale = append(stale, c)
		}
	}
	return stale, nil
}

func (s *fakeReconcilerStore) FinishDownload(ctx context.Context, filmID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, filmID)
	return nil
}

func (s *fakeReconcilerStore) ReleaseClaim(ctx context.Context, filmID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, filmID)
	return nil
}

func TestReconcilerFinishesClaimWithCompleteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "42.mp4")
	require.NoError(t, os.WriteFile(path, []byte("full video body"), 0o644))

	store := &fakeReconcilerStore{claims: []models.FilmDownload{
		{FilmID: 42, StartedAt: time.Now().Add(-48 * time.Hour), Path: path},
	}}

	r := NewStatusReconciler(&config.Config{StaleAfter: 24 * time.Hour}, store)
	finished, released, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, finished)
	assert.Equal(t, 0, released)
	assert.Equal(t, []int64{42}, store.finished)
}

func TestReconcilerReleasesClaimWithoutFile(t *testing.T) {
	dir := t.TempDir()
	store := &fakeReconcilerStore{claims: []models.FilmDownload{
		{FilmID: 7, StartedAt: time.Now().Add(-48 * time.Hour), Path: filepath.Join(dir, "7.mp4")},
	}}

	r := NewStatusReconciler(&config.Config{StaleAfter: 24 * time.Hour}, store)
	finished, released, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, finished)
	assert.Equal(t, 1, released)
	assert.Equal(t, []int64{7}, store.released)
}

func TestReconcilerReleasesClaimWithPartialFileOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "9.mp4")
	require.NoError(t, os.WriteFile(path+PartSuffix, []byte("half a video"), 0o644))

	store := &fakeReconcilerStore{claims: []models.FilmDownload{
		{FilmID: 9, StartedAt: time.Now().Add(-48 * time.Hour), Path: path},
	}}

	r := NewStatusReconciler(&config.Config{StaleAfter: 24 * time.Hour}, store)
	_, released, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, released)
	// The partial file stays for the retry to resume from.
	_, statErr := os.Stat(path + PartSuffix)
	assert.NoError(t, statErr)
}

func TestReconcilerIgnoresFreshClaims(t *testing.T) {
	dir := t.TempDir()
	store := &fakeReconcilerStore{claims: []models.FilmDownload{
		{FilmID: 3, StartedAt: time.Now().Add(-time.Minute), Path: filepath.Join(dir, "3.mp4")},
	}}

	r := NewStatusReconciler(&config.Config{StaleAfter: 24 * time.Hour}, store)
	finished, released, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, finished)
	assert.Equal(t, 0, released)
}

func TestReconcilerTreatsEmptyFileAsIncomplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "5.mp4")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	store := &fakeReconcilerStore{claims: []models.FilmDownload{
		{FilmID: 5, StartedAt: time.Now().Add(-48 * time.Hour), Path: path},
	}}

	r := NewStatusReconciler(&config.Config{StaleAfter: 24 * time.Hour}, store)
	finished, released, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, finished)
	assert.Equal(t, 1, released)
}
