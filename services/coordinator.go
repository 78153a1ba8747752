package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"Filmarr/config"
	"Filmarr/models"

	"golang.org/x/sync/errgroup"
)

// CoordinatorStore is the slice of catalog storage the download pass needs.
type CoordinatorStore interface {
	EligibleFilms(ctx context.Context) ([]models.EligibleFilm, error)
	FilmStatus(ctx context.Context, filmID int64) (models.FilmStatus, error)
	ClaimFilm(ctx context.Context, filmID int64, path string) (bool, error)
	FinishDownload(ctx context.Context, filmID int64) error
	ReleaseClaim(ctx context.Context, filmID int64) error
	MarkFilmFailed(ctx context.Context, filmID int64) error
}

// Resolver turns a film status into a fetchable source.
type Resolver interface {
	Resolve(ctx context.Context, status models.FilmStatus) (Source, error)
}

// Fetcher transfers a source to a destination path.
type Fetcher interface {
	Fetch(ctx context.Context, src Source, dest string) (int64, error)
}

// Summary is what the operator sees after a download pass.
type Summary struct {
	Completed int
	Retried   int
	Failed    int
	Skipped   int
}

// DownloadCoordinator drives the per-film download lifecycle: claim the
// film via its film_downloads row, resolve the source, hand off to the
// transfer engine, commit or roll back. Films are processed by a bounded
// pool; one film's failure never takes down the pass.
type DownloadCoordinator struct {
	cfg     *config.Config
	store   CoordinatorStore
	locator Resolver
	engine  Fetcher

	mu      sync.Mutex
	summary Summary

	// Set when a transfer hits a full disk; stops new claims for the rest
	// of the pass since they would all fail the same way.
	diskFull atomic.Bool
}

func NewDownloadCoordinator(cfg *config.Config, store CoordinatorStore, locator Resolver, engine Fetcher) *DownloadCoordinator {
	return &DownloadCoordinator{
		cfg:     cfg,
		store:   store,
		locator: locator,
		engine:  engine,
	}
}

// Run executes one download pass over all currently eligible films and
// returns the operator summary. Shutdown via ctx leaves in-flight claims
// unfinished for the reconciler to pick up on next start.
func (c *DownloadCoordinator) Run(ctx context.Context) (Summary, error) {
	films, err := c.store.EligibleFilms(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to select eligible films: %w", err)
	}

	slog.Info("Starting download pass", "eligible", len(films), "concurrency", c.cfg.Concurrency)

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for _, film := range films {
		film := film
		g.Go(func() error {
			c.processFilm(ctx, film)
			return nil
		})
	}
	g.Wait()

	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()

	slog.Info("Download pass complete",
		"completed", summary.Completed,
		"retried", summary.Retried,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	return summary, ctx.Err()
}

// DestPath derives the final destination for a film deterministically from
// its id, which keeps resumption and reconciliation lookups trivial.
func (c *DownloadCoordinator) DestPath(filmID int64) string {
	return filepath.Join(c.cfg.FilmsPath, fmt.Sprintf("%d.mp4", filmID))
}

func (c *DownloadCoordinator) processFilm(ctx context.Context, film models.EligibleFilm) {
	log := slog.With("film_id", film.ID, "title", film.Title)
	dest := c.DestPath(film.ID)

	for attempt := 0; ; attempt++ {
		if c.diskFull.Load() {
			log.Warn("Skipping film, destination disk is full")
			c.count(func(s *Summary) { s.Skipped++ })
			return
		}

		err := c.attemptDownload(ctx, film.ID, dest)
		if err == nil {
			log.Info("Film download completed", "path", dest)
			c.count(func(s *Summary) { s.Completed++ })
			return
		}

		// Shutdown: leave the claim in place, the reconciler resolves it
		// on next start.
		if ctx.Err() != nil {
			log.Info("Download interrupted by shutdown")
			return
		}

		switch {
		case errors.Is(err, ErrClaimConflict):
			log.Debug("Film already claimed by another worker, skipping")
			c.count(func(s *Summary) { s.Skipped++ })
			return
		case errors.Is(err, ErrNotAvailable):
			log.Debug("Film not available, skipping", "error", err)
			c.count(func(s *Summary) { s.Skipped++ })
			return
		case errors.Is(err, ErrDisk):
			log.Error("Disk error, halting new claims", "error", err)
			c.diskFull.Store(true)
			// Not the film's fault: release so a later run retries it.
			c.release(film.ID)
			c.count(func(s *Summary) { s.Failed++ })
			return
		case errors.Is(err, ErrAuth):
			log.Error("Remote denied access, marking film failed", "error", err)
			c.release(film.ID)
			c.markFailed(film.ID)
			c.count(func(s *Summary) { s.Failed++ })
			return
		}

		// Everything else is retryable with backoff, up to the limit.
		c.release(film.ID)
		if attempt+1 >= c.cfg.MaxRetries {
			log.Error("Retries exhausted, marking film failed", "attempts", attempt+1, "error", err)
			c.markFailed(film.ID)
			c.count(func(s *Summary) { s.Failed++ })
			return
		}

		delay := backoffFor(attempt)
		log.Warn("Download failed, retrying", "attempt", attempt+1, "backoff", delay, "error", err)
		c.count(func(s *Summary) { s.Retried++ })
		if err := waitBackoff(ctx, delay); err != nil {
			return
		}
	}
}

// attemptDownload runs one full claim → resolve → transfer → commit cycle.
// On error the caller owns releasing the claim (except when no claim was
// taken: conflict and not-available paths).
func (c *DownloadCoordinator) attemptDownload(ctx context.Context, filmID int64, dest string) error {
	status, err := c.store.FilmStatus(ctx, filmID)
	if err != nil {
		return fmt.Errorf("failed to read film status: %w", err)
	}
	if !status.Eligible() {
		return fmt.Errorf("%w: film %d status %q", ErrNotAvailable, filmID, status.Status)
	}

	claimed, err := c.store.ClaimFilm(ctx, filmID, dest)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrClaimConflict
	}

	src, err := c.locator.Resolve(ctx, status)
	if err != nil {
		return err
	}

	if src.ExpectedSize > 0 {
		if free, ferr := freeSpace(c.cfg.FilmsPath); ferr == nil && free < src.ExpectedSize {
			return fmt.Errorf("%w: need %d bytes, %d free", ErrDisk, src.ExpectedSize, free)
		}
	}

	n, err := c.engine.Fetch(ctx, src, dest)
	if err != nil {
		return err
	}
	slog.Debug("Transfer finished", "film_id", filmID, "bytes", n)

	return c.store.FinishDownload(ctx, filmID)
}

func (c *DownloadCoordinator) count(fn func(*Summary)) {
	c.mu.Lock()
	fn(&c.summary)
	c.mu.Unlock()
}

func (c *DownloadCoordinator) release(filmID int64) {
	// Best effort against a fresh context: the claim must be released even
	// when the pass context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.ReleaseClaim(ctx, filmID); err != nil {
		slog.Error("Failed to release claim", "film_id", filmID, "error", err)
	}
}

func (c *DownloadCoordinator) markFailed(filmID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.MarkFilmFailed(ctx, filmID); err != nil {
		slog.Error("Failed to mark film failed", "film_id", filmID, "error", err)
	}
}

// backoffFor returns the delay before retry attempt+1: 1s, 2s, 4s... capped
// at one minute.
func backoffFor(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > time.Minute || d <= 0 {
		return time.Minute
	}
	return d
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
