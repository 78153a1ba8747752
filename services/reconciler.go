package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"Filmarr/config"
	"Filmarr/models"
)

// ReconcilerStore is the slice of catalog storage startup repair needs.
type ReconcilerStore interface {
	StaleClaims(ctx context.Context, olderThan time.Duration) ([]models.FilmDownload, error)
	FinishDownload(ctx context.Context, filmID int64) error
	ReleaseClaim(ctx context.Context, filmID int64) error
}

// StatusReconciler repairs claims a crashed process left behind: unfinished
// film_downloads rows older than the staleness threshold. If the completed
// file is already sitting at the final path the crash happened between
// rename and commit, so the row is finished; otherwise the claim is
// released and the coordinator retries the film.
type StatusReconciler struct {
	cfg   *config.Config
	store ReconcilerStore
}

func NewStatusReconciler(cfg *config.Config, store ReconcilerStore) *StatusReconciler {
	return &StatusReconciler{cfg: cfg, store: store}
}

// Reconcile runs one repair pass and returns (finished, released) counts.
func (r *StatusReconciler) Reconcile(ctx context.Context) (int, int, error) {
	claims, err := r.store.StaleClaims(ctx, r.cfg.StaleAfter)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query stale claims: %w", err)
	}

	var finished, released int
	for _, claim := range claims {
		if completedOnDisk(claim.Path) {
			if err := r.store.FinishDownload(ctx, claim.FilmID); err != nil {
				slog.Error("Failed to finish reconciled download", "film_id", claim.FilmID, "error", err)
				continue
			}
			slog.Info("Reconciled abandoned claim as completed", "film_id", claim.FilmID, "path", claim.Path)
			finished++
			continue
		}

		// Any .part file stays on disk so the retry can resume from it.
		if err := r.store.ReleaseClaim(ctx, claim.FilmID); err != nil {
			slog.Error("Failed to release stale claim", "film_id", claim.FilmID, "error", err)
			continue
		}
		slog.Info("Released stale claim", "film_id", claim.FilmID, "started_at", claim.StartedAt)
		released++
	}

	if len(claims) > 0 {
		slog.Info("Reconciliation complete", "stale", len(claims), "finished", finished, "released", released)
	}
	return finished, released, nil
}

// completedOnDisk reports whether the final path holds a fully transferred
// file. The transfer engine only renames verified-complete files to the
// final path, so a nonzero file there without a .part sibling means the
// transfer finished and only the commit was lost.
func completedOnDisk(path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.Size() == 0 {
		return false
	}
	if _, err := os.Stat(path + PartSuffix); err == nil {
		return false
	}
	return true
}
