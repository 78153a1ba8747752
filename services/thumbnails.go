package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"Filmarr/config"
	"Filmarr/database"
)

// ThumbnailFetcher mirrors thumbnail images that have a remote URL but no
// local file yet. Same temp-then-rename discipline as the transfer engine,
// minus the resume machinery: thumbnails are small enough to refetch whole.
type ThumbnailFetcher struct {
	cfg    *config.Config
	store  *database.Store
	client *http.Client
}

func NewThumbnailFetcher(cfg *config.Config, store *database.Store) *ThumbnailFetcher {
	return &ThumbnailFetcher{
		cfg:   cfg,
		store: store,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (f *ThumbnailFetcher) FetchPending(ctx context.Context) error {
	pending, err := f.store.PendingThumbnails(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	dir := filepath.Join(f.cfg.FilmsPath, "thumbnails")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	var fetched int
	for _, thumb := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ext := path.Ext(thumb.URL)
		if ext == "" || len(ext) > 5 {
			ext = ".jpg"
		}
		dest := filepath.Join(dir, fmt.Sprintf("%d-%s%s", thumb.FilmID, thumb.Resolution, ext))

		if err := f.download(ctx, thumb.URL, dest); err != nil {
			slog.Error("Could not fetch thumbnail", "film_id", thumb.FilmID, "resolution", thumb.Resolution, "error", err)
			continue
		}
		if err := f.store.SetThumbnailPath(ctx, thumb.ID, dest); err != nil {
			slog.Error("Could not record thumbnail path", "film_id", thumb.FilmID, "error", err)
			continue
		}
		fetched++
	}

	slog.Info("Thumbnail fetch complete", "pending", len(pending), "fetched", fetched)
	return nil
}

func (f *ThumbnailFetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("thumbnail fetch returned status %d", resp.StatusCode)
	}

	tmp := dest + PartSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
