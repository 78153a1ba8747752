package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"Filmarr/database"
	"Filmarr/models"
)

// CatalogImporter pulls the remote film listing and fills in records the
// local catalog is missing: films with their status, thumbnails, genres,
// countries, competitions and festival year. Per-film trouble is logged and
// skipped; the sync never dies over one bad record.
type CatalogImporter struct {
	client *OffstreamClient
	store  *database.Store
}

func NewCatalogImporter(client *OffstreamClient, store *database.Store) *CatalogImporter {
	return &CatalogImporter{client: client, store: store}
}

func (imp *CatalogImporter) SyncCatalog(ctx context.Context) error {
	listing, err := imp.client.GetFilms(ctx)
	if err != nil {
		return err
	}
	slog.Info("Received film listing", "films", len(listing.Data))

	var missing []int64
	for idStr := range listing.Data {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			slog.Error("Film listing contained a non-numeric id", "id", idStr)
			continue
		}
		exists, err := imp.store.FilmExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, id)
		}
	}
	slog.Info("Films not yet in catalog", "missing", len(missing))

	for _, id := range missing {
		if err := imp.importFilm(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Could not import film", "film_id", id, "error", err)
		}

		// Pace detail fetches so the API isn't hammered
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

func (imp *CatalogImporter) importFilm(ctx context.Context, filmID int64) error {
	slog.Debug("Fetching film details", "film_id", filmID)
	detail, status, err := imp.client.GetFilm(ctx, filmID)
	if err != nil {
		return err
	}

	film := models.Film{
		ID:             filmID,
		Title:          detail.Title,
		OriginalTitle:  detail.OriginalTitle,
		Director:       detail.Director,
		ProductionYear: detail.ProductionYear,
		Duration:       detail.Duration,
		Description:    detail.Description,
		AgeRestriction: detail.AgeRestriction,
	}
	if err := imp.store.CreateFilm(ctx, film); err != nil {
		return err
	}

	if err := imp.store.CreateFilmStatus(ctx, *status); err != nil {
		slog.Error("Could not create film status", "film_id", filmID, "error", err)
	}

	imp.importThumbnails(ctx, filmID, detail.Thumbnails)
	imp.importGenres(ctx, filmID, detail.Genres)
	imp.importCountries(ctx, filmID, detail.Countries)

	for _, competition := range detail.Competitions {
		if err := imp.store.CreateFilmCompetition(ctx, filmID, competition); err != nil {
			slog.Error("Could not create film competition", "film_id", filmID, "error", err)
		}
	}

	if detail.Year.ID != 0 {
		year := models.FilmYear{
			ID:        detail.Year.ID,
			FilmID:    filmID,
			Title:     detail.Year.Title,
			ProductID: detail.Year.ProductID,
		}
		if err := imp.store.CreateFilmYear(ctx, year); err != nil {
			slog.Error("Could not create film year", "film_id", filmID, "error", err)
		}
	}

	return nil
}

func (imp *CatalogImporter) importThumbnails(ctx context.Context, filmID int64, thumbnails map[string]string) {
	if len(thumbnails) == 0 {
		return
	}
	stored, err := imp.store.FilmThumbnails(ctx, filmID)
	if err != nil {
		slog.Error("Could not read stored thumbnails", "film_id", filmID, "error", err)
		return
	}
	for resolution, url := range thumbnails {
		known := false
		for _, t := range stored {
			if t.Resolution == resolution {
				known = true
				break
			}
		}
		if known {
			continue
		}
		if err := imp.store.CreateFilmThumbnail(ctx, filmID, resolution, url); err != nil {
			slog.Error("Could not add thumbnail", "film_id", filmID, "resolution", resolution, "error", err)
		}
	}
}

func (imp *CatalogImporter) importGenres(ctx context.Context, filmID int64, genres []FilmDetailGenre) {
	for _, genre := range genres {
		genreID, err := imp.store.UpsertGenre(ctx, genre.ID, genre.Title)
		if err != nil {
			slog.Error("Could not upsert genre", "identifier", genre.ID, "error", err)
			continue
		}
		if err := imp.store.CreateFilmGenre(ctx, filmID, genreID); err != nil {
			slog.Error("Could not associate film with genre", "film_id", filmID, "genre_id", genreID, "error", err)
		}
	}
}

func (imp *CatalogImporter) importCountries(ctx context.Context, filmID int64, countries []FilmDetailCountry) {
	for _, country := range countries {
		countryID, err := imp.store.UpsertCountry(ctx, country.Title, country.Code)
		if err != nil {
			slog.Error("Could not upsert country", "code", country.Code, "error", err)
			continue
		}
		if err := imp.store.CreateFilmCountry(ctx, filmID, countryID); err != nil {
			slog.Error("Could not associate film with country", "film_id", filmID, "country_id", countryID, "error", err)
		}
	}
}
