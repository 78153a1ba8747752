package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"Filmarr/models"
)

// Store wraps the shared connection with the queries the services need.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var ErrNotFound = errors.New("not found")

// EligibleFilms returns films whose status says the asset is fetchable and
// that have no film_downloads row at all. An unfinished row means another
// worker holds the claim (or the reconciler hasn't released it yet), so
// those films are skipped here rather than fought over.
func (s *Store) EligibleFilms(ctx context.Context) ([]models.EligibleFilm, error) {
	query := `
		SELECT f.id, f.title, f.director, f.production_year
		FROM films f
		JOIN film_status fs ON fs.film_id = f.id
		WHERE fs.status = $1
		  AND fs.vimeo_id IS NOT NULL AND fs.vimeo_id <> ''
		  AND NOT EXISTS (SELECT 1 FROM film_downloads d WHERE d.film_id = f.id)
		ORDER BY f.id`

	rows, err := s.db.QueryContext(ctx, query, models.StatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible films: %w", err)
	}
	defer rows.Close()

	var films []models.EligibleFilm
	for rows.Next() {
		var f models.EligibleFilm
		var director sql.NullString
		var year sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Title, &director, &year); err != nil {
			return nil, err
		}
		f.Director = director.String
		f.ProductionYear = int(year.Int64)
		films = append(films, f)
	}
	return films, rows.Err()
}

func (s *Store) FilmStatus(ctx context.Context, filmID int64) (models.FilmStatus, error) {
	var st models.FilmStatus
	var status, vimeoID, greetingID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT film_id, status, vimeo_id, greeting_vimeo_id FROM film_status WHERE film_id = $1`,
		filmID).Scan(&st.FilmID, &status, &vimeoID, &greetingID)
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("failed to query film status: %w", err)
	}
	st.Status = status.String
	st.VimeoID = vimeoID.String
	st.GreetingVimeoID = greetingID.String
	return st, nil
}

// ClaimFilm reserves a film for download by inserting its film_downloads
// row. Returns false when another worker already holds the row; the unique
// constraint makes this safe across processes, not just goroutines.
func (s *Store) ClaimFilm(ctx context.Context, filmID int64, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO film_downloads (film_id, path) VALUES ($1, $2)
		 ON CONFLICT (film_id) DO NOTHING`,
		filmID, path)
	if err != nil {
		return false, fmt.Errorf("failed to claim film %d: %w", filmID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishDownload commits a completed download on the existing claim row.
func (s *Store) FinishDownload(ctx context.Context, filmID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE film_downloads SET finished_at = CURRENT_TIMESTAMP WHERE film_id = $1`,
		filmID)
	if err != nil {
		return fmt.Errorf("failed to finish download for film %d: %w", filmID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no claim row to finish for film %d", filmID)
	}
	return nil
}

// ReleaseClaim drops an unfinished claim so the film is eligible again.
func (s *Store) ReleaseClaim(ctx context.Context, filmID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM film_downloads WHERE film_id = $1 AND finished_at IS NULL`,
		filmID)
	if err != nil {
		return fmt.Errorf("failed to release claim for film %d: %w", filmID, err)
	}
	return nil
}

// MarkFilmFailed flags a film so future eligibility passes skip it until an
// operator resets its status.
func (s *Store) MarkFilmFailed(ctx context.Context, filmID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE film_status SET status = $1 WHERE film_id = $2`,
		models.StatusFailed, filmID)
	if err != nil {
		return fmt.Errorf("failed to mark film %d failed: %w", filmID, err)
	}
	return nil
}

// StaleClaims returns unfinished downloads started before the cutoff,
// candidates for reconciliation after a crash.
func (s *Store) StaleClaims(ctx context.Context, olderThan time.Duration) ([]models.FilmDownload, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, film_id, started_at, path FROM film_downloads
		 WHERE finished_at IS NULL AND started_at < $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale claims: %w", err)
	}
	defer rows.Close()

	var claims []models.FilmDownload
	for rows.Next() {
		var d models.FilmDownload
		if err := rows.Scan(&d.ID, &d.FilmID, &d.StartedAt, &d.Path); err != nil {
			return nil, err
		}
		claims = append(claims, d)
	}
	return claims, rows.Err()
}

// --- catalog import queries ---

func (s *Store) FilmExists(ctx context.Context, filmID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM films WHERE id = $1)`, filmID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check film %d: %w", filmID, err)
	}
	return exists, nil
}

func (s *Store) CreateFilm(ctx context.Context, f models.Film) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO films (id, title, original_title, director, production_year, duration, description, age_restriction)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.Title, f.OriginalTitle, f.Director, f.ProductionYear, f.Duration, f.Description, f.AgeRestriction)
	if err != nil {
		return fmt.Errorf("failed to create film %d: %w", f.ID, err)
	}
	return nil
}

func (s *Store) CreateFilmStatus(ctx context.Context, st models.FilmStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO film_status (film_id, status, vimeo_id, greeting_vimeo_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (film_id) DO UPDATE SET status = $2, vimeo_id = $3, greeting_vimeo_id = $4`,
		st.FilmID, st.Status, st.VimeoID, st.GreetingVimeoID)
	if err != nil {
		return fmt.Errorf("failed to create film status for %d: %w", st.FilmID, err)
	}
	return nil
}

func (s *Store) CreateFilmThumbnail(ctx context.Context, filmID int64, resolution, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO film_thumbnails (film_id, resolution, url) VALUES ($1, $2, $3)`,
		filmID, resolution, url)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail for film %d: %w", filmID, err)
	}
	return nil
}

func (s *Store) FilmThumbnails(ctx context.Context, filmID int64) ([]models.FilmThumbnail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, film_id, resolution, COALESCE(url, ''), COALESCE(path, '')
		 FROM film_thumbnails WHERE film_id = $1`, filmID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thumbnails for film %d: %w", filmID, err)
	}
	defer rows.Close()

	var thumbs []models.FilmThumbnail
	for rows.Next() {
		var t models.FilmThumbnail
		if err := rows.Scan(&t.ID, &t.FilmID, &t.Resolution, &t.URL, &t.Path); err != nil {
			return nil, err
		}
		thumbs = append(thumbs, t)
	}
	return thumbs, rows.Err()
}

// PendingThumbnails returns thumbnails that have a remote URL but no local
// file yet.
func (s *Store) PendingThumbnails(ctx context.Context) ([]models.FilmThumbnail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, film_id, resolution, url, COALESCE(path, '')
		 FROM film_thumbnails
		 WHERE url IS NOT NULL AND url <> '' AND (path IS NULL OR path = '')`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending thumbnails: %w", err)
	}
	defer rows.Close()

	var thumbs []models.FilmThumbnail
	for rows.Next() {
		var t models.FilmThumbnail
		if err := rows.Scan(&t.ID, &t.FilmID, &t.Resolution, &t.URL, &t.Path); err != nil {
			return nil, err
		}
		thumbs = append(thumbs, t)
	}
	return thumbs, rows.Err()
}

func (s *Store) SetThumbnailPath(ctx context.Context, thumbnailID int64, path string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE film_thumbnails SET path = $1 WHERE id = $2`, path, thumbnailID)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail path: %w", err)
	}
	return nil
}

// UpsertGenre inserts the genre if missing and returns its id either way.
func (s *Store) UpsertGenre(ctx context.Context, identifier, title string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO genres (identifier, title) VALUES ($1, $2)
		 ON CONFLICT (identifier) DO UPDATE SET title = $2
		 RETURNING id`,
		identifier, title).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert genre %s: %w", identifier, err)
	}
	return id, nil
}

func (s *Store) CreateFilmGenre(ctx context.Context, filmID, genreID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO film_genres (film_id, genre_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		filmID, genreID)
	if err != nil {
		return fmt.Errorf("failed to associate film %d with genre %d: %w", filmID, genreID, err)
	}
	return nil
}

// UpsertCountry inserts the country if missing and returns its id.
func (s *Store) UpsertCountry(ctx context.Context, title, code string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO countries (title, code) VALUES ($1, $2)
		 ON CONFLICT (code) DO UPDATE SET title = $1
		 RETURNING id`,
		title, code).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert country %s: %w", code, err)
	}
	return id, nil
}

func (s *Store) CreateFilmCountry(ctx context.Context, filmID, countryID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO film_countries (film_id, country_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		filmID, countryID)
	if err != nil {
		return fmt.Errorf("failed to associate film %d with country %d: %w", filmID, countryID, err)
	}
	return nil
}

func (s *Store) CreateFilmCompetition(ctx context.Context, filmID int64, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO film_competitions (film_id, name) VALUES ($1, $2)`,
		filmID, name)
	if err != nil {
		return fmt.Errorf("failed to create competition for film %d: %w", filmID, err)
	}
	return nil
}

func (s *Store) CreateFilmYear(ctx context.Context, y models.FilmYear) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO film_years (id, film_id, title, product_id) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		y.ID, y.FilmID, y.Title, y.ProductID)
	if err != nil {
		return fmt.Errorf("failed to create film year for film %d: %w", y.FilmID, err)
	}
	return nil
}
