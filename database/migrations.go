package database

import (
	"fmt"
)

func RunMigrations() error {
	filmsSQL := `
	CREATE TABLE IF NOT EXISTS films (
		id BIGINT PRIMARY KEY,
		title TEXT NOT NULL,
		original_title TEXT,
		director TEXT,
		production_year INTEGER,
		duration INTEGER,
		description TEXT,
		age_restriction TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(filmsSQL); err != nil {
		return fmt.Errorf("failed to run films migration: %w", err)
	}

	statusSQL := `
	CREATE TABLE IF NOT EXISTS film_status (
		id SERIAL PRIMARY KEY,
		film_id BIGINT UNIQUE NOT NULL REFERENCES films(id) ON DELETE CASCADE,
		status VARCHAR(50),
		vimeo_id VARCHAR(50),
		greeting_vimeo_id VARCHAR(50)
	);
	`
	if _, err := DB.Exec(statusSQL); err != nil {
		return fmt.Errorf("failed to run film_status migration: %w", err)
	}

	// The unique constraint on film_id is the claim primitive: a second
	// concurrent claim for the same film fails at the storage layer.
	downloadsSQL := `
	CREATE TABLE IF NOT EXISTS film_downloads (
		id SERIAL PRIMARY KEY,
		film_id BIGINT UNIQUE NOT NULL REFERENCES films(id) ON DELETE CASCADE,
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP,
		path TEXT NOT NULL
	);
	`
	if _, err := DB.Exec(downloadsSQL); err != nil {
		return fmt.Errorf("failed to run film_downloads migration: %w", err)
	}

	thumbnailsSQL := `
	CREATE TABLE IF NOT EXISTS film_thumbnails (
		id SERIAL PRIMARY KEY,
		film_id BIGINT NOT NULL REFERENCES films(id) ON DELETE CASCADE,
		resolution VARCHAR(50) NOT NULL,
		url TEXT,
		path TEXT
	);
	`
	if _, err := DB.Exec(thumbnailsSQL); err != nil {
		return fmt.Errorf("failed to run film_thumbnails migration: %w", err)
	}

	genresSQL := `
	CREATE TABLE IF NOT EXISTS genres (
		id SERIAL PRIMARY KEY,
		identifier VARCHAR(255) UNIQUE NOT NULL,
		title TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS film_genres (
		film_id BIGINT NOT NULL REFERENCES films(id) ON DELETE CASCADE,
		genre_id BIGINT NOT NULL REFERENCES genres(id) ON DELETE CASCADE,
		UNIQUE (film_id, genre_id)
	);
	`
	if _, err := DB.Exec(genresSQL); err != nil {
		return fmt.Errorf("failed to run genres migration: %w", err)
	}

	countriesSQL := `
	CREATE TABLE IF NOT EXISTS countries (
		id SERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		code VARCHAR(10) UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS film_countries (
		film_id BIGINT NOT NULL REFERENCES films(id) ON DELETE CASCADE,
		country_id BIGINT NOT NULL REFERENCES countries(id) ON DELETE CASCADE,
		UNIQUE (film_id, country_id)
	);
	`
	if _, err := DB.Exec(countriesSQL); err != nil {
		return fmt.Errorf("failed to run countries migration: %w", err)
	}

	competitionsSQL := `
	CREATE TABLE IF NOT EXISTS film_competitions (
		id SERIAL PRIMARY KEY,
		film_id BIGINT NOT NULL REFERENCES films(id) ON DELETE CASCADE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS film_years (
		id BIGINT PRIMARY KEY,
		film_id BIGINT NOT NULL REFERENCES films(id) ON DELETE CASCADE,
		title TEXT,
		product_id BIGINT
	);
	`
	if _, err := DB.Exec(competitionsSQL); err != nil {
		return fmt.Errorf("failed to run competitions migration: %w", err)
	}

	return nil
}
