package models

import "time"

type Film struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	OriginalTitle  string    `json:"original_title"`
	Director       string    `json:"director"`
	ProductionYear int       `json:"production_year"`
	Duration       int       `json:"duration"` // minutes
	Description    string    `json:"description"`
	AgeRestriction string    `json:"age_restriction"`
	CreatedAt      time.Time `json:"created_at"`
}

// Film lifecycle states carried in film_status.status.
const (
	StatusUnpublished = "unpublished"
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
	StatusFailed      = "failed" // download permanently failed, needs manual reset
)

type FilmStatus struct {
	FilmID          int64  `json:"film_id"`
	Status          string `json:"status"`
	VimeoID         string `json:"vimeo_id"`
	GreetingVimeoID string `json:"greeting_vimeo_id"`
}

// Eligible reports whether the film's video asset can be fetched.
func (s FilmStatus) Eligible() bool {
	return s.Status == StatusAvailable && s.VimeoID != ""
}

type FilmDownload struct {
	ID         int64      `json:"id"`
	FilmID     int64      `json:"film_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Path       string     `json:"path"`
}

type FilmThumbnail struct {
	ID         int64  `json:"id"`
	FilmID     int64  `json:"film_id"`
	Resolution string `json:"resolution"`
	URL        string `json:"url"`
	Path       string `json:"path"`
}

type Genre struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

type Country struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Code  string `json:"code"`
}

type FilmYear struct {
	ID        int64  `json:"id"`
	FilmID    int64  `json:"film_id"`
	Title     string `json:"title"`
	ProductID int64  `json:"product_id"`
}

// EligibleFilm is the slice of film data the download pass works from.
type EligibleFilm struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Director       string `json:"director"`
	ProductionYear int    `json:"production_year"`
}
