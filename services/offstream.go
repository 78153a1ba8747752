package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"Filmarr/config"
	"Filmarr/models"
)

// OffstreamClient talks to the catalog API. The API hands out an XSRF token
// via cookie that must be echoed back in the x-xsrf-token header on every
// authenticated request.
type OffstreamClient struct {
	baseURL   string
	client    *http.Client
	mu        sync.Mutex
	xsrfToken string
	lastLogin time.Time
}

const xsrfTokenLifetime = 30 * time.Minute

// FilmListResponse is the /films listing: a map of film id to raw film data.
type FilmListResponse struct {
	Data map[string]json.RawMessage `json:"data"`
}

// FilmDetail carries everything the importer stores about one film.
type FilmDetail struct {
	Title          string              `json:"title"`
	OriginalTitle  string              `json:"original_title"`
	Director       string              `json:"director"`
	ProductionYear int                 `json:"production_year"`
	Duration       int                 `json:"duration"`
	Description    string              `json:"description"`
	AgeRestriction string              `json:"age_restriction"`
	Thumbnails     map[string]string   `json:"thumbnails"`
	Genres         []FilmDetailGenre   `json:"genres"`
	Countries      []FilmDetailCountry `json:"countries"`
	Year           FilmDetailYear      `json:"year"`
	Competitions   []string            `json:"competitions"`
}

type FilmDetailGenre struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type FilmDetailCountry struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

type FilmDetailYear struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	ProductID int64  `json:"product_id"`
}

type FilmDetailStatus struct {
	Status          string `json:"status"`
	VimeoID         string `json:"vimeo_id"`
	GreetingVimeoID string `json:"greeting_vimeo_id"`
}

type filmDetailResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Status FilmDetailStatus           `json:"status"`
}

func NewOffstreamClient(cfg *config.Config) *OffstreamClient {
	jar, _ := cookiejar.New(nil)
	return &OffstreamClient{
		baseURL: cfg.OffstreamURL,
		client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Login fetches a fresh XSRF token. Cached for a while since the API keeps
// the cookie session alive between calls.
func (c *OffstreamClient) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.xsrfToken != "" && time.Since(c.lastLogin) < xsrfTokenLifetime {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/csrf-cookie", nil)
	if err != nil {
		return err
	}
	c.setCommonHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.xsrfToken = ""
		return fmt.Errorf("failed to request XSRF token: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "XSRF-TOKEN" {
			token, err := url.QueryUnescape(cookie.Value)
			if err != nil {
				return fmt.Errorf("failed to decode XSRF token: %w", err)
			}
			c.xsrfToken = token
			c.lastLogin = time.Now()
			return nil
		}
	}

	c.xsrfToken = ""
	return fmt.Errorf("API response did not include an XSRF token")
}

// GetFilms returns the complete film listing.
func (c *OffstreamClient) GetFilms(ctx context.Context) (*FilmListResponse, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/films", nil)
	if err != nil {
		return nil, err
	}
	c.setCommonHeaders(req)
	c.setXSRFHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch film listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("film listing failed with status %d: %s", resp.StatusCode, string(body))
	}

	var listing FilmListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode film listing: %w", err)
	}
	if listing.Data == nil {
		return nil, fmt.Errorf("film listing did not include a data field")
	}
	return &listing, nil
}

// GetFilm loads detail and status for one film.
func (c *OffstreamClient) GetFilm(ctx context.Context, filmID int64) (*FilmDetail, *models.FilmStatus, error) {
	if err := c.Login(ctx); err != nil {
		return nil, nil, err
	}

	payload, _ := json.Marshal(map[string]int64{"film_id": filmID})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/films/load", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	c.setCommonHeaders(req)
	c.setXSRFHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load film %d: %w", filmID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("film load failed with status %d: %s", resp.StatusCode, string(body))
	}

	var raw filmDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("failed to decode film %d: %w", filmID, err)
	}

	// The data object is keyed by film id with a single entry
	var detail *FilmDetail
	for _, value := range raw.Data {
		var d FilmDetail
		if err := json.Unmarshal(value, &d); err != nil {
			return nil, nil, fmt.Errorf("failed to decode film %d data: %w", filmID, err)
		}
		detail = &d
		break
	}
	if detail == nil {
		return nil, nil, fmt.Errorf("film %d response did not include a data object", filmID)
	}

	status := &models.FilmStatus{
		FilmID:          filmID,
		Status:          raw.Status.Status,
		VimeoID:         raw.Status.VimeoID,
		GreetingVimeoID: raw.Status.GreetingVimeoID,
	}
	return detail, status, nil
}

func (c *OffstreamClient) setCommonHeaders(req *http.Request) {
	req.Header.Set("origin", "https://offstream.dk")
	req.Header.Set("content-type", "application/json")
}

func (c *OffstreamClient) setXSRFHeader(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.xsrfToken != "" {
		req.Header.Set("x-xsrf-token", c.xsrfToken)
	}
}
