package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"Filmarr/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOffstreamTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/csrf-cookie", func(w http.ResponseWriter, r *http.Request) {
		// The API URL-encodes the token in the cookie
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "tok%3Dabc123"})
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/films", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-xsrf-token") != "tok=abc123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"data": {"42": {"title": "Dogville"}, "43": {"title": "Melancholia"}}}`)
	})

	mux.HandleFunc("/films/load", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-xsrf-token") != "tok=abc123" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var req map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, int64(42), req["film_id"])

		fmt.Fprint(w, `{
			"data": {
				"42": {
					"title": "Dogville",
					"original_title": "Dogville",
					"director": "Lars von Trier",
					"production_year": 2003,
					"duration": 178,
					"description": "A drama",
					"age_restriction": "15",
					"thumbnails": {"small": "http://img/s.jpg"},
					"genres": [{"id": "drama", "title": "Drama"}],
					"countries": [{"title": "Denmark", "code": "DK"}],
					"year": {"id": 3, "title": "2021", "product_id": 17},
					"competitions": ["main"]
				}
			},
			"status": {"status": "available", "vimeo_id": "999", "greeting_vimeo_id": ""}
		}`)
	})

	return httptest.NewServer(mux)
}

func TestOffstreamClientLoginAndListing(t *testing.T) {
	server := newOffstreamTestServer(t)
	defer server.Close()

	client := NewOffstreamClient(&config.Config{OffstreamURL: server.URL})
	listing, err := client.GetFilms(context.Background())
	require.NoError(t, err)

	assert.Len(t, listing.Data, 2)
	assert.Contains(t, listing.Data, "42")
	assert.Contains(t, listing.Data, "43")
}

func TestOffstreamClientGetFilm(t *testing.T) {
	server := newOffstreamTestServer(t)
	defer server.Close()

	client := NewOffstreamClient(&config.Config{OffstreamURL: server.URL})
	detail, status, err := client.GetFilm(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, "Dogville", detail.Title)
	assert.Equal(t, "Lars von Trier", detail.Director)
	assert.Equal(t, 2003, detail.ProductionYear)
	assert.Equal(t, "http://img/s.jpg", detail.Thumbnails["small"])
	assert.Equal(t, "drama", detail.Genres[0].ID)
	assert.Equal(t, "DK", detail.Countries[0].Code)
	assert.Equal(t, int64(3), detail.Year.ID)
	assert.Equal(t, []string{"main"}, detail.Competitions)

	assert.Equal(t, int64(42), status.FilmID)
	assert.Equal(t, "available", status.Status)
	assert.Equal(t, "999", status.VimeoID)
}

func TestOffstreamClientMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewOffstreamClient(&config.Config{OffstreamURL: server.URL})
	err := client.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XSRF token")
}
