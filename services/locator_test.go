package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"Filmarr/config"
	"Filmarr/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func locatorFor(serverURL string) *AssetLocator {
	return NewAssetLocator(&config.Config{PlayerURL: serverURL})
}

func TestLocatorRejectsIneligibleWithoutNetworkCall(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	l := locatorFor(server.URL)

	for _, status := range []models.FilmStatus{
		{FilmID: 1, Status: models.StatusUnpublished, VimeoID: "123"},
		{FilmID: 2, Status: models.StatusUnavailable, VimeoID: "123"},
		{FilmID: 3, Status: models.StatusFailed, VimeoID: "123"},
		{FilmID: 4, Status: models.StatusAvailable, VimeoID: ""},
	} {
		_, err := l.Resolve(context.Background(), status)
		assert.ErrorIs(t, err, ErrNotAvailable, "film %d", status.FilmID)
	}
	assert.Equal(t, 0, requests)
}

func TestLocatorResolvesBestProgressive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/video/999/config", r.URL.Path)
		assert.Equal(t, "122963", r.URL.Query().Get("app_id"))
		fmt.Fprint(w, `{
			"request": {
				"files": {
					"progressive": [
						{"url": "http://cdn/360.mp4", "size": 1000, "width": 640},
						{"url": "http://cdn/1080.mp4", "size": 9000, "width": 1920},
						{"url": "http://cdn/720.mp4", "size": 5000, "width": 1280}
					]
				}
			}
		}`)
	}))
	defer server.Close()

	l := locatorFor(server.URL)
	src, err := l.Resolve(context.Background(), models.FilmStatus{
		FilmID: 42, Status: models.StatusAvailable, VimeoID: "999",
	})
	require.NoError(t, err)

	assert.Equal(t, "999", src.RemoteID)
	assert.Equal(t, "http://cdn/1080.mp4", src.URL)
	assert.Equal(t, int64(9000), src.ExpectedSize)
}

func TestLocatorNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	l := locatorFor(server.URL)
	_, err := l.Resolve(context.Background(), models.FilmStatus{
		FilmID: 1, Status: models.StatusAvailable, VimeoID: "gone",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocatorResolutionErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		l := locatorFor(server.URL)
		_, err := l.Resolve(context.Background(), models.FilmStatus{
			FilmID: 1, Status: models.StatusAvailable, VimeoID: "1",
		})
		assert.ErrorIs(t, err, ErrResolution)
	})

	t.Run("no progressive renditions", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"request": {"files": {"progressive": []}}}`)
		}))
		defer server.Close()

		l := locatorFor(server.URL)
		_, err := l.Resolve(context.Background(), models.FilmStatus{
			FilmID: 1, Status: models.StatusAvailable, VimeoID: "1",
		})
		assert.ErrorIs(t, err, ErrResolution)
	})

	t.Run("unreachable player", func(t *testing.T) {
		l := locatorFor("http://127.0.0.1:1")
		_, err := l.Resolve(context.Background(), models.FilmStatus{
			FilmID: 1, Status: models.StatusAvailable, VimeoID: "1",
		})
		assert.ErrorIs(t, err, ErrResolution)
	})
}
