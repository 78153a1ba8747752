package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"Filmarr/config"
	"Filmarr/models"
)

// Source describes a fetchable video asset.
type Source struct {
	RemoteID     string
	URL          string
	ExpectedSize int64 // 0 when the provider doesn't report one
}

// AssetLocator resolves a film's remote video id to a directly streamable
// URL by asking the player for its config. Eligibility is checked first so
// films in the wrong state never cost a network call.
type AssetLocator struct {
	playerBase string
	client     *http.Client
}

func NewAssetLocator(cfg *config.Config) *AssetLocator {
	return &AssetLocator{
		playerBase: cfg.PlayerURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// playerConfig is the subset of the player config response we care about:
// the progressive (whole-file) renditions with their sizes.
type playerConfig struct {
	Request struct {
		Files struct {
			Progressive []progressiveFile `json:"progressive"`
		} `json:"files"`
	} `json:"request"`
}

type progressiveFile struct {
	URL   string `json:"url"`
	Size  int64  `json:"size"`
	Width int    `json:"width"`
}

func (l *AssetLocator) Resolve(ctx context.Context, status models.FilmStatus) (Source, error) {
	if !status.Eligible() {
		return Source{}, fmt.Errorf("%w: film %d status %q", ErrNotAvailable, status.FilmID, status.Status)
	}

	configURL := fmt.Sprintf("%s/video/%s/config?app_id=122963", l.playerBase, status.VimeoID)
	req, err := http.NewRequestWithContext(ctx, "GET", configURL, nil)
	if err != nil {
		return Source{}, err
	}
	req.Header.Set("referer", "https://offstream.dk/")

	resp, err := l.client.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Source{}, fmt.Errorf("%w: vimeo id %s", ErrNotFound, status.VimeoID)
	case resp.StatusCode != http.StatusOK:
		return Source{}, fmt.Errorf("%w: player config returned status %d", ErrResolution, resp.StatusCode)
	}

	var cfg playerConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return Source{}, fmt.Errorf("%w: failed to decode player config: %v", ErrResolution, err)
	}

	best := pickBestProgressive(cfg.Request.Files.Progressive)
	if best == nil {
		return Source{}, fmt.Errorf("%w: no progressive rendition for vimeo id %s", ErrResolution, status.VimeoID)
	}

	return Source{
		RemoteID:     status.VimeoID,
		URL:          best.URL,
		ExpectedSize: best.Size,
	}, nil
}

// pickBestProgressive prefers the widest rendition, falling back to the
// largest file when widths are absent.
func pickBestProgressive(files []progressiveFile) *progressiveFile {
	var best *progressiveFile
	for i := range files {
		f := &files[i]
		if f.URL == "" {
			continue
		}
		if best == nil || f.Width > best.Width || (f.Width == best.Width && f.Size > best.Size) {
			best = f
		}
	}
	return best
}
