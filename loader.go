package fathom

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	// Tile servers commonly mix formats per level; register everything the
	// viewer is prepared to draw.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const defaultUserAgent = "fathom/1.0"

// HTTPTileLoader fetches tiles over HTTP and decodes them into bitmaps.
// Its Fetch method satisfies FetchFunc and is safe for concurrent use.
// The zero value is usable; a custom Client can add caching transports or
// authentication.
type HTTPTileLoader struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPTileLoader returns a loader with a timeout-bounded client.
func NewHTTPTileLoader() *HTTPTileLoader {
	return &HTTPTileLoader{
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads and decodes one tile. Any failure (transport, status,
// decode) is returned to the scheduler, which logs it and leaves the tile
// uncached for a natural retry.
func (l *HTTPTileLoader) Fetch(ctx context.Context, addr TileAddress, url string) (image.Image, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", addr, err)
	}
	ua := l.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile %s: unexpected status %s", addr, resp.Status)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tile %s: decode: %w", addr, err)
	}
	return img, nil
}
