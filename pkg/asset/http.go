package asset

import (
	"context"
	"net/http"
	"strings"

	"github.com/teslashibe/go-motion/internal/httpc"
	"github.com/teslashibe/go-motion/pkg/clip"
)

// HTTP downloads clips from <base>/<id>.anim.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP creates an HTTP fetcher. A nil client uses httpc.Client.
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = httpc.Client
	}
	return &HTTP{base: strings.TrimRight(baseURL, "/"), client: client}
}

// URL returns the download location for id.
func (h *HTTP) URL(id clip.ID) string {
	return h.base + "/" + id.String() + ".anim"
}

// Fetch downloads the clip on a new goroutine.
func (h *HTTP) Fetch(ctx context.Context, id clip.ID, onComplete func([]byte, error)) {
	url := h.URL(id)
	go deliver("asset.http", onComplete, func() ([]byte, error) {
		return httpc.GetBytes(ctx, h.client, url)
	})
}
