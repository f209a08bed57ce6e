package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPSource downloads an artifact with a GET request.
type HTTPSource struct {
	URL string

	// Client performs the request. Default: http.DefaultClient.
	Client *http.Client
}

// Open sends the request. The size comes from Content-Length.
func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, 0, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download %s: %w", s.URL, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, s.URL)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("download %s: %s", s.URL, resp.Status)
	}
	// ContentLength is -1 when unknown, matching the Source contract.
	return resp.Body, resp.ContentLength, nil
}

func (s *HTTPSource) String() string { return s.URL }

var _ Source = (*HTTPSource)(nil)
