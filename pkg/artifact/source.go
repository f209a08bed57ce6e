package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// ErrNotFound is returned when the artifact does not exist at its source.
var ErrNotFound = errors.New("artifact not found")

// Source opens an artifact for reading.
type Source interface {
	// Open returns the artifact body and its size in bytes, or -1 if the
	// size is unknown. The caller closes the body.
	Open(ctx context.Context) (io.ReadCloser, int64, error)

	// String describes the location for logs and errors.
	String() string
}

// FileSource reads an artifact from the local filesystem.
type FileSource struct {
	Path string
}

// Open opens the file.
func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", s.Path)
	}
	return f, info.Size(), nil
}

func (s *FileSource) String() string { return s.Path }

// ParseSource returns the source for location. s3 configures S3
// locations and may be nil for anonymous access with default settings.
func ParseSource(location string, s3 *S3Config) (Source, error) {
	if location == "" {
		return nil, errors.New("empty artifact location")
	}
	if !strings.Contains(location, "://") {
		return &FileSource{Path: location}, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse artifact location: %w", err)
	}
	switch u.Scheme {
	case "file":
		return &FileSource{Path: u.Path}, nil
	case "http", "https":
		return &HTTPSource{URL: location}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("s3 location needs bucket and key: %s", location)
		}
		var cfg S3Config
		if s3 != nil {
			cfg = *s3
		}
		return &S3Source{Client: NewS3Client(cfg), Bucket: u.Host, Key: key}, nil
	default:
		return nil, fmt.Errorf("unsupported artifact scheme %q", u.Scheme)
	}
}

var _ Source = (*FileSource)(nil)
